package chatbot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

var (
	greetingRe     = regexp.MustCompile(`(?i)^(hi|hello|hey|greetings|good (morning|afternoon|evening|day))\b`)
	ticketNumberRe = regexp.MustCompile(`(?i)\bTICKET-\d{8}-[0-9A-F]{8}\b`)
)

var (
	confirmWords = []string{"yes", "y", "yes please", "sure", "ok", "okay", "create", "create ticket", "create it", "go ahead"}
	declineWords = []string{"no", "n", "nope", "no thanks", "not now", "cancel", "never mind", "nevermind"}

	statusPhrases = []string{
		"ticket status", "check ticket", "check my ticket", "my ticket", "ticket number", "view ticket",
		"show ticket", "show my ticket", "ticket update", "ticket progress", "status of my ticket",
		"status of ticket", "where is my ticket", "what is my ticket",
	}
	statusWords = []string{"status", "check", "view", "show", "progress", "update", "information", "info"}

	// English plus the Tagalog forms students use on campus.
	locationWords = []string{
		"where", "location", "locate", "find", "directions", "how to get to",
		"saan", "nasaan", "nasa", "hanap", "hanapin", "makikita", "matatagpuan",
	}
	// Generic words that say "this is about an office" without naming one.
	officeTerms = []string{"office", "department", "building", "room", "tanggapan", "kagawaran", "opisina"}
	nameFillers = map[string]bool{"office": true, "department": true, "the": true, "of": true, "and": true, "for": true}

	offerIndicators = []string{
		"request", "need", "want", "apply", "create", "submit", "help with", "assistance", "issue", "problem",
	}
)

// CategoryKeywords routes chat messages to a ticket category.
type CategoryKeywords struct {
	Category string
	Keywords []string
}

// DefaultCategoryKeywords are checked in order; the first category with a hit wins. Entries
// whose category is not in the reference data are skipped.
var DefaultCategoryKeywords = []CategoryKeywords{
	{"OTR Request", []string{"otr", "transcript", "official transcript", "records", "tor"}},
	{"Subject Enrollment", []string{"add subject", "register subject", "drop subject", "withdraw subject"}},
	{"Grade Inquiry", []string{"grade", "grades", "check grade", "question about grade"}},
	{"Document Request", []string{"document", "certificate", "diploma", "coe", "certificate of enrollment"}},
	{"Enrollment", []string{"enrollment", "enroll", "change course", "shift course"}},
	{"Scholarship", []string{"scholarship", "grant"}},
	{"Financial Aid", []string{"financial aid", "assistance", "help with payment"}},
	{"Tuition Payment", []string{"tuition", "payment", "pay", "fee"}},
	{"Academic Complaint", []string{"complaint", "grievance"}},
	{"General Inquiry", []string{"inquiry", "question", "information"}},
}

// GeneralCategory receives offers no keyword matched, when it exists.
const GeneralCategory = "General Inquiry"

// normalize lower-cases s and turns everything but letters and digits into single spaces,
// padded so " word " lookups respect word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// hasWord reports whether phrase occurs in the normalized text as whole words.
func hasWord(norm, phrase string) bool {
	p := strings.TrimSpace(normalize(phrase))
	return p != "" && strings.Contains(norm, " "+p+" ")
}

func hasAnyWord(norm string, phrases []string) bool {
	for _, p := range phrases {
		if hasWord(norm, p) {
			return true
		}
	}
	return false
}

func isGreeting(msg string) bool {
	return greetingRe.MatchString(strings.TrimSpace(msg))
}

func isExactly(msg string, words []string) bool {
	m := strings.TrimSpace(normalize(msg))
	for _, w := range words {
		if m == w {
			return true
		}
	}
	return false
}

func isConfirmation(msg string) bool { return isExactly(msg, confirmWords) }
func isDecline(msg string) bool      { return isExactly(msg, declineWords) }

// ticketNumberIn returns the first ticket number in msg, upper-cased.
func ticketNumberIn(msg string) string {
	return strings.ToUpper(ticketNumberRe.FindString(msg))
}

// isStatusInquiry needs "ticket" plus a status phrase or word, or a literal ticket number.
func isStatusInquiry(msg string) bool {
	if ticketNumberIn(msg) != "" {
		return true
	}
	norm := normalize(msg)
	if !strings.Contains(norm, "ticket") {
		return false
	}
	return hasAnyWord(norm, statusPhrases) || hasAnyWord(norm, statusWords)
}

func isLocationInquiry(norm string) bool { return hasAnyWord(norm, locationWords) }

// matchOffice scores every office against the message and returns the best one scoring at
// least 2: full name 5, keyword as whole word 3 or substring 2, significant name word as
// whole word 2 or substring 1, building name 1.
func matchOffice(norm string, offices []refdata.Office) (refdata.Office, bool) {
	var best refdata.Office
	bestScore := 0
	for _, o := range offices {
		score := 0
		for _, kw := range o.Keywords {
			k := strings.TrimSpace(normalize(kw))
			switch {
			case k == "":
			case hasWord(norm, k):
				score += 3
			case strings.Contains(norm, k):
				score += 2
			}
		}
		name := strings.TrimSpace(normalize(o.OfficeName))
		if name != "" && hasWord(norm, name) {
			score += 5
		} else {
			for _, w := range strings.Fields(name) {
				if utf8.RuneCountInString(w) <= 3 || nameFillers[w] {
					continue
				}
				if hasWord(norm, w) {
					score += 2
				} else if strings.Contains(norm, w) {
					score++
				}
			}
		}
		if b := strings.TrimSpace(normalize(o.BuildingName)); b != "" && hasWord(norm, b) {
			score++
		}
		if score > bestScore {
			best, bestScore = o, score
		}
	}
	return best, bestScore >= 2
}

func mentionsOffice(norm string) bool { return hasAnyWord(norm, officeTerms) }

func wantsTicket(norm string) bool { return hasAnyWord(norm, offerIndicators) }

// detectCategory picks the category for a ticket offer: the longest category named verbatim, then the
// keyword table, then GeneralCategory. Only categories present in known count.
func detectCategory(norm string, table []CategoryKeywords, known []string) string {
	has := make(map[string]bool, len(known))
	named := ""
	for _, c := range known {
		has[c] = true
		if hasWord(norm, c) && len(c) > len(named) {
			named = c
		}
	}
	if named != "" {
		return named
	}
	for _, ck := range table {
		if has[ck.Category] && hasAnyWord(norm, ck.Keywords) {
			return ck.Category
		}
	}
	if has[GeneralCategory] {
		return GeneralCategory
	}
	return ""
}

func detectPriority(norm string) string {
	switch {
	case hasAnyWord(norm, []string{"urgent", "asap", "immediately", "emergency"}):
		return common.PriorityUrgent
	case hasAnyWord(norm, []string{"important", "soon"}):
		return common.PriorityHigh
	}
	return common.PriorityNormal
}

// draftFrom turns a chat message into ticket fields that pass creation validation.
func draftFrom(msg, category string) *Draft {
	msg = strings.TrimSpace(msg)
	title := truncateRunes(firstLine(msg), 100)
	if utf8.RuneCountInString(title) < 5 {
		title = "Request from chatbot: " + title
	}
	desc := msg
	if utf8.RuneCountInString(desc) < 10 {
		desc += " (created via chatbot)"
	}
	return &Draft{
		Message:     msg,
		Title:       title,
		Description: truncateRunes(desc, 5000),
		Category:    category,
		Priority:    detectPriority(normalize(msg)),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
