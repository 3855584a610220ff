// Package kb is the FAQ knowledge base the chatbot answers from. The in-memory repo keeps a
// word-level inverted index per field; esrepo stores the same entries in Elasticsearch.
package kb

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

type Entry struct {
	ID       string   `json:"id" yaml:"id"`
	Question string   `json:"question" yaml:"question"`
	Answer   string   `json:"answer" yaml:"answer"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
}

type Item struct {
	ID       string  `json:"id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Category string  `json:"category,omitempty"`
	Score    float64 `json:"score"`
}

func (e *Entry) item(score float64) *Item {
	return &Item{ID: e.ID, Question: e.Question, Answer: e.Answer, Category: e.Category, Score: score}
}

type Repo interface {
	// Add stores an entry; an existing ID is replaced as in Update.
	Add(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id string) (*Entry, bool)
	// Search returns items sorted by score desc, truncated to limit, and the untruncated total.
	Search(ctx context.Context, q string, limit int) ([]*Item, int, error)
	// Update replaces the entry with the same ID, inserting it when missing.
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
}

// Field weights. Questions are phrased like the user's message, so they count most.
const (
	weightQuestion = 3.0
	weightKeywords = 2.0
	weightAnswer   = 1.0
	// added once per keyword phrase found verbatim in the query
	keywordHitBonus = 2.0
)

// field is one inverted index: token -> entry id -> count, plus per-entry counts so an
// update can subtract exactly what it added.
type field struct {
	weight  float64
	index   map[string]map[string]int
	byEntry map[string]map[string]int
	text    func(e *Entry) string
}

func newField(weight float64, text func(e *Entry) string) *field {
	return &field{weight: weight, index: map[string]map[string]int{}, byEntry: map[string]map[string]int{}, text: text}
}

type memoryRepo struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	fields  []*field
}

func NewMemoryRepo() Repo {
	return &memoryRepo{
		entries: map[string]*Entry{},
		fields: []*field{
			newField(weightQuestion, func(e *Entry) string { return e.Question }),
			newField(weightKeywords, func(e *Entry) string { return strings.Join(e.Keywords, " ") }),
			newField(weightAnswer, func(e *Entry) string { return e.Answer }),
		},
	}
}

func (m *memoryRepo) Add(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertLocked(e)
	return nil
}

func (m *memoryRepo) Update(ctx context.Context, e *Entry) error {
	return m.Add(ctx, e)
}

// Get returns a copy; the stored entry is never handed out.
func (m *memoryRepo) Get(ctx context.Context, id string) (*Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	cp := *e
	cp.Keywords = append([]string(nil), e.Keywords...)
	return &cp, true
}

func (m *memoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return nil
	}
	for _, f := range m.fields {
		f.remove(id)
	}
	delete(m.entries, id)
	return nil
}

func (m *memoryRepo) Search(ctx context.Context, q string, limit int) ([]*Item, int, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return []*Item{}, 0, nil
	}
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.scoreTokens(Tokenize(q), q)
	if len(items) == 0 {
		items = m.scoreSubstring(q)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	total := len(items)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *memoryRepo) upsertLocked(e *Entry) {
	cp := *e
	cp.Keywords = append([]string(nil), e.Keywords...)
	for _, f := range m.fields {
		f.remove(cp.ID)
		f.add(&cp)
	}
	m.entries[cp.ID] = &cp
}

func (f *field) add(e *Entry) {
	counts := countTokens(f.text(e))
	for tok, c := range counts {
		if f.index[tok] == nil {
			f.index[tok] = map[string]int{}
		}
		f.index[tok][e.ID] += c
	}
	f.byEntry[e.ID] = counts
}

func (f *field) remove(id string) {
	for tok, c := range f.byEntry[id] {
		postings := f.index[tok]
		if postings == nil {
			continue
		}
		postings[id] -= c
		if postings[id] <= 0 {
			delete(postings, id)
		}
		if len(postings) == 0 {
			delete(f.index, tok)
		}
	}
	delete(f.byEntry, id)
}

// scoreTokens sums tf * idf * field weight over the distinct query tokens, then adds the
// keyword phrase bonus for entries that matched at least one token.
func (m *memoryRepo) scoreTokens(tokens []string, q string) []*Item {
	if len(tokens) == 0 || len(m.entries) == 0 {
		return nil
	}
	scores := map[string]float64{}
	for tok := range dedup(tokens) {
		w := m.idf(tok)
		for _, f := range m.fields {
			for id, c := range f.index[tok] {
				scores[id] += float64(c) * w * f.weight
			}
		}
	}
	items := make([]*Item, 0, len(scores))
	for id, s := range scores {
		e := m.entries[id]
		for _, kw := range e.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(q, kw) {
				s += keywordHitBonus
			}
		}
		items = append(items, e.item(s))
	}
	return items
}

// idf counts an entry once per token no matter how many fields carry it.
func (m *memoryRepo) idf(tok string) float64 {
	seen := map[string]struct{}{}
	for _, f := range m.fields {
		for id := range f.index[tok] {
			seen[id] = struct{}{}
		}
	}
	n := float64(len(m.entries))
	return 1.0 + math.Log((1.0+n)/(1.0+float64(len(seen))))
}

// scoreSubstring is the fallback for queries made only of stop words or partial words.
func (m *memoryRepo) scoreSubstring(q string) []*Item {
	var out []*Item
	for _, e := range m.entries {
		score := 0.0
		if strings.Contains(strings.ToLower(e.Question), q) {
			score += weightQuestion
		}
		if strings.Contains(strings.ToLower(e.Answer), q) {
			score += weightAnswer
		}
		if score > 0 {
			out = append(out, e.item(score))
		}
	}
	return out
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be can could do does for from get have how
		i in is it me my of on or please should the this to what when where which who why will
		with would you your`) {
		stopWords[w] = struct{}{}
	}
}

// Tokenize lower-cases s, splits on anything that is not a letter or digit, drops stop words
// and single letters and folds a plural "s".
func Tokenize(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

func stem(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

func countTokens(s string) map[string]int {
	m := map[string]int{}
	for _, t := range Tokenize(s) {
		m[t]++
	}
	return m
}

func dedup(ss []string) map[string]struct{} {
	m := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		m[s] = struct{}{}
	}
	return m
}
