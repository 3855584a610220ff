// Package chatbot answers student messages with a fixed rule pipeline and falls back to the
// chat model. It can draft a ticket from the conversation and file it once the student
// confirms, which routes it to an office queue like any other ticket.
package chatbot

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/ai/chain"
	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/helpdesk"
	"github.com/gogogo1024/campus-desk/internal/kb"
	"github.com/gogogo1024/campus-desk/internal/observability"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

const (
	maxMessage     = 1000
	llmMaxTokens   = 250
	recentTickets  = 10
	defaultSession = "default"
)

// Reply actions.
const (
	ActionGreeting       = "greeting"
	ActionTicketCreated  = "ticket_created"
	ActionTicketDeclined = "ticket_declined"
	ActionTicketStatus   = "ticket_status"
	ActionLocation       = "location_info"
	ActionOfficeUnknown  = "office_not_found"
	ActionFAQ            = "faq"
	ActionTicketOffer    = "ticket_offer"
	ActionLLM            = "llm"
	ActionError          = "error"
)

// Tickets is the part of helpdesk.Service the bot needs.
type Tickets interface {
	Create(ctx context.Context, actor auth.Principal, in helpdesk.CreateInput) (*common.Ticket, bool, error)
	List(ctx context.Context, actor auth.Principal, q helpdesk.ListQuery) (*helpdesk.Page, error)
}

type Message struct {
	SessionID string `json:"session_id"`
	Text      string `json:"message"`
}

type TicketRef struct {
	ID           string `json:"id"`
	TicketNumber string `json:"ticket_number"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	Category     string `json:"category"`
	OfficeName   string `json:"office_name,omitempty"`
	QueueNumber  *int   `json:"queue_number,omitempty"`
}

func refOf(t *common.Ticket) TicketRef {
	r := TicketRef{
		ID: t.ID, TicketNumber: t.TicketNumber, Title: t.Title, Status: t.Status,
		Priority: t.Priority, Category: t.Category, QueueNumber: t.QueueNumber,
	}
	if t.AssignedOffice != nil {
		r.OfficeName = t.AssignedOffice.OfficeName
	}
	return r
}

type Reply struct {
	Text    string          `json:"text"`
	Action  string          `json:"action,omitempty"`
	Ticket  *TicketRef      `json:"ticket,omitempty"`
	Tickets []TicketRef     `json:"tickets,omitempty"`
	Office  *refdata.Office `json:"office,omitempty"`
	FAQ     *kb.Item        `json:"faq,omitempty"`
	Draft   *Draft          `json:"draft,omitempty"`
}

type Bot struct {
	ref        *refdata.Store
	faq        *kb.Base
	tickets    Tickets
	chat       chain.ChatChain
	sessions   SessionStore
	categories []CategoryKeywords
	now        func() time.Time
}

type Option func(*Bot)

func WithCategoryKeywords(table []CategoryKeywords) Option {
	return func(b *Bot) { b.categories = table }
}

func WithNow(now func() time.Time) Option { return func(b *Bot) { b.now = now } }

func New(ref *refdata.Store, faq *kb.Base, tickets Tickets, chat chain.ChatChain, sessions SessionStore, opts ...Option) *Bot {
	b := &Bot{
		ref: ref, faq: faq, tickets: tickets, chat: chat, sessions: sessions,
		categories: DefaultCategoryKeywords,
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle runs one message through the pipeline. Only invalid input is an error; failures of
// the helpers the bot calls become apologetic replies.
func (b *Bot) Handle(ctx context.Context, actor auth.Principal, in Message) (*Reply, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, common.Invalid("message", "is required")
	}
	if utf8.RuneCountInString(text) > maxMessage {
		return nil, common.Invalid("message", "must be at most %d characters", maxMessage)
	}
	observability.ChatMessages.Add(1)
	sid := strings.TrimSpace(in.SessionID)
	if sid == "" {
		sid = defaultSession
	}
	key := actor.UserID + ":" + sid

	sess, err := b.sessions.Get(ctx, key)
	if err != nil {
		common.L().Warn("chat session unavailable", zap.String("session", key), zap.Error(err))
	}
	if sess == nil {
		sess = &Session{}
	}
	reply := b.respond(ctx, actor, sess, text)
	sess.remember(
		chain.ChatMessage{Role: chain.RoleUser, Content: text},
		chain.ChatMessage{Role: chain.RoleAssistant, Content: reply.Text},
	)
	sess.UpdatedAt = b.now().UnixMilli()
	if err := b.sessions.Save(ctx, key, sess); err != nil {
		common.L().Warn("chat session not saved", zap.String("session", key), zap.Error(err))
	}
	return reply, nil
}

// respond is the pipeline; the first rule that applies answers.
func (b *Bot) respond(ctx context.Context, actor auth.Principal, sess *Session, text string) *Reply {
	draft := sess.Draft
	// an offer is only good for the next message
	sess.Draft = nil
	norm := normalize(text)

	switch {
	case isGreeting(text):
		return &Reply{Text: b.greeting(), Action: ActionGreeting}
	case isConfirmation(text):
		if draft == nil {
			return &Reply{Text: "There's no pending request to confirm. Tell me what you need help with and I can create a ticket for it."}
		}
		return b.createTicket(ctx, actor, draft)
	case isDecline(text) && draft != nil:
		return &Reply{Text: "Okay, I won't create a ticket. Is there anything else I can help you with?", Action: ActionTicketDeclined}
	case isStatusInquiry(text):
		return b.ticketStatus(ctx, actor, ticketNumberIn(text))
	}

	if isLocationInquiry(norm) {
		if o, ok := matchOffice(norm, b.ref.Offices()); ok {
			return &Reply{Text: formatOffice(o), Action: ActionLocation, Office: &o}
		}
	}

	if item, ok, err := b.faq.Answer(ctx, text); err != nil {
		common.L().Warn("faq lookup failed", zap.Error(err))
	} else if ok {
		r := &Reply{Text: item.Answer, Action: ActionFAQ, FAQ: item}
		if wantsTicket(norm) {
			b.offer(sess, r, text, norm, "\n\nWould you like me to create a ticket for this request? Just reply \"yes\" and I'll set it up for you.")
		}
		return r
	}

	if wantsTicket(norm) {
		r := &Reply{Text: "I understand you need help with that. I can create a ticket so our staff can assist you.\n\nWould you like me to create a ticket? Just reply \"yes\" and I'll set it up for you."}
		if !b.offer(sess, r, text, norm, "") {
			r.Text = "I understand you need help with that, but I couldn't tell which office handles it. Please create a ticket from the Tickets page and pick a category."
		}
		return r
	}

	if isLocationInquiry(norm) && mentionsOffice(norm) {
		return &Reply{Text: b.unknownOffice(), Action: ActionOfficeUnknown}
	}
	return b.fallback(ctx, sess, text)
}

// offer stores a draft for the next message and appends suffix to the reply. It reports false
// when no category fits the message.
func (b *Bot) offer(sess *Session, r *Reply, text, norm, suffix string) bool {
	category := detectCategory(norm, b.categories, b.ref.Categories())
	if category == "" {
		return false
	}
	sess.Draft = draftFrom(text, category)
	r.Text += suffix
	r.Action = ActionTicketOffer
	r.Draft = sess.Draft
	return true
}

func (b *Bot) createTicket(ctx context.Context, actor auth.Principal, d *Draft) *Reply {
	t, queued, err := b.tickets.Create(ctx, actor, helpdesk.CreateInput{
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Priority:    d.Priority,
	})
	if err != nil {
		common.L().Error("chatbot ticket creation failed", zap.String("user", actor.UserID), zap.Error(err))
		return &Reply{
			Text:   "I'm having trouble creating the ticket right now. Please try creating it from the Tickets page, or ask me again in a moment.",
			Action: ActionError,
		}
	}
	ref := refOf(t)
	var sb strings.Builder
	fmt.Fprintf(&sb, "Great! I've created ticket #%s for your request: %q.\n\n", t.TicketNumber, t.Title)
	if queued {
		fmt.Fprintf(&sb, "It's been sent to the %s and you are number %d in their queue. ", t.AssignedOffice.OfficeName, *t.QueueNumber)
	}
	sb.WriteString("You can track it in the Tickets section.\n\nIs there anything else I can help you with?")
	return &Reply{Text: sb.String(), Action: ActionTicketCreated, Ticket: &ref}
}

func (b *Bot) ticketStatus(ctx context.Context, actor auth.Principal, number string) *Reply {
	q := helpdesk.ListQuery{CreatedBy: actor.UserID, Limit: recentTickets, Search: number}
	page, err := b.tickets.List(ctx, actor, q)
	if err != nil {
		common.L().Warn("chatbot ticket lookup failed", zap.String("user", actor.UserID), zap.Error(err))
		return &Reply{Text: "I'm having trouble retrieving your tickets right now. Please try again or check the Tickets section.", Action: ActionError}
	}
	var found []*common.Ticket
	for _, t := range page.Items {
		if number == "" || t.TicketNumber == number {
			found = append(found, t)
		}
	}
	if len(found) == 0 {
		if number != "" {
			return &Reply{Text: fmt.Sprintf("I couldn't find ticket #%s in your account. Please check the number, or ask me to show all your tickets.", number)}
		}
		return &Reply{Text: "I couldn't find any tickets in your account. Would you like to create a new one?"}
	}
	refs := make([]TicketRef, 0, len(found))
	for _, t := range found {
		refs = append(refs, refOf(t))
	}
	r := &Reply{Action: ActionTicketStatus, Tickets: refs}
	if number != "" {
		r.Text = formatTicket(found[0])
	} else {
		r.Text = formatTicketList(found, page.Total)
	}
	return r
}

func (b *Bot) fallback(ctx context.Context, sess *Session, text string) *Reply {
	msgs := make([]chain.ChatMessage, 0, len(sess.History)+2)
	msgs = append(msgs, chain.ChatMessage{Role: chain.RoleSystem, Content: b.systemPrompt()})
	msgs = append(msgs, sess.History...)
	msgs = append(msgs, chain.ChatMessage{Role: chain.RoleUser, Content: text})
	observability.ChatLLMFallbacks.Add(1)
	out, err := b.chat.Chat(ctx, msgs, llmMaxTokens)
	if err != nil {
		common.L().Warn("chat model failed", zap.String("provider", b.chat.Provider()), zap.Error(err))
		return &Reply{Text: "I'm having trouble processing that right now. Please try rephrasing your question or create a ticket for assistance.", Action: ActionError}
	}
	return &Reply{Text: out.Content, Action: ActionLLM}
}

func (b *Bot) greeting() string {
	hello := "Good evening"
	switch h := b.now().Hour(); {
	case h < 12:
		hello = "Good morning"
	case h < 18:
		hello = "Good afternoon"
	}
	return hello + "! I'm the campus helpdesk assistant. I can help you with:\n\n" +
		"- Finding office locations (e.g. \"Where is the Registrar?\")\n" +
		"- Requesting documents such as transcripts and certificates\n" +
		"- Enrollment and grade inquiries\n" +
		"- Checking the status of your tickets\n\n" +
		"Ask me anything and I'll create a ticket for you if needed."
}

func (b *Bot) unknownOffice() string {
	var sb strings.Builder
	sb.WriteString("I'm sorry, I couldn't find that office in our directory. It may not be listed yet.")
	offices := b.ref.Offices()
	if len(offices) > 0 {
		sb.WriteString(" You can ask me about:\n")
		for _, o := range offices {
			sb.WriteString("- " + o.OfficeName + "\n")
		}
	}
	sb.WriteString("\nIs there anything else I can help you with?")
	return sb.String()
}

func (b *Bot) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant for the university helpdesk. Help students and staff with questions about " +
		"office locations, enrollment, transcripts, grades and other campus services. Be friendly, professional and concise. " +
		"If a student needs something done by an office, tell them you can create a ticket when they describe the request.")
	if offices := b.ref.Offices(); len(offices) > 0 {
		sb.WriteString("\n\nCampus offices:\n")
		for _, o := range offices {
			fmt.Fprintf(&sb, "- %s: %s, %s. %s\n", o.OfficeName, o.BuildingName, o.FloorRoom, o.Description)
		}
	}
	if cats := b.ref.Categories(); len(cats) > 0 {
		sb.WriteString("\nTicket categories: " + strings.Join(cats, ", ") + ".\n")
	}
	sb.WriteString("\nWhen asked where an office is, answer from the list above. If it is not listed, say the information " +
		"is not available and suggest contacting the administration office.")
	return sb.String()
}
