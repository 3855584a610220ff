// Package helpdesk is the ticket workflow: creation with office routing, listing, status
// changes, comments and the admin statistics.
package helpdesk

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/observability"
	"github.com/gogogo1024/campus-desk/internal/queue"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

const (
	minTitle       = 5
	maxTitle       = 200
	minDescription = 10
	maxDescription = 5000
	maxCategory    = 100
	maxComment     = 2000
	MaxPageSize    = 100
)

type Service struct {
	repo   common.TicketRepo
	queues *queue.Manager
	ref    *refdata.Store
	now    func() time.Time
}

type Option func(*Service)

func WithNow(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo common.TicketRepo, queues *queue.Manager, ref *refdata.Store, opts ...Option) *Service {
	s := &Service{repo: repo, queues: queues, ref: ref, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Repo() common.TicketRepo { return s.repo }

func (s *Service) nowMillis() int64 { return s.now().UnixMilli() }

type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Course      string `json:"course,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

func (in *CreateInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Course = strings.TrimSpace(in.Course)
	in.Priority = strings.TrimSpace(in.Priority)
	if in.Priority == "" {
		in.Priority = common.PriorityNormal
	}
}

func (s *Service) validate(in CreateInput) error {
	switch {
	case in.Title == "":
		return common.Invalid("title", "is required")
	case utf8.RuneCountInString(in.Title) < minTitle || utf8.RuneCountInString(in.Title) > maxTitle:
		return common.Invalid("title", "must be %d to %d characters", minTitle, maxTitle)
	case in.Description == "":
		return common.Invalid("description", "is required")
	case utf8.RuneCountInString(in.Description) < minDescription || utf8.RuneCountInString(in.Description) > maxDescription:
		return common.Invalid("description", "must be %d to %d characters", minDescription, maxDescription)
	case in.Category == "":
		return common.Invalid("category", "is required")
	case utf8.RuneCountInString(in.Category) > maxCategory:
		return common.Invalid("category", "must be at most %d characters", maxCategory)
	case in.Course != "" && !s.ref.HasCourse(in.Course):
		return common.Invalid("course", "unknown course %q", in.Course)
	case !common.IsValidPriority(in.Priority):
		return common.Invalid("priority", "must be one of %s", strings.Join(common.Priorities(), ", "))
	}
	return nil
}

// Create validates, routes and stores a new ticket. Categories are free text: one missing from
// reference data or the mapping is stored without an office. When routing or the store fails
// nothing is stored. The bool reports whether the ticket got a queue position.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in CreateInput) (*common.Ticket, bool, error) {
	in.normalize()
	if err := s.validate(in); err != nil {
		return nil, false, err
	}
	now := s.now()
	id := uuid.NewString()
	t := &common.Ticket{
		ID:           id,
		TicketNumber: ticketNumber(now, id),
		Title:        in.Title,
		Description:  in.Description,
		Category:     in.Category,
		Course:       in.Course,
		Priority:     in.Priority,
		Status:       common.StatusPending,
		CreatedBy:    actor.UserID,
		CreatedAt:    now.UnixMilli(),
		UpdatedAt:    now.UnixMilli(),
		Events:       []common.TicketEvent{{Type: common.EventCreated, At: now.UnixMilli(), Actor: actor.UserID, Note: "Ticket created"}},
	}
	queued, err := s.queues.Admit(ctx, t, func(ctx context.Context, t *common.Ticket) error {
		if t.QueueNumber != nil {
			t.Events = append(t.Events, common.TicketEvent{
				Type: common.EventQueued, At: *t.QueuedAt, Actor: "system",
				Note: fmt.Sprintf("Queued at %s as #%d", t.AssignedOffice.OfficeName, *t.QueueNumber),
			})
		}
		return s.repo.Insert(ctx, t)
	})
	if err != nil {
		return nil, false, err
	}
	observability.TicketCreated.Add(1)
	common.L().Info("ticket created",
		zap.String("ticket", t.TicketNumber),
		zap.String("category", t.Category),
		zap.String("office", t.OfficeID()),
		zap.Bool("queued", queued))
	return t, queued, nil
}

// ticketNumber is TICKET-<yyyymmdd>-<8 hex of the id>, readable over the counter.
func ticketNumber(now time.Time, id string) string {
	short := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("TICKET-%s-%s", now.UTC().Format("20060102"), short)
}

// Get returns a ticket the actor may see. Students only see their own tickets.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id string) (*common.Ticket, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, t) {
		return nil, common.Forbidden("ticket %s belongs to another user", id)
	}
	return t, nil
}

func canSee(actor auth.Principal, t *common.Ticket) bool {
	return actor.IsAdmin() || t.CreatedBy == actor.UserID
}

type ListQuery struct {
	// CreatedBy narrows an admin listing to one user; students always get their own.
	CreatedBy string
	Status    string
	Category  string
	Priority  string
	Search    string
	Page      int
	Limit     int
	Sort      string
	Order     string
}

type Page struct {
	Items []*common.Ticket `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

var sortFields = map[string]bool{
	common.SortCreatedAt: true, common.SortUpdatedAt: true, common.SortPriority: true, common.SortStatus: true,
}

func (q *ListQuery) normalize() error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	if q.Page < 1 {
		return common.Invalid("page", "must be >= 1")
	}
	if q.Limit < 1 || q.Limit > MaxPageSize {
		return common.Invalid("limit", "must be between 1 and %d", MaxPageSize)
	}
	if q.Sort == "" {
		q.Sort = common.SortCreatedAt
	}
	if !sortFields[q.Sort] {
		return common.Invalid("sort", "unsupported sort field %q", q.Sort)
	}
	switch strings.ToLower(q.Order) {
	case "", "desc":
		q.Order = "desc"
	case "asc":
		q.Order = "asc"
	default:
		return common.Invalid("order", "must be asc or desc")
	}
	if q.Status != "" && !common.IsValidStatus(q.Status) {
		return common.Invalid("status", "unknown status %q", q.Status)
	}
	if q.Priority != "" && !common.IsValidPriority(q.Priority) {
		return common.Invalid("priority", "unknown priority %q", q.Priority)
	}
	return nil
}

// List pages through tickets.
func (s *Service) List(ctx context.Context, actor auth.Principal, q ListQuery) (*Page, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	f := common.TicketFilter{Category: q.Category, Priority: q.Priority, Search: q.Search}
	if q.Status != "" {
		f.Status = []string{q.Status}
	}
	f.CreatedBy = q.CreatedBy
	if !actor.IsAdmin() {
		f.CreatedBy = actor.UserID
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Find(ctx, f, common.SortSpec{Field: q.Sort, Desc: q.Order == "desc"}, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}
