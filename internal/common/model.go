package common

import "strings"

// Ticket statuses. The string values are what clients and the store see.
const (
	StatusPending   = "Pending"
	StatusInReview  = "In Review"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
	StatusOnHold    = "On Hold"
)

// Ticket priorities.
const (
	PriorityLow    = "Low"
	PriorityNormal = "Normal"
	PriorityHigh   = "High"
	PriorityUrgent = "Urgent"
)

var allStatuses = []string{StatusPending, StatusInReview, StatusApproved, StatusRejected, StatusCompleted, StatusCancelled, StatusOnHold}

var allPriorities = []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent}

// ActiveStatuses are the statuses that hold a queue position.
var ActiveStatuses = []string{StatusPending, StatusInReview}

// Statuses returns all known ticket statuses in display order.
func Statuses() []string { return append([]string(nil), allStatuses...) }

// Priorities returns all known priorities from lowest to highest.
func Priorities() []string { return append([]string(nil), allPriorities...) }

func IsValidStatus(s string) bool   { return contains(allStatuses, s) }
func IsValidPriority(p string) bool { return contains(allPriorities, p) }

// IsActiveStatus reports whether a ticket in status s counts toward its office queue.
func IsActiveStatus(s string) bool { return s == StatusPending || s == StatusInReview }

// IsTerminalStatus reports whether s ends queue membership for good.
func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// PriorityRank orders priorities for sorting; unknown values sort first.
func PriorityRank(p string) int {
	for i, v := range allPriorities {
		if v == p {
			return i + 1
		}
	}
	return 0
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// OfficeAssignment is the office a ticket was routed to at creation time.
type OfficeAssignment struct {
	OfficeID   string `json:"office_id" db:"office_id"`
	OfficeName string `json:"office_name" db:"office_name"`
}

// Ticket is a helpdesk request. Timestamps are unix milliseconds.
type Ticket struct {
	ID             string            `json:"id"`
	TicketNumber   string            `json:"ticket_number"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	Course         string            `json:"course,omitempty"`
	Priority       string            `json:"priority"`
	Status         string            `json:"status"`
	CreatedBy      string            `json:"created_by"`
	AssignedOffice *OfficeAssignment `json:"assigned_office"`
	QueueNumber    *int              `json:"queue_number"`
	QueuedAt       *int64            `json:"queued_at"`
	CreatedAt      int64             `json:"created_at"`
	UpdatedAt      int64             `json:"updated_at"`
	ClosedAt       int64             `json:"closed_at,omitempty"`
	Events         []TicketEvent     `json:"events,omitempty"`
}

// Event types recorded in a ticket's audit trail.
const (
	EventCreated       = "created"
	EventStatusChanged = "status_changed"
	EventComment       = "comment"
	EventQueued        = "queued"
	EventDequeued      = "dequeued"
)

// TicketEvent is an immutable audit entry.
type TicketEvent struct {
	Type  string `json:"type"`
	At    int64  `json:"at"`
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note"`
}

// OfficeID returns the assigned office id or "" when unassigned.
func (t *Ticket) OfficeID() string {
	if t == nil || t.AssignedOffice == nil {
		return ""
	}
	return t.AssignedOffice.OfficeID
}

// ClearQueue drops the ticket out of its office queue.
func (t *Ticket) ClearQueue() {
	t.QueueNumber = nil
	t.QueuedAt = nil
}

// SetQueue stamps a queue position taken at time at.
func (t *Ticket) SetQueue(n int, at int64) {
	t.QueueNumber = &n
	t.QueuedAt = &at
}

// Clone returns a deep copy so repositories never share mutable state with callers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.AssignedOffice != nil {
		a := *t.AssignedOffice
		c.AssignedOffice = &a
	}
	if t.QueueNumber != nil {
		n := *t.QueueNumber
		c.QueueNumber = &n
	}
	if t.QueuedAt != nil {
		q := *t.QueuedAt
		c.QueuedAt = &q
	}
	if t.Events != nil {
		c.Events = append([]TicketEvent(nil), t.Events...)
	}
	return &c
}

// TicketFilter selects tickets. Empty fields match everything.
type TicketFilter struct {
	IDs        []string
	Status     []string
	OfficeID   string
	Category   string
	Course     string
	Priority   string
	CreatedBy  string
	Search     string
	QueuedOnly bool
	Since      int64
}

// Matches evaluates the filter in memory; sqlrepo translates the same fields to SQL.
func (f TicketFilter) Matches(t *Ticket) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, t.ID) {
		return false
	}
	if len(f.Status) > 0 && !contains(f.Status, t.Status) {
		return false
	}
	if f.OfficeID != "" && t.OfficeID() != f.OfficeID {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Course != "" && t.Course != f.Course {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
		return false
	}
	if f.QueuedOnly && t.QueueNumber == nil {
		return false
	}
	if f.Since > 0 && t.CreatedAt < f.Since {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(t.Title + "\n" + t.Description + "\n" + t.TicketNumber + "\n" + t.Course)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// Sort fields accepted by Find.
const (
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
	SortPriority  = "priority"
	SortStatus    = "status"
	// SortQueue orders by queue number ascending (nulls last), then created_at, then id.
	SortQueue = "queue"
)

// SortSpec describes result ordering for Find.
type SortSpec struct {
	Field string
	Desc  bool
}

// QueueUpdate patches the queue fields of one ticket. Nil fields are written as null.
type QueueUpdate struct {
	ID          string
	QueueNumber *int
	QueuedAt    *int64
}
