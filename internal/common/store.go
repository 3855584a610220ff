package common

import (
	"context"
	"fmt"
	"sync"
)

// TicketRepo defines required persistence operations.
type TicketRepo interface {
	// Insert stores a new ticket; an existing id is a conflict.
	Insert(ctx context.Context, t *Ticket) error
	// Get returns ErrNotFound when the ticket does not exist.
	Get(ctx context.Context, id string) (*Ticket, error)
	// Find returns matching tickets ordered by sort. limit <= 0 means no limit.
	Find(ctx context.Context, f TicketFilter, sort SortSpec, offset, limit int) ([]*Ticket, error)
	Count(ctx context.Context, f TicketFilter) (int, error)
	// Update writes the workflow fields of t: priority, status, office, queue position,
	// timestamps after creation and events. Fields set at creation (number, title, description,
	// category, course, creator, created_at) are kept from the stored row; category only
	// changes through RenameCategory, which does not hold office locks.
	Update(ctx context.Context, t *Ticket) error
	// UpdateQueue writes the queue fields of several tickets as one batch.
	UpdateQueue(ctx context.Context, updates []QueueUpdate) error
	// RenameCategory rewrites the category of every ticket in category from and returns how many changed.
	RenameCategory(ctx context.Context, from, to string) (int, error)
	Ping(ctx context.Context) error
}

// MemoryTicketRepo keeps tickets in a map guarded by a RWMutex. Callers always get copies.
type MemoryTicketRepo struct {
	mu    sync.RWMutex
	store map[string]*Ticket
}

func NewMemoryTicketRepo() *MemoryTicketRepo {
	return &MemoryTicketRepo{store: make(map[string]*Ticket)}
}

func (r *MemoryTicketRepo) Insert(ctx context.Context, t *Ticket) error {
	if t == nil || t.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.store[t.ID]; ok {
		return fmt.Errorf("ticket %s: %w", t.ID, ErrConflict)
	}
	r.store[t.ID] = t.Clone()
	return nil
}

func (r *MemoryTicketRepo) Get(ctx context.Context, id string) (*Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.store[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

func (r *MemoryTicketRepo) Find(ctx context.Context, f TicketFilter, sort SortSpec, offset, limit int) ([]*Ticket, error) {
	r.mu.RLock()
	out := make([]*Ticket, 0)
	for _, t := range r.store {
		if f.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	r.mu.RUnlock()
	SortTickets(out, sort)
	if offset > 0 {
		if offset >= len(out) {
			return []*Ticket{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTicketRepo) Count(ctx context.Context, f TicketFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.store {
		if f.Matches(t) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryTicketRepo) Update(ctx context.Context, t *Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.store[t.ID]
	if !ok {
		return fmt.Errorf("ticket %s: %w", t.ID, ErrNotFound)
	}
	next := t.Clone()
	next.TicketNumber = cur.TicketNumber
	next.Title = cur.Title
	next.Description = cur.Description
	next.Category = cur.Category
	next.Course = cur.Course
	next.CreatedBy = cur.CreatedBy
	next.CreatedAt = cur.CreatedAt
	r.store[t.ID] = next
	return nil
}

// UpdateQueue applies all updates or none: unknown ids abort the batch before any write.
func (r *MemoryTicketRepo) UpdateQueue(ctx context.Context, updates []QueueUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		if _, ok := r.store[u.ID]; !ok {
			return fmt.Errorf("ticket %s: %w", u.ID, ErrNotFound)
		}
	}
	for _, u := range updates {
		t := r.store[u.ID].Clone()
		t.ClearQueue()
		if u.QueueNumber != nil {
			n := *u.QueueNumber
			t.QueueNumber = &n
		}
		if u.QueuedAt != nil {
			at := *u.QueuedAt
			t.QueuedAt = &at
		}
		r.store[u.ID] = t
	}
	return nil
}

func (r *MemoryTicketRepo) RenameCategory(ctx context.Context, from, to string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.store {
		if t.Category == from {
			c := t.Clone()
			c.Category = to
			r.store[id] = c
			n++
		}
	}
	return n, nil
}

func (r *MemoryTicketRepo) Ping(ctx context.Context) error { return nil }
