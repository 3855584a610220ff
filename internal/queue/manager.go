package queue

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/observability"
)

// ViewLimit caps the tickets returned by GetQueue.
const ViewLimit = 100

// Stats summarises all tickets ever routed to an office.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	InReview  int `json:"in_review"`
	Completed int `json:"completed"`
}

// View is an office queue as shown to admins.
type View struct {
	OfficeID   string           `json:"office_id"`
	OfficeName string           `json:"office_name"`
	Orphaned   bool             `json:"orphaned,omitempty"`
	Tickets    []*common.Ticket `json:"tickets"`
	Stats      Stats            `json:"stats"`
}

// OfficeStats is one row of StatsAll.
type OfficeStats struct {
	OfficeID   string `json:"office_id"`
	OfficeName string `json:"office_name"`
	Orphaned   bool   `json:"orphaned,omitempty"`
	Stats
}

// Order moves one ticket to a queue position.
type Order struct {
	TicketID    string `json:"ticket_id"`
	QueueNumber int    `json:"queue_number"`
}

// Manager owns every write to ticket queue fields.
type Manager struct {
	repo     common.TicketRepo
	catalog  Catalog
	locker   Locker
	counter  *Counter
	renum    *Renumberer
	assigner *Assigner
	clock    Clock
}

type Option func(*Manager)

func WithLocker(l Locker) Option { return func(m *Manager) { m.locker = l } }

func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

func NewManager(repo common.TicketRepo, catalog Catalog, opts ...Option) *Manager {
	m := &Manager{repo: repo, catalog: catalog}
	for _, o := range opts {
		o(m)
	}
	if m.locker == nil {
		m.locker = NewLocalLocker()
	}
	m.counter = NewCounter(repo)
	m.renum = NewRenumberer(repo, m.clock)
	m.assigner = NewAssigner(catalog, m.counter, m.clock)
	return m
}

// Tx is the view of one office queue handed to WithOffice callbacks. It is only valid while
// the callback runs.
type Tx struct {
	m        *Manager
	OfficeID string
}

// Requeue puts t at the tail without persisting it.
func (tx *Tx) Requeue(ctx context.Context, t *common.Ticket) error {
	office := common.OfficeAssignment{OfficeID: tx.OfficeID}
	if t.AssignedOffice != nil {
		office = *t.AssignedOffice
	}
	return tx.m.assigner.Place(ctx, t, office)
}

// Renumber compacts the queue. Callers run it after a ticket left the active set.
func (tx *Tx) Renumber(ctx context.Context) (RenumberResult, error) {
	return tx.m.renumberLocked(ctx, tx.OfficeID)
}

// WithOffice runs fn while holding the lock of officeID.
func (m *Manager) WithOffice(ctx context.Context, officeID string, fn func(ctx context.Context, tx *Tx) error) error {
	unlock, err := m.locker.Lock(ctx, officeID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx, &Tx{m: m, OfficeID: officeID})
}

// errMappingMoved means the category was remapped while Admit waited for the office lock.
var errMappingMoved = errors.New("category mapping changed")

const admitAttempts = 3

// Admit routes a new ticket and persists it through insert, all under the office lock.
// Unmapped categories are inserted without a queue position. It reports whether t was queued.
func (m *Manager) Admit(ctx context.Context, t *common.Ticket, insert func(context.Context, *common.Ticket) error) (queued bool, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.admit", attribute.String("category", t.Category))
	defer func() { observability.EndSpan(span, err) }()

	var officeID string
	for attempt := 1; ; attempt++ {
		t.AssignedOffice = nil
		t.ClearQueue()
		office, ok := m.catalog.Lookup(t.Category)
		if !ok {
			err = insert(ctx, t)
			break
		}
		officeID = office.OfficeID
		span.SetAttributes(attribute.String("office", officeID))
		err = m.WithOffice(ctx, officeID, func(ctx context.Context, tx *Tx) error {
			// converge first so count+1 cannot collide after an earlier partial failure
			if _, err := m.renumberLocked(ctx, officeID); err != nil {
				return err
			}
			ok, err := m.assigner.Assign(ctx, t, t.Category)
			if err != nil {
				return err
			}
			if !ok || t.OfficeID() != officeID {
				return errMappingMoved
			}
			queued = true
			return insert(ctx, t)
		})
		if !errors.Is(err, errMappingMoved) {
			break
		}
		if attempt == admitAttempts {
			err = common.Conflict("category %q was remapped during admission, retry", t.Category)
			break
		}
	}
	if err != nil {
		observability.ObserveAssignment("error")
		return false, err
	}
	if !queued {
		observability.ObserveAssignment("unrouted")
		observability.TicketUnrouted.Add(1)
		common.L().Info("ticket not routed", zap.String("ticket_id", t.ID), zap.String("category", t.Category))
		return false, nil
	}
	observability.ObserveAssignment("queued")
	observability.TicketQueued.Add(1)
	observability.SetQueueLength(officeID, *t.QueueNumber)
	common.L().Info("ticket queued",
		zap.String("office_id", officeID),
		zap.String("ticket_id", t.ID),
		zap.Int("queue_number", *t.QueueNumber))
	return true, nil
}

// GetQueue lists an office queue in queue order. statuses defaults to the active set. Reads
// never renumber.
func (m *Manager) GetQueue(ctx context.Context, officeID string, statuses []string) (v *View, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.get", attribute.String("office", officeID))
	defer func() { observability.EndSpan(span, err) }()

	if officeID == "" {
		return nil, common.Invalid("office_id", "is required")
	}
	if len(statuses) == 0 {
		statuses = common.ActiveStatuses
	}
	for _, s := range statuses {
		if !common.IsValidStatus(s) {
			return nil, common.Invalid("status", "unknown status %q", s)
		}
	}
	ts, err := m.repo.Find(ctx, common.TicketFilter{OfficeID: officeID, Status: statuses}, common.SortSpec{Field: common.SortQueue}, 0, ViewLimit)
	if err != nil {
		return nil, common.Unavailable("load queue", err)
	}
	st, err := m.stats(ctx, officeID)
	if err != nil {
		return nil, err
	}
	v = &View{OfficeID: officeID, Tickets: ts, Stats: st}
	v.OfficeName, v.Orphaned = m.officeLabel(officeID)
	return v, nil
}

func (m *Manager) stats(ctx context.Context, officeID string) (Stats, error) {
	var st Stats
	counts := []struct {
		dst    *int
		status []string
	}{
		{&st.Total, nil},
		{&st.Pending, []string{common.StatusPending}},
		{&st.InReview, []string{common.StatusInReview}},
		{&st.Completed, []string{common.StatusCompleted}},
	}
	for _, c := range counts {
		n, err := m.repo.Count(ctx, common.TicketFilter{OfficeID: officeID, Status: c.status})
		if err != nil {
			return st, common.Unavailable("count queue", err)
		}
		*c.dst = n
	}
	return st, nil
}

// officeLabel resolves the live office name; deleted offices read as UnknownOffice.
func (m *Manager) officeLabel(officeID string) (string, bool) {
	if name, ok := m.catalog.OfficeName(officeID); ok {
		return name, false
	}
	return UnknownOffice, true
}

// Reorder writes caller supplied positions in one batch. The request is validated in full
// before anything is written: the resulting queue must be exactly 1..N.
func (m *Manager) Reorder(ctx context.Context, officeID string, orders []Order) (ts []*common.Ticket, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.reorder", attribute.String("office", officeID), attribute.Int("orders", len(orders)))
	defer func() { observability.EndSpan(span, err) }()

	if err := validateOrders(officeID, orders); err != nil {
		return nil, err
	}
	err = m.WithOffice(ctx, officeID, func(ctx context.Context, tx *Tx) error {
		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.TicketID
		}
		found, err := m.repo.Find(ctx, common.TicketFilter{IDs: ids}, common.SortSpec{}, 0, 0)
		if err != nil {
			return common.Unavailable("load tickets", err)
		}
		byID := make(map[string]*common.Ticket, len(found))
		for _, t := range found {
			byID[t.ID] = t
		}
		for _, o := range orders {
			t, ok := byID[o.TicketID]
			if !ok {
				return common.Invalid("ticket_orders", "ticket %s not found", o.TicketID)
			}
			if t.OfficeID() != officeID {
				return common.Invalid("ticket_orders", "ticket %s is not assigned to office %s", o.TicketID, officeID)
			}
			if !common.IsActiveStatus(t.Status) {
				return common.Invalid("ticket_orders", "ticket %s is %s", o.TicketID, t.Status)
			}
		}
		current, err := m.repo.Find(ctx, activeQueued(officeID), common.SortSpec{Field: common.SortQueue}, 0, 0)
		if err != nil {
			return common.Unavailable("load queue", err)
		}
		if err := checkDense(current, orders); err != nil {
			return err
		}
		now := m.clock.nowMillis()
		updates := make([]common.QueueUpdate, len(orders))
		for i, o := range orders {
			n, at := o.QueueNumber, now
			updates[i] = common.QueueUpdate{ID: o.TicketID, QueueNumber: &n, QueuedAt: &at}
		}
		if err := m.repo.UpdateQueue(ctx, updates); err != nil {
			return common.Unavailable("write queue", err)
		}
		ts, err = m.repo.Find(ctx, activeQueued(officeID), common.SortSpec{Field: common.SortQueue}, 0, 0)
		if err != nil {
			return common.Unavailable("reload queue", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.QueueReordered.Add(1)
	observability.SetQueueLength(officeID, len(ts))
	for _, o := range orders {
		common.L().Info("ticket reordered",
			zap.String("office_id", officeID),
			zap.String("ticket_id", o.TicketID),
			zap.Int("queue_number", o.QueueNumber))
	}
	return ts, nil
}

func validateOrders(officeID string, orders []Order) error {
	if officeID == "" {
		return common.Invalid("office_id", "is required")
	}
	if len(orders) == 0 {
		return common.Invalid("ticket_orders", "must not be empty")
	}
	ids := make(map[string]bool, len(orders))
	nums := make(map[int]bool, len(orders))
	for i, o := range orders {
		if o.TicketID == "" {
			return common.Invalid("ticket_orders", "entry %d: ticket_id is required", i)
		}
		if o.QueueNumber < 1 {
			return common.Invalid("ticket_orders", "entry %d: queue_number must be a positive integer", i)
		}
		if ids[o.TicketID] {
			return common.Invalid("ticket_orders", "duplicate ticket_id %s", o.TicketID)
		}
		if nums[o.QueueNumber] {
			return common.Invalid("ticket_orders", "duplicate queue_number %d", o.QueueNumber)
		}
		ids[o.TicketID] = true
		nums[o.QueueNumber] = true
	}
	return nil
}

// checkDense applies orders over the current queue and requires the result to be 1..N.
func checkDense(current []*common.Ticket, orders []Order) error {
	result := make(map[string]int, len(current)+len(orders))
	for _, t := range current {
		result[t.ID] = *t.QueueNumber
	}
	for _, o := range orders {
		result[o.TicketID] = o.QueueNumber
	}
	seen := make(map[int]bool, len(result))
	for _, n := range result {
		if n < 1 || n > len(result) || seen[n] {
			return common.Invalid("ticket_orders", "resulting queue must be numbered 1..%d without gaps or duplicates", len(result))
		}
		seen[n] = true
	}
	return nil
}

// RemoveFromQueue clears the queue position of a ticket without touching its status and
// compacts the rest of the queue.
func (m *Manager) RemoveFromQueue(ctx context.Context, ticketID, actor string) (out *common.Ticket, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.dequeue", attribute.String("ticket", ticketID))
	defer func() { observability.EndSpan(span, err) }()

	t, err := m.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	officeID := t.OfficeID()
	if officeID == "" {
		return nil, common.Invalid("ticket", "ticket %s is not assigned to an office", ticketID)
	}
	span.SetAttributes(attribute.String("office", officeID))
	err = m.WithOffice(ctx, officeID, func(ctx context.Context, tx *Tx) error {
		if t, err = m.repo.Get(ctx, ticketID); err != nil {
			return err
		}
		if t.QueueNumber == nil {
			return nil
		}
		now := m.clock.nowMillis()
		t.ClearQueue()
		t.UpdatedAt = now
		t.Events = append(t.Events, common.TicketEvent{Type: common.EventDequeued, At: now, Actor: actor, Note: "Removed from queue"})
		if err := m.repo.Update(ctx, t); err != nil {
			return common.Unavailable("update ticket", err)
		}
		observability.QueueDequeued.Add(1)
		common.L().Info("ticket dequeued", zap.String("office_id", officeID), zap.String("ticket_id", ticketID), zap.String("actor", actor))
		m.renumberAfterLeave(ctx, officeID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Enqueue puts an active ticket without a position back at the tail of its office queue.
func (m *Manager) Enqueue(ctx context.Context, ticketID, actor string) (out *common.Ticket, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.enqueue", attribute.String("ticket", ticketID))
	defer func() { observability.EndSpan(span, err) }()

	t, err := m.repo.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	officeID := t.OfficeID()
	if officeID == "" {
		return nil, common.Invalid("ticket", "ticket %s is not assigned to an office", ticketID)
	}
	err = m.WithOffice(ctx, officeID, func(ctx context.Context, tx *Tx) error {
		if t, err = m.repo.Get(ctx, ticketID); err != nil {
			return err
		}
		if !common.IsActiveStatus(t.Status) {
			return common.Conflict("ticket %s is %s", ticketID, t.Status)
		}
		if t.QueueNumber != nil {
			return common.Conflict("ticket %s is already queued at %d", ticketID, *t.QueueNumber)
		}
		if _, err := m.renumberLocked(ctx, officeID); err != nil {
			return err
		}
		if err := tx.Requeue(ctx, t); err != nil {
			return err
		}
		t.UpdatedAt = m.clock.nowMillis()
		t.Events = append(t.Events, common.TicketEvent{Type: common.EventQueued, At: t.UpdatedAt, Actor: actor, Note: "Added back to queue"})
		if err := m.repo.Update(ctx, t); err != nil {
			return common.Unavailable("update ticket", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.TicketQueued.Add(1)
	common.L().Info("ticket enqueued",
		zap.String("office_id", officeID),
		zap.String("ticket_id", ticketID),
		zap.Int("queue_number", *t.QueueNumber))
	return t, nil
}

// Renumber compacts one office queue under its lock.
func (m *Manager) Renumber(ctx context.Context, officeID string) (res RenumberResult, err error) {
	if officeID == "" {
		return res, common.Invalid("office_id", "is required")
	}
	err = m.WithOffice(ctx, officeID, func(ctx context.Context, tx *Tx) error {
		res, err = tx.Renumber(ctx)
		return err
	})
	return res, err
}

// RenumberAll compacts every office known to reference data or referenced by active tickets.
// It keeps going after a failing office and returns the first error.
func (m *Manager) RenumberAll(ctx context.Context) ([]RenumberResult, error) {
	ids, err := m.knownOffices(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out      []RenumberResult
		firstErr error
	)
	for _, id := range ids {
		res, err := m.Renumber(ctx, id)
		if err != nil {
			common.L().Warn("renumber office failed", zap.String("office", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, res)
	}
	return out, firstErr
}

func (m *Manager) knownOffices(ctx context.Context) ([]string, error) {
	set := map[string]bool{}
	for _, id := range m.catalog.OfficeIDs() {
		set[id] = true
	}
	active, err := m.repo.Find(ctx, common.TicketFilter{Status: common.ActiveStatuses}, common.SortSpec{}, 0, 0)
	if err != nil {
		return nil, common.Unavailable("load active tickets", err)
	}
	for _, t := range active {
		if id := t.OfficeID(); id != "" {
			set[id] = true
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// StatsAll reports per office counts, including offices that were deleted while tickets still
// point at them.
func (m *Manager) StatsAll(ctx context.Context) (rows []OfficeStats, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.stats_all")
	defer func() { observability.EndSpan(span, err) }()

	all, err := m.repo.Find(ctx, common.TicketFilter{}, common.SortSpec{}, 0, 0)
	if err != nil {
		return nil, common.Unavailable("load tickets", err)
	}
	byOffice := map[string]*OfficeStats{}
	for _, id := range m.catalog.OfficeIDs() {
		name, _ := m.catalog.OfficeName(id)
		byOffice[id] = &OfficeStats{OfficeID: id, OfficeName: name}
	}
	for _, t := range all {
		id := t.OfficeID()
		if id == "" {
			continue
		}
		row, ok := byOffice[id]
		if !ok {
			row = &OfficeStats{OfficeID: id, OfficeName: UnknownOffice, Orphaned: true}
			byOffice[id] = row
		}
		row.Total++
		switch t.Status {
		case common.StatusPending:
			row.Pending++
		case common.StatusInReview:
			row.InReview++
		case common.StatusCompleted:
			row.Completed++
		}
	}
	rows = make([]OfficeStats, 0, len(byOffice))
	for _, r := range byOffice {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OfficeID < rows[j].OfficeID })
	return rows, nil
}

func (m *Manager) renumberLocked(ctx context.Context, officeID string) (res RenumberResult, err error) {
	ctx, span := observability.StartSpan(ctx, "queue.renumber", attribute.String("office", officeID))
	defer func() { observability.EndSpan(span, err) }()

	res, err = m.renum.Renumber(ctx, officeID)
	if err != nil {
		return res, err
	}
	if res.Renumbered > 0 {
		observability.QueueRenumbered.Add(1)
		observability.ObserveRenumber(officeID, res.Total)
		common.L().Info("queue renumbered", zap.String("office_id", officeID), zap.Int("total", res.Total), zap.Int("renumbered", res.Renumbered))
	} else {
		observability.SetQueueLength(officeID, res.Total)
	}
	return res, nil
}

// renumberAfterLeave compacts after a ticket left the queue. The write that removed the ticket
// is already committed, so a failure here is logged and left to the sweep; the next Admit also
// renumbers before counting.
func (m *Manager) renumberAfterLeave(ctx context.Context, officeID string) {
	if _, err := m.renumberLocked(ctx, officeID); err != nil {
		common.L().Error("renumber after leave failed", zap.String("office", officeID), zap.Error(err))
	}
}
