package queue

import (
	"context"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// RenumberResult reports one renumbering pass.
type RenumberResult struct {
	OfficeID string `json:"office_id"`
	// Total is the queue length after the pass.
	Total int `json:"total"`
	// Renumbered counts tickets whose number changed.
	Renumbered int `json:"renumbered"`
}

// Renumberer rewrites an office queue to 1..N keeping the current order.
type Renumberer struct {
	repo  common.TicketRepo
	clock Clock
}

func NewRenumberer(repo common.TicketRepo, clock Clock) *Renumberer {
	return &Renumberer{repo: repo, clock: clock}
}

// Renumber orders the queued active tickets of officeID by (queue number, created at) and
// assigns index+1. Only changed tickets are written, all in one batch, so a second run is a
// no-op and a failed run can simply be retried.
func (r *Renumberer) Renumber(ctx context.Context, officeID string) (RenumberResult, error) {
	res := RenumberResult{OfficeID: officeID}
	ts, err := r.repo.Find(ctx, activeQueued(officeID), common.SortSpec{Field: common.SortQueue}, 0, 0)
	if err != nil {
		return res, common.Unavailable("load queue", err)
	}
	res.Total = len(ts)
	updates := Plan(ts, r.clock.nowMillis())
	if len(updates) == 0 {
		return res, nil
	}
	if err := r.repo.UpdateQueue(ctx, updates); err != nil {
		return res, common.Unavailable("write queue", err)
	}
	res.Renumbered = len(updates)
	return res, nil
}

// Plan computes the updates that make ts (already in queue order) dense.
func Plan(ts []*common.Ticket, now int64) []common.QueueUpdate {
	var updates []common.QueueUpdate
	for i, t := range ts {
		want := i + 1
		if t.QueueNumber != nil && *t.QueueNumber == want {
			continue
		}
		n, at := want, now
		updates = append(updates, common.QueueUpdate{ID: t.ID, QueueNumber: &n, QueuedAt: &at})
	}
	return updates
}
