package queue

import (
	"context"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// Counter hands out the next queue position of an office from a live count.
type Counter struct {
	repo common.TicketRepo
}

func NewCounter(repo common.TicketRepo) *Counter { return &Counter{repo: repo} }

// NextQueueNumber returns the number of queued active tickets of officeID plus one.
// A failing count is returned as ErrStoreUnavailable; there is no fallback number.
func (c *Counter) NextQueueNumber(ctx context.Context, officeID string) (int, error) {
	n, err := c.repo.Count(ctx, activeQueued(officeID))
	if err != nil {
		return 0, common.Unavailable("count active tickets", err)
	}
	return n + 1, nil
}
