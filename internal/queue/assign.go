package queue

import (
	"context"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// Assigner stamps a new ticket with its office and queue position before it is persisted.
type Assigner struct {
	dir     Directory
	counter *Counter
	clock   Clock
}

func NewAssigner(dir Directory, counter *Counter, clock Clock) *Assigner {
	return &Assigner{dir: dir, counter: counter, clock: clock}
}

// Assign routes t by category. It returns false, nil when no office serves the category and
// leaves the queue fields untouched. Callers hold the office lock (see Manager.Admit).
func (a *Assigner) Assign(ctx context.Context, t *common.Ticket, category string) (bool, error) {
	office, ok := a.dir.Lookup(category)
	if !ok {
		return false, nil
	}
	if err := a.Place(ctx, t, office); err != nil {
		return false, err
	}
	return true, nil
}

// Place puts t at the tail of office's queue.
func (a *Assigner) Place(ctx context.Context, t *common.Ticket, office common.OfficeAssignment) error {
	n, err := a.counter.NextQueueNumber(ctx, office.OfficeID)
	if err != nil {
		return err
	}
	t.AssignedOffice = &office
	t.SetQueue(n, a.clock.nowMillis())
	return nil
}
