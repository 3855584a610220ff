// Package queue keeps per-office ticket queues: it routes new tickets to an office, hands out
// queue positions and keeps the numbering of each office dense (1..N).
//
// Only the functions in this package write the queue fields of a ticket (assigned office,
// queue number, queued at). Every mutation of one office's queue runs under that office's
// lock, so concurrent creations never hand out the same number.
//
// Density covers the queued active tickets: Pending or In Review with a number. An active
// ticket whose number was cleared by RemoveFromQueue stays out of the queue, and renumbering
// does not pull it back in, until Enqueue or a reopen gives it a position again. So 1..N counts
// queued tickets, not every active ticket of the office.
package queue

import (
	"time"

	"github.com/gogogo1024/campus-desk/internal/common"
)

// Directory resolves a ticket category to the office that serves it.
type Directory interface {
	Lookup(category string) (common.OfficeAssignment, bool)
}

// Catalog is the office side of reference data.
type Catalog interface {
	Directory
	OfficeName(officeID string) (string, bool)
	OfficeIDs() []string
}

// UnknownOffice labels queues whose office was deleted after tickets were routed to it.
const UnknownOffice = "Unknown office"

// Clock returns the current time; swapped in tests.
type Clock func() time.Time

func (c Clock) nowMillis() int64 {
	if c == nil {
		return time.Now().UnixMilli()
	}
	return c().UnixMilli()
}

// activeQueued selects the tickets that hold a position in officeID's queue.
func activeQueued(officeID string) common.TicketFilter {
	return common.TicketFilter{OfficeID: officeID, Status: common.ActiveStatuses, QueuedOnly: true}
}
