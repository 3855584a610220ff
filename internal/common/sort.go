package common

import "sort"

// QueueLess orders tickets inside a queue: queue number ascending with nulls last,
// then created_at ascending, then id so the order is total.
func QueueLess(a, b *Ticket) bool {
	switch {
	case a.QueueNumber != nil && b.QueueNumber == nil:
		return true
	case a.QueueNumber == nil && b.QueueNumber != nil:
		return false
	case a.QueueNumber != nil && b.QueueNumber != nil && *a.QueueNumber != *b.QueueNumber:
		return *a.QueueNumber < *b.QueueNumber
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// SortTickets sorts ts in place according to spec.
func SortTickets(ts []*Ticket, spec SortSpec) {
	if spec.Field == SortQueue {
		sort.SliceStable(ts, func(i, j int) bool { return QueueLess(ts[i], ts[j]) })
		return
	}
	less := func(a, b *Ticket) int {
		switch spec.Field {
		case SortUpdatedAt:
			return cmpInt64(a.UpdatedAt, b.UpdatedAt)
		case SortPriority:
			return cmpInt64(int64(PriorityRank(a.Priority)), int64(PriorityRank(b.Priority)))
		case SortStatus:
			switch {
			case a.Status < b.Status:
				return -1
			case a.Status > b.Status:
				return 1
			}
			return 0
		default:
			return cmpInt64(a.CreatedAt, b.CreatedAt)
		}
	}
	sort.SliceStable(ts, func(i, j int) bool {
		c := less(ts[i], ts[j])
		if c == 0 {
			// keep a deterministic order for equal keys
			if ts[i].CreatedAt != ts[j].CreatedAt {
				return ts[i].CreatedAt < ts[j].CreatedAt
			}
			return ts[i].ID < ts[j].ID
		}
		if spec.Desc {
			return c > 0
		}
		return c < 0
	})
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
