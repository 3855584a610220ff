package helpdesk

import (
	"context"
	"sort"
	"time"

	"github.com/gogogo1024/campus-desk/internal/common"
)

type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory []Bucket       `json:"by_category"`
	ByPriority []Bucket       `json:"by_priority"`
	// LastDays counts tickets created per UTC day over the last 30 days, oldest first.
	LastDays []Bucket `json:"last_30_days"`
	// LastMonths counts tickets created per UTC month over the last 6 months, oldest first.
	LastMonths []Bucket `json:"last_6_months"`
}

// Statistics aggregates every ticket for the admin dashboard.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	all, err := s.repo.Find(ctx, common.TicketFilter{}, common.SortSpec{}, 0, 0)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	dayFrom := now.AddDate(0, 0, -30).UnixMilli()
	monthFrom := now.AddDate(0, -6, 0).UnixMilli()

	st := &Statistics{Total: len(all), ByStatus: map[string]int{}}
	for _, status := range common.Statuses() {
		st.ByStatus[status] = 0
	}
	cats, prios := map[string]int{}, map[string]int{}
	days, months := map[string]int{}, map[string]int{}
	for _, t := range all {
		st.ByStatus[t.Status]++
		if t.Category != "" {
			cats[t.Category]++
		}
		if t.Priority != "" {
			prios[t.Priority]++
		}
		created := time.UnixMilli(t.CreatedAt).UTC()
		if t.CreatedAt >= dayFrom {
			days[created.Format("2006-01-02")]++
		}
		if t.CreatedAt >= monthFrom {
			months[created.Format("2006-01")]++
		}
	}
	st.ByCategory = byCount(cats)
	st.ByPriority = byCount(prios)
	st.LastDays = byKey(days)
	st.LastMonths = byKey(months)
	return st, nil
}

// byCount sorts buckets by count descending, then key.
func byCount(m map[string]int) []Bucket {
	out := toBuckets(m)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func byKey(m map[string]int) []Bucket {
	out := toBuckets(m)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func toBuckets(m map[string]int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, v := range m {
		out = append(out, Bucket{Key: k, Count: v})
	}
	return out
}
