package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int       { return &n }
func int64p(n int64) *int64 { return &n }

func newTicket(id, office string, status string, created int64, q *int) *Ticket {
	t := &Ticket{ID: id, Title: "title " + id, Category: "Grades", Status: status, CreatedAt: created, Priority: PriorityNormal}
	if office != "" {
		t.AssignedOffice = &OfficeAssignment{OfficeID: office, OfficeName: office}
	}
	t.QueueNumber = q
	return t
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	tk := newTicket("a", "registrar", StatusPending, 1, intp(1))
	require.NoError(t, repo.Insert(ctx, tk))
	*tk.QueueNumber = 99

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, *got.QueueNumber)

	got.Title = "changed"
	again, _ := repo.Get(ctx, "a")
	assert.Equal(t, "title a", again.Title)
}

func TestMemoryRepoInsertConflictAndMissing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	require.NoError(t, repo.Insert(ctx, newTicket("a", "", StatusPending, 1, nil)))
	assert.ErrorIs(t, repo.Insert(ctx, newTicket("a", "", StatusPending, 1, nil)), ErrConflict)
	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, newTicket("missing", "", StatusPending, 1, nil)), ErrNotFound)
}

func TestMemoryRepoUpdateKeepsRenamedCategory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	require.NoError(t, repo.Insert(ctx, newTicket("a", "registrar", StatusPending, 1, intp(1))))

	stale, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	n, err := repo.RenameCategory(ctx, "Grades", "Grade Appeals")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale.Status = StatusInReview
	stale.Title = "rewritten"
	require.NoError(t, repo.Update(ctx, stale))
	got, _ := repo.Get(ctx, "a")
	assert.Equal(t, StatusInReview, got.Status)
	assert.Equal(t, "Grade Appeals", got.Category)
	assert.Equal(t, "title a", got.Title)
}

func TestMemoryRepoFindQueueOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	require.NoError(t, repo.Insert(ctx, newTicket("c", "o1", StatusPending, 3, nil)))
	require.NoError(t, repo.Insert(ctx, newTicket("b", "o1", StatusInReview, 2, intp(2))))
	require.NoError(t, repo.Insert(ctx, newTicket("a", "o1", StatusPending, 1, intp(2))))
	require.NoError(t, repo.Insert(ctx, newTicket("d", "o1", StatusPending, 4, intp(1))))
	require.NoError(t, repo.Insert(ctx, newTicket("e", "o1", StatusCompleted, 0, nil)))
	require.NoError(t, repo.Insert(ctx, newTicket("f", "o2", StatusPending, 0, intp(1))))

	ts, err := repo.Find(ctx, TicketFilter{OfficeID: "o1", Status: ActiveStatuses}, SortSpec{Field: SortQueue}, 0, 0)
	require.NoError(t, err)
	var ids []string
	for _, tk := range ts {
		ids = append(ids, tk.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)

	n, err := repo.Count(ctx, TicketFilter{OfficeID: "o1", Status: ActiveStatuses, QueuedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := repo.Find(ctx, TicketFilter{OfficeID: "o1"}, SortSpec{Field: SortCreatedAt, Desc: true}, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].ID)
	assert.Equal(t, "b", page[1].ID)
}

func TestMemoryRepoUpdateQueueIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	require.NoError(t, repo.Insert(ctx, newTicket("a", "o1", StatusPending, 1, intp(5))))

	err := repo.UpdateQueue(ctx, []QueueUpdate{
		{ID: "a", QueueNumber: intp(1), QueuedAt: int64p(10)},
		{ID: "ghost", QueueNumber: intp(2), QueuedAt: int64p(10)},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	got, _ := repo.Get(ctx, "a")
	assert.Equal(t, 5, *got.QueueNumber)

	require.NoError(t, repo.UpdateQueue(ctx, []QueueUpdate{{ID: "a"}}))
	got, _ = repo.Get(ctx, "a")
	assert.Nil(t, got.QueueNumber)
	assert.Nil(t, got.QueuedAt)
}

func TestMemoryRepoRenameCategory(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepo()
	require.NoError(t, repo.Insert(ctx, newTicket("a", "", StatusPending, 1, nil)))
	require.NoError(t, repo.Insert(ctx, newTicket("b", "", StatusPending, 1, nil)))
	n, err := repo.RenameCategory(ctx, "Grades", "Grade Concerns")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	c, _ := repo.Count(ctx, TicketFilter{Category: "Grade Concerns"})
	assert.Equal(t, 2, c)
}

func TestFilterSearchAndSince(t *testing.T) {
	tk := &Ticket{ID: "x", Title: "Transcript request", Description: "Need a copy", TicketNumber: "TICKET-20250101-AB12", CreatedAt: 100}
	assert.True(t, TicketFilter{Search: "transcript"}.Matches(tk))
	assert.True(t, TicketFilter{Search: "ab12"}.Matches(tk))
	assert.False(t, TicketFilter{Search: "library"}.Matches(tk))
	assert.False(t, TicketFilter{Since: 200}.Matches(tk))
}
