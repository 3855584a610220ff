package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogogo1024/campus-desk/internal/common"
)

type fakeCatalog struct {
	mapping map[string]common.OfficeAssignment
	names   map[string]string
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		mapping: map[string]common.OfficeAssignment{
			"Enrollment": {OfficeID: "registrar", OfficeName: "Registrar"},
			"Payment":    {OfficeID: "cashier", OfficeName: "Cashier"},
		},
		names: map[string]string{"registrar": "Registrar", "cashier": "Cashier"},
	}
}

func (c *fakeCatalog) Lookup(category string) (common.OfficeAssignment, bool) {
	a, ok := c.mapping[category]
	return a, ok
}

func (c *fakeCatalog) OfficeName(id string) (string, bool) {
	n, ok := c.names[id]
	return n, ok
}

func (c *fakeCatalog) OfficeIDs() []string {
	ids := make([]string, 0, len(c.names))
	for id := range c.names {
		ids = append(ids, id)
	}
	return ids
}

type fixture struct {
	repo    *common.MemoryTicketRepo
	catalog *fakeCatalog
	m       *Manager
	seq     int
}

func newFixture() *fixture {
	repo := common.NewMemoryTicketRepo()
	cat := newCatalog()
	fixed := time.UnixMilli(1_700_000_000_000)
	return &fixture{repo: repo, catalog: cat, m: NewManager(repo, cat, WithClock(func() time.Time { return fixed }))}
}

func (f *fixture) admit(t *testing.T, category string) *common.Ticket {
	t.Helper()
	f.seq++
	tk := &common.Ticket{
		ID:        fmt.Sprintf("t%03d", f.seq),
		Title:     "help",
		Category:  category,
		Priority:  common.PriorityNormal,
		Status:    common.StatusPending,
		CreatedAt: int64(f.seq),
	}
	_, err := f.m.Admit(context.Background(), tk, f.repo.Insert)
	require.NoError(t, err)
	return tk
}

func (f *fixture) numbers(t *testing.T, office string) map[string]int {
	t.Helper()
	ts, err := f.repo.Find(context.Background(), activeQueued(office), common.SortSpec{Field: common.SortQueue}, 0, 0)
	require.NoError(t, err)
	out := map[string]int{}
	for _, tk := range ts {
		out[tk.ID] = *tk.QueueNumber
	}
	return out
}

// close moves a ticket out of the active set the way the ticket workflow does.
func (f *fixture) close(t *testing.T, id, status string) {
	t.Helper()
	ctx := context.Background()
	tk, err := f.repo.Get(ctx, id)
	require.NoError(t, err)
	err = f.m.WithOffice(ctx, tk.OfficeID(), func(ctx context.Context, tx *Tx) error {
		tk.Status = status
		tk.ClearQueue()
		if err := f.repo.Update(ctx, tk); err != nil {
			return err
		}
		_, err := tx.Renumber(ctx)
		return err
	})
	require.NoError(t, err)
}

func assertDense(t *testing.T, nums map[string]int) {
	t.Helper()
	seen := map[int]bool{}
	for id, n := range nums {
		assert.Truef(t, n >= 1 && n <= len(nums), "ticket %s has number %d outside 1..%d", id, n, len(nums))
		assert.Falsef(t, seen[n], "number %d handed out twice", n)
		seen[n] = true
	}
}

func TestAdmitHandsOutSequentialNumbers(t *testing.T) {
	f := newFixture()
	a := f.admit(t, "Enrollment")
	b := f.admit(t, "Enrollment")
	c := f.admit(t, "Enrollment")
	p := f.admit(t, "Payment")

	assert.Equal(t, 1, *a.QueueNumber)
	assert.Equal(t, 2, *b.QueueNumber)
	assert.Equal(t, 3, *c.QueueNumber)
	assert.Equal(t, 1, *p.QueueNumber, "queues are per office")
	assert.Equal(t, "registrar", a.OfficeID())
	assert.Equal(t, "Registrar", a.AssignedOffice.OfficeName)
	require.NotNil(t, a.QueuedAt)
}

func TestAdmitUnmappedCategoryIsNotQueued(t *testing.T) {
	f := newFixture()
	tk := &common.Ticket{ID: "x", Category: "enrollment", Status: common.StatusPending}
	queued, err := f.m.Admit(context.Background(), tk, f.repo.Insert)
	require.NoError(t, err)
	assert.False(t, queued, "lookup is case sensitive")
	stored, err := f.repo.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Nil(t, stored.AssignedOffice)
	assert.Nil(t, stored.QueueNumber)
	assert.Nil(t, stored.QueuedAt)
}

func TestClosingTicketCompactsQueue(t *testing.T) {
	f := newFixture()
	a := f.admit(t, "Enrollment")
	b := f.admit(t, "Enrollment")
	c := f.admit(t, "Enrollment")

	f.close(t, a.ID, common.StatusCompleted)

	nums := f.numbers(t, "registrar")
	assert.Equal(t, map[string]int{b.ID: 1, c.ID: 2}, nums)
	closed, err := f.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, closed.QueueNumber)
	assert.Nil(t, closed.QueuedAt)

	d := f.admit(t, "Enrollment")
	assert.Equal(t, 3, *d.QueueNumber)
}

func TestClosingMiddleTicketKeepsRelativeOrder(t *testing.T) {
	f := newFixture()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.admit(t, "Enrollment").ID)
	}
	f.close(t, ids[2], common.StatusCancelled)
	f.close(t, ids[0], common.StatusRejected)

	nums := f.numbers(t, "registrar")
	assertDense(t, nums)
	assert.Less(t, nums[ids[1]], nums[ids[3]])
	assert.Less(t, nums[ids[3]], nums[ids[4]])
}

func TestRenumberIsIdempotent(t *testing.T) {
	f := newFixture()
	for i := 0; i < 4; i++ {
		f.admit(t, "Enrollment")
	}
	ctx := context.Background()
	// punch a hole behind the manager's back
	gap := 9
	require.NoError(t, f.repo.UpdateQueue(ctx, []common.QueueUpdate{{ID: "t002", QueueNumber: &gap}}))

	first, err := f.m.Renumber(ctx, "registrar")
	require.NoError(t, err)
	assert.Equal(t, 4, first.Total)
	assert.Equal(t, 3, first.Renumbered)
	before := f.numbers(t, "registrar")

	second, err := f.m.Renumber(ctx, "registrar")
	require.NoError(t, err)
	assert.Zero(t, second.Renumbered)
	assert.Equal(t, before, f.numbers(t, "registrar"))
	assert.Equal(t, 4, before["t002"], "ticket with the hole moves to the tail")
}

// seed inserts active registrar tickets with the given numbers (0 means none), created in order.
func (f *fixture) seed(t *testing.T, nums ...int) []string {
	t.Helper()
	ids := make([]string, len(nums))
	for i, n := range nums {
		f.seq++
		tk := &common.Ticket{
			ID: fmt.Sprintf("s%03d", f.seq), Category: "Enrollment", Status: common.StatusPending,
			CreatedAt: int64(f.seq), AssignedOffice: &common.OfficeAssignment{OfficeID: "registrar", OfficeName: "Registrar"},
		}
		if n > 0 {
			tk.SetQueue(n, 1)
		}
		require.NoError(t, f.repo.Insert(context.Background(), tk))
		ids[i] = tk.ID
	}
	return ids
}

func TestRenumberKeepsQueueOrderAcrossGapsAndTies(t *testing.T) {
	cases := map[string]struct {
		nums []int
		// want lists seed indexes in the expected queue order
		want []int
	}{
		"out of order":       {nums: []int{3, 1, 5}, want: []int{1, 0, 2}},
		"duplicate numbers":  {nums: []int{2, 2}, want: []int{0, 1}},
		"ties broken by age": {nums: []int{4, 2, 2, 1, 4}, want: []int{3, 1, 2, 0, 4}},
		"already dense":      {nums: []int{1, 2, 3}, want: []int{0, 1, 2}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			ids := f.seed(t, tc.nums...)
			res, err := f.m.Renumber(context.Background(), "registrar")
			require.NoError(t, err)
			assert.Equal(t, len(tc.nums), res.Total)

			nums := f.numbers(t, "registrar")
			assertDense(t, nums)
			for pos, idx := range tc.want {
				assert.Equalf(t, pos+1, nums[ids[idx]], "ticket %s", ids[idx])
			}
		})
	}
}

func TestAssignWithoutMappingLeavesTicketAlone(t *testing.T) {
	f := newFixture()
	a := NewAssigner(f.catalog, NewCounter(f.repo), nil)
	tk := &common.Ticket{ID: "c", Category: "Unknown Category", Status: common.StatusPending}

	ok, err := a.Assign(context.Background(), tk, tk.Category)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tk.AssignedOffice)
	assert.Nil(t, tk.QueueNumber)
	assert.Nil(t, tk.QueuedAt)

	f.seed(t, 1, 2)
	ok, err = a.Assign(context.Background(), tk, "Enrollment")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "registrar", tk.OfficeID())
	assert.Equal(t, 3, *tk.QueueNumber)
	assert.NotNil(t, tk.QueuedAt)
}

// remapOnce moves a category to another office the first time it is looked up.
type remapOnce struct {
	*fakeCatalog
	once sync.Once
	to   common.OfficeAssignment
}

func (c *remapOnce) Lookup(category string) (common.OfficeAssignment, bool) {
	a, ok := c.fakeCatalog.Lookup(category)
	c.once.Do(func() { c.mapping[category] = c.to })
	return a, ok
}

func TestAdmitFollowsMappingChangedWhileLocking(t *testing.T) {
	repo := common.NewMemoryTicketRepo()
	cat := &remapOnce{fakeCatalog: newCatalog(), to: common.OfficeAssignment{OfficeID: "cashier", OfficeName: "Cashier"}}
	m := NewManager(repo, cat)
	tk := &common.Ticket{ID: "x", Category: "Enrollment", Status: common.StatusPending}

	queued, err := m.Admit(context.Background(), tk, repo.Insert)
	require.NoError(t, err)
	assert.True(t, queued)
	got, err := repo.Get(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "cashier", got.OfficeID())
	assert.Equal(t, 1, *got.QueueNumber)
}

func TestReorderPersistsExactPermutation(t *testing.T) {
	f := newFixture()
	a := f.admit(t, "Enrollment")
	b := f.admit(t, "Enrollment")

	ts, err := f.m.Reorder(context.Background(), "registrar", []Order{{TicketID: a.ID, QueueNumber: 2}, {TicketID: b.ID, QueueNumber: 1}})
	require.NoError(t, err)
	require.Len(t, ts, 2)
	assert.Equal(t, b.ID, ts[0].ID)
	assert.Equal(t, 1, *ts[0].QueueNumber)
	assert.Equal(t, a.ID, ts[1].ID)
	assert.Equal(t, 2, *ts[1].QueueNumber)
}

func TestReorderValidation(t *testing.T) {
	f := newFixture()
	a := f.admit(t, "Enrollment")
	b := f.admit(t, "Enrollment")
	p := f.admit(t, "Payment")
	done := f.admit(t, "Enrollment")
	f.close(t, done.ID, common.StatusCompleted)

	cases := []struct {
		name   string
		office string
		orders []Order
	}{
		{"no office", "", []Order{{TicketID: a.ID, QueueNumber: 1}}},
		{"empty", "registrar", nil},
		{"missing id", "registrar", []Order{{QueueNumber: 1}}},
		{"zero number", "registrar", []Order{{TicketID: a.ID, QueueNumber: 0}, {TicketID: b.ID, QueueNumber: 1}}},
		{"duplicate id", "registrar", []Order{{TicketID: a.ID, QueueNumber: 1}, {TicketID: a.ID, QueueNumber: 2}}},
		{"duplicate number", "registrar", []Order{{TicketID: a.ID, QueueNumber: 1}, {TicketID: b.ID, QueueNumber: 1}}},
		{"unknown ticket", "registrar", []Order{{TicketID: "nope", QueueNumber: 1}}},
		{"other office", "registrar", []Order{{TicketID: p.ID, QueueNumber: 1}}},
		{"terminal ticket", "registrar", []Order{{TicketID: done.ID, QueueNumber: 1}}},
		{"gap", "registrar", []Order{{TicketID: a.ID, QueueNumber: 1}, {TicketID: b.ID, QueueNumber: 3}}},
		{"collides with untouched", "registrar", []Order{{TicketID: a.ID, QueueNumber: 2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.m.Reorder(context.Background(), tc.office, tc.orders)
			var ve *common.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, map[string]int{a.ID: 1, b.ID: 2}, f.numbers(t, "registrar"), "nothing written")
		})
	}
}

func TestRemoveFromQueueSticksUntilEnqueue(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.admit(t, "Enrollment")
	b := f.admit(t, "Enrollment")

	out, err := f.m.RemoveFromQueue(ctx, a.ID, "admin")
	require.NoError(t, err)
	assert.Nil(t, out.QueueNumber)
	assert.Equal(t, common.StatusPending, out.Status)
	assert.Equal(t, common.EventDequeued, out.Events[len(out.Events)-1].Type)
	assert.Equal(t, map[string]int{b.ID: 1}, f.numbers(t, "registrar"))

	_, err = f.m.Renumber(ctx, "registrar")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{b.ID: 1}, f.numbers(t, "registrar"))

	back, err := f.m.Enqueue(ctx, a.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, *back.QueueNumber)

	_, err = f.m.Enqueue(ctx, a.ID, "admin")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestRemoveFromQueueUnassigned(t *testing.T) {
	f := newFixture()
	tk := f.admit(t, "Other")
	_, err := f.m.RemoveFromQueue(context.Background(), tk.ID, "admin")
	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.m.RemoveFromQueue(context.Background(), "missing", "admin")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConcurrentAdmitNeverDuplicates(t *testing.T) {
	repo := common.NewMemoryTicketRepo()
	m := NewManager(repo, newCatalog())
	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk := &common.Ticket{ID: fmt.Sprintf("c%02d", i), Category: "Enrollment", Status: common.StatusPending, CreatedAt: int64(i)}
			if _, err := m.Admit(context.Background(), tk, repo.Insert); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("admit: %v", err)
	}
	ts, err := repo.Find(context.Background(), activeQueued("registrar"), common.SortSpec{Field: common.SortQueue}, 0, 0)
	require.NoError(t, err)
	require.Len(t, ts, 50)
	for i, tk := range ts {
		assert.Equal(t, i+1, *tk.QueueNumber)
	}
}

func TestGetQueueAndOrphanedOffice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.admit(t, "Enrollment")
	f.admit(t, "Enrollment")
	f.admit(t, "Payment")
	f.close(t, a.ID, common.StatusCompleted)

	v, err := f.m.GetQueue(ctx, "registrar", nil)
	require.NoError(t, err)
	assert.Equal(t, "Registrar", v.OfficeName)
	assert.False(t, v.Orphaned)
	assert.Len(t, v.Tickets, 1)
	assert.Equal(t, Stats{Total: 2, Pending: 1, Completed: 1}, v.Stats)

	v, err = f.m.GetQueue(ctx, "registrar", []string{common.StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, v.Tickets, 1)

	_, err = f.m.GetQueue(ctx, "registrar", []string{"Done"})
	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)

	delete(f.catalog.names, "cashier")
	delete(f.catalog.mapping, "Payment")
	v, err = f.m.GetQueue(ctx, "cashier", nil)
	require.NoError(t, err)
	assert.Equal(t, UnknownOffice, v.OfficeName)
	assert.True(t, v.Orphaned)
	assert.Len(t, v.Tickets, 1)

	rows, err := f.m.StatsAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, OfficeStats{OfficeID: "cashier", OfficeName: UnknownOffice, Orphaned: true, Stats: Stats{Total: 1, Pending: 1}}, rows[0])
	assert.Equal(t, "registrar", rows[1].OfficeID)
	assert.Equal(t, 2, rows[1].Total)

	res, err := f.m.RenumberAll(ctx)
	require.NoError(t, err)
	assert.Len(t, res, 2, "orphaned office is still swept")
}

type failingCountRepo struct {
	*common.MemoryTicketRepo
}

func (r failingCountRepo) Count(ctx context.Context, f common.TicketFilter) (int, error) {
	return 0, errors.New("connection reset")
}

func TestAdmitFailsFastWhenCountFails(t *testing.T) {
	repo := failingCountRepo{common.NewMemoryTicketRepo()}
	m := NewManager(repo, newCatalog())
	tk := &common.Ticket{ID: "x", Category: "Enrollment", Status: common.StatusPending}
	_, err := m.Admit(context.Background(), tk, repo.Insert)
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	_, err = repo.Get(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrNotFound, "nothing inserted")
}

func TestLocalLockerSerialisesAndCleansUp(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	unlock, err := l.Lock(ctx, "registrar")
	require.NoError(t, err)

	other, err := l.Lock(ctx, "cashier")
	require.NoError(t, err, "different offices do not block")
	other()

	wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(wctx, "registrar")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, l.size())
}

func TestRedisLockerReportsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewRedisLocker(client, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := l.Lock(ctx, "registrar")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestKeepAliveExtendsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := keepAlive(5*time.Millisecond, func(context.Context) (bool, error) {
		if calls.Add(1) == 2 {
			return false, errors.New("timeout")
		}
		return true, nil
	}, func(err error) { t.Errorf("lease reported lost: %v", err) })
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	stop()
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no refresh after stop")
}

func TestKeepAliveReportsLostLease(t *testing.T) {
	lost := make(chan error, 1)
	stop := keepAlive(5*time.Millisecond, func(context.Context) (bool, error) { return false, nil }, func(err error) { lost <- err })
	defer stop()
	select {
	case err := <-lost:
		assert.ErrorIs(t, err, errLeaseGone)
	case <-time.After(2 * time.Second):
		t.Fatal("lost lease not reported")
	}
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSweeper(newFixture().m, "every minute")
	assert.Error(t, err)

	s, err := NewSweeper(newFixture().m, "0 */5 * * * *")
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
