package helpdesk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/queue"
	"github.com/gogogo1024/campus-desk/internal/refdata"
)

var (
	admin   = auth.Principal{UserID: "a-1", Role: auth.RoleAdmin}
	student = auth.Principal{UserID: "s-1", Role: auth.RoleStudent}
	other   = auth.Principal{UserID: "s-2", Role: auth.RoleStudent}
)

func seedDoc() refdata.Document {
	return refdata.Document{
		Categories: []string{"Enrollment", "Payment", "Lost ID"},
		Courses:    []string{"BSCS", "BSIT"},
		Offices: []refdata.Office{
			{ID: "registrar", OfficeName: "Registrar", BuildingName: "Admin", FloorRoom: "1F"},
			{ID: "cashier", OfficeName: "Cashier", BuildingName: "Admin", FloorRoom: "2F"},
		},
		Mapping: []refdata.MappingEntry{
			{Category: "Enrollment", OfficeID: "registrar", OfficeName: "Registrar"},
			{Category: "Payment", OfficeID: "cashier", OfficeName: "Cashier"},
		},
	}
}

type env struct {
	svc  *Service
	repo *common.MemoryTicketRepo
	ref  *refdata.Store
	q    *queue.Manager
	now  time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{repo: common.NewMemoryTicketRepo(), ref: refdata.NewMemory(seedDoc()), now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		e.now = e.now.Add(time.Second)
		return e.now
	}
	e.q = queue.NewManager(e.repo, e.ref, queue.WithClock(clock))
	e.svc = NewService(e.repo, e.q, e.ref, WithNow(clock))
	return e
}

func (e *env) create(t *testing.T, who auth.Principal, category string) *common.Ticket {
	t.Helper()
	tk, _, err := e.svc.Create(context.Background(), who, CreateInput{Title: "Need help", Description: "details please", Category: category})
	require.NoError(t, err)
	return tk
}

func (e *env) queueOf(t *testing.T, office string) []string {
	t.Helper()
	v, err := e.q.GetQueue(context.Background(), office, nil)
	require.NoError(t, err)
	var out []string
	for i, tk := range v.Tickets {
		if tk.QueueNumber == nil {
			continue
		}
		assert.Equal(t, i+1, *tk.QueueNumber, "queue %s is dense", office)
		out = append(out, tk.ID)
	}
	return out
}

func TestCreateRoutesAndQueues(t *testing.T) {
	e := newEnv(t)
	tk, queued, err := e.svc.Create(context.Background(), student, CreateInput{
		Title: "  Add subject  ", Description: "Need to add CS101", Category: "Enrollment", Course: "BSCS",
	})
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, "Add subject", tk.Title)
	assert.Equal(t, common.StatusPending, tk.Status)
	assert.Equal(t, common.PriorityNormal, tk.Priority)
	assert.Equal(t, "s-1", tk.CreatedBy)
	assert.True(t, strings.HasPrefix(tk.TicketNumber, "TICKET-20260310-"), tk.TicketNumber)
	assert.Equal(t, "registrar", tk.OfficeID())
	assert.Equal(t, 1, *tk.QueueNumber)
	require.Len(t, tk.Events, 2)
	assert.Equal(t, common.EventQueued, tk.Events[1].Type)

	unrouted, queued, err := e.svc.Create(context.Background(), student, CreateInput{Title: "Lost my ID", Description: "lost it at the gym", Category: "Lost ID"})
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Nil(t, unrouted.AssignedOffice)
	assert.Nil(t, unrouted.QueueNumber)
}

func TestCreateAcceptsFreeFormCategory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	queued := e.create(t, student, "Enrollment")

	tk, ok, err := e.svc.Create(ctx, student, CreateInput{Title: "Locker key", Description: "my locker key broke off", Category: " Unknown Category "})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Unknown Category", tk.Category)
	assert.Nil(t, tk.AssignedOffice)
	assert.Nil(t, tk.QueueNumber)
	assert.Nil(t, tk.QueuedAt)

	stored, err := e.repo.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusPending, stored.Status)
	assert.Equal(t, "", stored.OfficeID())
	assert.Equal(t, []string{queued.ID}, e.queueOf(t, "registrar"), "other queues untouched")

	// lowercase is a different category and is not routed either
	tk, ok, err = e.svc.Create(ctx, student, CreateInput{Title: "Add subject", Description: "Need to add CS101", Category: "enrollment"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, tk.AssignedOffice)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	desc := "Please add CS101 to my load"
	cases := map[string]CreateInput{
		"no title":          {Description: desc, Category: "Enrollment"},
		"short title":       {Title: "Add", Description: desc, Category: "Enrollment"},
		"long title":        {Title: strings.Repeat("x", 201), Description: desc, Category: "Enrollment"},
		"no description":    {Title: "Need help", Category: "Enrollment"},
		"short description": {Title: "Need help", Description: "help", Category: "Enrollment"},
		"blank category":    {Title: "Need help", Description: desc, Category: "   "},
		"long category":     {Title: "Need help", Description: desc, Category: strings.Repeat("c", 101)},
		"unknown course":    {Title: "Need help", Description: desc, Category: "Enrollment", Course: "BSEE"},
		"bad priority":      {Title: "Need help", Description: desc, Category: "Enrollment", Priority: "Critical"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := e.svc.Create(context.Background(), student, in)
			var ve *common.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	n, _ := e.repo.Count(context.Background(), common.TicketFilter{})
	assert.Zero(t, n)
}

func TestCompletingHeadCompactsQueue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	b := e.create(t, student, "Enrollment")
	c := e.create(t, student, "Enrollment")

	done, err := e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusCompleted, "Processed at window 2")
	require.NoError(t, err)
	assert.Nil(t, done.QueueNumber)
	assert.Nil(t, done.QueuedAt)
	assert.NotZero(t, done.ClosedAt)
	last := done.Events[len(done.Events)-1]
	assert.Equal(t, common.EventComment, last.Type)
	assert.Equal(t, "Processed at window 2", last.Note)

	assert.Equal(t, []string{b.ID, c.ID}, e.queueOf(t, "registrar"))

	_, err = e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusPending, "")
	assert.ErrorIs(t, err, common.ErrConflict, "terminal tickets stay closed")
}

func TestInReviewKeepsPosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	b := e.create(t, student, "Enrollment")

	rev, err := e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusInReview, "")
	require.NoError(t, err)
	assert.Equal(t, 1, *rev.QueueNumber)
	assert.Equal(t, []string{a.ID, b.ID}, e.queueOf(t, "registrar"))
}

func TestOnHoldLeavesAndRejoinsAtTail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	b := e.create(t, student, "Enrollment")
	c := e.create(t, student, "Enrollment")

	held, err := e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusOnHold, "waiting for documents")
	require.NoError(t, err)
	assert.Nil(t, held.QueueNumber)
	assert.Zero(t, held.ClosedAt)
	assert.Equal(t, []string{b.ID, c.ID}, e.queueOf(t, "registrar"))

	back, err := e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusPending, "")
	require.NoError(t, err)
	assert.Equal(t, 3, *back.QueueNumber)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, e.queueOf(t, "registrar"))
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(common.StatusPending, common.StatusCompleted))
	assert.True(t, CanTransition(common.StatusOnHold, common.StatusInReview))
	assert.False(t, CanTransition(common.StatusApproved, common.StatusPending))
	assert.False(t, CanTransition(common.StatusApproved, common.StatusCancelled))
	for _, terminal := range []string{common.StatusCompleted, common.StatusRejected, common.StatusCancelled} {
		for _, to := range common.Statuses() {
			assert.Falsef(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestUpdateStatusGuards(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")

	_, err := e.svc.UpdateStatus(ctx, student, a.ID, common.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = e.svc.UpdateStatus(ctx, admin, a.ID, "Done", "")
	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)
	_, err = e.svc.UpdateStatus(ctx, admin, "missing", common.StatusCompleted, "")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusPending, "")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestCancelByOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Payment")
	b := e.create(t, other, "Payment")

	_, err := e.svc.Cancel(ctx, other, a.ID, "")
	assert.ErrorIs(t, err, common.ErrForbidden)

	cancelled, err := e.svc.Cancel(ctx, student, a.ID, "paid online instead")
	require.NoError(t, err)
	assert.Equal(t, common.StatusCancelled, cancelled.Status)
	assert.Equal(t, []string{b.ID}, e.queueOf(t, "cashier"))

	_, err = e.svc.Cancel(ctx, student, a.ID, "")
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestConcurrentCreateAndComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	var seed []*common.Ticket
	for i := 0; i < 10; i++ {
		seed = append(seed, e.create(t, student, "Enrollment"))
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.svc.Create(ctx, student, CreateInput{Title: "Need help", Description: "details please", Category: "Enrollment"})
			assert.NoError(t, err)
		}()
	}
	for _, tk := range seed[:5] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.svc.UpdateStatus(ctx, admin, id, common.StatusCompleted, "")
			assert.NoError(t, err)
		}(tk.ID)
	}
	wg.Wait()
	assert.Len(t, e.queueOf(t, "registrar"), 25)
}

func TestListScopesAndPaginates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		e.create(t, student, "Enrollment")
	}
	e.create(t, other, "Payment")

	page, err := e.svc.List(ctx, student, ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	for _, tk := range page.Items {
		assert.Equal(t, "s-1", tk.CreatedBy)
	}

	page, err = e.svc.List(ctx, admin, ListQuery{Page: 2, Limit: 3, Sort: common.SortCreatedAt, Order: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "s-2", page.Items[0].CreatedBy)

	page, err = e.svc.List(ctx, admin, ListQuery{Category: "Payment"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	for _, bad := range []ListQuery{{Page: -1}, {Limit: 101}, {Sort: "title"}, {Order: "up"}, {Status: "Open"}} {
		_, err := e.svc.List(ctx, admin, bad)
		var ve *common.ValidationError
		assert.ErrorAsf(t, err, &ve, "%+v", bad)
	}
}

func TestGetAndCommentsAreScoped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	unrouted := e.create(t, student, "Lost ID")

	_, err := e.svc.Get(ctx, other, a.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
	_, err = e.svc.AddComment(ctx, other, a.ID, "hi")
	assert.ErrorIs(t, err, common.ErrForbidden)

	ev, err := e.svc.AddComment(ctx, student, a.ID, "any update?")
	require.NoError(t, err)
	assert.Equal(t, common.EventComment, ev.Type)
	_, err = e.svc.AddComment(ctx, admin, unrouted.ID, "bring a valid ID")
	require.NoError(t, err)
	_, err = e.svc.AddComment(ctx, student, a.ID, "  ")
	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)

	events, err := e.svc.Events(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "any update?", events[len(events)-1].Note)

	got, err := e.svc.Get(ctx, student, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *got.QueueNumber, "comments keep the queue position")
}

func TestStatistics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	e.create(t, student, "Enrollment")
	e.create(t, student, "Payment")
	_, err := e.svc.UpdateStatus(ctx, admin, a.ID, common.StatusCompleted, "")
	require.NoError(t, err)

	st, err := e.svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByStatus[common.StatusPending])
	assert.Equal(t, 1, st.ByStatus[common.StatusCompleted])
	assert.Equal(t, 0, st.ByStatus[common.StatusOnHold])
	assert.Equal(t, []Bucket{{Key: "Enrollment", Count: 2}, {Key: "Payment", Count: 1}}, st.ByCategory)
	assert.Equal(t, []Bucket{{Key: common.PriorityNormal, Count: 3}}, st.ByPriority)
	assert.Equal(t, []Bucket{{Key: "2026-03-10", Count: 3}}, st.LastDays)
	assert.Equal(t, []Bucket{{Key: "2026-03", Count: 3}}, st.LastMonths)
}

func TestReferenceDataPropagation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.create(t, student, "Enrollment")
	e.create(t, student, "Payment")

	n, err := e.svc.RenameCategory(ctx, "Enrollment", "Enrolment")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ := e.repo.Get(ctx, a.ID)
	assert.Equal(t, "Enrolment", got.Category)
	office, ok := e.ref.Lookup("Enrolment")
	require.True(t, ok)
	assert.Equal(t, "registrar", office.OfficeID)

	assert.ErrorIs(t, e.svc.DeleteCategory(ctx, "Payment"), common.ErrConflict)
	require.NoError(t, e.svc.DeleteCategory(ctx, "Lost ID"))
	assert.ErrorIs(t, e.svc.DeleteCourse(ctx, "BSXX"), common.ErrNotFound)

	del, err := e.svc.DeleteOffice(ctx, "cashier")
	require.NoError(t, err)
	assert.Equal(t, 1, del.Queued)
	require.Len(t, del.DroppedMapping, 1)
	assert.Equal(t, "Payment", del.DroppedMapping[0].Category)

	v, err := e.q.GetQueue(ctx, "cashier", nil)
	require.NoError(t, err)
	assert.True(t, v.Orphaned)
	assert.Len(t, v.Tickets, 1)

	tk, queued, err := e.svc.Create(ctx, student, CreateInput{Title: "Refund", Description: "double charged on tuition", Category: "Payment"})
	require.NoError(t, err)
	assert.False(t, queued, "mapping entry went with the office")
	assert.Nil(t, tk.AssignedOffice)
}

// renameOnUpdate renames a category right before the first Update lands, the way an admin
// request racing a status change would.
type renameOnUpdate struct {
	*common.MemoryTicketRepo
	once     sync.Once
	from, to string
}

func (r *renameOnUpdate) Update(ctx context.Context, t *common.Ticket) error {
	r.once.Do(func() { _, _ = r.MemoryTicketRepo.RenameCategory(ctx, r.from, r.to) })
	return r.MemoryTicketRepo.Update(ctx, t)
}

func TestRenameCategoryDuringStatusChange(t *testing.T) {
	ctx := context.Background()
	mem := common.NewMemoryTicketRepo()
	ref := refdata.NewMemory(seedDoc())
	q := queue.NewManager(mem, ref)
	tk, _, err := NewService(mem, q, ref).Create(ctx, student, CreateInput{Title: "Add subject", Description: "Need to add CS101", Category: "Enrollment"})
	require.NoError(t, err)

	racy := &renameOnUpdate{MemoryTicketRepo: mem, from: "Enrollment", to: "Enrolment"}
	svc := NewService(racy, queue.NewManager(racy, ref), ref)
	_, err = svc.UpdateStatus(ctx, admin, tk.ID, common.StatusInReview, "")
	require.NoError(t, err)

	got, err := mem.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, common.StatusInReview, got.Status)
	assert.Equal(t, "Enrolment", got.Category)
}

func TestTicketNumberFormat(t *testing.T) {
	at := time.Date(2026, 10, 19, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "TICKET-20261019-0A1B2C3D", ticketNumber(at, "0a1b2c3d-0000-4000-8000-000000000000"))
	assert.Equal(t, fmt.Sprintf("TICKET-%s-AB", at.Format("20060102")), ticketNumber(at, "ab"))
}
