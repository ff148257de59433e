package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/marigold/pkg/ledger"
	"github.com/Ramsey-B/marigold/pkg/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

var referenceDate = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return referenceDate }
}

func start(t *testing.T, d *Dashboard) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		require.NoError(t, <-done)
	}
	t.Cleanup(stop)
	return stop
}

func student(id, name string, paid, due int64) models.Student {
	return models.Student{ID: id, FullName: name, TotalPaid: decimal.NewFromInt(paid), TotalDue: decimal.NewFromInt(due)}
}

func payment(id, amount, date string) models.Payment {
	return models.Payment{ID: id, PaymentName: amount, PaymentDate: date, PaymentType: "Term 1"}
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestDashboard_InitialViews(t *testing.T) {
	d := New(ledger.NewMemory(), testLogger(), Options{Clock: fixedClock()})

	views := d.Views()
	require.NotNil(t, views)
	assert.Equal(t, StatusLoading, views.Status)
	assert.Len(t, views.Monthly, 15)
	assert.True(t, views.Totals.TotalPaid.IsZero())
}

func TestDashboard_ProjectsLedger(t *testing.T) {
	memory := ledger.NewMemory()
	memory.PutStudent(student("s1", "Amal", 100, 0))
	memory.PutStudent(student("s2", "Omar", 0, 50))
	memory.PutPayment("s1", payment("p1", "100", "2024-03-15"))
	memory.PutPayment("s2", payment("p1", "abc", "2024-03-15"))

	d := New(memory, testLogger(), Options{Clock: fixedClock()})
	start(t, d)

	require.Eventually(t, func() bool {
		v := d.Views()
		return v.Status == StatusReady && len(v.Payments) == 2
	}, waitFor, tick)

	views := d.Views()
	assert.True(t, decimal.NewFromInt(100).Equal(views.Totals.TotalPaid))
	assert.True(t, decimal.NewFromInt(50).Equal(views.Totals.TotalDue))
	assert.Equal(t, 1, views.Totals.StudentsWithDue)
	assert.Equal(t, 1, views.Totals.StudentsPaidInFull)
	assert.True(t, decimal.NewFromInt(100).Equal(views.Daily.Total), "non-numeric amounts add nothing")
	assert.Len(t, views.Daily.Entries, 2)
	assert.Equal(t, 2, views.Subscriptions)

	detail, ok := views.Detail("s2")
	require.True(t, ok)
	assert.Equal(t, "Omar", detail.Student.FullName)
	require.Len(t, detail.Payments, 1)
	assert.Equal(t, "s2", detail.Payments[0].StudentID)

	_, ok = views.Detail("missing")
	assert.False(t, ok)

	memory.PutPayment("s1", payment("p2", "25", "2024-03-15"))
	require.Eventually(t, func() bool {
		return decimal.NewFromInt(125).Equal(d.Views().Daily.Total)
	}, waitFor, tick)
}

func TestDashboard_SubscriptionsFollowRoster(t *testing.T) {
	memory := ledger.NewMemory()
	memory.PutStudent(student("s1", "Amal", 0, 0))
	memory.PutStudent(student("s2", "Omar", 0, 0))
	memory.PutPayment("s2", payment("p1", "70", "2024-03-15"))

	d := New(memory, testLogger(), Options{Clock: fixedClock()})
	stop := start(t, d)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"s1", "s2"}, keys(memory.ActiveSubscriptions())) && d.Views().Status == StatusReady
	}, waitFor, tick)

	memory.PutStudent(student("s3", "Mona", 0, 0))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"s1", "s2", "s3"}, keys(memory.ActiveSubscriptions()))
	}, waitFor, tick)

	memory.DeleteStudent("s2")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"s1", "s3"}, keys(memory.ActiveSubscriptions())) && len(d.Views().Payments) == 0
	}, waitFor, tick)

	// payments of a departed student no longer reach the dashboard
	memory.PutPayment("s2", payment("p2", "30", "2024-03-15"))
	memory.PutStudent(student("s1", "Amal Hassan", 0, 0))
	require.Eventually(t, func() bool {
		s, ok := d.Views().Student("s1")
		return ok && s.FullName == "Amal Hassan"
	}, waitFor, tick)
	assert.Empty(t, d.Views().Payments)

	stop()
	assert.Empty(t, memory.ActiveSubscriptions(), "stopping disposes every subscription")
}

func TestDashboard_DuplicateStudentsKeepLast(t *testing.T) {
	gateway := newFakeGateway()
	d := New(gateway, testLogger(), Options{Clock: fixedClock()})
	start(t, d)

	gateway.waitForStudents(t)
	gateway.emitStudents([]models.Student{student("s1", "First", 0, 10), student("s1", "Second", 0, 0)})

	require.Eventually(t, func() bool { return len(d.Views().Students) == 1 }, waitFor, tick)
	s, _ := d.Views().Student("s1")
	assert.Equal(t, "Second", s.FullName)
	assert.Equal(t, 1, gateway.subscribeCount("s1"))
}

func TestDashboard_LateCallbackAfterDisposeIsIgnored(t *testing.T) {
	gateway := newFakeGateway()
	d := New(gateway, testLogger(), Options{Clock: fixedClock()})
	start(t, d)

	gateway.waitForStudents(t)
	gateway.emitStudents([]models.Student{student("s1", "Amal", 0, 0), student("s2", "Omar", 0, 0)})
	require.Eventually(t, func() bool { return gateway.subscribeCount("s1") == 1 && gateway.subscribeCount("s2") == 1 }, waitFor, tick)

	gateway.emitPayments("s1", 0, []models.Payment{payment("p1", "100", "2024-03-15")})
	gateway.emitPayments("s2", 0, []models.Payment{payment("p2", "50", "2024-03-15")})
	require.Eventually(t, func() bool { return len(d.Views().Payments) == 2 }, waitFor, tick)

	gateway.emitStudents([]models.Student{student("s2", "Omar", 0, 0)})
	require.Eventually(t, func() bool { return gateway.disposed("s1", 0) }, waitFor, tick)
	require.Eventually(t, func() bool { return len(d.Views().Payments) == 1 }, waitFor, tick)
	version := d.Views().Version

	// the disposed listener fires anyway
	gateway.emitPayments("s1", 0, []models.Payment{payment("p9", "999", "2024-03-15")})
	gateway.failPayments("s1", 0, errors.New("late failure"))

	// a marker event proves the loop has processed everything queued before it
	gateway.emitPayments("s2", 0, []models.Payment{payment("p2", "50", "2024-03-15"), payment("p3", "5", "2024-03-15")})
	require.Eventually(t, func() bool { return len(d.Views().Payments) == 2 }, waitFor, tick)

	views := d.Views()
	assert.Greater(t, views.Version, version)
	assert.Equal(t, StatusReady, views.Status)
	for _, p := range views.Payments {
		assert.Equal(t, "s2", p.StudentID)
	}

	// a returning student gets a fresh subscription; the old listener stays dead
	gateway.emitStudents([]models.Student{student("s1", "Amal", 0, 0), student("s2", "Omar", 0, 0)})
	require.Eventually(t, func() bool { return gateway.subscribeCount("s1") == 2 }, waitFor, tick)
	gateway.emitPayments("s1", 0, []models.Payment{payment("old", "1", "2024-03-15")})
	gateway.emitPayments("s1", 1, []models.Payment{payment("new", "2", "2024-03-15")})
	require.Eventually(t, func() bool {
		detail, ok := d.Views().Detail("s1")
		return ok && len(detail.Payments) == 1 && detail.Payments[0].ID == "new"
	}, waitFor, tick)
}

func TestDashboard_DegradedOnSubscriptionError(t *testing.T) {
	memory := ledger.NewMemory()
	memory.PutStudent(student("s1", "Amal", 100, 0))

	d := New(memory, testLogger(), Options{Clock: fixedClock()})
	start(t, d)
	require.Eventually(t, func() bool { return d.Views().Status == StatusReady }, waitFor, tick)

	memory.Fail(errors.New("permission denied"))
	require.Eventually(t, func() bool { return d.Views().Status == StatusDegraded }, waitFor, tick)

	views := d.Views()
	require.Len(t, views.Errors, 2)
	assert.Equal(t, "payments:s1", views.Errors[0].Source)
	assert.Equal(t, "s1", views.Errors[0].StudentID)
	assert.Equal(t, "students", views.Errors[1].Source)
	assert.Equal(t, "permission denied", views.Errors[1].Message)
	assert.Len(t, views.Students, 1, "the last good data stays visible")

	memory.PutStudent(student("s1", "Amal", 150, 0))
	memory.PutPayment("s1", payment("p1", "50", "2024-03-15"))
	require.Eventually(t, func() bool { return d.Views().Status == StatusReady }, waitFor, tick)
	assert.Empty(t, d.Views().Errors)
}

func TestDashboard_DayRollover(t *testing.T) {
	var now atomic.Pointer[time.Time]
	setNow := func(ts time.Time) { now.Store(&ts) }
	setNow(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))

	memory := ledger.NewMemory()
	memory.PutStudent(student("s1", "Amal", 0, 0))
	memory.PutPayment("s1", payment("p1", "80", "2024-04-01"))

	d := New(memory, testLogger(), Options{
		Clock:        func() time.Time { return *now.Load() },
		TickInterval: 5 * time.Millisecond,
	})
	start(t, d)

	require.Eventually(t, func() bool { return d.Views().Status == StatusReady }, waitFor, tick)
	assert.Len(t, d.Views().Monthly, 31)
	assert.True(t, d.Views().Daily.Total.IsZero())

	setNow(time.Date(2024, 4, 1, 0, 1, 0, 0, time.UTC))
	require.Eventually(t, func() bool { return len(d.Views().Monthly) == 1 }, waitFor, tick)
	assert.True(t, decimal.NewFromInt(80).Equal(d.Views().Daily.Total))
}

func TestDashboard_Listen(t *testing.T) {
	memory := ledger.NewMemory()
	d := New(memory, testLogger(), Options{Clock: fixedClock()})

	updates, cancel := d.Listen()
	first := <-updates
	assert.Equal(t, d.Views(), first, "a listener starts with the current views")

	stop := start(t, d)
	memory.PutStudent(student("s1", "Amal", 10, 0))

	require.Eventually(t, func() bool {
		select {
		case v := <-updates:
			return len(v.Students) == 1
		default:
			return false
		}
	}, waitFor, tick)

	cancel()
	cancel()

	other, _ := d.Listen()
	stop()
	for range other {
	}

	closed, _ := d.Listen()
	_, open := <-closed
	assert.False(t, open, "listening after shutdown yields a closed channel")
}

func TestDashboard_RunTwice(t *testing.T) {
	d := New(ledger.NewMemory(), testLogger(), Options{Clock: fixedClock()})
	start(t, d)
	require.Eventually(t, func() bool { return d.running.Load() }, waitFor, tick)

	assert.ErrorIs(t, d.Run(context.Background()), ErrAlreadyRunning)
}

// fakeGateway hands every listener to the test, including disposed ones, so callbacks
// can be fired after disposal.
type fakeGateway struct {
	mu          sync.Mutex
	students    *ledger.Listener[models.Student]
	payments    map[string][]ledger.Listener[models.Payment]
	disposedSub map[string]map[int]bool
}

var _ ledger.Gateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:    map[string][]ledger.Listener[models.Payment]{},
		disposedSub: map[string]map[int]bool{},
	}
}

func (g *fakeGateway) SubscribeStudents(_ context.Context, listener ledger.Listener[models.Student]) ledger.Unsubscribe {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.students = &listener
	return func() {}
}

func (g *fakeGateway) SubscribePayments(_ context.Context, studentID string, listener ledger.Listener[models.Payment]) ledger.Unsubscribe {
	g.mu.Lock()
	defer g.mu.Unlock()
	index := len(g.payments[studentID])
	g.payments[studentID] = append(g.payments[studentID], listener)
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.disposedSub[studentID] == nil {
			g.disposedSub[studentID] = map[int]bool{}
		}
		g.disposedSub[studentID][index] = true
	}
}

func (g *fakeGateway) Ping(context.Context) error  { return nil }
func (g *fakeGateway) Close(context.Context) error { return nil }

func (g *fakeGateway) waitForStudents(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.students != nil
	}, waitFor, tick)
}

func (g *fakeGateway) emitStudents(students []models.Student) {
	g.mu.Lock()
	listener := *g.students
	g.mu.Unlock()
	listener.OnChange(students)
}

func (g *fakeGateway) emitPayments(studentID string, index int, payments []models.Payment) {
	g.mu.Lock()
	listener := g.payments[studentID][index]
	g.mu.Unlock()
	listener.OnChange(payments)
}

func (g *fakeGateway) failPayments(studentID string, index int, err error) {
	g.mu.Lock()
	listener := g.payments[studentID][index]
	g.mu.Unlock()
	listener.OnError(err)
}

func (g *fakeGateway) subscribeCount(studentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payments[studentID])
}

func (g *fakeGateway) disposed(studentID string, index int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disposedSub[studentID][index]
}
