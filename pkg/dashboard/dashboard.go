// Package dashboard keeps the dashboard views consistent with the live ledger.
//
// One goroutine (Run) owns all mutable state. Ledger callbacks only enqueue events; the
// loop applies them, keeps exactly one payment subscription per roster member, and
// recomputes every view after each batch. Readers get immutable *Views.
package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/marigold/pkg/aggregation"
	"github.com/Ramsey-B/marigold/pkg/ledger"
	"github.com/Ramsey-B/marigold/pkg/metrics"
	"github.com/Ramsey-B/marigold/pkg/models"
	"github.com/Ramsey-B/marigold/pkg/reconciler"
)

var ErrAlreadyRunning = errors.New("dashboard is already running")

const studentsSource = "students"

type Options struct {
	// Location decides calendar days. Defaults to UTC.
	Location *time.Location
	// TickInterval is how often the loop checks for a new calendar day. Defaults to a minute.
	TickInterval time.Duration
	// Clock returns the reference date. Defaults to time.Now.
	Clock func() time.Time
}

type paymentSubscription struct {
	generation  uint64
	unsubscribe ledger.Unsubscribe
	loaded      bool
}

type Dashboard struct {
	gateway  ledger.Gateway
	logger   ectologger.Logger
	location *time.Location
	interval time.Duration
	clock    func() time.Time

	mailbox *mailbox
	views   atomic.Pointer[Views]
	running atomic.Bool

	listenersMu sync.Mutex
	listeners   map[int]chan *Views
	nextID      int
	stopped     bool

	// owned by Run
	students       []models.Student
	studentsLoaded bool
	reconciler     *reconciler.Reconciler
	subscriptions  map[string]*paymentSubscription
	generation     uint64
	errors         map[string]SourceError
	version        uint64
	day            aggregation.Day
}

func New(gateway ledger.Gateway, logger ectologger.Logger, opts Options) *Dashboard {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	d := &Dashboard{
		gateway:       gateway,
		logger:        logger,
		location:      opts.Location,
		interval:      opts.TickInterval,
		clock:         opts.Clock,
		mailbox:       newMailbox(),
		listeners:     map[int]chan *Views{},
		reconciler:    reconciler.New(),
		subscriptions: map[string]*paymentSubscription{},
		errors:        map[string]SourceError{},
	}
	d.publish()
	return d
}

// Views returns the latest views. It never returns nil.
func (d *Dashboard) Views() *Views {
	return d.views.Load()
}

// Listen streams every new Views. A slow listener only sees the latest one. The channel
// closes when cancel is called or Run returns.
func (d *Dashboard) Listen() (<-chan *Views, func()) {
	ch := make(chan *Views, 1)

	d.listenersMu.Lock()
	if d.stopped {
		d.listenersMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := d.nextID
	d.nextID++
	d.listeners[id] = ch
	ch <- d.views.Load()
	d.listenersMu.Unlock()
	metrics.StreamListeners.Inc()

	cancel := func() {
		d.listenersMu.Lock()
		defer d.listenersMu.Unlock()
		if _, ok := d.listeners[id]; ok {
			delete(d.listeners, id)
			close(ch)
			metrics.StreamListeners.Dec()
		}
	}
	return ch, cancel
}

// Run subscribes to the ledger and processes changes until ctx is done. Every
// subscription is disposed before it returns.
func (d *Dashboard) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	d.logger.WithContext(ctx).Info("Starting dashboard")
	unsubscribeStudents := d.gateway.SubscribeStudents(ctx, ledger.Listener[models.Student]{
		OnChange: func(students []models.Student) {
			d.mailbox.enqueue(event{kind: studentsChanged, students: students})
		},
		OnError: func(err error) {
			d.mailbox.enqueue(event{kind: studentsFailed, err: err})
		},
	})

	ticker := time.NewTicker(d.interval)
	defer func() {
		ticker.Stop()
		unsubscribeStudents()
		d.shutdown(ctx)
	}()

	d.day = aggregation.DayOf(d.clock(), d.location)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.mailbox.signal:
			events := d.mailbox.drain()
			changed := false
			for _, ev := range events {
				if d.apply(ctx, ev) {
					changed = true
				}
			}
			if changed {
				d.publish()
			}
		case <-ticker.C:
			if day := aggregation.DayOf(d.clock(), d.location); day != d.day {
				d.logger.WithContext(ctx).Infof("Calendar day changed to %s", day)
				d.day = day
				d.publish()
			}
		}
	}
}

// apply folds one event into the state. It reports whether anything changed.
func (d *Dashboard) apply(ctx context.Context, ev event) bool {
	switch ev.kind {
	case studentsChanged:
		delete(d.errors, studentsSource)
		d.syncRoster(ctx, ev.students)
		return true
	case studentsFailed:
		d.recordError(ctx, studentsSource, "", ev.err)
		return true
	case paymentsChanged:
		sub, ok := d.current(ev)
		if !ok {
			return false
		}
		sub.loaded = true
		delete(d.errors, paymentsSource(ev.studentID))
		d.reconciler.Apply(ev.studentID, ev.payments)
		return true
	case paymentsFailed:
		sub, ok := d.current(ev)
		if !ok {
			return false
		}
		sub.loaded = true
		d.recordError(ctx, paymentsSource(ev.studentID), ev.studentID, ev.err)
		return true
	}
	return false
}

// current returns the subscription an event belongs to, or false when that subscription
// has been disposed. Events of disposed subscriptions are dropped.
func (d *Dashboard) current(ev event) (*paymentSubscription, bool) {
	sub, ok := d.subscriptions[ev.studentID]
	if !ok || sub.generation != ev.generation {
		metrics.StaleCallbacks.Inc()
		return nil, false
	}
	return sub, true
}

// syncRoster replaces the roster and makes the payment subscriptions match it.
func (d *Dashboard) syncRoster(ctx context.Context, snapshot []models.Student) {
	students := make([]models.Student, 0, len(snapshot))
	index := make(map[string]int, len(snapshot))
	for _, student := range snapshot {
		if i, ok := index[student.ID]; ok {
			d.logger.WithContext(ctx).WithField("student_id", student.ID).Warn("Duplicate student in roster, keeping the last one")
			students[i] = student
			continue
		}
		index[student.ID] = len(students)
		students = append(students, student)
	}
	d.students = students
	d.studentsLoaded = true

	for studentID, sub := range d.subscriptions {
		if _, ok := index[studentID]; ok {
			continue
		}
		sub.unsubscribe()
		delete(d.subscriptions, studentID)
		delete(d.errors, paymentsSource(studentID))
		d.reconciler.Remove(studentID)
	}

	for _, student := range students {
		if _, ok := d.subscriptions[student.ID]; !ok {
			d.subscribePayments(ctx, student.ID)
		}
	}
	metrics.ActiveSubscriptions.Set(float64(len(d.subscriptions)))
}

func (d *Dashboard) subscribePayments(ctx context.Context, studentID string) {
	d.generation++
	generation := d.generation
	sub := &paymentSubscription{generation: generation}
	// registered before subscribing so a synchronous first snapshot is current
	d.subscriptions[studentID] = sub

	sub.unsubscribe = d.gateway.SubscribePayments(ctx, studentID, ledger.Listener[models.Payment]{
		OnChange: func(payments []models.Payment) {
			d.mailbox.enqueue(event{kind: paymentsChanged, studentID: studentID, generation: generation, payments: payments})
		},
		OnError: func(err error) {
			d.mailbox.enqueue(event{kind: paymentsFailed, studentID: studentID, generation: generation, err: err})
		},
	})
}

func (d *Dashboard) recordError(ctx context.Context, source, studentID string, err error) {
	d.logger.WithContext(ctx).WithError(err).WithField("source", source).Error("Ledger subscription error")
	since := d.clock()
	if existing, ok := d.errors[source]; ok {
		since = existing.Since
	}
	d.errors[source] = SourceError{Source: source, StudentID: studentID, Message: err.Error(), Since: since}
}

func (d *Dashboard) status() Status {
	if len(d.errors) > 0 {
		return StatusDegraded
	}
	if !d.studentsLoaded {
		return StatusLoading
	}
	for _, sub := range d.subscriptions {
		if !sub.loaded {
			return StatusLoading
		}
	}
	return StatusReady
}

func (d *Dashboard) sourceErrors() []SourceError {
	errs := make([]SourceError, 0, len(d.errors))
	for _, err := range d.errors {
		errs = append(errs, err)
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Source < errs[j].Source })
	return errs
}

func (d *Dashboard) publish() {
	start := time.Now()
	now := d.clock()
	d.version++

	views := newViews(d.version, d.status(), d.sourceErrors(), now, len(d.subscriptions), aggregation.State{
		Students:      append([]models.Student(nil), d.students...),
		Payments:      d.reconciler.Payments(),
		ReferenceDate: now,
		Location:      d.location,
	})
	d.views.Store(views)
	metrics.Recomputations.Inc()
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())

	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for _, ch := range d.listeners {
		select {
		case <-ch:
		default:
		}
		ch <- views
	}
}

func (d *Dashboard) shutdown(ctx context.Context) {
	for studentID, sub := range d.subscriptions {
		sub.unsubscribe()
		delete(d.subscriptions, studentID)
	}
	metrics.ActiveSubscriptions.Set(0)
	d.mailbox.close()

	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.stopped = true
	for id, ch := range d.listeners {
		delete(d.listeners, id)
		close(ch)
		metrics.StreamListeners.Dec()
	}
	d.logger.WithContext(ctx).Info("Dashboard stopped")
}

func paymentsSource(studentID string) string {
	return "payments:" + studentID
}
