package ledger

import (
	"context"
	"slices"
	"sync"

	"github.com/Ramsey-B/marigold/pkg/models"
)

// Memory is an in-process ledger. Mutations fan out snapshots synchronously, so
// listeners must not block.
type Memory struct {
	mu        sync.Mutex
	deliverMu sync.Mutex
	closed    bool

	studentIDs []string
	students   map[string]models.Student
	payments   map[string][]models.Payment

	nextID          int
	studentSubs     map[int]*subscription[models.Student]
	paymentSubs     map[int]*subscription[models.Payment]
	paymentStudents map[int]string
}

var _ Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		students:        map[string]models.Student{},
		payments:        map[string][]models.Payment{},
		studentSubs:     map[int]*subscription[models.Student]{},
		paymentSubs:     map[int]*subscription[models.Payment]{},
		paymentStudents: map[int]string{},
	}
}

func (m *Memory) SubscribeStudents(_ context.Context, listener Listener[models.Student]) Unsubscribe {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub := newSubscription(listener, nil)
		sub.fail(ErrClosed)
		return sub.unsubscribe
	}
	id := m.nextID
	m.nextID++
	sub := newSubscription(listener, func() {
		m.mu.Lock()
		delete(m.studentSubs, id)
		m.mu.Unlock()
	})
	m.studentSubs[id] = sub
	snapshot := m.studentSnapshot()
	m.mu.Unlock()

	sub.deliver(snapshot)
	return sub.unsubscribe
}

func (m *Memory) SubscribePayments(_ context.Context, studentID string, listener Listener[models.Payment]) Unsubscribe {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub := newSubscription(listener, nil)
		sub.fail(ErrClosed)
		return sub.unsubscribe
	}
	id := m.nextID
	m.nextID++
	sub := newSubscription(listener, func() {
		m.mu.Lock()
		delete(m.paymentSubs, id)
		delete(m.paymentStudents, id)
		m.mu.Unlock()
	})
	m.paymentSubs[id] = sub
	m.paymentStudents[id] = studentID
	snapshot := slices.Clone(m.payments[studentID])
	m.mu.Unlock()

	sub.deliver(snapshot)
	return sub.unsubscribe
}

// PutStudent inserts or replaces a student.
func (m *Memory) PutStudent(student models.Student) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if _, ok := m.students[student.ID]; !ok {
		m.studentIDs = append(m.studentIDs, student.ID)
	}
	m.students[student.ID] = student
	subs, snapshot := m.studentListeners()
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot)
	}
}

// DeleteStudent removes a student. Its payments stay until deleted, as in a document store
// where sub-collections outlive their parent.
func (m *Memory) DeleteStudent(studentID string) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if _, ok := m.students[studentID]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.students, studentID)
	m.studentIDs = slices.DeleteFunc(m.studentIDs, func(id string) bool { return id == studentID })
	subs, snapshot := m.studentListeners()
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot)
	}
}

// PutPayment inserts or replaces a payment under a student.
func (m *Memory) PutPayment(studentID string, payment models.Payment) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	payment.StudentID = ""
	m.mu.Lock()
	payments := m.payments[studentID]
	index := slices.IndexFunc(payments, func(p models.Payment) bool { return p.ID == payment.ID })
	if index >= 0 {
		payments[index] = payment
	} else {
		payments = append(payments, payment)
	}
	m.payments[studentID] = payments
	subs, snapshot := m.paymentListeners(studentID)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot)
	}
}

// DeletePayment removes a payment from a student.
func (m *Memory) DeletePayment(studentID, paymentID string) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	before := len(m.payments[studentID])
	m.payments[studentID] = slices.DeleteFunc(m.payments[studentID], func(p models.Payment) bool { return p.ID == paymentID })
	if len(m.payments[studentID]) == before {
		m.mu.Unlock()
		return
	}
	subs, snapshot := m.paymentListeners(studentID)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(snapshot)
	}
}

// Fail reports err to every active subscription, as a dropped connection would.
func (m *Memory) Fail(err error) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	students := make([]*subscription[models.Student], 0, len(m.studentSubs))
	for _, sub := range m.studentSubs {
		students = append(students, sub)
	}
	payments := make([]*subscription[models.Payment], 0, len(m.paymentSubs))
	for _, sub := range m.paymentSubs {
		payments = append(payments, sub)
	}
	m.mu.Unlock()

	for _, sub := range students {
		sub.fail(err)
	}
	for _, sub := range payments {
		sub.fail(err)
	}
}

// ActiveSubscriptions counts open payment subscriptions per student.
func (m *Memory) ActiveSubscriptions() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int{}
	for id, studentID := range m.paymentStudents {
		if m.paymentSubs[id].active() {
			counts[studentID]++
		}
	}
	return counts
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close disposes every subscription.
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	var releases []func()
	for _, sub := range m.studentSubs {
		releases = append(releases, sub.unsubscribe)
	}
	for _, sub := range m.paymentSubs {
		releases = append(releases, sub.unsubscribe)
	}
	m.mu.Unlock()

	for _, release := range releases {
		release()
	}
	return nil
}

// studentSnapshot must be called with mu held.
func (m *Memory) studentSnapshot() []models.Student {
	snapshot := make([]models.Student, 0, len(m.studentIDs))
	for _, id := range m.studentIDs {
		snapshot = append(snapshot, m.students[id])
	}
	return snapshot
}

// studentListeners must be called with mu held.
func (m *Memory) studentListeners() ([]*subscription[models.Student], []models.Student) {
	subs := make([]*subscription[models.Student], 0, len(m.studentSubs))
	for _, id := range sortedKeys(m.studentSubs) {
		subs = append(subs, m.studentSubs[id])
	}
	return subs, m.studentSnapshot()
}

// paymentListeners must be called with mu held.
func (m *Memory) paymentListeners(studentID string) ([]*subscription[models.Payment], []models.Payment) {
	var subs []*subscription[models.Payment]
	for _, id := range sortedKeys(m.paymentSubs) {
		if m.paymentStudents[id] == studentID {
			subs = append(subs, m.paymentSubs[id])
		}
	}
	return subs, slices.Clone(m.payments[studentID])
}

func sortedKeys[V any](values map[int]V) []int {
	keys := make([]int, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
