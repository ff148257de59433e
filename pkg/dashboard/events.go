package dashboard

import (
	"sync"

	"github.com/Ramsey-B/marigold/pkg/models"
)

type eventKind int

const (
	studentsChanged eventKind = iota
	studentsFailed
	paymentsChanged
	paymentsFailed
)

type event struct {
	kind       eventKind
	studentID  string
	generation uint64
	students   []models.Student
	payments   []models.Payment
	err        error
}

// mailbox queues ledger callbacks for the loop. Enqueue never blocks, so a callback can
// fire from any goroutine, including the loop itself while it subscribes.
type mailbox struct {
	mu     sync.Mutex
	queue  []event
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) enqueue(ev event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.queue
	m.queue = nil
	return events
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.queue = nil
}
