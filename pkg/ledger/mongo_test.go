package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Ramsey-B/marigold/pkg/models"
)

type fakeStream struct {
	events  chan bson.Raw
	err     error
	current bson.Raw
	closed  atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan bson.Raw)}
}

func (s *fakeStream) Next(ctx context.Context) bool {
	select {
	case event, ok := <-s.events:
		if !ok {
			return false
		}
		s.current = event
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *fakeStream) Event() bson.Raw             { return s.current }
func (s *fakeStream) Err() error                  { return s.err }
func (s *fakeStream) Close(context.Context) error { s.closed.Store(true); return nil }

// failWith ends the stream with err.
func (s *fakeStream) failWith(err error) {
	s.err = err
	close(s.events)
}

// streams hands out queued fake streams, one per open.
type streams struct {
	mu     sync.Mutex
	queue  []*fakeStream
	opened int
}

func (f *streams) open(ctx context.Context) (changeStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, errors.New("no stream")
	}
	stream := f.queue[0]
	f.queue = f.queue[1:]
	f.opened++
	return stream, nil
}

func (f *streams) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// paymentStore is the collection a subscription reloads from.
type paymentStore struct {
	mu       sync.Mutex
	payments []models.Payment
	loads    int
}

func (p *paymentStore) set(payments ...models.Payment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = payments
}

func (p *paymentStore) load(context.Context) ([]models.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++
	return append([]models.Payment(nil), p.payments...), nil
}

func (p *paymentStore) loadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

type channelListener struct {
	snapshots chan []models.Payment
	errors    chan error
}

func newChannelListener() *channelListener {
	return &channelListener{snapshots: make(chan []models.Payment, 10), errors: make(chan error, 10)}
}

func (l *channelListener) listener() Listener[models.Payment] {
	return Listener[models.Payment]{
		OnChange: func(items []models.Payment) { l.snapshots <- items },
		OnError:  func(err error) { l.errors <- err },
	}
}

func (l *channelListener) next(t *testing.T) []models.Payment {
	t.Helper()
	select {
	case items := <-l.snapshots:
		return items
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func testMongo() *Mongo {
	return &Mongo{
		logger:    ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
		retryUnit: time.Millisecond,
	}
}

func changeEvent(t *testing.T, op, id string) bson.Raw {
	t.Helper()
	data, err := bson.Marshal(bson.D{
		{Key: "operationType", Value: op},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: id}}},
	})
	require.NoError(t, err)
	return data
}

func startWatch(t *testing.T, f *streams, store *paymentStore, skip func(bson.Raw, []models.Payment) bool) *channelListener {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := newChannelListener()
	sub := newSubscription(l.listener(), cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		watch(ctx, testMongo(), "payments", f.open, store.load, skip, sub)
	}()
	t.Cleanup(func() {
		sub.unsubscribe()
		<-done
	})
	return l
}

var (
	p1 = models.Payment{ID: "p1", PaymentName: "100", PaymentDate: "2024-03-15"}
	p2 = models.Payment{ID: "p2", PaymentName: "50", PaymentDate: "2024-03-16"}
)

func TestWatch_ReloadsOnEveryChange(t *testing.T) {
	stream := newFakeStream()
	f := &streams{queue: []*fakeStream{stream}}
	store := &paymentStore{}
	store.set(p1)

	l := startWatch(t, f, store, nil)
	assert.Equal(t, []models.Payment{p1}, l.next(t))

	store.set(p1, p2)
	stream.events <- changeEvent(t, "insert", "p2")
	assert.Equal(t, []models.Payment{p1, p2}, l.next(t))

	// an unchanged reload is not delivered again
	stream.events <- changeEvent(t, "update", "p2")
	require.Eventually(t, func() bool { return store.loadCount() == 3 }, time.Second, time.Millisecond)
	assert.Empty(t, l.snapshots)
}

func TestWatch_ReportsFailureAndReopens(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	f := &streams{queue: []*fakeStream{first, second}}
	store := &paymentStore{}
	store.set(p1)

	l := startWatch(t, f, store, nil)
	assert.Equal(t, []models.Payment{p1}, l.next(t))

	first.failWith(errors.New("cursor killed"))

	select {
	case err := <-l.errors:
		assert.ErrorContains(t, err, "cursor killed")
	case <-time.After(time.Second):
		t.Fatal("failure was not reported")
	}
	// the reopened stream delivers the snapshot again so the failure can clear
	assert.Equal(t, []models.Payment{p1}, l.next(t))
	assert.True(t, first.closed.Load())
	assert.Equal(t, 2, f.count())
}

func TestWatch_SkipsDeletesOfOtherStudents(t *testing.T) {
	stream := newFakeStream()
	f := &streams{queue: []*fakeStream{stream}}
	store := &paymentStore{}
	store.set(p1, p2)

	l := startWatch(t, f, store, deletesOtherPayment)
	assert.Equal(t, []models.Payment{p1, p2}, l.next(t))
	loads := store.loadCount()

	stream.events <- changeEvent(t, "delete", "p9")
	store.set(p1)
	stream.events <- changeEvent(t, "delete", "p2")

	assert.Equal(t, []models.Payment{p1}, l.next(t))
	assert.Equal(t, loads+1, store.loadCount())
}

func TestWatch_StopsOnUnsubscribe(t *testing.T) {
	stream := newFakeStream()
	f := &streams{queue: []*fakeStream{stream}}
	store := &paymentStore{}

	ctx, cancel := context.WithCancel(context.Background())
	l := newChannelListener()
	sub := newSubscription(l.listener(), cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		watch(ctx, testMongo(), "payments", f.open, store.load, nil, sub)
	}()
	assert.Empty(t, l.next(t))

	sub.unsubscribe()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	assert.True(t, stream.closed.Load())
	assert.Empty(t, l.errors)
}

func TestFollow_OpenFailureStillLoads(t *testing.T) {
	store := &paymentStore{}
	opened := false
	open := func(context.Context) (changeStream, error) { return nil, errors.New("not a replica set") }

	err := follow(context.Background(), open, func() error {
		_, err := store.load(context.Background())
		return err
	}, func(bson.Raw) bool { return true }, func() { opened = true })

	assert.ErrorContains(t, err, "failed to open change stream: not a replica set")
	assert.Equal(t, 1, store.loadCount())
	assert.False(t, opened)
}

func TestDeletesOtherPayment(t *testing.T) {
	current := []models.Payment{p1}
	assert.True(t, deletesOtherPayment(changeEvent(t, "delete", "p9"), current))
	assert.False(t, deletesOtherPayment(changeEvent(t, "delete", "p1"), current))
	assert.False(t, deletesOtherPayment(changeEvent(t, "insert", "p9"), current))
}
