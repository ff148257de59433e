package ledger

import (
	"slices"
	"sync"
	"sync/atomic"
)

type subscription[T any] struct {
	listener Listener[T]
	closed   atomic.Bool
	once     sync.Once
	release  func()
}

func newSubscription[T any](listener Listener[T], release func()) *subscription[T] {
	return &subscription[T]{listener: listener, release: release}
}

func (s *subscription[T]) deliver(items []T) {
	if s.closed.Load() || s.listener.OnChange == nil {
		return
	}
	s.listener.OnChange(slices.Clone(items))
}

func (s *subscription[T]) fail(err error) {
	if s.closed.Load() || s.listener.OnError == nil {
		return
	}
	s.listener.OnError(err)
}

func (s *subscription[T]) active() bool {
	return !s.closed.Load()
}

func (s *subscription[T]) unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		if s.release != nil {
			s.release()
		}
	})
}
