// Package ledger subscribes to the external student ledger. Every callback carries a
// full replacement snapshot of the watched collection, never a delta.
package ledger

import (
	"context"
	"errors"

	"github.com/Ramsey-B/marigold/pkg/models"
)

var ErrClosed = errors.New("ledger is closed")

// Listener receives snapshots and errors for one subscription.
// OnError may be nil; errors are then dropped.
type Listener[T any] struct {
	OnChange func([]T)
	OnError  func(error)
}

// Unsubscribe releases a subscription. It is idempotent and after it returns no new
// callback starts.
type Unsubscribe func()

// Gateway is a read-only live view of the ledger.
type Gateway interface {
	SubscribeStudents(ctx context.Context, listener Listener[models.Student]) Unsubscribe
	SubscribePayments(ctx context.Context, studentID string, listener Listener[models.Payment]) Unsubscribe
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
