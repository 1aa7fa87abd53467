// Package audit captures structured lifecycle events. The publisher is
// append-only and uses the storage layer for persistence so tests can swap
// sinks easily.
package audit

import (
	"context"
	"time"

	"shopcore/pkg/requestcontext"
)

// Store is the persistence sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAccount(ctx context.Context, accountID string) ([]Event, error)
}

// Publisher emits audit events. Failures to audit never fail the business
// operation; the caller logs and proceeds.
type Publisher struct {
	store Store
}

// NewPublisher creates a Publisher over the given store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit records an event, stamping timestamp and request ID from the context
// when the caller left them empty.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return p.store.Append(ctx, event)
}

// List returns the audit trail of one account, oldest first.
func (p *Publisher) List(ctx context.Context, accountID string) ([]Event, error) {
	return p.store.ListByAccount(ctx, accountID)
}
