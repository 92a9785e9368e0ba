package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the referenced order does not exist.
var ErrNotFound = errors.New("order: not found")

// Store is the persistence boundary for orders. CompleteIfPending is the one
// conditional write: it flips PENDING to COMPLETED atomically and reports
// whether this call actually applied the transition, so concurrent retries of
// the same notification resolve to exactly one winner.
type Store interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (Order, error)
	List(ctx context.Context, limit, offset int32) ([]Order, int64, error)
	CompleteIfPending(ctx context.Context, id uuid.UUID) (bool, error)
	InsertPaymentEvent(ctx context.Context, ev PaymentEvent) error
}
