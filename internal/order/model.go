package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the lifecycle states of an order. The only transition is
// PENDING -> COMPLETED, applied by the payment finalizer or an admin override.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Order is the record created by the placement flow before checkout. Amount
// and currency are frozen at creation; status is the single mutable field.
type Order struct {
	ID        uuid.UUID
	Name      string
	Address   string
	Whatsapp  string
	Quantity  int32
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentEvent is an append-only audit record of a gateway notification
// outcome for an order.
type PaymentEvent struct {
	OrderID    uuid.UUID
	StatusCode int
	Outcome    string
	Payload    []byte
}
