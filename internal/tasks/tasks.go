package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/sahanr/store-backend/internal/events"
	"github.com/sahanr/store-backend/internal/order"
)

// TypeOrderCompleted is the queue task emitted once per completed order. The
// task id is derived from the order id so redelivered webhooks cannot enqueue
// the confirmation twice.
const TypeOrderCompleted = "order:completed"

// OrderCompletedPayload is the JSON body of a TypeOrderCompleted task.
type OrderCompletedPayload struct {
	OrderID string `json:"orderId"`
}

// NewOrderCompletedTask builds the confirmation task for an order.
func NewOrderCompletedTask(orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderCompletedPayload{OrderID: orderID.String()})
	if err != nil {
		return nil, fmt.Errorf("tasks: marshal payload: %w", err)
	}
	return asynq.NewTask(TypeOrderCompleted, payload,
		asynq.TaskID(TypeOrderCompleted+":"+orderID.String()),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// Enqueuer submits tasks to the queue backend.
type Enqueuer struct {
	Client *asynq.Client
	Logger zerolog.Logger
}

// EnqueueOrderCompleted schedules the post-completion work for an order.
// A task id conflict means the confirmation is already queued or done, which
// is the expected outcome for a redelivered notification.
func (e *Enqueuer) EnqueueOrderCompleted(ctx context.Context, orderID uuid.UUID) error {
	if e == nil || e.Client == nil {
		return errors.New("tasks: queue client not configured")
	}
	task, err := NewOrderCompletedTask(orderID)
	if err != nil {
		return err
	}
	info, err := e.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			e.Logger.Debug().Str("order_id", orderID.String()).Msg("order completion task already enqueued")
			return nil
		}
		return fmt.Errorf("tasks: enqueue %s: %w", TypeOrderCompleted, err)
	}
	e.Logger.Info().Str("order_id", orderID.String()).Str("task_id", info.ID).Str("queue", info.Queue).Msg("enqueued order completion task")
	return nil
}

// CompletionNotifier bridges the event bus to the task queue: it reacts only
// to order.paid events and enqueues the confirmation task for the winner.
type CompletionNotifier struct {
	Enqueuer *Enqueuer
}

// Notify implements events.Notifier.
func (n *CompletionNotifier) Notify(ctx context.Context, ev events.Event) error {
	if ev.Topic != events.TopicOrderPaid {
		return nil
	}
	if n == nil || n.Enqueuer == nil {
		return errors.New("tasks: enqueuer not configured")
	}
	return n.Enqueuer.EnqueueOrderCompleted(ctx, ev.OrderID)
}

var _ events.Notifier = (*CompletionNotifier)(nil)

// Handlers holds the worker-side task processors.
type Handlers struct {
	Store  order.Store
	Logger zerolog.Logger
}

// HandleOrderCompleted runs the post-payment side effects for an order. An
// unknown order is logged and dropped rather than retried: the record is gone,
// so no number of retries will change the outcome.
func (h *Handlers) HandleOrderCompleted(ctx context.Context, t *asynq.Task) error {
	var payload OrderCompletedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("tasks: unmarshal %s payload: %v: %w", TypeOrderCompleted, err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("tasks: invalid order id %q: %v: %w", payload.OrderID, err, asynq.SkipRetry)
	}

	o, err := h.Store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.Logger.Warn().Str("order_id", id.String()).Msg("completed order no longer exists, dropping task")
			return nil
		}
		return fmt.Errorf("tasks: load order %s: %w", id, err)
	}

	h.Logger.Info().
		Str("order_id", o.ID.String()).
		Str("amount", o.Amount.StringFixed(2)).
		Str("currency", o.Currency).
		Str("status", string(o.Status)).
		Msg("order completion confirmed")
	return nil
}
