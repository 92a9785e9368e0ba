// Package payment hosts the PayHere checkout-hash endpoint and the notify
// webhook that finalizes orders.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sahanr/store-backend/internal/events"
	"github.com/sahanr/store-backend/internal/order"
	"github.com/sahanr/store-backend/internal/payhere"
)

// ErrSignatureMismatch is returned when a notification's md5sig disagrees
// with the locally recomputed signature. Security relevant; the notification
// is rejected before any store access.
var ErrSignatureMismatch = errors.New("payment: signature mismatch")

// Notification is the validated shape of a PayHere notify callback. Amount is
// kept as the raw string the gateway signed.
type Notification struct {
	MerchantID string
	OrderID    string
	Amount     string
	Currency   string
	StatusCode int
	Signature  string
}

// Outcome classifies how a verified notification was resolved.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeOrderNotFound    Outcome = "order_not_found"
	OutcomeNotSuccessful    Outcome = "not_successful"
)

// Service coordinates hash generation and notification finalization.
type Service struct {
	Creds  payhere.Credentials
	Store  order.Store
	Events *events.Bus
	Logger zerolog.Logger
}

// CheckoutHash produces the integrity token for the hosted checkout redirect.
func (s *Service) CheckoutHash(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error) {
	if s == nil || s.Store == nil {
		return "", errors.New("payment: service not configured")
	}
	_, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CheckoutHash")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	hash, err := payhere.CheckoutHash(s.Creds, orderID, amount, currency)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return hash, nil
}

// HandleNotification verifies a notify callback and applies the sole allowed
// state transition. The signature check precedes any store access; the
// PENDING -> COMPLETED flip is a conditional update so concurrent deliveries
// of the same notification resolve to exactly one completion, and only the
// winning call emits the order.paid event.
func (s *Service) HandleNotification(ctx context.Context, n Notification) (Outcome, error) {
	if s == nil || s.Store == nil {
		return "", errors.New("payment: service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.HandleNotification")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", n.OrderID),
		attribute.Int("payment.status_code", n.StatusCode),
	)

	statusCode := strconv.Itoa(n.StatusCode)
	expected, err := payhere.NotifySignature(s.Creds, n.OrderID, n.Amount, n.Currency, statusCode)
	if err != nil {
		return "", err
	}
	if !payhere.VerifySignature(expected, n.Signature) {
		s.Logger.Warn().
			Str("order_id", n.OrderID).
			Str("status_code", statusCode).
			Str("amount", n.Amount).
			Str("currency", n.Currency).
			Str("provided_sig", n.Signature).
			Msg("payment notification rejected: signature mismatch")
		return "", ErrSignatureMismatch
	}

	if n.StatusCode != payhere.StatusSuccess {
		s.Logger.Info().
			Str("order_id", n.OrderID).
			Str("status_code", statusCode).
			Msg("payment notification reports unsuccessful payment")
		if id, parseErr := uuid.Parse(n.OrderID); parseErr == nil {
			s.recordEvent(ctx, id, n, string(OutcomeNotSuccessful))
			if s.Events != nil {
				_, _ = s.Events.Emit(ctx, events.TopicPaymentFailed, id, notifyPayload(n, OutcomeNotSuccessful))
			}
		}
		return OutcomeNotSuccessful, nil
	}

	id, err := uuid.Parse(n.OrderID)
	if err != nil {
		s.Logger.Warn().Str("order_id", n.OrderID).Msg("payment notification references unparseable order id")
		return OutcomeOrderNotFound, nil
	}

	applied, err := s.Store.CompleteIfPending(ctx, id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			s.Logger.Warn().Str("order_id", n.OrderID).Msg("payment notification references unknown order")
			return OutcomeOrderNotFound, nil
		}
		span.RecordError(err)
		return "", fmt.Errorf("payment: finalize order: %w", err)
	}
	if !applied {
		s.Logger.Info().Str("order_id", n.OrderID).Msg("payment notification already processed")
		s.recordEvent(ctx, id, n, string(OutcomeAlreadyProcessed))
		return OutcomeAlreadyProcessed, nil
	}

	s.Logger.Info().Str("order_id", n.OrderID).Msg("order completed")
	s.recordEvent(ctx, id, n, string(OutcomeCompleted))
	if s.Events != nil {
		if _, err := s.Events.Emit(ctx, events.TopicOrderPaid, id, notifyPayload(n, OutcomeCompleted)); err != nil {
			s.Logger.Error().Err(err).Str("order_id", n.OrderID).Msg("emit order.paid")
		}
	}
	return OutcomeCompleted, nil
}

// recordEvent appends to the payment audit trail; best effort, the outcome of
// the notification does not depend on it.
func (s *Service) recordEvent(ctx context.Context, id uuid.UUID, n Notification, outcome string) {
	payload, _ := json.Marshal(map[string]string{
		"amount":   n.Amount,
		"currency": n.Currency,
	})
	if err := s.Store.InsertPaymentEvent(ctx, order.PaymentEvent{
		OrderID:    id,
		StatusCode: n.StatusCode,
		Outcome:    outcome,
		Payload:    payload,
	}); err != nil {
		s.Logger.Error().Err(err).Str("order_id", id.String()).Msg("record payment event")
	}
}

func notifyPayload(n Notification, outcome Outcome) map[string]any {
	return map[string]any{
		"orderId":    n.OrderID,
		"amount":     n.Amount,
		"currency":   n.Currency,
		"statusCode": n.StatusCode,
		"outcome":    string(outcome),
	}
}
