package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sahanr/store-backend/internal/events"
)

// PGStore persists orders in Postgres. Amounts travel as fixed two-decimal
// strings to and from NUMERIC columns to avoid binary float artifacts.
type PGStore struct {
	Pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{Pool: pool}
}

func (s *PGStore) Create(ctx context.Context, o *Order) error {
	if s == nil || s.Pool == nil {
		return errors.New("order: store not configured")
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	const q = `
        INSERT INTO orders (id, name, address, whatsapp, quantity, amount, currency, status)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
        RETURNING created_at, updated_at`
	err := s.Pool.QueryRow(ctx, q,
		o.ID, o.Name, o.Address, o.Whatsapp, o.Quantity,
		o.Amount.StringFixed(2), o.Currency, string(o.Status),
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("order %s already exists: %w", o.ID, err)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PGStore) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	if s == nil || s.Pool == nil {
		return Order{}, errors.New("order: store not configured")
	}
	const q = `
        SELECT id, name, address, whatsapp, quantity, amount::text, currency, status, created_at, updated_at
        FROM orders WHERE id = $1`
	o, err := scanOrder(s.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *PGStore) List(ctx context.Context, limit, offset int32) ([]Order, int64, error) {
	if s == nil || s.Pool == nil {
		return nil, 0, errors.New("order: store not configured")
	}
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	const q = `
        SELECT id, name, address, whatsapp, quantity, amount::text, currency, status, created_at, updated_at
        FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := s.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return out, total, nil
}

// CompleteIfPending applies the single allowed transition as one conditional
// UPDATE. Returns true when this call flipped the row, false when the order
// was already completed, ErrNotFound when the order does not exist.
func (s *PGStore) CompleteIfPending(ctx context.Context, id uuid.UUID) (bool, error) {
	if s == nil || s.Pool == nil {
		return false, errors.New("order: store not configured")
	}
	tag, err := s.Pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(StatusCompleted), id, string(StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("complete order: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var status string
	err = s.Pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("check order status: %w", err)
	}
	return false, nil
}

func (s *PGStore) InsertPaymentEvent(ctx context.Context, ev PaymentEvent) error {
	if s == nil || s.Pool == nil {
		return errors.New("order: store not configured")
	}
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO payment_events (order_id, status_code, outcome, payload) VALUES ($1, $2, $3, $4)`,
		ev.OrderID, ev.StatusCode, ev.Outcome, payload,
	)
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}

// InsertDomainEvent lets PGStore serve as the event bus store.
func (s *PGStore) InsertDomainEvent(ctx context.Context, topic string, orderID uuid.UUID, payload []byte) (events.Event, error) {
	if s == nil || s.Pool == nil {
		return events.Event{}, errors.New("order: store not configured")
	}
	ev := events.Event{ID: uuid.New(), Topic: topic, OrderID: orderID, Payload: payload}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO domain_events (id, topic, order_id, payload) VALUES ($1, $2, $3, $4) RETURNING occurred_at`,
		ev.ID, ev.Topic, ev.OrderID, ev.Payload,
	).Scan(&ev.OccurredAt)
	if err != nil {
		return events.Event{}, fmt.Errorf("insert domain event: %w", err)
	}
	return ev, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o      Order
		amount string
		status string
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Address, &o.Whatsapp, &o.Quantity,
		&amount, &o.Currency, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return Order{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Order{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	o.Amount = parsed
	o.Status = Status(status)
	return o, nil
}

var _ interface {
	Store
	events.EventStore
} = (*PGStore)(nil)
