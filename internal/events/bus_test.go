package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sahanr/store-backend/internal/events"
)

type stubStore struct {
	inserted []events.Event
	fail     error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, topic string, orderID uuid.UUID, payload []byte) (events.Event, error) {
	if s.fail != nil {
		return events.Event{}, s.fail
	}
	ev := events.Event{ID: uuid.New(), Topic: topic, OrderID: orderID, Payload: payload, OccurredAt: time.Now()}
	s.inserted = append(s.inserted, ev)
	return ev, nil
}

type stubNotifier struct {
	seen []events.Event
	fail error
}

func (n *stubNotifier) Notify(_ context.Context, ev events.Event) error {
	n.seen = append(n.seen, ev)
	return n.fail
}

func TestEmitPersistsAndFansOut(t *testing.T) {
	store := &stubStore{}
	notifier := &stubNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	orderID := uuid.New()
	ev, err := bus.Emit(context.Background(), events.TopicOrderPaid, orderID, map[string]string{"status": "completed"})
	require.NoError(t, err)
	require.Equal(t, events.TopicOrderPaid, ev.Topic)
	require.Len(t, store.inserted, 1)
	require.Len(t, notifier.seen, 1)
	require.JSONEq(t, `{"status":"completed"}`, string(notifier.seen[0].Payload))
}

func TestEmitValidation(t *testing.T) {
	bus := &events.Bus{Store: &stubStore{}}
	_, err := bus.Emit(context.Background(), "  ", uuid.New(), nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.Nil, nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, uuid.New(), []byte("not json"))
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	store := &stubStore{}
	boom := errors.New("boom")
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{&stubNotifier{fail: boom}, &stubNotifier{}}}

	_, err := bus.Emit(context.Background(), events.TopicOrderCreated, uuid.New(), nil)
	require.ErrorIs(t, err, boom)
	// event is persisted even when a notifier fails
	require.Len(t, store.inserted, 1)
}
