package payment_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sahanr/store-backend/internal/events"
	"github.com/sahanr/store-backend/internal/order"
	"github.com/sahanr/store-backend/internal/payhere"
	"github.com/sahanr/store-backend/internal/payment"
)

var testCreds = payhere.Credentials{MerchantID: "1211149", MerchantSecret: "test-secret"}

type fakeStore struct {
	mu             sync.Mutex
	orders         map[uuid.UUID]order.Status
	completeWrites int
	paymentEvents  []order.PaymentEvent
	domainEvents   []events.Event
	failComplete   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[uuid.UUID]order.Status)}
}

func (f *fakeStore) Create(_ context.Context, o *order.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	f.orders[o.ID] = order.StatusPending
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return order.Order{ID: id, Status: status}, nil
}

func (f *fakeStore) List(context.Context, int32, int32) ([]order.Order, int64, error) {
	return nil, 0, nil
}

func (f *fakeStore) CompleteIfPending(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failComplete != nil {
		return false, f.failComplete
	}
	status, ok := f.orders[id]
	if !ok {
		return false, order.ErrNotFound
	}
	if status != order.StatusPending {
		return false, nil
	}
	f.orders[id] = order.StatusCompleted
	f.completeWrites++
	return true, nil
}

func (f *fakeStore) InsertPaymentEvent(_ context.Context, ev order.PaymentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentEvents = append(f.paymentEvents, ev)
	return nil
}

func (f *fakeStore) InsertDomainEvent(_ context.Context, topic string, orderID uuid.UUID, payload []byte) (events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := events.Event{ID: uuid.New(), Topic: topic, OrderID: orderID, Payload: payload, OccurredAt: time.Now()}
	f.domainEvents = append(f.domainEvents, ev)
	return ev, nil
}

func (f *fakeStore) topicCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, ev := range f.domainEvents {
		if ev.Topic == topic {
			count++
		}
	}
	return count
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newService(store *fakeStore) *payment.Service {
	return &payment.Service{
		Creds:  testCreds,
		Store:  store,
		Events: &events.Bus{Store: store},
		Logger: zerolog.Nop(),
	}
}

func successNotification(t *testing.T, orderID string) payment.Notification {
	t.Helper()
	return signedNotification(t, orderID, "2500.00", "LKR", payhere.StatusSuccess)
}

func signedNotification(t *testing.T, orderID, amount, currency string, statusCode int) payment.Notification {
	t.Helper()
	sig, err := payhere.NotifySignature(testCreds, orderID, amount, currency, strconv.Itoa(statusCode))
	require.NoError(t, err)
	return payment.Notification{
		MerchantID: testCreds.MerchantID,
		OrderID:    orderID,
		Amount:     amount,
		Currency:   currency,
		StatusCode: statusCode,
		Signature:  sig,
	}
}

func TestHandleNotificationCompletesPendingOrder(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))

	outcome, err := svc.HandleNotification(context.Background(), successNotification(t, ord.ID.String()))
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeCompleted, outcome)
	require.Equal(t, 1, store.completeWrites)
	require.Equal(t, 1, store.topicCount(events.TopicOrderPaid))
}

func TestHandleNotificationIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	n := successNotification(t, ord.ID.String())

	first, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeCompleted, first)

	second, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeAlreadyProcessed, second)

	require.Equal(t, 1, store.completeWrites)
	require.Equal(t, 1, store.topicCount(events.TopicOrderPaid))
	status, err := store.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, status.Status)
}

func TestHandleNotificationConcurrentDeliveries(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	n := successNotification(t, ord.ID.String())

	type result struct {
		outcome payment.Outcome
		err     error
	}
	const deliveries = 8
	results := make(chan result, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.HandleNotification(context.Background(), n)
			results <- result{outcome: outcome, err: err}
		}()
	}
	wg.Wait()
	close(results)

	completed := 0
	for res := range results {
		require.NoError(t, res.err)
		if res.outcome == payment.OutcomeCompleted {
			completed++
		} else {
			require.Equal(t, payment.OutcomeAlreadyProcessed, res.outcome)
		}
	}
	require.Equal(t, 1, completed)
	require.Equal(t, 1, store.completeWrites)
	require.Equal(t, 1, store.topicCount(events.TopicOrderPaid))
}

func TestHandleNotificationSignatureMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))

	n := successNotification(t, ord.ID.String())
	n.Signature = "0123456789ABCDEF0123456789ABCDEF"

	_, err := svc.HandleNotification(context.Background(), n)
	require.ErrorIs(t, err, payment.ErrSignatureMismatch)
	require.Zero(t, store.completeWrites)
	status, err := store.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, status.Status)
}

func TestHandleNotificationUnknownOrder(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	outcome, err := svc.HandleNotification(context.Background(), successNotification(t, uuid.NewString()))
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeOrderNotFound, outcome)
	require.Zero(t, store.completeWrites)
	require.Empty(t, store.domainEvents)
}

func TestHandleNotificationUnsuccessfulPayment(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))

	n := signedNotification(t, ord.ID.String(), "2500.00", "LKR", payhere.StatusCanceled)
	outcome, err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, payment.OutcomeNotSuccessful, outcome)
	require.Zero(t, store.completeWrites)
	require.Equal(t, 1, store.topicCount(events.TopicPaymentFailed))
	status, err := store.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusPending, status.Status)
}

func TestHandleNotificationStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failComplete = errors.New("connection refused")
	svc := newService(store)

	_, err := svc.HandleNotification(context.Background(), successNotification(t, uuid.NewString()))
	require.Error(t, err)
	require.NotErrorIs(t, err, payment.ErrSignatureMismatch)
}

func TestHandleNotificationMissingCredentials(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	svc.Creds = payhere.Credentials{}

	_, err := svc.HandleNotification(context.Background(), payment.Notification{
		OrderID: uuid.NewString(), Amount: "10.00", Currency: "LKR", StatusCode: payhere.StatusSuccess, Signature: "AAAA",
	})
	require.ErrorIs(t, err, payhere.ErrNotConfigured)
}
