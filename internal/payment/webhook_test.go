package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sahanr/store-backend/internal/order"
	"github.com/sahanr/store-backend/internal/payment"
)

var errStoreDown = errors.New("store down")

func notifyForm(n payment.Notification) url.Values {
	return url.Values{
		"merchant_id":      {n.MerchantID},
		"order_id":         {n.OrderID},
		"payhere_amount":   {n.Amount},
		"payhere_currency": {n.Currency},
		"status_code":      {strconv.Itoa(n.StatusCode)},
		"md5sig":           {n.Signature},
	}
}

func postNotify(t *testing.T, h payment.Webhook, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/payhere", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookAcknowledgesSuccess(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Logger: zerolog.Nop()}

	rec := postNotify(t, h, notifyForm(successNotification(t, ord.ID.String())))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.Equal(t, 1, store.completeWrites)
}

func TestWebhookAcknowledgesDuplicateAndUnknown(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Logger: zerolog.Nop()}
	form := notifyForm(successNotification(t, ord.ID.String()))

	require.Equal(t, http.StatusOK, postNotify(t, h, form).Code)
	// retried delivery is still acknowledged
	require.Equal(t, http.StatusOK, postNotify(t, h, form).Code)
	require.Equal(t, 1, store.completeWrites)

	// unknown order: acknowledged so the gateway stops retrying
	unknown := notifyForm(successNotification(t, "3f1f9aa2-62f8-4f07-9f3f-2a9f8f5b1c11"))
	require.Equal(t, http.StatusOK, postNotify(t, h, unknown).Code)
}

func TestWebhookRejectsSignatureMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Logger: zerolog.Nop()}

	n := successNotification(t, ord.ID.String())
	n.Amount = "9999.99" // tampered after signing
	rec := postNotify(t, h, notifyForm(n))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "SIGNATURE_MISMATCH")
	require.Zero(t, store.completeWrites)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := payment.Webhook{Svc: newService(newFakeStore()), Logger: zerolog.Nop()}

	for _, missing := range []string{"order_id", "payhere_amount", "payhere_currency", "status_code", "md5sig"} {
		form := notifyForm(successNotification(t, "O100"))
		form.Del(missing)
		rec := postNotify(t, h, form)
		require.Equal(t, http.StatusBadRequest, rec.Code, "missing %s", missing)
		require.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
	}

	form := notifyForm(successNotification(t, "O100"))
	form.Set("status_code", "not-a-number")
	require.Equal(t, http.StatusBadRequest, postNotify(t, h, form).Code)
}

func TestWebhookReplaySuppression(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Replay: client, ReplayTTL: time.Minute, Logger: zerolog.Nop()}
	form := notifyForm(successNotification(t, ord.ID.String()))

	require.Equal(t, http.StatusOK, postNotify(t, h, form).Code)
	require.Equal(t, 1, store.completeWrites)

	// second byte-identical delivery is suppressed before the service runs
	require.Equal(t, http.StatusOK, postNotify(t, h, form).Code)
	require.Equal(t, 1, store.completeWrites)
	require.Len(t, store.paymentEvents, 1)
}

func TestWebhookStoreFailureDoesNotConsumeReplayKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Replay: client, ReplayTTL: time.Minute, Logger: zerolog.Nop()}
	form := notifyForm(successNotification(t, ord.ID.String()))

	store.failComplete = errStoreDown
	require.Equal(t, http.StatusServiceUnavailable, postNotify(t, h, form).Code)

	// outage clears; the gateway's byte-identical retry must still finalize
	store.failComplete = nil
	require.Equal(t, http.StatusOK, postNotify(t, h, form).Code)
	require.Equal(t, 1, store.completeWrites)
	got, err := store.GetByID(context.Background(), ord.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCompleted, got.Status)
}

func TestWebhookForgedRetriesStayRejected(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	svc := newService(store)
	ord := &order.Order{}
	require.NoError(t, store.Create(context.Background(), ord))
	h := payment.Webhook{Svc: svc, Replay: client, ReplayTTL: time.Minute, Logger: zerolog.Nop()}

	n := successNotification(t, ord.ID.String())
	n.Amount = "9999.99" // tampered after signing
	form := notifyForm(n)

	// each retry of a forged body is rejected, never acknowledged as a replay
	for i := 0; i < 2; i++ {
		rec := postNotify(t, h, form)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), "SIGNATURE_MISMATCH")
	}
	require.Zero(t, store.completeWrites)
}

func TestWebhookStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failComplete = errStoreDown
	svc := newService(store)
	h := payment.Webhook{Svc: svc, Logger: zerolog.Nop()}

	rec := postNotify(t, h, notifyForm(successNotification(t, "7e9dbb4e-93a4-4f0a-bb4e-6f9f1f0a2b3c")))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "STORE_FAILURE")
}
