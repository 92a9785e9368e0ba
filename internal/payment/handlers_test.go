package payment_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/sahanr/store-backend/internal/payhere"
	"github.com/sahanr/store-backend/internal/payment"
)

func postHash(t *testing.T, h *payment.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/payments/payhere/hash", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Hash(rec, req)
	return rec
}

func TestHashEndpoint(t *testing.T) {
	h := &payment.Handler{Svc: newService(newFakeStore()), Validate: validator.New()}

	rec := postHash(t, h, `{"orderId":"O100","amount":99.5,"currency":"LKR"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"hash":"`)

	// amount accepted as string too, same hash
	asString := postHash(t, h, `{"orderId":"O100","amount":"99.50","currency":"LKR"}`)
	require.Equal(t, http.StatusOK, asString.Code)
	require.Equal(t, rec.Body.String(), asString.Body.String())

	want, err := payhere.CheckoutHash(testCreds, "O100", mustDecimal(t, "99.5"), "LKR")
	require.NoError(t, err)
	require.Contains(t, rec.Body.String(), want)
}

func TestHashEndpointInvalidArgument(t *testing.T) {
	h := &payment.Handler{Svc: newService(newFakeStore()), Validate: validator.New()}

	for name, body := range map[string]string{
		"not json":         `{`,
		"missing order id": `{"amount":10,"currency":"LKR"}`,
		"missing amount":   `{"orderId":"O1","currency":"LKR"}`,
		"bad currency":     `{"orderId":"O1","amount":10,"currency":"RUPEES"}`,
		"negative amount":  `{"orderId":"O1","amount":-5,"currency":"LKR"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postHash(t, h, body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
		})
	}
}

func TestHashEndpointMissingConfiguration(t *testing.T) {
	svc := newService(newFakeStore())
	svc.Creds = payhere.Credentials{}
	h := &payment.Handler{Svc: svc, Validate: validator.New()}

	rec := postHash(t, h, `{"orderId":"O100","amount":99.5,"currency":"LKR"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "CONFIGURATION_ERROR")
}
