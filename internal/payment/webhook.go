package payment

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sahanr/store-backend/internal/common"
	"github.com/sahanr/store-backend/internal/obs"
	"github.com/sahanr/store-backend/internal/payhere"
)

// Webhook receives PayHere server-to-server notify callbacks. The endpoint is
// reachable without end-user authentication; integrity rests entirely on the
// md5sig verification performed by the service. Deliveries are at-least-once
// and may race each other for the same order.
type Webhook struct {
	Svc       *Service
	Replay    *redis.Client
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle processes POST /webhooks/payment/payhere.
//
// Response contract: 200 "OK" acknowledges every resolved notification,
// including duplicates, unknown orders and unsuccessful payments, so the
// gateway stops retrying. 400 marks a malformed body, 401 a signature
// mismatch, 503 a store failure; the latter is distinct so monitoring can
// tell "try again later" apart from "this request is forged".
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		obs.CountNotify("invalid_argument")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	n, err := parseNotification(r)
	if err != nil {
		obs.CountNotify("invalid_argument")
		h.Logger.Warn().Str("remote_ip", common.ClientIP(r)).Err(err).Msg("rejected malformed notify delivery")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, err.Error(), nil)
		return
	}

	// Byte-identical retries of an already acknowledged delivery are
	// short-circuited. The key is written only after a delivery resolves to
	// an acknowledged outcome: a delivery rejected or failed below must stay
	// retryable, otherwise a store outage on the first attempt would leave
	// the order pending forever. The conditional update in the store already
	// makes reprocessing harmless, so the check-then-set race is benign.
	replayKey := ""
	if h.Replay != nil && h.ReplayTTL > 0 {
		replayKey = "payhere:notify:" + common.Sha256Hex(string(body))
		seen, err := h.Replay.Exists(r.Context(), replayKey).Result()
		if err != nil {
			h.Logger.Error().Err(err).Msg("replay store unavailable, continuing without suppression")
			replayKey = ""
		} else if seen > 0 {
			h.Logger.Info().Str("order_id", n.OrderID).Msg("duplicate notify delivery suppressed")
			obs.CountNotify("replay")
			common.Text(w, http.StatusOK, "OK")
			return
		}
	}

	outcome, err := h.Svc.HandleNotification(r.Context(), n)
	switch {
	case errors.Is(err, ErrSignatureMismatch):
		obs.CountNotify("signature_mismatch")
		common.JSONError(w, http.StatusUnauthorized, common.CodeSignatureMismatch, "signature verification failed", nil)
		return
	case errors.Is(err, payhere.ErrNotConfigured):
		obs.CountNotify("configuration_error")
		common.JSONError(w, http.StatusInternalServerError, common.CodeConfigurationError, "merchant credentials not configured", nil)
		return
	case err != nil:
		obs.CountNotify("store_failure")
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeStoreFailure, "order store unavailable", nil)
		return
	}
	if replayKey != "" {
		if err := h.Replay.SetNX(r.Context(), replayKey, "1", h.ReplayTTL).Err(); err != nil {
			h.Logger.Error().Err(err).Msg("record replay key")
		}
	}
	obs.CountNotify(string(outcome))
	common.Text(w, http.StatusOK, "OK")
}

// parseNotification validates the provider's form fields before any
// cryptographic work. Missing or non-numeric fields are invalid arguments,
// not downstream nil dereferences.
func parseNotification(r *http.Request) (Notification, error) {
	if err := r.ParseForm(); err != nil {
		return Notification{}, errors.New("malformed form body")
	}
	form := r.PostForm
	if len(form) == 0 {
		form = r.Form
	}
	n := Notification{
		MerchantID: strings.TrimSpace(form.Get("merchant_id")),
		OrderID:    strings.TrimSpace(form.Get("order_id")),
		Amount:     strings.TrimSpace(form.Get("payhere_amount")),
		Currency:   strings.TrimSpace(form.Get("payhere_currency")),
		Signature:  strings.TrimSpace(form.Get("md5sig")),
	}
	statusCode := strings.TrimSpace(form.Get("status_code"))
	switch {
	case n.OrderID == "":
		return Notification{}, errors.New("order_id is required")
	case n.Amount == "":
		return Notification{}, errors.New("payhere_amount is required")
	case n.Currency == "":
		return Notification{}, errors.New("payhere_currency is required")
	case n.Signature == "":
		return Notification{}, errors.New("md5sig is required")
	case statusCode == "":
		return Notification{}, errors.New("status_code is required")
	}
	code, err := strconv.Atoi(statusCode)
	if err != nil {
		return Notification{}, errors.New("status_code is not an integer")
	}
	n.StatusCode = code
	return n, nil
}
