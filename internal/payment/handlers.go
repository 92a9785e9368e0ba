package payment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sahanr/store-backend/internal/common"
	"github.com/sahanr/store-backend/internal/obs"
	"github.com/sahanr/store-backend/internal/payhere"
)

// Handler exposes the checkout hash endpoint consumed by the storefront
// before redirecting the buyer to the hosted payment page.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type hashRequest struct {
	OrderID  string      `json:"orderId" validate:"required"`
	Amount   json.Number `json:"amount" validate:"required"`
	Currency string      `json:"currency" validate:"required,len=3,alpha"`
}

type hashResponse struct {
	Hash string `json:"hash"`
}

// Hash handles POST /payments/payhere/hash.
func (h *Handler) Hash(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "payment handler unavailable", nil)
		return
	}
	var req hashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		obs.CountHash("invalid_argument")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			obs.CountHash("invalid_argument")
			common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, err.Error(), nil)
			return
		}
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		obs.CountHash("invalid_argument")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "amount is not numeric", nil)
		return
	}

	hash, err := h.Svc.CheckoutHash(r.Context(), req.OrderID, amount, req.Currency)
	switch {
	case errors.Is(err, payhere.ErrNotConfigured):
		obs.CountHash("configuration_error")
		common.JSONError(w, http.StatusInternalServerError, common.CodeConfigurationError, "merchant credentials not configured", nil)
		return
	case errors.Is(err, payhere.ErrInvalidAmount):
		obs.CountHash("invalid_argument")
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, err.Error(), nil)
		return
	case err != nil:
		obs.CountHash("error")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, err.Error(), nil)
		return
	}
	obs.CountHash("success")
	common.JSON(w, http.StatusOK, hashResponse{Hash: hash})
}
