package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sahanr/store-backend/internal/common"
	"github.com/sahanr/store-backend/internal/events"
)

// Handler exposes order placement and lookup endpoints.
type Handler struct {
	Store    Store
	Events   *events.Bus
	Validate *validator.Validate
	Currency string
}

type createRequest struct {
	Name     string      `json:"name" validate:"required"`
	Address  string      `json:"address" validate:"required"`
	Whatsapp string      `json:"whatsapp"`
	Quantity int32       `json:"quantity" validate:"omitempty,gte=1"`
	Amount   json.Number `json:"amount" validate:"required"`
	Currency string      `json:"currency" validate:"omitempty,len=3,alpha"`
}

type orderResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Whatsapp  string    `json:"whatsapp,omitempty"`
	Quantity  int32     `json:"quantity"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func toResponse(o Order) orderResponse {
	return orderResponse{
		ID:        o.ID.String(),
		Name:      o.Name,
		Address:   o.Address,
		Whatsapp:  o.Whatsapp,
		Quantity:  o.Quantity,
		Amount:    o.Amount.StringFixed(2),
		Currency:  o.Currency,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
}

// Create places a new pending order. Amount and currency are frozen here;
// only the payment finalizer or an admin override moves the order on.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order store not configured", nil)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "invalid body", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, err.Error(), nil)
			return
		}
	}
	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil || amount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "amount must be a non-negative number", nil)
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.Currency
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	o := &Order{
		Name:     strings.TrimSpace(req.Name),
		Address:  strings.TrimSpace(req.Address),
		Whatsapp: strings.TrimSpace(req.Whatsapp),
		Quantity: quantity,
		Amount:   amount,
		Currency: currency,
		Status:   StatusPending,
	}
	if err := h.Store.Create(r.Context(), o); err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeStoreFailure, "failed to place order", nil)
		return
	}
	if h.Events != nil {
		_, _ = h.Events.Emit(r.Context(), events.TopicOrderCreated, o.ID, map[string]string{
			"amount":   o.Amount.StringFixed(2),
			"currency": o.Currency,
		})
	}
	common.JSON(w, http.StatusCreated, map[string]any{"order": toResponse(*o)})
}

// Get returns a single order by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "invalid order id", nil)
		return
	}
	o, err := h.Store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeOrderNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeStoreFailure, "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"order": toResponse(o)})
}

// List returns orders newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "order store not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	offset := int32((page - 1) * perPage)
	orders, total, err := h.Store.List(r.Context(), int32(perPage), offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeStoreFailure, "failed to list orders", nil)
		return
	}
	response := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		response = append(response, toResponse(o))
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       response,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}
