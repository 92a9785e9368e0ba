package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sahanr/store-backend/internal/common"
	"github.com/sahanr/store-backend/internal/events"
)

// AdminHandler carries the operator-only order endpoints. Routes mounting it
// must sit behind the admin token middleware.
type AdminHandler struct {
	Store  Store
	Events *events.Bus
	Logger zerolog.Logger
}

// List returns orders newest first for operator review. Larger page sizes are
// allowed here than on the public listing.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	if perPage > 200 {
		perPage = 200
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

// Complete force-finalizes an order, reusing the same conditional transition
// as the payment notify path so a racing webhook cannot double-complete.
func (h *AdminHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidArgument, "invalid order id", nil)
		return
	}
	applied, err := h.Store.CompleteIfPending(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeOrderNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeStoreFailure, "failed to complete order", nil)
		return
	}
	if applied && h.Events != nil {
		if _, err := h.Events.Emit(r.Context(), events.TopicOrderPaid, id, map[string]string{"source": "admin"}); err != nil {
			h.Logger.Error().Err(err).Str("order_id", id.String()).Msg("emit order.paid after admin completion")
		}
	}
	h.Logger.Info().Str("order_id", id.String()).Bool("applied", applied).Msg("admin order completion")
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId": id.String(),
		"applied": applied,
		"status":  string(StatusCompleted),
	})
}
