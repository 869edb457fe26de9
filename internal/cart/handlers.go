package cart

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
	"github.com/sokoni-dev/backend-sokoni/internal/obs"
)

// Handler exposes cart endpoints.
type Handler struct {
	Service *Service
}

// Routes mounts the cart routes on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/cart", h.Ensure)
	r.Get("/cart/{id}", h.Get)
	r.Post("/cart/{id}/items", h.AddItem)
	r.Delete("/cart/{id}/items/{itemID}", h.RemoveItem)
	r.Post("/cart/{id}/quote", h.Quote)
}

func cartIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// Ensure handles POST /api/v1/cart.
func (h *Handler) Ensure(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AnonID string `json:"anon_id"`
	}
	// body is optional for authenticated callers
	_ = json.NewDecoder(r.Body).Decode(&in)
	userID, _ := common.UserID(r.Context())
	c, err := h.Service.Ensure(r.Context(), userID, in.AnonID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, c)
}

// Get handles GET /api/v1/cart/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := cartIDParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return
	}
	c, items, err := h.Service.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"cart": c, "items": items})
}

// AddItem handles POST /api/v1/cart/{id}/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, err := cartIDParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return
	}
	var in struct {
		VariationID    uuid.UUID        `json:"variation_id"`
		Quantity       int              `json:"quantity"`
		DepositPercent *decimal.Decimal `json:"deposit_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	item, err := h.Service.AddItem(r.Context(), id, in.VariationID, in.Quantity, in.DepositPercent)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, item)
}

// RemoveItem handles DELETE /api/v1/cart/{id}/items/{itemID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := cartIDParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart item not found", nil)
		return
	}
	if err := h.Service.RemoveItem(r.Context(), id, itemID); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Quote handles POST /api/v1/cart/{id}/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := cartIDParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart not found", nil)
		return
	}
	var in struct {
		ShippingCost   decimal.Decimal `json:"shipping_cost"`
		DiscountAmount decimal.Decimal `json:"discount_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	start := time.Now()
	quote, err := h.Service.Quote(r.Context(), id, in.ShippingCost, in.DiscountAmount)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	if obs.QuoteLatency != nil {
		obs.QuoteLatency.WithLabelValues("cart").Observe(obs.DurationMillis(time.Since(start)))
	}
	common.JSONData(w, http.StatusOK, quote)
}
