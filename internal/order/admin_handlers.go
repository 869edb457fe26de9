package order

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

// AdminHandler exposes vendor fee management and totals recomputation.
type AdminHandler struct {
	Service *Service
}

// Routes mounts the vendor/admin order routes on a chi router.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(common.RequireVendor)
		r.Post("/vendor/fees", h.CreateProductFee)
		r.Get("/vendor/fees", h.ListProductFees)
		r.Post("/vendor/orders/{id}/fees", h.AttachFee)
		r.Post("/vendor/orders/{id}/recompute", h.Recompute)
	})
}

func vendorFromRequest(r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.VendorID(r.Context())
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CreateProductFee handles POST /api/v1/vendor/fees.
func (h *AdminHandler) CreateProductFee(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	var in struct {
		Name         string          `json:"name"`
		Amount       decimal.Decimal `json:"amount"`
		Required     bool            `json:"required"`
		VariationIDs []uuid.UUID     `json:"variation_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	fee, err := h.Service.CreateProductFee(r.Context(), vendorID, in.Name, in.Amount, in.Required, in.VariationIDs)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, fee)
}

// ListProductFees handles GET /api/v1/vendor/fees.
func (h *AdminHandler) ListProductFees(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	fees, err := h.Service.ListProductFees(r.Context(), vendorID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, fees)
}

// AttachFee handles POST /api/v1/vendor/orders/{id}/fees.
func (h *AdminHandler) AttachFee(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	var in struct {
		Name     string          `json:"name"`
		Amount   decimal.Decimal `json:"amount"`
		Required bool            `json:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	detail, err := h.Service.AttachFee(r.Context(), vendorID, orderID, in.Name, in.Amount, in.Required)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, detail)
}

// Recompute handles POST /api/v1/vendor/orders/{id}/recompute.
func (h *AdminHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	detail, err := h.Service.RecomputeForVendor(r.Context(), vendorID, orderID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, detail)
}
