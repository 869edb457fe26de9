package catalog

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

// Handler exposes variation and price-tier endpoints.
type Handler struct {
	Service *Service
}

// Routes mounts the catalog routes on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/variations/{id}", h.GetVariation)
	r.Get("/variations/{id}/price", h.QuotePrice)

	r.Group(func(r chi.Router) {
		r.Use(common.RequireVendor)
		r.Get("/vendor/variations", h.ListVendorVariations)
		r.Post("/vendor/variations", h.CreateVariation)
		r.Put("/vendor/variations/{id}", h.UpdateVariation)
		r.Delete("/vendor/variations/{id}", h.DeleteVariation)
		r.Put("/vendor/variations/{id}/tiers", h.SetTiers)
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

func idParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// CreateVariation handles POST /api/v1/vendor/variations.
func (h *Handler) CreateVariation(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	var in VariationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	v, err := h.Service.Create(r.Context(), vendorID, in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusCreated, v)
}

// UpdateVariation handles PUT /api/v1/vendor/variations/{id}.
func (h *Handler) UpdateVariation(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	id, err := idParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	var in VariationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	v, err := h.Service.Update(r.Context(), vendorID, id, in)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, v)
}

// DeleteVariation handles DELETE /api/v1/vendor/variations/{id}.
func (h *Handler) DeleteVariation(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	id, err := idParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	if err := h.Service.Delete(r.Context(), vendorID, id); err != nil {
		common.RenderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVendorVariations handles GET /api/v1/vendor/variations.
func (h *Handler) ListVendorVariations(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	items, total, err := h.Service.ListByVendor(r.Context(), vendorID, page, perPage)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// GetVariation handles GET /api/v1/variations/{id}.
func (h *Handler) GetVariation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	detail, err := h.Service.Get(r.Context(), id)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, detail)
}

// SetTiers handles PUT /api/v1/vendor/variations/{id}/tiers.
func (h *Handler) SetTiers(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromRequest(r)
	if !ok {
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "vendor identity required", nil)
		return
	}
	id, err := idParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	var in struct {
		Tiers []TierInput `json:"tiers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	tiers, err := h.Service.SetTiers(r.Context(), vendorID, id, in.Tiers)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, tiers)
}

// QuotePrice handles GET /api/v1/variations/{id}/price?qty=N.
func (h *Handler) QuotePrice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	qty, err := strconv.Atoi(r.URL.Query().Get("qty"))
	if err != nil || qty < 1 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must be a positive integer", nil)
		return
	}
	unit, err := h.Service.QuotePrice(r.Context(), id, qty)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{
		"variation_id": id,
		"quantity":     qty,
		"unit_price":   unit,
	})
}
