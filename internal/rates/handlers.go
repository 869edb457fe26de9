package rates

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

// Handler exposes vendor interest-rate rule endpoints.
type Handler struct {
	Service *Service
}

// Routes mounts the rate rule routes on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(common.RequireVendor)
		r.Get("/vendor/variations/{id}/rates", h.ListRules)
		r.Put("/vendor/variations/{id}/rates", h.SetRules)
	})
}

func requestIdentity(r *http.Request) (vendorID, variationID uuid.UUID, ok bool) {
	raw, found := common.VendorID(r.Context())
	if !found {
		return uuid.Nil, uuid.Nil, false
	}
	vendorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	variationID, err = uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return vendorID, variationID, true
}

// SetRules handles PUT /api/v1/vendor/variations/{id}/rates.
func (h *Handler) SetRules(w http.ResponseWriter, r *http.Request) {
	vendorID, variationID, ok := requestIdentity(r)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	var in struct {
		Rules []RuleInput `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	rules, err := h.Service.SetRules(r.Context(), vendorID, variationID, in.Rules)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, rules)
}

// ListRules handles GET /api/v1/vendor/variations/{id}/rates.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	vendorID, variationID, ok := requestIdentity(r)
	if !ok {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "variation not found", nil)
		return
	}
	rules, err := h.Service.List(r.Context(), vendorID, variationID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, rules)
}
