package payment

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

// Handler exposes the buyer-facing payment endpoints.
type Handler struct {
	Service *Service
}

// Routes mounts the payment routes on a chi router. The webhook is mounted
// separately because it must stay outside the identity middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(common.RequireUser)
		r.Post("/orders/{id}/payments", h.Initiate)
		r.Get("/orders/{id}/payments/status", h.Status)
	})
}

// Initiate handles POST /api/v1/orders/{id}/payments.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	var in struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return
	}
	if in.Phone == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "phone is required", nil)
		return
	}
	p, err := h.Service.InitiateSTK(r.Context(), userID, orderID, in.Phone)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusAccepted, p)
}

// Status handles GET /api/v1/orders/{id}/payments/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	status, err := h.Service.StatusForOrder(r.Context(), userID, orderID)
	if err != nil {
		common.RenderError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]string{"status": status})
}
