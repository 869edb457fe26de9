package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sokoni-dev/backend-sokoni/internal/catalog"
	"github.com/sokoni-dev/backend-sokoni/internal/common"
)

func newRouter(svc *catalog.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(common.IdentityMiddleware)
	r.Route("/api/v1", func(r chi.Router) {
		(&catalog.Handler{Service: svc}).Routes(r)
	})
	return r
}

func TestVariationLifecycleOverHTTP(t *testing.T) {
	svc := newService(newFakeStore())
	router := newRouter(svc)
	vendorID := "6f1b0c9a-8d2e-4f3a-9b7c-1a2b3c4d5e6f"

	body := `{"name":"Sugar 1kg","base_price":100,"deposit_enabled":true,"deposit_percent":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/variations", strings.NewReader(body))
	req.Header.Set("X-Vendor-ID", vendorID)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		Data catalog.Variation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created.Data.ID.String()

	tierBody := `{"tiers":[{"min_quantity":10,"max_quantity":49,"price":90}]}`
	req = httptest.NewRequest(http.MethodPut, "/api/v1/vendor/variations/"+id+"/tiers", strings.NewReader(tierBody))
	req.Header.Set("X-Vendor-ID", vendorID)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/variations/"+id+"/price?qty=15", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var quote struct {
		Data struct {
			UnitPrice decimal.Decimal `json:"unit_price"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &quote))
	require.True(t, quote.Data.UnitPrice.Equal(decimal.NewFromInt(90)))
}

func TestVendorRoutesRequireIdentity(t *testing.T) {
	svc := newService(newFakeStore())
	router := newRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vendor/variations", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.New()
}

func TestQuoteRejectsBadQuantity(t *testing.T) {
	svc := newService(newFakeStore())
	router := newRouter(svc)

	v, err := svc.Create(context.Background(), mustUUID(t), catalog.VariationInput{
		Name:      "Sugar 1kg",
		BasePrice: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/variations/"+v.ID.String()+"/price?qty=0", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
