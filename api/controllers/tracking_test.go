package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastano/pagosur-backend/internal/tracking"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
)

type fakeTrackingService struct {
	view *tracking.View
	err  error
}

func (f *fakeTrackingService) Lookup(context.Context, string) (*tracking.View, error) {
	return f.view, f.err
}

func trackingRouter(svc trackingService) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/tracking/{reference}", TrackOrder(svc, nil))
	return r
}

func TestTrackOrder_ReturnsView(t *testing.T) {
	svc := &fakeTrackingService{view: &tracking.View{
		Reference: "ORD-300",
		Status:    enums.OrderStatusConfirmed,
		Payment:   tracking.PaymentStatePaid,
	}}
	router := trackingRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/ORD-300", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ORD-300")
	assert.Contains(t, rec.Body.String(), "confirmed")
	assert.Contains(t, rec.Body.String(), "paid")
	// Coarse view only: no money fields in the public response.
	assert.NotContains(t, rec.Body.String(), "cents")
}

func TestTrackOrder_NotFound(t *testing.T) {
	svc := &fakeTrackingService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	router := trackingRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tracking/ORD-404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
