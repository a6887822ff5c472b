package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dcastano/pagosur-backend/api/responses"
	"github.com/dcastano/pagosur-backend/internal/tracking"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
	"github.com/dcastano/pagosur-backend/pkg/logger"
)

type trackingService interface {
	Lookup(ctx context.Context, reference string) (*tracking.View, error)
}

// TrackOrder is the public, unauthenticated order lookup by merchant
// reference. The response is deliberately coarse; see tracking.View.
func TrackOrder(svc trackingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}

		reference := strings.TrimSpace(chi.URLParam(r, "reference"))
		if reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order reference required"))
			return
		}

		view, err := svc.Lookup(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
