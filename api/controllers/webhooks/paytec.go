package webhooks

import (
	"net/http"

	"github.com/dcastano/pagosur-backend/api/responses"
	"github.com/dcastano/pagosur-backend/internal/gateways/paytec"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
)

type paytecVerifier interface {
	VerifyPaytec(reference, amount, stateCode, sign string) bool
}

// PaytecWebhook ingests the secondary processor's form-encoded confirmation
// callbacks. The signature covers the reference, amount and state fields, so
// verification runs after field extraction but before any state change.
func PaytecWebhook(svc ReconcileService, verifier paytecVerifier, maxBodyBytes int64, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}

		if maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if err := r.ParseForm(); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse form body"))
			return
		}

		callback, err := paytec.FromForm(r.PostForm)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "extract paytec fields"))
			return
		}

		if callback.Sign == "" {
			m.IncRejected(string(enums.GatewayPaytec))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paytec signature missing"))
			return
		}
		if !verifier.VerifyPaytec(callback.ReferenceSale, callback.Value, callback.StateCode, callback.Sign) {
			m.IncRejected(string(enums.GatewayPaytec))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "paytec signature mismatch"))
			return
		}

		event, err := callback.Event()
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "build paytec event"))
			return
		}

		outcome, err := svc.Process(ctx, event)
		if err != nil && outcome == enums.WebhookOutcomeFailed {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process paytec event"))
			return
		}
		if err != nil && logg != nil {
			logg.Error(logg.WithEventID(ctx, event.EventID), "paytec event processing incomplete", err)
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
