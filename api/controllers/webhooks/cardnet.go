package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/dcastano/pagosur-backend/api/responses"
	"github.com/dcastano/pagosur-backend/internal/gateways/cardnet"
	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
)

// ReconcileService applies one verified gateway event to order and
// transaction state.
type ReconcileService interface {
	Process(ctx context.Context, event reconcile.GatewayEvent) (enums.WebhookOutcome, error)
}

type cardnetVerifier interface {
	VerifyCardnet(body []byte, header string) bool
}

const cardnetSignatureHeader = "X-Cardnet-Signature"

// CardnetWebhook ingests payment notifications from the primary card/PSE
// processor. Unsigned or tampered requests get 401 so the gateway retries
// through an operator alert; everything after a valid signature is
// acknowledged with 200 because the event is durably ledgered and any
// incomplete application will be replayed.
func CardnetWebhook(svc ReconcileService, verifier cardnetVerifier, maxBodyBytes int64, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
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
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(cardnetSignatureHeader)
		if sigHeader == "" {
			m.IncRejected(string(enums.GatewayCardnet))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cardnet signature missing"))
			return
		}
		if !verifier.VerifyCardnet(payload, sigHeader) {
			m.IncRejected(string(enums.GatewayCardnet))
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cardnet signature mismatch"))
			return
		}

		event, err := cardnet.Parse(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse cardnet payload"))
			return
		}

		outcome, err := svc.Process(ctx, event)
		if err != nil && outcome == enums.WebhookOutcomeFailed {
			// Nothing durable was recorded; a non-2xx tells the gateway to
			// redeliver.
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "process cardnet event"))
			return
		}
		if err != nil && logg != nil {
			logg.Error(logg.WithEventID(ctx, event.EventID), "cardnet event processing incomplete", err)
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
