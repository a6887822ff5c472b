package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dcastano/pagosur-backend/api/controllers"
	webhookcontrollers "github.com/dcastano/pagosur-backend/api/controllers/webhooks"
	"github.com/dcastano/pagosur-backend/api/middleware"
	"github.com/dcastano/pagosur-backend/internal/signature"
	"github.com/dcastano/pagosur-backend/internal/tracking"
	"github.com/dcastano/pagosur-backend/pkg/config"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
)

type RouterParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DBPinger         controllers.Pinger
	RedisPinger      controllers.Pinger
	ReconcileService webhookcontrollers.ReconcileService
	Verifier         *signature.Verifier
	TrackingService  *tracking.Service
	Metrics          *metrics.WebhookMetrics
	MetricsGatherer  prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(),
	)

	maxBody := int64(p.Config.Gateways.RawPayloadMaxKiB) * 1024

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.DBPinger, p.RedisPinger))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/cardnet", webhookcontrollers.CardnetWebhook(p.ReconcileService, p.Verifier, maxBody, p.Metrics, p.Logger))
		r.Post("/paytec", webhookcontrollers.PaytecWebhook(p.ReconcileService, p.Verifier, maxBody, p.Metrics, p.Logger))
	})

	r.Route("/api/v1/tracking", func(r chi.Router) {
		r.Get("/{reference}", controllers.TrackOrder(p.TrackingService, p.Logger))
	})

	if p.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	return r
}
