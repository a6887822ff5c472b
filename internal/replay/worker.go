package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/multierr"

	"github.com/dcastano/pagosur-backend/internal/gateways/cardnet"
	"github.com/dcastano/pagosur-backend/internal/gateways/paytec"
	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/pkg/config"
	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
)

const jitterWindow = 250 * time.Millisecond

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type reconciler interface {
	Reapply(ctx context.Context, event reconcile.GatewayEvent) (enums.WebhookOutcome, error)
}

type WorkerParams struct {
	Repository *Repository
	Reconciler reconciler
	Lock       Lock
	Logger     *logger.Logger
	Metrics    *metrics.WebhookMetrics
	Config     config.ReplayConfig
}

// Worker drains the webhook replay queue: deliveries that were verified and
// ledgered but whose state application was deferred.
type Worker struct {
	repo    *Repository
	recon   reconciler
	lock    Lock
	logg    *logger.Logger
	metrics *metrics.WebhookMetrics
	cfg     config.ReplayConfig
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if params.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	cfg := params.Config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 30 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Worker{
		repo:    params.Repository,
		recon:   params.Reconciler,
		lock:    params.Lock,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     cfg,
	}, nil
}

// Run polls for due replays until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "replay worker context canceled")
			return ctx.Err()
		default:
		}

		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logg.Error(ctx, "replay batch error", err)
		}

		if err := w.sleep(ctx, withJitter(w.cfg.PollInterval)); err != nil {
			return err
		}
	}
}

// RunOnce processes a single due batch under the distributed lock. Losing the
// lock race is not an error; another replica owns this cycle.
func (w *Worker) RunOnce(ctx context.Context) error {
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire replay lock: %w", err)
		}
		if !acquired {
			return nil
		}
		defer func() {
			if err := w.lock.Release(ctx); err != nil {
				w.logg.Error(ctx, "release replay lock", err)
			}
		}()
	}

	rows, err := w.repo.FetchDue(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch due replays: %w", err)
	}

	var errs []error
	for _, row := range rows {
		if err := w.processRow(ctx, row); err != nil {
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

func (w *Worker) processRow(ctx context.Context, row models.WebhookReplay) error {
	logCtx := w.logg.WithGateway(ctx, string(row.Gateway))
	logCtx = w.logg.WithEventID(logCtx, row.EventID)

	event, err := decodeEvent(row)
	if err != nil {
		// The payload will never parse differently; retrying is pointless.
		w.metrics.IncReplay("exhausted")
		w.logg.Error(logCtx, "replay payload undecodable", err)
		return w.repo.MarkExhausted(ctx, row.ID, row.AttemptCount+1, err.Error())
	}

	outcome, reapplyErr := w.recon.Reapply(ctx, event)
	if reapplyErr == nil {
		w.metrics.IncReplay("completed")
		w.logg.Info(w.logg.WithField(logCtx, "outcome", string(outcome)), "replay completed")
		return w.repo.MarkCompleted(ctx, row.ID)
	}

	attempts := row.AttemptCount + 1
	if attempts >= w.cfg.MaxAttempts {
		w.metrics.IncReplay("exhausted")
		w.logg.Error(w.logg.WithField(logCtx, "attempt_count", attempts), "replay exhausted", reapplyErr)
		return w.repo.MarkExhausted(ctx, row.ID, attempts, reapplyErr.Error())
	}

	next := time.Now().UTC().Add(w.backoff(attempts))
	w.metrics.IncReplay("rescheduled")
	w.logg.Warn(w.logg.WithFields(logCtx, map[string]any{
		"attempt_count": attempts,
		"next_attempt":  next,
	}), "replay rescheduled")
	return w.repo.Reschedule(ctx, row.ID, attempts, next, reapplyErr.Error())
}

// backoff doubles per attempt from the base, capped at the configured max.
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	if d > w.cfg.MaxBackoff {
		return w.cfg.MaxBackoff
	}
	return d
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

// decodeEvent rebuilds the canonical event from the stored payload. The
// signature was verified at ingress, before the replay row existed.
func decodeEvent(row models.WebhookReplay) (reconcile.GatewayEvent, error) {
	switch row.Gateway {
	case enums.GatewayCardnet:
		return cardnet.Parse(row.Payload, "")
	case enums.GatewayPaytec:
		var cb paytec.Callback
		if err := json.Unmarshal(row.Payload, &cb); err != nil {
			return reconcile.GatewayEvent{}, fmt.Errorf("decode paytec replay payload: %w", err)
		}
		return cb.Event()
	default:
		return reconcile.GatewayEvent{}, fmt.Errorf("no replay decoder for gateway %q", row.Gateway)
	}
}
