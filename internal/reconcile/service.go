package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/internal/statusmap"
	"github.com/dcastano/pagosur-backend/pkg/config"
	dbpkg "github.com/dcastano/pagosur-backend/pkg/db"
	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
	"github.com/dcastano/pagosur-backend/pkg/logger"
	"github.com/dcastano/pagosur-backend/pkg/metrics"
	"github.com/dcastano/pagosur-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, gateway enums.Gateway, eventID string) (bool, error)
}

type replayQueue interface {
	Enqueue(ctx context.Context, event GatewayEvent, reason string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Ledger            *Ledger
	Repo              *Repository
	TransactionRunner txRunner
	Guard             eventGuard
	Replays           replayQueue
	Outbox            outboxEmitter
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
	Config            config.ReconcileConfig
}

// Service is the reconciliation orchestrator. It turns one verified gateway
// event into at most one order/transaction state change, records the outcome
// on the ledger row, and defers work it could not complete.
type Service struct {
	ledger  *Ledger
	repo    *Repository
	tx      txRunner
	guard   eventGuard
	replays replayQueue
	outbox  outboxEmitter
	metrics *metrics.WebhookMetrics
	logg    *logger.Logger
	cfg     config.ReconcileConfig
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		ledger:  params.Ledger,
		repo:    params.Repo,
		tx:      params.TransactionRunner,
		guard:   params.Guard,
		replays: params.Replays,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		cfg:     params.Config,
	}, nil
}

// applyResult carries what the unit of work decided, out of the transaction
// closure, so the ledger row can be finalized after commit.
type applyResult struct {
	outcome       enums.WebhookOutcome
	anomaly       *string
	transactionID *uuid.UUID
}

// Process runs the reconciliation pipeline for one verified event. The
// returned outcome is always meaningful to the caller; the error is non-nil
// only when the delivery should be considered not durably handled.
func (s *Service) Process(ctx context.Context, event GatewayEvent) (enums.WebhookOutcome, error) {
	started := time.Now()
	if s.cfg.HandlerBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandlerBudget)
		defer cancel()
	}
	if s.logg != nil {
		ctx = s.logg.WithGateway(ctx, string(event.Gateway))
		ctx = s.logg.WithEventID(ctx, event.EventID)
		ctx = s.logg.WithOrderReference(ctx, event.Reference)
	}
	outcome, err := s.process(ctx, event)
	s.metrics.ObserveDuration(string(event.Gateway), time.Since(started))
	s.metrics.IncOutcome(string(event.Gateway), string(outcome))
	return outcome, err
}

func (s *Service) process(ctx context.Context, event GatewayEvent) (enums.WebhookOutcome, error) {
	// Redis fast path. Misses and redis outages both fall through to the
	// ledger, which is authoritative.
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.Gateway, event.EventID)
		if err == nil && seen {
			if stored, findErr := s.ledger.Find(ctx, event.Gateway, event.EventID); findErr == nil && !s.reprocessable(stored) {
				s.logDuplicate(ctx, stored.Outcome)
				return enums.WebhookOutcomeDuplicate, nil
			}
		} else if err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "idempotency fast path unavailable")
		}
	}

	record, isNew, err := s.ledger.RecordIfNew(ctx, event)
	if err != nil {
		// Nothing durable exists for this delivery yet; the gateway must
		// redeliver, so surface the failure.
		return enums.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if !isNew {
		if !s.reprocessable(record) {
			s.logDuplicate(ctx, record.Outcome)
			return enums.WebhookOutcomeDuplicate, nil
		}
		// A prior attempt inserted the row but never settled it and left no
		// replay row behind. The gateway's redelivery is the only recovery
		// path, so the state application runs again against the same row.
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "stored_outcome", string(record.Outcome)), "redelivery reclaims unsettled ledger row")
		}
	}

	result, applyErr := s.apply(ctx, event)
	switch {
	case applyErr == nil:
	case dbpkg.IsLockTimeout(applyErr):
		reason := fmt.Sprintf("order lock not acquired within %s", s.cfg.LockTimeout)
		result = applyResult{outcome: enums.WebhookOutcomeDeferred, anomaly: &reason}
		if s.replays != nil {
			if enqErr := s.replays.Enqueue(ctx, event, reason); enqErr != nil {
				result.outcome = enums.WebhookOutcomeFailed
				applyErr = enqErr
			} else {
				applyErr = nil
			}
		}
	default:
		msg := applyErr.Error()
		result = applyResult{outcome: enums.WebhookOutcomeFailed, anomaly: &msg}
		if s.replays != nil {
			if enqErr := s.replays.Enqueue(ctx, event, msg); enqErr == nil {
				result.outcome = enums.WebhookOutcomeDeferred
				applyErr = nil
			}
		}
	}

	if finErr := s.ledger.Finalize(ctx, record.ID, result.outcome, result.anomaly, result.transactionID); finErr != nil && s.logg != nil {
		s.logg.Error(ctx, "finalize ledger row", finErr)
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "outcome", string(result.outcome)), "webhook reconciled")
	}
	return result.outcome, applyErr
}

// Reapply re-runs the state application for an event that is already on the
// ledger, used by deferred-delivery replay. Settled events return their
// recorded outcome untouched; a returned error means the attempt should be
// rescheduled by the caller.
func (s *Service) Reapply(ctx context.Context, event GatewayEvent) (enums.WebhookOutcome, error) {
	if s.cfg.HandlerBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HandlerBudget)
		defer cancel()
	}
	record, err := s.ledger.Find(ctx, event.Gateway, event.EventID)
	if err != nil {
		return enums.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger row")
	}
	switch record.Outcome {
	case enums.WebhookOutcomeReceived, enums.WebhookOutcomeDeferred, enums.WebhookOutcomeFailed:
	default:
		return record.Outcome, nil
	}

	result, applyErr := s.apply(ctx, event)
	if applyErr != nil {
		return enums.WebhookOutcomeDeferred, applyErr
	}
	if finErr := s.ledger.Finalize(ctx, record.ID, result.outcome, result.anomaly, result.transactionID); finErr != nil {
		return enums.WebhookOutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, finErr, "finalize ledger row")
	}
	s.metrics.IncOutcome(string(event.Gateway), string(result.outcome))
	return result.outcome, nil
}

// apply is the unit of work: everything between taking the order lock and
// committing the state change happens inside one database transaction.
func (s *Service) apply(ctx context.Context, event GatewayEvent) (applyResult, error) {
	var result applyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.ApplyLockTimeout(ctx, s.cfg.LockTimeout); err != nil {
			return err
		}

		if !ValidReference(event.Reference) {
			result.outcome = enums.WebhookOutcomeOrderNotFound
			result.anomaly = strPtr(fmt.Sprintf("malformed order reference %q", event.Reference))
			return nil
		}
		order, err := repo.FindOrderForUpdate(ctx, event.Reference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result.outcome = enums.WebhookOutcomeOrderNotFound
				result.anomaly = strPtr(fmt.Sprintf("no order for reference %q", event.Reference))
				return nil
			}
			return err
		}

		txn, created, err := s.resolveTransaction(ctx, repo, order, event)
		if err != nil {
			return err
		}
		result.transactionID = &txn.ID

		if diff := event.AmountCents - order.TotalCents; diff > s.cfg.AmountTolerance || diff < -s.cfg.AmountTolerance {
			result.outcome = enums.WebhookOutcomeAmountMismatch
			result.anomaly = strPtr(fmt.Sprintf("amount %d does not match order total %d", event.AmountCents, order.TotalCents))
			if superseded(txn.Status, enums.PaymentStatusError) {
				return nil
			}
			return s.markTransaction(ctx, repo, txn, enums.PaymentStatusError, event)
		}

		pair := statusmap.Map(event.Gateway, event.RawStatus)
		if !statusmap.Known(event.Gateway, event.RawStatus) {
			result.anomaly = strPtr(fmt.Sprintf("unmapped gateway status %q", event.RawStatus))
		}

		if superseded(txn.Status, pair.Payment) {
			result.outcome = enums.WebhookOutcomeSuperseded
			if result.anomaly == nil {
				result.anomaly = strPtr(fmt.Sprintf("status %q arrived after transaction was %s", event.RawStatus, txn.Status))
			}
			return nil
		}

		statusChanged := created || txn.Status != pair.Payment
		if err := s.markTransaction(ctx, repo, txn, pair.Payment, event); err != nil {
			return err
		}
		if statusChanged {
			if err := s.emitPaymentEvent(ctx, tx, order, txn); err != nil {
				return err
			}
		}

		if orderTransitionAllowed(order.Status, pair.Order) {
			if err := repo.UpdateOrderStatus(ctx, order, pair.Order); err != nil {
				return err
			}
			if err := s.emitOrderEvent(ctx, tx, order); err != nil {
				return err
			}
		}

		result.outcome = enums.WebhookOutcomeApplied
		return nil
	})
	return result, err
}

// resolveTransaction finds the transaction row for this gateway identity or
// creates it. A concurrent insert losing the unique-index race falls back to
// reading the winner's row.
func (s *Service) resolveTransaction(ctx context.Context, repo *Repository, order *models.Order, event GatewayEvent) (*models.PaymentTransaction, bool, error) {
	txn, err := repo.FindTransaction(ctx, event.Gateway, event.GatewayTransactionID)
	if err == nil {
		return txn, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	txn = &models.PaymentTransaction{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		Gateway:              event.Gateway,
		GatewayTransactionID: event.GatewayTransactionID,
		AmountCents:          event.AmountCents,
		Status:               enums.PaymentStatusPending,
		RawResponse:          event.RawPayload,
	}
	if createErr := repo.CreateTransaction(ctx, txn); createErr != nil {
		if dbpkg.IsUniqueViolation(createErr, "ux_payment_transactions_gateway_tx") {
			existing, findErr := repo.FindTransaction(ctx, event.Gateway, event.GatewayTransactionID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, createErr
	}
	return txn, true, nil
}

func (s *Service) markTransaction(ctx context.Context, repo *Repository, txn *models.PaymentTransaction, status enums.PaymentStatus, event GatewayEvent) error {
	now := time.Now().UTC()
	txn.Status = status
	txn.RawResponse = event.RawPayload
	txn.ProcessedAt = &now
	if status == enums.PaymentStatusApproved && txn.ConfirmedAt == nil {
		txn.ConfirmedAt = &now
	}
	return repo.UpdateTransaction(ctx, txn)
}

func (s *Service) emitPaymentEvent(ctx context.Context, tx *gorm.DB, order *models.Order, txn *models.PaymentTransaction) error {
	if s.outbox == nil {
		return nil
	}
	var eventType enums.OutboxEventType
	switch txn.Status {
	case enums.PaymentStatusApproved:
		eventType = enums.EventPaymentApproved
	case enums.PaymentStatusDeclined:
		eventType = enums.EventPaymentDeclined
	case enums.PaymentStatusVoided:
		eventType = enums.EventPaymentVoided
	default:
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Version:       1,
		Data: map[string]any{
			"order_id":        order.ID,
			"order_reference": order.Reference,
			"gateway":         txn.Gateway,
			"status":          txn.Status,
			"amount_cents":    txn.AmountCents,
		},
	})
}

func (s *Service) emitOrderEvent(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if s.outbox == nil {
		return nil
	}
	var eventType enums.OutboxEventType
	switch order.Status {
	case enums.OrderStatusConfirmed:
		eventType = enums.EventOrderConfirmed
	case enums.OrderStatusCancelled:
		eventType = enums.EventOrderCancelled
	default:
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: map[string]any{
			"reference":   order.Reference,
			"status":      order.Status,
			"total_cents": order.TotalCents,
		},
	})
}

// reprocessable reports whether a stored ledger row marks a delivery whose
// state application never completed and has no scheduled recovery. failed
// rows qualify outright: they only exist when both the apply and the replay
// enqueue went wrong. received rows qualify once they outlive the handler
// budget, since a younger row may belong to an attempt still in flight.
// deferred rows do not: their replay row already schedules the retry.
func (s *Service) reprocessable(record *models.WebhookEvent) bool {
	switch record.Outcome {
	case enums.WebhookOutcomeFailed:
		return true
	case enums.WebhookOutcomeReceived:
		grace := s.cfg.HandlerBudget
		if grace <= 0 {
			grace = time.Minute
		}
		return time.Since(record.UpdatedAt) > grace
	default:
		return false
	}
}

func (s *Service) logDuplicate(ctx context.Context, stored enums.WebhookOutcome) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithField(ctx, "first_outcome", string(stored)), "duplicate delivery ignored")
}

// superseded reports whether an incoming payment status must not overwrite
// the transaction's current status. Approval is sticky: once a transaction is
// approved only a void can move it. Voided is terminal outright.
func superseded(current, incoming enums.PaymentStatus) bool {
	switch current {
	case enums.PaymentStatusVoided:
		return incoming != enums.PaymentStatusVoided
	case enums.PaymentStatusApproved:
		return incoming != enums.PaymentStatusApproved && incoming != enums.PaymentStatusVoided
	default:
		return false
	}
}

// orderTransitionAllowed gates order status changes driven by payment events.
// Payments only ever confirm a pending order or cancel a not-yet-terminal
// one; fulfilment states move through other channels.
func orderTransitionAllowed(current, next enums.OrderStatus) bool {
	if current == next {
		return false
	}
	switch next {
	case enums.OrderStatusConfirmed:
		return current == enums.OrderStatusPending
	case enums.OrderStatusCancelled:
		return !current.IsTerminal()
	default:
		return false
	}
}

func strPtr(s string) *string {
	return &s
}
