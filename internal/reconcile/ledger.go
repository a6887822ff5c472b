package reconcile

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/dcastano/pagosur-backend/pkg/db"
	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// Ledger is the durable idempotency ledger and audit trail. Each verified
// delivery becomes exactly one webhook_events row; the unique
// (gateway, event_id) index is what turns at-least-once delivery into
// exactly-once effect.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordIfNew inserts the event as a single atomic operation. A unique
// violation means another delivery won the race; the stored row is returned
// with new=false so the caller can short-circuit to its recorded outcome.
func (l *Ledger) RecordIfNew(ctx context.Context, event GatewayEvent) (*models.WebhookEvent, bool, error) {
	row := &models.WebhookEvent{
		ID:             uuid.New(),
		Gateway:        event.Gateway,
		EventID:        event.EventID,
		Payload:        event.RawPayload,
		Signature:      event.Signature,
		SignatureValid: true,
		Outcome:        enums.WebhookOutcomeReceived,
	}
	err := l.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return row, true, nil
	}
	if !dbpkg.IsUniqueViolation(err, "ux_webhook_events_gateway_event") {
		return nil, false, err
	}

	existing, findErr := l.Find(ctx, event.Gateway, event.EventID)
	if findErr != nil {
		return nil, false, findErr
	}
	return existing, false, nil
}

// Find returns the stored record for a gateway event id.
func (l *Ledger) Find(ctx context.Context, gateway enums.Gateway, eventID string) (*models.WebhookEvent, error) {
	var row models.WebhookEvent
	err := l.db.WithContext(ctx).
		Where("gateway = ? AND event_id = ?", gateway, eventID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Finalize records the processing outcome and links the resolved transaction.
// The payload and signature columns stay immutable.
func (l *Ledger) Finalize(ctx context.Context, id uuid.UUID, outcome enums.WebhookOutcome, anomaly *string, transactionID *uuid.UUID) error {
	updates := map[string]any{"outcome": outcome}
	if anomaly != nil {
		updates["anomaly"] = *anomaly
	}
	if transactionID != nil {
		updates["transaction_id"] = *transactionID
	}
	return l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CountByOutcome returns how many ledger rows resolved to the given outcome
// for one gateway event id. Used by operational tooling and tests.
func (l *Ledger) CountByOutcome(ctx context.Context, gateway enums.Gateway, outcome enums.WebhookOutcome) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("gateway = ? AND outcome = ?", gateway, outcome).
		Count(&count).Error
	return count, err
}
