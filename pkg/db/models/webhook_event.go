package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// WebhookEvent is the idempotency ledger and audit record for one gateway delivery.
// (gateway, event_id) is unique; the row is created at first sight of an event and
// only its outcome, anomaly note and transaction link change afterwards.
type WebhookEvent struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway        enums.Gateway        `gorm:"column:gateway;type:gateway;not null;uniqueIndex:ux_webhook_events_gateway_event"`
	EventID        string               `gorm:"column:event_id;not null;uniqueIndex:ux_webhook_events_gateway_event"`
	Payload        json.RawMessage      `gorm:"column:payload;type:jsonb;not null"`
	Signature      string               `gorm:"column:signature;not null"`
	SignatureValid bool                 `gorm:"column:signature_valid;not null"`
	Outcome        enums.WebhookOutcome `gorm:"column:outcome;type:webhook_outcome;not null;default:'received'"`
	Anomaly        *string              `gorm:"column:anomaly"`
	TransactionID  *uuid.UUID           `gorm:"column:transaction_id;type:uuid"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
