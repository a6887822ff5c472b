package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// PaymentTransaction is one attempt to pay for an order through one gateway.
// (gateway, gateway_transaction_id) is unique so a redelivered webhook can never
// create a second row for the same gateway transaction.
type PaymentTransaction struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Gateway              enums.Gateway       `gorm:"column:gateway;type:gateway;not null;uniqueIndex:ux_payment_transactions_gateway_tx"`
	GatewayTransactionID string              `gorm:"column:gateway_transaction_id;not null;uniqueIndex:ux_payment_transactions_gateway_tx"`
	AmountCents          int64               `gorm:"column:amount_cents;not null"`
	Status               enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	RawResponse          json.RawMessage     `gorm:"column:raw_response;type:jsonb"`
	ProcessedAt          *time.Time          `gorm:"column:processed_at"`
	ConfirmedAt          *time.Time          `gorm:"column:confirmed_at"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
