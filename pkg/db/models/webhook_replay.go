package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// WebhookReplay queues a verified event whose state application could not complete
// (order lock budget exceeded, store outage) for deferred re-processing.
type WebhookReplay struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Gateway       enums.Gateway   `gorm:"column:gateway;type:gateway;not null"`
	EventID       string          `gorm:"column:event_id;not null;index"`
	Payload       json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount  int             `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt time.Time       `gorm:"column:next_attempt_at;not null;index"`
	LastError     *string         `gorm:"column:last_error"`
	CompletedAt   *time.Time      `gorm:"column:completed_at"`
	ExhaustedAt   *time.Time      `gorm:"column:exhausted_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
