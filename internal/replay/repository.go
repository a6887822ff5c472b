package replay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Enqueue stores a verified event whose state application could not complete.
// The row becomes due immediately; backoff only kicks in after a failed
// replay attempt.
func (r *Repository) Enqueue(ctx context.Context, event reconcile.GatewayEvent, reason string) error {
	row := &models.WebhookReplay{
		ID:            uuid.New(),
		Gateway:       event.Gateway,
		EventID:       event.EventID,
		Payload:       event.RawPayload,
		NextAttemptAt: time.Now().UTC(),
		LastError:     &reason,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// FetchDue returns pending replays whose next attempt time has passed,
// oldest first.
func (r *Repository) FetchDue(ctx context.Context, limit int) ([]models.WebhookReplay, error) {
	var rows []models.WebhookReplay
	err := r.db.WithContext(ctx).
		Where("completed_at IS NULL AND exhausted_at IS NULL AND next_attempt_at <= ?", time.Now().UTC()).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WebhookReplay{}).
		Where("id = ?", id).
		Updates(map[string]any{"completed_at": now}).Error
}

// Reschedule bumps the attempt counter and pushes the next attempt out.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, attemptCount int, nextAttemptAt time.Time, lastErr string) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookReplay{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count":   attemptCount,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastErr,
		}).Error
}

// MarkExhausted retires a replay that ran out of attempts or can never
// succeed. Exhausted rows stay in the table for operator inspection.
func (r *Repository) MarkExhausted(ctx context.Context, id uuid.UUID, attemptCount int, lastErr string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.WebhookReplay{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempt_count": attemptCount,
			"exhausted_at":  now,
			"last_error":    lastErr,
		}).Error
}
