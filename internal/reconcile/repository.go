package reconcile

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// Repository holds the row-level reads and writes the orchestrator performs
// inside its unit of work. All methods expect to run on the transaction
// handle passed to WithTx.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// ApplyLockTimeout bounds how long FOR UPDATE waits inside the current
// transaction. SET LOCAL scopes it to the transaction, so a deferred
// delivery never poisons the session. No-op outside Postgres (test
// databases serialize writers instead).
func (r *Repository) ApplyLockTimeout(ctx context.Context, timeout time.Duration) error {
	if r.db.Dialector.Name() != "postgres" {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	return r.db.WithContext(ctx).Exec(stmt).Error
}

// FindOrderForUpdate resolves an order by its merchant reference and takes a
// row lock on it. Concurrent deliveries for the same order serialize here.
func (r *Repository) FindOrderForUpdate(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindTransaction looks up a payment transaction by its gateway identity.
func (r *Repository) FindTransaction(ctx context.Context, gateway enums.Gateway, gatewayTxID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND gateway_transaction_id = ?", gateway, gatewayTxID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// CreateTransaction inserts a new payment transaction row.
func (r *Repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// UpdateTransaction persists status and bookkeeping fields on an existing
// transaction row.
func (r *Repository) UpdateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{
			"status":       txn.Status,
			"raw_response": txn.RawResponse,
			"processed_at": txn.ProcessedAt,
			"confirmed_at": txn.ConfirmedAt,
		}).Error
}

// UpdateOrderStatus moves an order to the given status and stamps the
// confirmation or cancellation time.
func (r *Repository) UpdateOrderStatus(ctx context.Context, order *models.Order, status enums.OrderStatus) error {
	now := time.Now().UTC()
	updates := map[string]any{"status": status}
	switch status {
	case enums.OrderStatusConfirmed:
		updates["confirmed_at"] = now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", order.ID).
		Updates(updates).Error
	if err != nil {
		return err
	}
	order.Status = status
	return nil
}
