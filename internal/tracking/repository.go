package tracking

import (
	"context"

	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindOrderByReference loads an order and its transactions without taking
// any lock. Tracking reads tolerate slightly stale state.
func (r *Repository) FindOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Transactions").
		Where("reference = ?", reference).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}
