package tracking

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	pkgerrors "github.com/dcastano/pagosur-backend/pkg/errors"
)

func setupTrackingDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:tracking_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  reference TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'COP',
  subtotal_cents INTEGER NOT NULL,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  shipping_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  confirmed_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	transactions := `
CREATE TABLE IF NOT EXISTS payment_transactions (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  gateway TEXT NOT NULL,
  gateway_transaction_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  raw_response TEXT,
  processed_at DATETIME,
  confirmed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(orders).Error)
	require.NoError(t, db.Exec(transactions).Error)
	return db
}

func seedOrder(t *testing.T, db *gorm.DB, reference string, status enums.OrderStatus, txnStatuses ...enums.PaymentStatus) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		Reference:     reference,
		BuyerID:       uuid.New(),
		SubtotalCents: 10000,
		TotalCents:    10000,
		Status:        status,
	}
	require.NoError(t, db.Create(order).Error)
	for _, st := range txnStatuses {
		txn := &models.PaymentTransaction{
			ID:                   uuid.New(),
			OrderID:              order.ID,
			Gateway:              enums.GatewayCardnet,
			GatewayTransactionID: uuid.NewString(),
			AmountCents:          10000,
			Status:               st,
		}
		require.NoError(t, db.Create(txn).Error)
	}
	return order
}

func TestLookup_ReturnsCoarseView(t *testing.T) {
	db := setupTrackingDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	seedOrder(t, db, "ORD-2001", enums.OrderStatusConfirmed, enums.PaymentStatusApproved)

	view, err := svc.Lookup(context.Background(), "ORD-2001")
	require.NoError(t, err)
	assert.Equal(t, "ORD-2001", view.Reference)
	assert.Equal(t, enums.OrderStatusConfirmed, view.Status)
	assert.Equal(t, PaymentStatePaid, view.Payment)
}

func TestLookup_NotFound(t *testing.T) {
	db := setupTrackingDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)

	_, err = svc.Lookup(context.Background(), "ORD-9999")
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestPaymentState(t *testing.T) {
	cases := []struct {
		name     string
		statuses []enums.PaymentStatus
		want     PaymentState
	}{
		{"no transactions", nil, PaymentStatePending},
		{"declined only", []enums.PaymentStatus{enums.PaymentStatusDeclined}, PaymentStateFailed},
		{"declined then approved", []enums.PaymentStatus{enums.PaymentStatusDeclined, enums.PaymentStatusApproved}, PaymentStatePaid},
		{"approved then voided", []enums.PaymentStatus{enums.PaymentStatusApproved, enums.PaymentStatusVoided}, PaymentStateRefunded},
		{"pending attempt", []enums.PaymentStatus{enums.PaymentStatusPending}, PaymentStatePending},
		{"error then pending retry", []enums.PaymentStatus{enums.PaymentStatusError, enums.PaymentStatusPending}, PaymentStateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := &models.Order{}
			for _, st := range tc.statuses {
				order.Transactions = append(order.Transactions, models.PaymentTransaction{Status: st})
			}
			assert.Equal(t, tc.want, paymentState(order))
		})
	}
}
