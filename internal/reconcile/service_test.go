package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dcastano/pagosur-backend/pkg/config"
	"github.com/dcastano/pagosur-backend/pkg/db/models"
	"github.com/dcastano/pagosur-backend/pkg/enums"
	"github.com/dcastano/pagosur-backend/pkg/outbox"
)

func setupReconcileDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	// A single connection makes concurrent transactions serialize the way
	// Postgres row locks would.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

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
	transactionsIdx := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_payment_transactions_gateway_tx
  ON payment_transactions (gateway, gateway_transaction_id);`
	events := `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  gateway TEXT NOT NULL,
  event_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  signature TEXT NOT NULL,
  signature_valid INTEGER NOT NULL,
  outcome TEXT NOT NULL DEFAULT 'received',
  anomaly TEXT,
  transaction_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	eventsIdx := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_gateway_event
  ON webhook_events (gateway, event_id);`
	outboxEvents := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	for _, stmt := range []string{orders, transactions, transactionsIdx, events, eventsIdx, outboxEvents} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingReplayQueue struct {
	mu      sync.Mutex
	entries []string
}

func (q *recordingReplayQueue) Enqueue(_ context.Context, event GatewayEvent, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, event.EventID+": "+reason)
	return nil
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *recordingReplayQueue) {
	t.Helper()

	replays := &recordingReplayQueue{}
	svc, err := NewService(ServiceParams{
		Ledger:            NewLedger(db),
		Repo:              NewRepository(db),
		TransactionRunner: &gormTxRunner{db: db},
		Replays:           replays,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		Config: config.ReconcileConfig{
			LockTimeout:     time.Second,
			HandlerBudget:   5 * time.Second,
			AmountTolerance: 0,
		},
	})
	require.NoError(t, err)
	return svc, replays
}

func createTestOrder(t *testing.T, db *gorm.DB, reference string, totalCents int64) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		Reference:     reference,
		BuyerID:       uuid.New(),
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		Status:        enums.OrderStatusPending,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func cardnetEvent(eventID, gatewayTxID, reference string, amountCents int64, status string) GatewayEvent {
	payload, _ := json.Marshal(map[string]any{
		"event":           eventID,
		"status":          status,
		"amount_in_cents": amountCents,
	})
	return GatewayEvent{
		Gateway:              enums.GatewayCardnet,
		EventID:              eventID,
		GatewayTransactionID: gatewayTxID,
		Reference:            reference,
		AmountCents:          amountCents,
		RawStatus:            status,
		Signature:            "sig",
		RawPayload:           payload,
	}
}

func TestProcess_AppliesApprovedEvent(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1001", 250000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-1", "cn-tx-1", "ORD-1001", 250000, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	var txn models.PaymentTransaction
	require.NoError(t, db.First(&txn, "gateway_transaction_id = ?", "cn-tx-1").Error)
	assert.Equal(t, enums.PaymentStatusApproved, txn.Status)
	assert.Equal(t, int64(250000), txn.AmountCents)
	require.NotNil(t, txn.ConfirmedAt)

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-1").Error)
	assert.Equal(t, enums.WebhookOutcomeApplied, record.Outcome)
	require.NotNil(t, record.TransactionID)
	assert.Equal(t, txn.ID, *record.TransactionID)

	var outboxCount int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(2), outboxCount) // payment.approved + order.confirmed
}

func TestProcess_DuplicateDeliveryIsNotReapplied(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	createTestOrder(t, db, "ORD-1002", 99900)

	event := cardnetEvent("evt-dup", "cn-tx-2", "ORD-1002", 99900, "APPROVED")

	first, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, first)

	second, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeDuplicate, second)

	var txnCount int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	var eventCount int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount)
}

func TestProcess_OrderNotFound(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-miss", "cn-tx-3", "ORD-4040", 1000, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeOrderNotFound, outcome)

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-miss").Error)
	assert.Equal(t, enums.WebhookOutcomeOrderNotFound, record.Outcome)
	require.NotNil(t, record.Anomaly)
	assert.Contains(t, *record.Anomaly, "ORD-4040")
	assert.Nil(t, record.TransactionID)
}

func TestProcess_MalformedReferenceIsUnresolvable(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-badref", "cn-tx-4", "'; DROP TABLE orders;--", 1000, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeOrderNotFound, outcome)
}

func TestProcess_AmountMismatchQuarantines(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1003", 500000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-short", "cn-tx-5", "ORD-1003", 499999, "APPROVED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeAmountMismatch, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, got.Status, "short-paid order must not confirm")

	var txn models.PaymentTransaction
	require.NoError(t, db.First(&txn, "gateway_transaction_id = ?", "cn-tx-5").Error)
	assert.Equal(t, enums.PaymentStatusError, txn.Status)

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-short").Error)
	require.NotNil(t, record.Anomaly)
	assert.Contains(t, *record.Anomaly, "499999")
}

func TestProcess_LateDeclineDoesNotDowngrade(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1004", 120000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-ok", "cn-tx-6", "ORD-1004", 120000, "APPROVED"))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, outcome)

	// Same gateway transaction, new event id, out-of-order decline.
	outcome, err = svc.Process(context.Background(), cardnetEvent("evt-late", "cn-tx-6", "ORD-1004", 120000, "DECLINED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeSuperseded, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)

	var txn models.PaymentTransaction
	require.NoError(t, db.First(&txn, "gateway_transaction_id = ?", "cn-tx-6").Error)
	assert.Equal(t, enums.PaymentStatusApproved, txn.Status)
}

func TestProcess_VoidCancelsConfirmedOrder(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1005", 75000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-pay", "cn-tx-7", "ORD-1005", 75000, "APPROVED"))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, outcome)

	outcome, err = svc.Process(context.Background(), cardnetEvent("evt-void", "cn-tx-7", "ORD-1005", 75000, "VOIDED"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	var txn models.PaymentTransaction
	require.NoError(t, db.First(&txn, "gateway_transaction_id = ?", "cn-tx-7").Error)
	assert.Equal(t, enums.PaymentStatusVoided, txn.Status)
}

func TestProcess_UnmappedStatusFailsSafe(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1006", 30000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-odd", "cn-tx-8", "ORD-1006", 30000, "SETTLEMENT_PHASE_2"))
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, got.Status)

	var txn models.PaymentTransaction
	require.NoError(t, db.First(&txn, "gateway_transaction_id = ?", "cn-tx-8").Error)
	assert.Equal(t, enums.PaymentStatusError, txn.Status)

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-odd").Error)
	require.NotNil(t, record.Anomaly)
	assert.Contains(t, *record.Anomaly, "SETTLEMENT_PHASE_2")
}

func TestProcess_PendingThenApproved(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1007", 48000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-p1", "cn-tx-9", "ORD-1007", 48000, "PENDING"))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	require.Equal(t, enums.OrderStatusPending, got.Status)

	outcome, err = svc.Process(context.Background(), cardnetEvent("evt-p2", "cn-tx-9", "ORD-1007", 48000, "APPROVED"))
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, outcome)

	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

func TestProcess_RedeliveryReclaimsCrashedAttempt(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-9001", 50000)

	// A first attempt that died between the ledger insert and the apply
	// leaves a received row behind and nothing else.
	event := cardnetEvent("evt-crash", "cn-tx-20", "ORD-9001", 50000, "APPROVED")
	record, isNew, err := NewLedger(db).RecordIfNew(context.Background(), event)
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, db.Model(&models.WebhookEvent{}).
		Where("id = ?", record.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Minute)).Error)

	outcome, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome, "redelivery must recover the crashed attempt")

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)

	var stored models.WebhookEvent
	require.NoError(t, db.First(&stored, "id = ?", record.ID).Error)
	assert.Equal(t, enums.WebhookOutcomeApplied, stored.Outcome)
	require.NotNil(t, stored.TransactionID)

	var eventCount int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), eventCount, "reclaim reuses the existing ledger row")
}

func TestProcess_FailedRowIsRetriedOnRedelivery(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-9002", 64000)

	event := cardnetEvent("evt-retryme", "cn-tx-21", "ORD-9002", 64000, "APPROVED")
	record, _, err := NewLedger(db).RecordIfNew(context.Background(), event)
	require.NoError(t, err)
	require.NoError(t, NewLedger(db).Finalize(context.Background(), record.ID, enums.WebhookOutcomeFailed, strPtr("store unavailable"), nil))

	outcome, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

func TestProcess_FreshUnsettledRowIsDuplicate(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-9003", 32000)

	// A received row inside the handler budget may belong to an attempt
	// still in flight and must not be applied a second time.
	event := cardnetEvent("evt-inflight", "cn-tx-22", "ORD-9003", 32000, "APPROVED")
	_, isNew, err := NewLedger(db).RecordIfNew(context.Background(), event)
	require.NoError(t, err)
	require.True(t, isNew)

	outcome, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeDuplicate, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

type lockTimeoutTxRunner struct{}

func (lockTimeoutTxRunner) WithTx(context.Context, func(tx *gorm.DB) error) error {
	return &pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"}
}

func TestProcess_LockTimeoutDefersAndEnqueuesReplay(t *testing.T) {
	db := setupReconcileDB(t)

	replays := &recordingReplayQueue{}
	svc, err := NewService(ServiceParams{
		Ledger:            NewLedger(db),
		Repo:              NewRepository(db),
		TransactionRunner: lockTimeoutTxRunner{},
		Replays:           replays,
		Config: config.ReconcileConfig{
			LockTimeout:   time.Second,
			HandlerBudget: 5 * time.Second,
		},
	})
	require.NoError(t, err)
	createTestOrder(t, db, "ORD-9004", 81000)

	outcome, err := svc.Process(context.Background(), cardnetEvent("evt-locked", "cn-tx-23", "ORD-9004", 81000, "APPROVED"))
	require.NoError(t, err, "deferred deliveries are acknowledged")
	assert.Equal(t, enums.WebhookOutcomeDeferred, outcome)

	require.Len(t, replays.entries, 1)
	assert.Contains(t, replays.entries[0], "evt-locked")
	assert.Contains(t, replays.entries[0], "lock")

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-locked").Error)
	assert.Equal(t, enums.WebhookOutcomeDeferred, record.Outcome)
	require.NotNil(t, record.Anomaly)
}

func TestReapply_UnsettledRowIsApplied(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-9005", 47000)

	event := cardnetEvent("evt-replayed", "cn-tx-24", "ORD-9005", 47000, "APPROVED")
	_, isNew, err := NewLedger(db).RecordIfNew(context.Background(), event)
	require.NoError(t, err)
	require.True(t, isNew)

	outcome, err := svc.Reapply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)

	var record models.WebhookEvent
	require.NoError(t, db.First(&record, "event_id = ?", "evt-replayed").Error)
	assert.Equal(t, enums.WebhookOutcomeApplied, record.Outcome)
	require.NotNil(t, record.TransactionID)
}

func TestReapply_SettledRowIsUntouched(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	createTestOrder(t, db, "ORD-9006", 53000)

	event := cardnetEvent("evt-settled", "cn-tx-25", "ORD-9006", 53000, "APPROVED")
	outcome, err := svc.Process(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var outboxBefore int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&outboxBefore).Error)

	outcome, err = svc.Reapply(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeApplied, outcome)

	var outboxAfter int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&outboxAfter).Error)
	assert.Equal(t, outboxBefore, outboxAfter, "settled rows produce no new side effects")

	var txnCount int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)
}

func TestProcess_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1008", 180000)

	const workers = 12
	event := cardnetEvent("evt-burst", "cn-tx-10", "ORD-1008", 180000, "APPROVED")

	outcomes := make([]enums.WebhookOutcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Process(context.Background(), event)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case enums.WebhookOutcomeApplied:
			applied++
		case enums.WebhookOutcomeDuplicate:
		default:
			t.Fatalf("unexpected outcome %q", outcomes[i])
		}
	}
	assert.Equal(t, 1, applied, "exactly one delivery should apply")

	var txnCount int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	appliedRows, err := NewLedger(db).CountByOutcome(context.Background(), enums.GatewayCardnet, enums.WebhookOutcomeApplied)
	require.NoError(t, err)
	assert.Equal(t, int64(1), appliedRows)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
}

func TestProcess_ConcurrentDistinctEventsSameOrder(t *testing.T) {
	db := setupReconcileDB(t)
	svc, _ := newTestService(t, db)
	order := createTestOrder(t, db, "ORD-1009", 90000)

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := cardnetEvent(fmt.Sprintf("evt-multi-%d", i), "cn-tx-11", "ORD-1009", 90000, "APPROVED")
			_, errs[i] = svc.Process(context.Background(), ev)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}

	// All events share one gateway transaction; the unique index must have
	// collapsed them onto a single row.
	var txnCount int64
	require.NoError(t, db.Model(&models.PaymentTransaction{}).Count(&txnCount).Error)
	assert.Equal(t, int64(1), txnCount)

	var got models.Order
	require.NoError(t, db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	var eventCount int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(workers), eventCount)
}
