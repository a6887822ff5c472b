package reconcile

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

func TestLedger_RecordIfNew(t *testing.T) {
	db := setupReconcileDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	event := GatewayEvent{
		Gateway:    enums.GatewayPaytec,
		EventID:    "pt-900~4",
		Signature:  "digest",
		RawPayload: json.RawMessage(`{"reference_sale":"ORD-77"}`),
	}

	first, isNew, err := ledger.RecordIfNew(ctx, event)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, enums.WebhookOutcomeReceived, first.Outcome)
	assert.True(t, first.SignatureValid)

	second, isNew, err := ledger.RecordIfNew(ctx, event)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, second.ID)
}

func TestLedger_SameEventIDDifferentGateway(t *testing.T) {
	db := setupReconcileDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	payload := json.RawMessage(`{}`)
	_, isNew, err := ledger.RecordIfNew(ctx, GatewayEvent{Gateway: enums.GatewayCardnet, EventID: "evt-9", Signature: "a", RawPayload: payload})
	require.NoError(t, err)
	require.True(t, isNew)

	// Event ids are scoped per gateway.
	_, isNew, err = ledger.RecordIfNew(ctx, GatewayEvent{Gateway: enums.GatewayPaytec, EventID: "evt-9", Signature: "b", RawPayload: payload})
	require.NoError(t, err)
	assert.True(t, isNew)
}

func TestLedger_Finalize(t *testing.T) {
	db := setupReconcileDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	record, _, err := ledger.RecordIfNew(ctx, GatewayEvent{
		Gateway:    enums.GatewayCardnet,
		EventID:    "evt-fin",
		Signature:  "sig",
		RawPayload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	txID := uuid.New()
	anomaly := "amount 90 does not match order total 100"
	require.NoError(t, ledger.Finalize(ctx, record.ID, enums.WebhookOutcomeAmountMismatch, &anomaly, &txID))

	stored, err := ledger.Find(ctx, enums.GatewayCardnet, "evt-fin")
	require.NoError(t, err)
	assert.Equal(t, enums.WebhookOutcomeAmountMismatch, stored.Outcome)
	require.NotNil(t, stored.Anomaly)
	assert.Equal(t, anomaly, *stored.Anomaly)
	require.NotNil(t, stored.TransactionID)
	assert.Equal(t, txID, *stored.TransactionID)
}
