// Package cardnet parses webhook notifications from the primary card/PSE
// processor into the engine's canonical event shape.
package cardnet

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/pkg/enums"
)

var validate = validator.New()

// WebhookPayload is cardnet's JSON envelope. Amounts arrive in integer minor
// units; statuses are upper-case strings.
type WebhookPayload struct {
	ID    string `json:"id"`
	Event string `json:"event" validate:"required"`
	Data  struct {
		Transaction Transaction `json:"transaction" validate:"required"`
	} `json:"data"`
	SentAt string `json:"sent_at"`
}

type Transaction struct {
	ID            string `json:"id" validate:"required"`
	Reference     string `json:"reference" validate:"required"`
	AmountInCents int64  `json:"amount_in_cents" validate:"gt=0"`
	Currency      string `json:"currency"`
	Status        string `json:"status" validate:"required"`
}

// Parse decodes and validates a raw cardnet webhook body into the canonical
// event. The signature has already been verified against the same raw bytes.
func Parse(body []byte, sig string) (reconcile.GatewayEvent, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return reconcile.GatewayEvent{}, fmt.Errorf("decode cardnet payload: %w", err)
	}
	if err := validate.Struct(&payload); err != nil {
		return reconcile.GatewayEvent{}, fmt.Errorf("validate cardnet payload: %w", err)
	}

	eventID := strings.TrimSpace(payload.ID)
	if eventID == "" {
		eventID = payload.Data.Transaction.ID
	}

	return reconcile.GatewayEvent{
		Gateway:              enums.GatewayCardnet,
		EventID:              eventID,
		GatewayTransactionID: payload.Data.Transaction.ID,
		Reference:            strings.TrimSpace(payload.Data.Transaction.Reference),
		AmountCents:          payload.Data.Transaction.AmountInCents,
		RawStatus:            payload.Data.Transaction.Status,
		Signature:            sig,
		RawPayload:           json.RawMessage(body),
	}, nil
}
