// Package paytec parses the secondary processor's form-encoded callbacks into
// the engine's canonical event shape.
package paytec

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dcastano/pagosur-backend/internal/reconcile"
	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// Callback carries the signed subset of paytec's form fields.
type Callback struct {
	ReferenceSale string `json:"reference_sale"`
	TransactionID string `json:"transaction_id"`
	StateCode     string `json:"state_code"`
	Value         string `json:"value"`
	Currency      string `json:"currency"`
	Sign          string `json:"sign"`
}

// FromForm extracts the callback fields from a parsed form body.
func FromForm(form url.Values) (Callback, error) {
	cb := Callback{
		ReferenceSale: strings.TrimSpace(form.Get("reference_sale")),
		TransactionID: strings.TrimSpace(form.Get("transaction_id")),
		StateCode:     strings.TrimSpace(form.Get("state_code")),
		Value:         strings.TrimSpace(form.Get("value")),
		Currency:      strings.TrimSpace(form.Get("currency")),
		Sign:          strings.TrimSpace(form.Get("sign")),
	}
	if cb.ReferenceSale == "" || cb.TransactionID == "" || cb.StateCode == "" || cb.Value == "" {
		return Callback{}, fmt.Errorf("paytec callback missing required fields")
	}
	return cb, nil
}

// Event converts the callback into the canonical gateway event. Paytec doesn't
// assign delivery ids, so the event id is derived from the transaction id and
// state code: a redelivery of the same state dedupes while a state progression
// remains a distinct event.
func (c Callback) Event() (reconcile.GatewayEvent, error) {
	amountCents, err := parseAmountCents(c.Value)
	if err != nil {
		return reconcile.GatewayEvent{}, err
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return reconcile.GatewayEvent{}, fmt.Errorf("encode paytec callback: %w", err)
	}

	return reconcile.GatewayEvent{
		Gateway:              enums.GatewayPaytec,
		EventID:              fmt.Sprintf("%s~%s", c.TransactionID, c.StateCode),
		GatewayTransactionID: c.TransactionID,
		Reference:            c.ReferenceSale,
		AmountCents:          amountCents,
		RawStatus:            c.StateCode,
		Signature:            c.Sign,
		RawPayload:           json.RawMessage(raw),
	}, nil
}

// parseAmountCents converts paytec's decimal string amount into exact integer
// minor units. Sub-cent precision is rejected rather than rounded.
func parseAmountCents(value string) (int64, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse paytec amount %q: %w", value, err)
	}
	if amount.IsNegative() || amount.IsZero() {
		return 0, fmt.Errorf("paytec amount %q must be positive", value)
	}
	cents := amount.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("paytec amount %q carries sub-cent precision", value)
	}
	return cents.IntPart(), nil
}
