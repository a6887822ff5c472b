package enums

import "fmt"

// WebhookOutcome records how a verified webhook event was resolved.
type WebhookOutcome string

const (
	WebhookOutcomeReceived       WebhookOutcome = "received"
	WebhookOutcomeApplied        WebhookOutcome = "applied"
	WebhookOutcomeDuplicate      WebhookOutcome = "duplicate"
	WebhookOutcomeOrderNotFound  WebhookOutcome = "order_not_found"
	WebhookOutcomeAmountMismatch WebhookOutcome = "amount_mismatch"
	WebhookOutcomeSuperseded     WebhookOutcome = "superseded"
	WebhookOutcomeDeferred       WebhookOutcome = "deferred"
	WebhookOutcomeFailed         WebhookOutcome = "failed"
)

var validWebhookOutcomes = []WebhookOutcome{
	WebhookOutcomeReceived,
	WebhookOutcomeApplied,
	WebhookOutcomeDuplicate,
	WebhookOutcomeOrderNotFound,
	WebhookOutcomeAmountMismatch,
	WebhookOutcomeSuperseded,
	WebhookOutcomeDeferred,
	WebhookOutcomeFailed,
}

// String implements fmt.Stringer.
func (w WebhookOutcome) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WebhookOutcome.
func (w WebhookOutcome) IsValid() bool {
	for _, candidate := range validWebhookOutcomes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWebhookOutcome converts raw input into a WebhookOutcome.
func ParseWebhookOutcome(value string) (WebhookOutcome, error) {
	for _, candidate := range validWebhookOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook outcome %q", value)
}
