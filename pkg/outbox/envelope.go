package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the wire shape written to the outbox payload column and
// published verbatim to the notification topic.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}
