package reconcile

import (
	"encoding/json"
	"regexp"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// GatewayEvent is the canonical internal representation of one verified webhook
// delivery, produced by a gateway adapter at the ingress boundary. The
// orchestrator never sees gateway-specific payload shapes.
type GatewayEvent struct {
	Gateway              enums.Gateway
	EventID              string
	GatewayTransactionID string
	Reference            string
	AmountCents          int64
	RawStatus            string
	Signature            string
	RawPayload           json.RawMessage
}

// Order references are minted as ORD-<digits> at order creation. Anything a
// gateway echoes back that does not match is treated as unresolvable.
var referencePattern = regexp.MustCompile(`^ORD-\d{1,24}$`)

// ValidReference reports whether the gateway-echoed reference follows the
// canonical format.
func ValidReference(reference string) bool {
	return referencePattern.MatchString(reference)
}
