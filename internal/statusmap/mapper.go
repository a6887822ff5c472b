package statusmap

import (
	"strings"

	"github.com/dcastano/pagosur-backend/pkg/enums"
)

// Pair is the canonical target computed from one gateway status code.
type Pair struct {
	Payment enums.PaymentStatus
	Order   enums.OrderStatus
}

var (
	approved = Pair{enums.PaymentStatusApproved, enums.OrderStatusConfirmed}
	declined = Pair{enums.PaymentStatusDeclined, enums.OrderStatusPending}
	pending  = Pair{enums.PaymentStatusPending, enums.OrderStatusPending}
	failed   = Pair{enums.PaymentStatusError, enums.OrderStatusPending}
	voided   = Pair{enums.PaymentStatusVoided, enums.OrderStatusCancelled}
)

// Per-gateway vocabulary tables. Keys are normalized with normalize below.
var tables = map[enums.Gateway]map[string]Pair{
	enums.GatewayCardnet: {
		"APPROVED":  approved,
		"DECLINED":  declined,
		"PENDING":   pending,
		"IN_REVIEW": pending,
		"ERROR":     failed,
		"VOIDED":    voided,
	},
	enums.GatewayPaytec: {
		"4":   approved, // transaction approved
		"6":   declined, // transaction declined
		"7":   pending,  // awaiting confirmation
		"5":   voided,   // expired / reversed
		"104": failed,   // processor error
	},
	enums.GatewayCashred: {
		"COLLECTED": approved,
		"WAITING":   pending,
		"EXPIRED":   voided,
	},
}

// Map translates a gateway status code into the canonical status pair. The
// mapping is total: an unknown gateway or code resolves to error/pending so
// future vocabulary additions fail safe instead of crashing the handler.
func Map(gateway enums.Gateway, rawStatus string) Pair {
	table, ok := tables[gateway]
	if !ok {
		return failed
	}
	pair, ok := table[normalize(rawStatus)]
	if !ok {
		return failed
	}
	return pair
}

// Known reports whether the gateway publishes the given status code.
func Known(gateway enums.Gateway, rawStatus string) bool {
	table, ok := tables[gateway]
	if !ok {
		return false
	}
	_, ok = table[normalize(rawStatus)]
	return ok
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
