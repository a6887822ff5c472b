package enums

import "fmt"

// Gateway identifies an external payment processor.
type Gateway string

const (
	GatewayCardnet Gateway = "cardnet"
	GatewayPaytec  Gateway = "paytec"
	GatewayCashred Gateway = "cashred"
)

var validGateways = []Gateway{
	GatewayCardnet,
	GatewayPaytec,
	GatewayCashred,
}

// String implements fmt.Stringer.
func (g Gateway) String() string {
	return string(g)
}

// IsValid reports whether the value is a known Gateway.
func (g Gateway) IsValid() bool {
	for _, candidate := range validGateways {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGateway converts raw input into a Gateway.
func ParseGateway(value string) (Gateway, error) {
	for _, candidate := range validGateways {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway %q", value)
}
