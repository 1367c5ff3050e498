package enums

import "fmt"

// GatewayEventType is the event_type discriminator of gateway callbacks.
type GatewayEventType string

const (
	GatewayEventChargePayment GatewayEventType = "api.charge.payment"
	GatewayEventPayout        GatewayEventType = "api.payout"
)

// ParseGatewayEventType converts raw input into a GatewayEventType.
func ParseGatewayEventType(value string) (GatewayEventType, error) {
	switch GatewayEventType(value) {
	case GatewayEventChargePayment, GatewayEventPayout:
		return GatewayEventType(value), nil
	}
	return "", fmt.Errorf("invalid gateway event type %q", value)
}
