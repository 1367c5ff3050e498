package gatewaywebhook

import (
	"encoding/json"
	"strings"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/gateway"
)

// Event is the callback body posted by the payment gateway.
type Event struct {
	EventType string    `json:"event_type"`
	Data      EventData `json:"data"`
}

type EventData struct {
	Transaction EventTransaction `json:"transaction"`
}

type EventTransaction struct {
	ChargeID      string `json:"charge_id"`
	Status        string `json:"status"`
	RefID         string `json:"ref_id"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ParseEvent decodes and validates a raw callback body.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	if _, err := enums.ParseGatewayEventType(evt.EventType); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown webhook event type")
	}
	evt.Data.Transaction.ChargeID = strings.TrimSpace(evt.Data.Transaction.ChargeID)
	if evt.Data.Transaction.ChargeID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge_id is required")
	}
	return &evt, nil
}

// Type returns the typed event discriminator.
func (e Event) Type() enums.GatewayEventType {
	return enums.GatewayEventType(e.EventType)
}

// MappedStatus translates the gateway status into the internal vocabulary.
func (e Event) MappedStatus() enums.PayoutStatus {
	return gateway.MapStatus(e.Data.Transaction.Status)
}

// IdempotencyKey identifies one delivery as (charge id, mapped status).
func (e Event) IdempotencyKey() string {
	return e.Data.Transaction.ChargeID + ":" + e.MappedStatus().String()
}
