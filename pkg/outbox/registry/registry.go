// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publishing.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox/payloads"
)

// Route is where one event type goes and which aggregates may raise it.
type Route struct {
	EventType  enums.OutboxEventType
	Aggregates []enums.OutboxAggregateType
	Topic      string
	decode     func(outbox.PayloadEnvelope) (any, error)
}

// ResolvedEvent is a row that passed validation, ready to publish.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// NonRetryableError marks a row that will never publish, whatever the retry.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NewEventRegistry wires every known event type to its configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, errors.New("notification topic is required")
	}
	reg := &EventRegistry{routes: map[enums.OutboxEventType]Route{}}
	reg.add(typedRoute[payloads.NotificationRequested](
		enums.EventNotificationRequested,
		cfg.NotificationTopic,
		enums.AggregatePayout, enums.AggregateContribution, enums.AggregateNotification,
	))
	return reg, nil
}

func typedRoute[T any](eventType enums.OutboxEventType, topic string, aggregates ...enums.OutboxAggregateType) Route {
	return Route{
		EventType:  eventType,
		Aggregates: aggregates,
		Topic:      topic,
		decode: func(env outbox.PayloadEnvelope) (any, error) {
			payload := new(T)
			if err := env.DecodeData(payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

func (r *EventRegistry) add(route Route) {
	r.routes[route.EventType] = route
}

// Topics returns the distinct topics in sorted order.
func (r *EventRegistry) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		if !slices.Contains(topics, route.Topic) {
			topics = append(topics, route.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its route and decodes the payload. Every
// error is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case !slices.Contains(route.Aggregates, event.AggregateType):
		return nil, permanent("aggregate %s cannot raise %s", event.AggregateType, event.EventType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("event %s has no aggregate id", event.ID)
	}

	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}
	payload, err := route.decode(env)
	if err != nil {
		return nil, permanent("%s: %w", event.EventType, err)
	}
	return &ResolvedEvent{Route: route, Envelope: env, Payload: payload}, nil
}
