package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox/payloads"
)

// Notification is a member facing message. AggregateID ties it to the payout or
// contribution that caused it.
type Notification struct {
	UserIDs       []uuid.UUID
	Title         string
	Body          string
	Data          map[string]string
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
}

// Notifier is fire-and-forget: delivery problems never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (uuid.UUID, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Service struct {
	outbox emitter
	tx     txRunner
	logg   *logger.Logger
}

func NewService(outboxSvc emitter, tx txRunner, logg *logger.Logger) (*Service, error) {
	if outboxSvc == nil {
		return nil, errors.New("outbox service required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	return &Service{outbox: outboxSvc, tx: tx, logg: logg}, nil
}

// Notify queues a notification_requested outbox event in its own transaction.
// Errors are logged and swallowed.
func (s *Service) Notify(ctx context.Context, n Notification) {
	if len(n.UserIDs) == 0 {
		return
	}
	aggregateType := n.AggregateType
	if aggregateType == "" {
		aggregateType = enums.AggregateNotification
	}
	aggregateID := n.AggregateID
	if aggregateID == uuid.Nil {
		aggregateID = uuid.New()
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			Data: payloads.NotificationRequested{
				UserIDs: n.UserIDs,
				Title:   n.Title,
				Body:    n.Body,
				Data:    n.Data,
			},
		})
		return err
	})
	if err != nil && s.logg != nil {
		logCtx := s.logg.WithField(ctx, "aggregate_id", aggregateID.String())
		s.logg.Error(logCtx, "notification enqueue failed", err)
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) {}
