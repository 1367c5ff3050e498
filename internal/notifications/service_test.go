package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/outbox"
)

type failingEmitter struct{ calls int }

func (f *failingEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) (uuid.UUID, error) {
	f.calls++
	return uuid.Nil, assert.AnError
}

func TestNotifyQueuesOutboxEvent(t *testing.T) {
	client := dbtest.New(t)
	svc, err := NewService(outbox.NewService(outbox.NewRepository(client.DB()), nil), client, logger.Nop())
	require.NoError(t, err)

	payoutID, userID := uuid.New(), uuid.New()
	svc.Notify(context.Background(), PayoutFailed(payoutID, userID, enums.FailureGatewayDeclined))

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row).Error)
	assert.Equal(t, enums.EventNotificationRequested, row.EventType)
	assert.Equal(t, enums.AggregatePayout, row.AggregateType)
	assert.Equal(t, payoutID, row.AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	var data map[string]any
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "Payout failed", data["title"])
	assert.NotContains(t, data["body"], "declined:")
}

func TestNotifySwallowsErrors(t *testing.T) {
	client := dbtest.New(t)
	emitter := &failingEmitter{}
	svc, err := NewService(emitter, client, logger.Nop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), PayoutSent(uuid.New(), uuid.New(), 100, "XAF", false))
	})
	assert.Equal(t, 1, emitter.calls)

	svc.Notify(context.Background(), Notification{})
	assert.Equal(t, 1, emitter.calls, "no recipients means nothing to send")
}

func TestPayoutFailedUnknownCategory(t *testing.T) {
	n := PayoutFailed(uuid.New(), uuid.New(), enums.FailureCategory("weird"))
	assert.Equal(t, string(enums.FailureProcessingError), n.Data["category"])
}
