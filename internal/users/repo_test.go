package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
)

func TestUpdatePINHash(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	user := models.User{ID: uuid.New(), DisplayName: "member", TrustScore: 50, WalletBalance: 1200}
	require.NoError(t, client.DB().Create(&user).Error)

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	ok, err := repo.UpdatePINHash(ctx, user.ID, "$argon2id$stub", at)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PINHash)
	assert.Equal(t, "$argon2id$stub", *got.PINHash)
	assert.Equal(t, int64(1200), got.WalletBalance, "balances untouched")
	assert.True(t, got.UpdatedAt.Equal(at))
}

func TestUnknownMember(t *testing.T) {
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	ok, err := repo.UpdatePINHash(ctx, uuid.New(), "x", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
