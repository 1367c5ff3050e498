package destinations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rosca-settlement/pkg/db/dbtest"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

func strPtr(v string) *string { return &v }

func TestResolvePrefersPrimary(t *testing.T) {
	client := dbtest.New(t)
	userID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, client.DB().Create(&models.PaymentDestination{
		ID: uuid.New(), UserID: userID, Method: enums.PaymentMethodBankTransfer,
		AccountNumber: strPtr("001"), BankCode: strPtr("BK"), AccountName: strPtr("A. Member"),
		CreatedAt: now,
	}).Error)
	require.NoError(t, client.DB().Create(&models.PaymentDestination{
		ID: uuid.New(), UserID: userID, Method: enums.PaymentMethodMobileMoney, IsPrimary: true,
		PhoneNumber: strPtr("+237600000000"), Provider: strPtr("mtn"),
		CreatedAt: now.Add(-time.Hour),
	}).Error)

	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	got, err := svc.Resolve(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodMobileMoney, got.Method)
	assert.Equal(t, "+237600000000", got.Destination.PhoneNumber)
	assert.Equal(t, "mtn", got.Destination.Provider)
}

func TestResolveMissing(t *testing.T) {
	client := dbtest.New(t)
	svc, err := NewService(NewRepository(client.DB()))
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrNoDestination))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		dest    models.PaymentDestination
		wantErr error
	}{
		{
			name:    "mobile money missing provider",
			dest:    models.PaymentDestination{Method: enums.PaymentMethodMobileMoney, PhoneNumber: strPtr("+237")},
			wantErr: ErrIncompleteDestination,
		},
		{
			name:    "bank transfer blank account name",
			dest:    models.PaymentDestination{Method: enums.PaymentMethodBankTransfer, AccountNumber: strPtr("1"), BankCode: strPtr("B"), AccountName: strPtr("  ")},
			wantErr: ErrIncompleteDestination,
		},
		{
			name:    "unknown method",
			dest:    models.PaymentDestination{Method: enums.PaymentMethod("cash")},
			wantErr: ErrIncompleteDestination,
		},
		{
			name: "complete bank transfer",
			dest: models.PaymentDestination{Method: enums.PaymentMethodBankTransfer, AccountNumber: strPtr("1"), BankCode: strPtr("B"), AccountName: strPtr("N"), PhoneNumber: strPtr("+1")},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Validate(&tc.dest)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, got.Destination.PhoneNumber)
		})
	}
}
