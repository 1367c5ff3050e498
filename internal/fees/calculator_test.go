package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator(config.FeeConfig{PlatformBPS: 1000, ReserveBPS: 100, InstantFlat: 500})
	require.NoError(t, err)
	return calc
}

func TestComputeStandardSchedule(t *testing.T) {
	calc := newCalculator(t)

	got, err := calc.Compute(50000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), got.PlatformFee)
	assert.Equal(t, int64(500), got.ReserveFee)
	assert.Zero(t, got.ServiceFee)
	assert.Zero(t, got.SafetyFee)
	assert.Zero(t, got.InstantFee)
	assert.Equal(t, int64(5500), got.TotalFees)
	assert.Equal(t, int64(44500), got.NetAmount)
	assert.Equal(t, int64(5000), got.RevenueAmount())
}

func TestComputeRoundsHalfUp(t *testing.T) {
	calc := newCalculator(t)

	// 10% of 1005 is 100.5, 1% is 10.05.
	got, err := calc.Compute(1005)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got.PlatformFee)
	assert.Equal(t, int64(10), got.ReserveFee)
	assert.Equal(t, int64(1005-111), got.NetAmount)
}

func TestComputeNetPlusFeesEqualsGross(t *testing.T) {
	calc := newCalculator(t)
	for _, gross := range []int64{1, 7, 99, 1001, 12345, 50000, 9999999} {
		got, err := calc.Compute(gross)
		require.NoError(t, err)
		assert.Equal(t, gross, got.NetAmount+got.TotalFees, "gross %d", gross)
		assert.GreaterOrEqual(t, got.NetAmount, int64(0))
	}
}

func TestComputeInstantAddsFlatFee(t *testing.T) {
	calc := newCalculator(t)

	got, err := calc.ComputeInstant(50000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.InstantFee)
	assert.Equal(t, int64(6000), got.TotalFees)
	assert.Equal(t, int64(44000), got.NetAmount)
	assert.Equal(t, int64(5000), got.RevenueAmount())
}

func TestComputeRejectsInvalidGross(t *testing.T) {
	calc := newCalculator(t)

	_, err := calc.Compute(0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = calc.Compute(-10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	// 11% of 100 leaves 89, which cannot absorb the 500 instant fee.
	_, err = calc.ComputeInstant(100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewCalculatorValidatesRates(t *testing.T) {
	_, err := NewCalculator(config.FeeConfig{PlatformBPS: -1})
	assert.Error(t, err)
	_, err = NewCalculator(config.FeeConfig{PlatformBPS: 9000, ReserveBPS: 2000})
	assert.Error(t, err)
}
