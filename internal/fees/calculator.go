package fees

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

var basisPointsPerUnit = decimal.NewFromInt(10000)

// Breakdown splits a gross payout into fee lines and the amount the member receives.
// ServiceFee and SafetyFee stay zero under the current schedule.
type Breakdown struct {
	Gross       int64 `json:"gross"`
	PlatformFee int64 `json:"platform_fee"`
	ReserveFee  int64 `json:"reserve_fee"`
	ServiceFee  int64 `json:"service_fee"`
	SafetyFee   int64 `json:"safety_fee"`
	InstantFee  int64 `json:"instant_fee"`
	TotalFees   int64 `json:"total_fees"`
	NetAmount   int64 `json:"net_amount"`
}

// RevenueAmount is the portion of the fees kept by the platform. The reserve
// slice goes to the group's reserve wallet instead.
func (b Breakdown) RevenueAmount() int64 {
	return b.PlatformFee + b.ServiceFee + b.SafetyFee
}

type Calculator struct {
	platformBPS decimal.Decimal
	reserveBPS  decimal.Decimal
	instantFlat int64
}

func NewCalculator(cfg config.FeeConfig) (*Calculator, error) {
	if cfg.PlatformBPS < 0 || cfg.ReserveBPS < 0 || cfg.InstantFlat < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee rates must be non-negative")
	}
	if cfg.PlatformBPS+cfg.ReserveBPS > 10000 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fee rates exceed 100%")
	}
	return &Calculator{
		platformBPS: decimal.NewFromInt(cfg.PlatformBPS),
		reserveBPS:  decimal.NewFromInt(cfg.ReserveBPS),
		instantFlat: cfg.InstantFlat,
	}, nil
}

// Compute returns the scheduled settlement breakdown for gross.
func (c *Calculator) Compute(gross int64) (Breakdown, error) {
	return c.compute(gross, 0)
}

// ComputeInstant adds the flat instant fee on top of the scheduled breakdown.
func (c *Calculator) ComputeInstant(gross int64) (Breakdown, error) {
	return c.compute(gross, c.instantFlat)
}

func (c *Calculator) compute(gross, instantFee int64) (Breakdown, error) {
	if gross <= 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "gross amount must be positive")
	}
	b := Breakdown{
		Gross:       gross,
		PlatformFee: rate(gross, c.platformBPS),
		ReserveFee:  rate(gross, c.reserveBPS),
		InstantFee:  instantFee,
	}
	b.TotalFees = b.PlatformFee + b.ReserveFee + b.ServiceFee + b.SafetyFee + b.InstantFee
	b.NetAmount = gross - b.TotalFees
	if b.NetAmount < 0 {
		return Breakdown{}, pkgerrors.New(pkgerrors.CodeValidation, "fees exceed gross amount").
			WithDetails(map[string]int64{"gross": gross, "totalFees": b.TotalFees})
	}
	return b, nil
}

// rate applies bps to amount and rounds half away from zero to the minor unit.
func rate(amount int64, bps decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).
		Mul(bps).
		Div(basisPointsPerUnit).
		Round(0).
		IntPart()
}
