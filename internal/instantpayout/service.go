// Package instantpayout lets a recipient pull their pending payout ahead of the
// scheduled run after PIN verification.
package instantpayout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/fees"
	"github.com/angelmondragon/rosca-settlement/internal/settlement"
	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db/models"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/security"
)

var errWrongPIN = errors.New("incorrect pin")

type Input struct {
	UserID   uuid.UUID
	PayoutID uuid.UUID
	PIN      string
}

type Result struct {
	PayoutID uuid.UUID          `json:"payout_id"`
	Status   enums.PayoutStatus `json:"status"`
	ChargeID string             `json:"charge_id"`
	Fees     fees.Breakdown     `json:"fees"`
}

type Service interface {
	Request(ctx context.Context, input Input) (*Result, error)
	SetPIN(ctx context.Context, userID uuid.UUID, pin string) error
}

type userStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdatePINHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) (bool, error)
}

type payoutFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
}

type settler interface {
	Settle(ctx context.Context, payout models.Payout, mode enums.PayoutMode) (*settlement.Result, error)
}

// attemptLimiter counts PIN attempts per user in a fixed window.
type attemptLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	PINAttemptScope(userID string) string
	ResetWindow(ctx context.Context, scope string) error
}

type ServiceParams struct {
	Users   userStore
	Payouts payoutFinder
	Engine  settler
	Limiter attemptLimiter
	PIN     config.PINConfig
	Logger  *logger.Logger
}

type service struct {
	users   userStore
	payouts payoutFinder
	engine  settler
	limiter attemptLimiter
	pinCfg  config.PINConfig
	logg    *logger.Logger
}

func NewService(p ServiceParams) (Service, error) {
	if p.Users == nil {
		return nil, errors.New("user store required")
	}
	if p.Payouts == nil {
		return nil, errors.New("payout repository required")
	}
	if p.Engine == nil {
		return nil, errors.New("settlement engine required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	return &service{
		users:   p.Users,
		payouts: p.Payouts,
		engine:  p.Engine,
		limiter: p.Limiter,
		pinCfg:  p.PIN,
		logg:    p.Logger,
	}, nil
}

func (s *service) Request(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil || input.PayoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and payout id are required")
	}
	if err := security.ValidatePINFormat(input.PIN); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pin must be 4 to 6 digits")
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	if err := s.verifyPIN(ctx, input.UserID, input.PIN); err != nil {
		return nil, err
	}

	payout, err := s.payouts.FindByID(ctx, input.PayoutID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	if payout.RecipientID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payout belongs to another member")
	}
	if payout.Status != enums.PayoutStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payout already processed")
	}

	res, err := s.engine.Settle(ctx, *payout, enums.PayoutModeInstant)
	if err != nil {
		return nil, err
	}
	status := enums.PayoutStatusCompleted
	if res.Outcome == settlement.OutcomeProcessing {
		status = enums.PayoutStatusProcessing
	}
	return &Result{
		PayoutID: payout.ID,
		Status:   status,
		ChargeID: res.ChargeID,
		Fees:     res.Fees,
	}, nil
}

func (s *service) verifyPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	var scope string
	if s.limiter != nil && s.pinCfg.MaxAttempts > 0 {
		scope = s.limiter.PINAttemptScope(userID.String())
		allowed, _, err := s.limiter.FixedWindowAllow(ctx, scope, int64(s.pinCfg.MaxAttempts), s.pinCfg.AttemptWindow)
		if err != nil {
			// A limiter outage falls through to hash verification.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "pin attempt limiter unavailable")
			scope = ""
		} else if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many pin attempts")
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	if user.PINHash == nil || *user.PINHash == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout pin not set")
	}
	ok, err := security.VerifyPIN(pin, *user.PINHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify pin")
	}
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, errWrongPIN, "incorrect pin")
	}
	if scope != "" {
		if err := s.limiter.ResetWindow(ctx, scope); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to reset pin attempts")
		}
	}
	return nil
}

func (s *service) SetPIN(ctx context.Context, userID uuid.UUID, pin string) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	hash, err := security.HashPIN(pin, s.pinCfg)
	if errors.Is(err, security.ErrInvalidPINFormat) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pin must be 4 to 6 digits")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash pin")
	}
	ok, err := s.users.UpdatePINHash(ctx, userID, hash, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pin")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID.String()), "payout pin updated")
	return nil
}
