package reserve

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rosca-settlement/internal/ledger"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LocalCoverer moves the shortfall from the group reserve wallet into the
// member's escrow in one transaction.
type LocalCoverer struct {
	ledger ledger.Service
	tx     txRunner
	logg   *logger.Logger
}

func NewLocalCoverer(ledgerSvc ledger.Service, tx txRunner, logg *logger.Logger) (*LocalCoverer, error) {
	if ledgerSvc == nil {
		return nil, errors.New("ledger service required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	return &LocalCoverer{ledger: ledgerSvc, tx: tx, logg: logg}, nil
}

func (c *LocalCoverer) Cover(ctx context.Context, req CoverRequest) (bool, error) {
	if req.GroupID == uuid.Nil || req.UserID == uuid.Nil || req.ExpectedAmount <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "invalid reserve cover request")
	}
	covered := false
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balance, err := c.ledger.EscrowBalanceTx(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		shortfall := req.ExpectedAmount - balance
		if shortfall <= 0 {
			covered = true
			return nil
		}
		payoutID := req.PayoutID
		userID := req.UserID
		_, err = c.ledger.AdjustReserveTx(ctx, tx, ledger.ReserveAdjustment{
			GroupID:  req.GroupID,
			Amount:   -shortfall,
			Type:     enums.ReserveEntryShortfallCover,
			PayoutID: &payoutID,
			UserID:   &userID,
		})
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := c.ledger.AdjustEscrowTx(ctx, tx, req.UserID, shortfall); err != nil {
			return err
		}
		covered = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"group_id": req.GroupID.String(),
			"user_id":  req.UserID.String(),
			"covered":  covered,
		})
		c.logg.Info(logCtx, "reserve cover evaluated")
	}
	return covered, nil
}
