package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/api/middleware"
	"github.com/angelmondragon/rosca-settlement/api/responses"
	"github.com/angelmondragon/rosca-settlement/api/validators"
	"github.com/angelmondragon/rosca-settlement/internal/instantpayout"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

type payoutReader interface {
	Get(ctx context.Context, requesterID, payoutID uuid.UUID) (*payouts.PayoutDTO, error)
}

type instantPayouts interface {
	Request(ctx context.Context, input instantpayout.Input) (*instantpayout.Result, error)
	SetPIN(ctx context.Context, userID uuid.UUID, pin string) error
}

type instantPayoutRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

type setPINRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// PayoutDetail returns one payout to its recipient.
func PayoutDetail(svc payoutReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := payoutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Get(r.Context(), userID, payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// InstantPayout settles the caller's pending payout right away after PIN verification.
func InstantPayout(svc instantPayouts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "instant payout service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payoutID, err := payoutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req instantPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Request(r.Context(), instantpayout.Input{
			UserID:   userID,
			PayoutID: payoutID,
			PIN:      req.PIN,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SetPIN stores a new payout PIN for the caller.
func SetPIN(svc instantPayouts, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "instant payout service unavailable"))
			return
		}
		userID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req setPINRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetPIN(r.Context(), userID, req.PIN); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user context")
	}
	return p.UserID, nil
}

func payoutIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "payoutId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout id")
	}
	return id, nil
}
