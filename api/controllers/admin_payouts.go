package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/rosca-settlement/api/responses"
	"github.com/angelmondragon/rosca-settlement/api/validators"
	"github.com/angelmondragon/rosca-settlement/internal/payouts"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/pagination"
)

const maxReasonLength = 500

type payoutOperator interface {
	List(ctx context.Context, params pagination.Params, filters payouts.ListFilters) (*payouts.AdminPayoutList, error)
	Reverse(ctx context.Context, payoutID uuid.UUID, reason string) (*payouts.ReversalResult, error)
	Retry(ctx context.Context, payoutID uuid.UUID) (*payouts.AdminPayoutDTO, error)
}

type reversePayoutRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdminPayoutList returns payouts newest first, optionally filtered by status and group.
func AdminPayoutList(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		var filters payouts.ListFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParsePayoutStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		groupID, err := validators.QueryUUID(r, "group_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters.GroupID = groupID

		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminPayoutReverse credits back the escrow debit of a failed payout.
func AdminPayoutReverse(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := payoutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reversePayoutRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Reverse(r.Context(), payoutID, validators.CleanText(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminPayoutRetry schedules a fresh payout for a failed one.
func AdminPayoutRetry(svc payoutOperator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := payoutIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		retry, err := svc.Retry(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, retry)
	}
}
