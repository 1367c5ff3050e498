package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/rosca-settlement/api/responses"
	gatewaywebhook "github.com/angelmondragon/rosca-settlement/internal/webhooks/gateway"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/security"
)

const (
	SignatureHeader = "X-Gateway-Signature"
	maxPayloadBytes = 1 << 20
)

type GatewayWebhookService interface {
	HandleEvent(ctx context.Context, event *gatewaywebhook.Event) error
}

type GatewayWebhookGuard interface {
	CheckAndMark(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

type webhookMetrics interface {
	IncWebhook(eventType, outcome string)
}

type GatewayWebhookParams struct {
	Service GatewayWebhookService
	Guard   GatewayWebhookGuard
	Secret  string
	Metrics webhookMetrics
	Logger  *logger.Logger
}

// GatewayWebhook verifies and applies payment gateway callbacks. Without a
// configured secret, signatures are not checked.
func GatewayWebhook(p GatewayWebhookParams) http.HandlerFunc {
	logg := p.Logger
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if p.Service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if p.Guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			observe(p.Metrics, "", "invalid")
			responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "webhook body exceeds %d bytes", tooLarge.Limit))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if p.Secret == "" {
			if logg != nil {
				logg.Warn(ctx, "gateway webhook secret not configured; signature verification skipped")
			}
		} else {
			sig := r.Header.Get(SignatureHeader)
			if sig == "" {
				observe(p.Metrics, "", "unauthorized")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature missing"))
				return
			}
			if !security.VerifySignature(p.Secret, payload, sig) {
				observe(p.Metrics, "", "unauthorized")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature invalid"))
				return
			}
		}

		event, err := gatewaywebhook.ParseEvent(payload)
		if err != nil {
			observe(p.Metrics, "", "invalid")
			responses.WriteError(ctx, logg, w, err)
			return
		}
		eventType := string(event.Type())
		if logg != nil {
			ctx = logg.WithChargeID(ctx, event.Data.Transaction.ChargeID)
			ctx = logg.WithField(ctx, "event_type", eventType)
		}

		key := event.IdempotencyKey()
		alreadyProcessed, err := p.Guard.CheckAndMark(ctx, key)
		if err != nil {
			observe(p.Metrics, eventType, "error")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			observe(p.Metrics, eventType, "duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		if err := p.Service.HandleEvent(ctx, event); err != nil {
			_ = p.Guard.Delete(ctx, key)
			observe(p.Metrics, eventType, "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		observe(p.Metrics, eventType, "processed")
		if logg != nil {
			logg.Info(ctx, "gateway event processed")
		}
		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}

func observe(m webhookMetrics, eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.IncWebhook(eventType, outcome)
}
