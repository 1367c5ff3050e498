package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
	"github.com/angelmondragon/rosca-settlement/pkg/metrics"
)

const (
	defaultTimeout        = 20 * time.Second
	responseBodyReadLimit = 1024
	payoutsPath           = "payouts"
)

var (
	errBaseURLRequired   = errors.New("gateway base url is required")
	errSecretKeyRequired = errors.New("gateway secret key is required")
)

// Client talks to the payment gateway disbursement API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	metrics    *metrics.SettlementMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics records call latency on the provided collector.
func WithMetrics(m *metrics.SettlementMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretKey:  secret,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Disburse sends a payout instruction. A declined instruction, or one the gateway
// immediately reports as failed, returns a GATEWAY_ERROR. Transport failures and
// timeouts are reported the same way; the caller never retries.
func (c *Client) Disburse(ctx context.Context, req DisburseRequest) (*Result, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	if strings.TrimSpace(req.ChargeID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}
	if req.Amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !req.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}

	body, err := json.Marshal(disbursePayload{
		Type:        requestTypePayout,
		Method:      req.Method,
		Amount:      req.Amount,
		ChargeID:    req.ChargeID,
		Currency:    req.Currency,
		Destination: req.Destination,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal disburse request")
	}

	start := time.Now()
	payload, err := c.do(ctx, http.MethodPost, c.baseURL+"/"+payoutsPath, body)
	c.metrics.ObserveGatewayCall("disburse", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("declined: %s", strings.TrimSpace(payload.Error)), "gateway declined payout")
	}

	result := toResult(payload.Transaction)
	if result.Status == enums.PayoutStatusFailed {
		return &result, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("status %q", result.RawStatus), "gateway reported payout failed")
	}
	return &result, nil
}

// Status fetches the current gateway view of a previously dispatched charge.
func (c *Client) Status(ctx context.Context, chargeID string) (*Result, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway client not configured")
	}
	trimmed := strings.TrimSpace(chargeID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "charge id is required")
	}

	start := time.Now()
	payload, err := c.do(ctx, http.MethodGet, c.baseURL+"/"+payoutsPath+"/"+url.PathEscape(trimmed), nil)
	c.metrics.ObserveGatewayCall("status", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("lookup failed: %s", strings.TrimSpace(payload.Error)), "gateway status lookup failed")
	}
	result := toResult(payload.Transaction)
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (*responsePayload, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "gateway unavailable")
	}

	var payload responsePayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("status %d: %w", resp.StatusCode, err), "decode gateway response")
	}
	if resp.StatusCode >= http.StatusBadRequest && payload.Success {
		payload.Success = false
	}
	return &payload, nil
}

func toResult(tx transactionPayload) Result {
	return Result{
		RawStatus: tx.Status,
		Status:    MapStatus(tx.Status),
		RefID:     tx.RefID,
		TraceID:   tx.TraceID,
	}
}
