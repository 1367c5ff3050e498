package reserve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	pkgerrors "github.com/angelmondragon/rosca-settlement/pkg/errors"
)

const (
	defaultTimeout = 10 * time.Second
	coverPath      = "/reserve/cover"
)

// Client calls an external reserve fund service. The service credits escrow
// itself before answering covered=true.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type coverResponse struct {
	Covered bool   `json:"covered"`
	Error   string `json:"error,omitempty"`
}

func NewClient(cfg config.ReserveConfig, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("reserve base url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (c *Client) Cover(ctx context.Context, req CoverRequest) (bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal reserve request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+coverPath, bytes.NewReader(body))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build reserve request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "reserve service error")
	}
	var payload coverResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode reserve response")
	}
	return payload.Covered, nil
}
