package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/franchisefund/internal/apperror"
	"github.com/smallbiznis/franchisefund/internal/token/domain"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to the token service over JSON.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
}

func NewHTTPClient(cfg HTTPConfig, log *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *HTTPClient) Mint(ctx context.Context, req domain.MintRequest) error {
	return c.post(ctx, "/v1/tokens/mint", req.IdempotencyKey, req)
}

func (c *HTTPClient) Burn(ctx context.Context, req domain.BurnRequest) error {
	return c.post(ctx, "/v1/tokens/burn", req.IdempotencyKey, req)
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.ErrExternalServiceFailure.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return apperror.ExternalServiceFailure("token_service_status",
		fmt.Sprintf("token service %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg))))
}

// NoopClient accepts every operation. Used when no token service is configured.
type NoopClient struct {
	log *zap.Logger
}

func NewNoopClient(log *zap.Logger) *NoopClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoopClient{log: log}
}

func (c *NoopClient) Mint(ctx context.Context, req domain.MintRequest) error {
	c.log.Debug("token mint skipped", zap.String("franchise_id", req.FranchiseID), zap.Int64("amount", req.Amount))
	return nil
}

func (c *NoopClient) Burn(ctx context.Context, req domain.BurnRequest) error {
	c.log.Debug("token burn skipped", zap.String("franchise_id", req.FranchiseID), zap.Int64("amount", req.Amount))
	return nil
}
