// Package api is the HTTP client of the content repository API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/metrics"
	"github.com/kailas-cloud/curator/internal/version"
)

const maxErrorBody = 4 << 10

// Config holds the API client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client talks to the content API. Every response body is validated against
// a JSON schema before it is decoded.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates an API client.
func NewClient(cfg *Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    hc,
		limiter: limiter,
		logger:  logger,
	}
}

// Ping checks that the API answers its status endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "status", http.MethodGet, "/api/v1/status/", nil, nil, nil)
}

// do sends one request. A non-nil schema validates the response body, which
// is then decoded into out.
func (c *Client) do(
	ctx context.Context, op, method, path string,
	body any, schema *gojsonschema.Schema, out any,
) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit: %w: %w", op, domain.ErrTransport, err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.APIRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("api request rejected",
			zap.String("op", op), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s: %w", op, domain.NewAPIError(resp.StatusCode, extractDetail(raw)))
	}

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w: %w", op, domain.ErrTransport, err)
	}
	if schema != nil {
		if err := validate(schema, raw); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w: %w", op, domain.ErrInvalidPayload, err)
	}
	return nil
}

// extractDetail returns the "detail" field of a JSON error body, or the body
// itself when it is short plain text.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return strings.TrimSpace(string(body))
}
