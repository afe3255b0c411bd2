// Package derive is the REST client for the exchange API. It builds
// requests, parses the result/error envelope, and maps HTTP and
// exchange error shapes to typed failures. It performs no retries:
// retryable conditions are surfaced to the caller as classifications.
package derive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/GoDerive/derivegate/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

const bodySnippetLen = 500

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. Tests use this to point at
// a stub exchange.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit overrides the outbound request rate.
func WithRateLimit(perSec, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPublic issues an unauthenticated market-data GET and returns the
// envelope's result field.
func (c *Client) GetPublic(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "create request", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// PostAuthenticated issues a private POST carrying the JSON body and
// the session auth headers.
func (c *Client) PostAuthenticated(ctx context.Context, path string, body any, headers map[string]string) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "encode request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "rate limiter wait", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.New(apperrors.ErrNetwork,
				fmt.Sprintf("request to %s timed out", req.URL.Path), err)
		}
		return nil, apperrors.New(apperrors.ErrNetwork,
			fmt.Sprintf("request to %s failed", req.URL.Path), err)
	}
	defer resp.Body.Close()
	metrics.LatencyBucket.WithLabelValues(req.URL.Path).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrNetwork, "read response body", err)
	}

	// The exchange returns its structured error envelope on most
	// non-2xx statuses too, so parse first and classify after.
	var envelope rpcEnvelope
	parseErr := json.Unmarshal(raw, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, &envelope, parseErr, raw)
	}
	if parseErr != nil {
		return nil, apperrors.New(apperrors.ErrNetwork,
			fmt.Sprintf("unparseable response body: %s", snippet(raw)), parseErr)
	}
	if envelope.Error != nil {
		return nil, exchangeReject(envelope.Error)
	}
	return envelope.Result, nil
}

// classifyStatus maps a non-2xx response to the narrowest failure
// kind. Distinctions the dispatcher relies on: 429 is retryable by the
// caller (never by us), 403 is the exchange's regional policy, 401
// triggers session invalidation upstream.
func classifyStatus(status int, envelope *rpcEnvelope, parseErr error, raw []byte) error {
	var exchangeCode int64
	msg := snippet(raw)
	if parseErr == nil && envelope.Error != nil {
		exchangeCode = envelope.Error.Code
		msg = envelope.Error.Message
	}

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusTooManyRequests:
		appErr = apperrors.New(apperrors.ErrRateLimited, "exchange rate limit exceeded", nil)
	case status == http.StatusForbidden:
		appErr = apperrors.New(apperrors.ErrGeoBlocked,
			"exchange refused the request (regional restriction)", nil)
	case status == http.StatusUnauthorized:
		appErr = apperrors.New(apperrors.ErrAuthRejected, "exchange rejected authentication", nil)
	case status >= 500:
		appErr = apperrors.New(apperrors.ErrServer,
			fmt.Sprintf("exchange server error (HTTP %d): %s", status, msg), nil)
	case parseErr == nil && envelope.Error != nil:
		appErr = exchangeReject(envelope.Error)
	default:
		appErr = apperrors.New(apperrors.ErrNetwork,
			fmt.Sprintf("unexpected HTTP %d: %s", status, msg), nil)
	}
	appErr.ExchangeCode = exchangeCode
	metrics.ExchangeErrors.WithLabelValues(string(appErr.Type)).Inc()
	return appErr
}

// exchangeReject wraps an in-envelope exchange error: the payload
// itself was rejected (bad nonce, expiry, field encoding, unknown
// instrument and the like).
func exchangeReject(rpcErr *RPCError) *apperrors.AppError {
	msg := rpcErr.Message
	if rpcErr.Data != nil {
		msg = fmt.Sprintf("%s: %v", msg, rpcErr.Data)
	}
	appErr := apperrors.New(apperrors.ErrValidationRejected, msg, nil)
	appErr.ExchangeCode = rpcErr.Code
	return appErr
}

func snippet(raw []byte) string {
	if len(raw) > bodySnippetLen {
		raw = raw[:bodySnippetLen]
	}
	return string(raw)
}
