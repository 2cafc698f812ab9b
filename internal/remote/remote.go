// Package remote is the client for the remote persistence service that
// stores cycle records. The service speaks flat key-value records; the
// normalize package owns the mapping to the canonical model. Errors from
// the service are opaque (status plus body text) and any non-success
// response is a uniform delivery failure.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/bakerline/qtour/internal/model"
	"github.com/bakerline/qtour/internal/resilience"
)

// ErrServiceUnavailable is returned when no auth token can be obtained.
// It disables network operations; it is not surfaced as a user error.
var ErrServiceUnavailable = eris.New("remote: service unavailable")

// Service is the remote persistence interface the sync driver and the
// online save path consume.
type Service interface {
	Fetch(ctx context.Context, tourID string, category model.Category) ([]model.FlatRecord, error)
	Create(ctx context.Context, rec model.FlatRecord) (model.FlatRecord, error)
}

// TokenProvider supplies a bearer token on demand. An empty token means
// the service is unavailable.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider backed by a fixed configuration value.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Options configures the HTTP client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Rate    rate.Limit
	Burst   int
	Retry   resilience.RetryConfig
}

// Client implements Service over HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  TokenProvider
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates a remote service client.
func NewClient(opts Options, tokens TokenProvider) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Rate == 0 {
		opts.Rate = 10
	}
	if opts.Burst == 0 {
		opts.Burst = 10
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: opts.BaseURL,
		tokens:  tokens,
		limiter: rate.NewLimiter(opts.Rate, opts.Burst),
		retry:   opts.Retry,
	}
}

// Fetch returns every record stored for a tour and category.
func (c *Client) Fetch(ctx context.Context, tourID string, category model.Category) ([]model.FlatRecord, error) {
	endpoint := fmt.Sprintf("%s/records?%s", c.baseURL, url.Values{
		"tourId":   {tourID},
		"category": {string(category)},
	}.Encode())

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("remote", "fetch")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]model.FlatRecord, error) {
		body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		var records []model.FlatRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, eris.Wrap(err, "remote: decode fetch response")
		}
		return records, nil
	})
}

// Create stores one flat record and returns the stored row.
func (c *Client) Create(ctx context.Context, rec model.FlatRecord) (model.FlatRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "remote: encode record")
	}

	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger("remote", "create")

	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (model.FlatRecord, error) {
		body, err := c.do(ctx, http.MethodPost, c.baseURL+"/records", payload)
		if err != nil {
			return nil, err
		}
		var stored model.FlatRecord
		if err := json.Unmarshal(body, &stored); err != nil {
			return nil, eris.Wrap(err, "remote: decode create response")
		}
		return stored, nil
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil || token == "" {
		return nil, ErrServiceUnavailable
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "remote: rate limit wait")
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "remote: build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "remote: request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "remote: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Errorf("remote: %s %s returned %d: %s", method, endpoint, resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return body, nil
}
