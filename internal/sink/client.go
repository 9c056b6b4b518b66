// Package sink is the HTTP client for the Qraga catalog API. The bulk
// endpoint takes newline-delimited JSON, one product per line, and is
// all-or-nothing per call: any transport failure or non-2xx response counts
// as the whole batch failing. Single-item create/update/delete back the
// event-driven sync path.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/you/qragasync/internal/domain"
)

// ErrNotConfigured marks a missing sink configuration. It fails fast,
// before any job is created or network call attempted.
var ErrNotConfigured = errors.New("sink configuration incomplete")

// Config identifies the remote site. All three fields are required before
// any network call is attempted.
type Config struct {
	BaseURL string
	SiteID  string
	APIKey  string
}

// Validate returns a configuration error naming the missing pieces.
func (c Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "endpoint URL")
	}
	if c.SiteID == "" {
		missing = append(missing, "site ID")
	}
	if c.APIKey == "" {
		missing = append(missing, "API key")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrNotConfigured, "missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// APIError is a non-2xx response from the sink.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return fmt.Sprintf("sink auth failed (code %d), check API key", e.StatusCode)
	}
	return fmt.Sprintf("sink returned code %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func New(cfg Config, timeout time.Duration, rps float64, log *zap.Logger) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log,
	}
}

// SendBulk posts a batch as NDJSON. The caller treats any returned error as
// total batch failure; partial acceptance is not parsed out of the response.
func (c *Client) SendBulk(ctx context.Context, batch []domain.ProductPayload) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	var body bytes.Buffer
	for _, p := range batch {
		if p.ID == "" {
			c.log.Warn("skipping bulk payload without id")
			continue
		}
		line, err := json.Marshal(p)
		if err != nil {
			return errors.Wrapf(err, "encode payload %s", p.ID)
		}
		body.Write(line)
		body.WriteByte('\n')
	}
	if body.Len() == 0 {
		return errors.New("no valid payloads in batch")
	}
	return c.do(ctx, http.MethodPost, c.productsURL()+"/bulk", "application/x-ndjson", &body)
}

// Create registers a product that has never been synced.
func (c *Client) Create(ctx context.Context, payload domain.ProductPayload) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	return c.do(ctx, http.MethodPost, c.productsURL(), "application/json", bytes.NewReader(body))
}

// Update replaces an already-synced product, keyed by its payload id.
func (c *Client) Update(ctx context.Context, id string, payload domain.ProductPayload) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	return c.do(ctx, http.MethodPut, c.productsURL()+"/"+url.PathEscape(id), "application/json", bytes.NewReader(body))
}

// Delete removes a product from the sink. A 404 counts as success: already
// absent is the desired end state.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	err := c.do(ctx, http.MethodDelete, c.productsURL()+"/"+url.PathEscape(id), "application/json", nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) productsURL() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/site/" + url.PathEscape(c.cfg.SiteID) + "/products"
}

func (c *Client) do(ctx context.Context, method, u, contentType string, body io.Reader) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	c.log.Warn("sink request failed",
		zap.String("method", method),
		zap.String("url", u),
		zap.Int("code", resp.StatusCode))
	return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
}
