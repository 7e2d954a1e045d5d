// Package api implements the HTTP client for the literature reference
// service: the persistence, enriched-content and extraction endpoints the
// pipeline consumes as opaque async operations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shahabnazari/litpipe/internal/core/domain"
	"github.com/shahabnazari/litpipe/internal/metrics"
)

// Config holds client settings.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// RequestTimeout bounds one HTTP request. It is the only hard stop on
	// a hung call: the pipeline's batch deadline never tears requests down.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HourlyLimit    int           `yaml:"hourly_limit"`
}

// HTTPError carries the response status so the error classifier can rule on
// it without parsing message text.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("literature api: status %d: %s", e.Status, e.Body)
}

// HTTPStatus implements the status-code accessor the classifier looks for.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// Client talks to the literature reference service.
type Client struct {
	cfg    Config
	http   *http.Client
	budget *BudgetTracker
}

// NewClient creates a client. The request timeout defaults to 60s.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api client: base URL is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		budget: NewBudgetTracker(cfg.HourlyLimit),
	}, nil
}

// Budget exposes the call budget tracker for health reporting.
func (c *Client) Budget() *BudgetTracker { return c.budget }

// SaveSource persists one source record in the reference library.
func (c *Client) SaveSource(ctx context.Context, src domain.Source) (domain.SaveReceipt, error) {
	var receipt domain.SaveReceipt
	err := c.call(ctx, http.MethodPost, "/v1/sources", src, &receipt)
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return domain.SaveReceipt{}, err
	}
	if receipt.Duplicate {
		metrics.SavesTotal.WithLabelValues("duplicate").Inc()
	} else {
		metrics.SavesTotal.WithLabelValues("ok").Inc()
	}
	return receipt, nil
}

// FetchEnriched retrieves the enriched record for a persisted source.
func (c *Client) FetchEnriched(ctx context.Context, persistedID string) (*domain.Source, error) {
	var src domain.Source
	err := c.call(ctx, http.MethodGet, "/v1/sources/"+persistedID+"/enriched", nil, &src)
	if err != nil {
		metrics.FetchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FetchesTotal.WithLabelValues("ok").Inc()
	return &src, nil
}

// Extract submits the prepared payload to the downstream extraction service.
func (c *Client) Extract(ctx context.Context, payload *domain.ExtractionPayload) (*domain.ExtractionReport, error) {
	var report domain.ExtractionReport
	if err := c.call(ctx, http.MethodPost, "/v1/extractions", payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	c.budget.RecordCall(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APILatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
