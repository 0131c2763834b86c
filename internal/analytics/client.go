// Package analytics defines the external AnalyticsClient contract (C4)
// and an HTTP-backed implementation against a question-card style report
// endpoint.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/errs"
)

// RawOpportunity is the wire shape returned for a named report. Unknown
// fields are ignored; a malformed CreateTime drops the record with a
// warning rather than failing the whole fetch.
type RawOpportunity struct {
	OrderNum       string `json:"orderNum"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	SupervisorName string `json:"supervisorName"`
	CreateTime     string `json:"createTime"` // ISO-8601 in business TZ
	OrderStatus    string `json:"orderStatus"`
	OrgName        string `json:"orgName"`
}

// Client is the consumed AnalyticsClient contract.
type Client interface {
	QueryReport(ctx context.Context, reportID string) ([]RawOpportunity, error)
}

// HTTPClient implements Client against an HTTP question-card endpoint,
// with exponential-backoff retry mirroring the original source's
// retry_on_failure wrapper (see SPEC_FULL.md §6).
type HTTPClient struct {
	BaseURL     string
	HTTPClient  *http.Client
	MaxAttempts int
	BaseDelay   time.Duration
	Log         *logrus.Logger
}

// NewHTTPClient builds an HTTPClient with sane defaults.
func NewHTTPClient(baseURL string, timeout time.Duration, log *logrus.Logger) *HTTPClient {
	if log == nil {
		log = logrus.New()
	}
	return &HTTPClient{
		BaseURL:     baseURL,
		HTTPClient:  &http.Client{Timeout: timeout},
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Log:         log,
	}
}

func (c *HTTPClient) QueryReport(ctx context.Context, reportID string) ([]RawOpportunity, error) {
	var out []RawOpportunity
	err := withRetry(ctx, c.MaxAttempts, c.BaseDelay, c.Log, "query_report", func() error {
		url := fmt.Sprintf("%s/api/report/%s/query", c.BaseURL, reportID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("analytics service returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return errs.New(errs.DataFetchError, fmt.Sprintf("analytics service returned %d", resp.StatusCode))
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	})
	if err != nil {
		return nil, errs.Wrap(errs.DataFetchError, "query_report "+reportID, err)
	}
	return out, nil
}

// withRetry runs fn up to maxAttempts times with exponential backoff,
// logging each failed attempt. It does not retry context cancellation.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, log *logrus.Logger, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(); err != nil {
			lastErr = err
			log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).Warn("attempt failed, retrying")
			if attempt < maxAttempts {
				select {
				case <-time.After(base * time.Duration(1<<uint(attempt-1))):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}
		return nil
	}
	return lastErr
}
