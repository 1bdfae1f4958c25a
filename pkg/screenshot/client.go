// Package screenshot is a typed HTTP/JSON client for the screenshot
// service: an out-of-scope collaborator the engine only reaches through
// its capture contract, modeled on the GitHub client's plain http.Client
// request shape.
package screenshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/pagewatch/sentinel/pkg/config"
)

// Client captures desktop and mobile viewports of a URL through the
// screenshot service and uploads them to the object store.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
	logger      *slog.Logger
}

// NewClient creates a screenshot Client from config.
func NewClient(cfg config.ScreenshotConfig) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		logger:      slog.Default(),
	}
}

// CaptureRequest is the screenshot service's capture input.
type CaptureRequest struct {
	URL      string `json:"url"`
	Viewport string `json:"viewport"` // "desktop" or "mobile"
}

// CaptureResult is one viewport's capture result.
type CaptureResult struct {
	ScreenshotURL string            `json:"screenshotUrl"`
	Bytes         int64             `json:"bytes"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CapturePair is the combined desktop+mobile capture result for an
// analysis step. Mobile is optional: a mobile capture failure is tolerated
// and logged rather than aborting the step.
type CapturePair struct {
	Desktop CaptureResult
	Mobile  *CaptureResult
}

// Capture captures desktop and (if captureMobile) mobile viewports in
// parallel. Desktop failure is returned as an error after exhausting
// retries, aborting the calling step per the capture-screenshot step's
// contract; mobile failure is tolerated and the pair is returned with a
// nil Mobile field.
func (c *Client) Capture(ctx context.Context, url string, captureMobile bool) (CapturePair, error) {
	desktopCh := make(chan captureOutcome, 1)
	go func() {
		res, err := c.captureViewport(ctx, url, "desktop")
		desktopCh <- captureOutcome{res, err}
	}()

	var mobileCh chan captureOutcome
	if captureMobile {
		mobileCh = make(chan captureOutcome, 1)
		go func() {
			res, err := c.captureViewport(ctx, url, "mobile")
			mobileCh <- captureOutcome{res, err}
		}()
	}

	desktopOutcome := <-desktopCh
	if desktopOutcome.err != nil {
		return CapturePair{}, fmt.Errorf("capture desktop screenshot: %w", desktopOutcome.err)
	}

	pair := CapturePair{Desktop: desktopOutcome.result}
	if mobileCh != nil {
		mobileOutcome := <-mobileCh
		if mobileOutcome.err != nil {
			c.logger.Warn("mobile screenshot capture failed, continuing desktop-only", "url", url, "error", mobileOutcome.err)
		} else {
			pair.Mobile = &mobileOutcome.result
		}
	}
	return pair, nil
}

type captureOutcome struct {
	result CaptureResult
	err    error
}

func (c *Client) captureViewport(ctx context.Context, url, viewport string) (CaptureResult, error) {
	reqBody, err := json.Marshal(CaptureRequest{URL: url, Viewport: viewport})
	if err != nil {
		return CaptureResult{}, fmt.Errorf("marshal capture request: %w", err)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts(c.maxAttempts)-1))
	bo = backoff.WithContext(bo, ctx)

	var result CaptureResult
	err = backoff.Retry(func() error {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/capture", bytes.NewReader(reqBody))
		if rerr != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", rerr))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, rerr := c.httpClient.Do(req)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("screenshot service returned HTTP %d for %s capture", resp.StatusCode, viewport)
		}
		return json.NewDecoder(resp.Body).Decode(&result)
	}, bo)
	if err != nil {
		return CaptureResult{}, err
	}
	return result, nil
}

// Health probes the screenshot service's health endpoint, used by the
// scheduler's health-probe cron tick.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe screenshot service health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("screenshot service unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

func attempts(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
