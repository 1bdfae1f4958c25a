// Package llmshim wraps each LLM use site in a typed request/response
// function: an HTTP/JSON call with jittered backoff and a pure fallback
// producing a conservative valid payload when every attempt is exhausted.
package llmshim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pagewatch/sentinel/pkg/config"
)

// client is the shared HTTP/JSON transport every call site builds on,
// modeled on the GitHub client's plain http.Client request shape.
type client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func newClient(timeout time.Duration) *client {
	return &client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
}

// callJSON POSTs payload as JSON to cfg.BaseURL and decodes the response
// into out, retrying up to cfg.MaxAttempts times with jittered exponential
// backoff. Every attempt gets its own per-attempt timeout via the client's
// configured http.Client.Timeout; callJSON itself bounds the whole retry
// loop to ctx.
func (c *client) callJSON(ctx context.Context, cfg config.LLMCallSiteConfig, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxAttempts(cfg.MaxAttempts)-1))
	bo = backoff.WithContext(bo, ctx)

	var lastErr error
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(body))
		if rerr != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", rerr))
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
		}

		resp, rerr := c.httpClient.Do(req)
		if rerr != nil {
			lastErr = rerr
			return rerr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("llm call site %s returned HTTP %d", path, resp.StatusCode)
			return lastErr
		}

		if derr := json.NewDecoder(resp.Body).Decode(out); derr != nil {
			lastErr = fmt.Errorf("decode response: %w", derr)
			return lastErr
		}
		return nil
	}, bo)
	if err != nil {
		c.logger.Warn("llm call site exhausted retries", "path", path, "attempts", attempt, "error", lastErr)
		return lastErr
	}
	return nil
}

func maxAttempts(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
