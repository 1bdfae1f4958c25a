// Package notify sends the engine's outbound emails: the deploy-path
// "change detected" email, the checkpoint engine's "change resolved"
// email, and the scheduler's daily digest (spec §4.3, §4.4, §4.8, §6).
// Email delivery is an out-of-scope external collaborator; EmailSender
// is the narrow contract this package reaches it through, modeled on
// the screenshot client's plain http.Client request shape.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/pagewatch/sentinel/pkg/config"
)

// EmailSender delivers a single rendered email. Implementations own
// retry/transport concerns; Service only builds content.
type EmailSender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single outbound email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HTTPSender is an EmailSender backed by a transactional email API,
// reached over HTTP/JSON with jittered retry, the same pattern
// pkg/screenshot uses for its out-of-scope collaborator.
type HTTPSender struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	maxAttempts int
}

// NewHTTPSender creates an HTTPSender from config.
func NewHTTPSender(cfg config.NotifyConfig) *HTTPSender {
	return &HTTPSender{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Send posts msg to the email API's send endpoint, retrying transient
// failures with exponential backoff.
func (h *HTTPSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email message: %w", err)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(attempts(h.maxAttempts)-1))
	bo = backoff.WithContext(bo, ctx)

	return backoff.Retry(func() error {
		req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/send", bytes.NewReader(body))
		if rerr != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", rerr))
		}
		req.Header.Set("Content-Type", "application/json")
		if h.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+h.apiKey)
		}

		resp, rerr := h.httpClient.Do(req)
		if rerr != nil {
			return rerr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("email service returned HTTP %d", resp.StatusCode)
		}
		return nil
	}, bo)
}

func attempts(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
