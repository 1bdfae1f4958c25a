package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pagewatch/sentinel/pkg/models"
)

// Service dispatches the engine's three outbound emails: change-detected
// (deploy path), correlation-unlocked (checkpoint engine validation), and
// the daily digest (scheduler). Nil-safe: every method is a no-op on a
// nil *Service, grounded on the teacher's pkg/slack.Service pattern so
// callers never need a feature flag to disable notifications, just an
// empty FromAddress in config.
type Service struct {
	sender       EmailSender
	fromAddress  string
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a Service. Returns nil if fromAddress is empty,
// matching the teacher's NewService(cfg) returning nil when Token or
// Channel is unset.
func NewService(sender EmailSender, fromAddress, dashboardURL string) *Service {
	if fromAddress == "" {
		return nil
	}
	return &Service{
		sender:       sender,
		fromAddress:  fromAddress,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// ChangeDetected sends the "watching" email for a newly detected change
// found on the deploy path. Implements pkg/deploypath.Notifier.
// Errors are logged and returned; the deploy path logs them and carries
// on, so a notification outage never blocks it.
func (s *Service) ChangeDetected(ctx context.Context, userID, pageURL string, change models.DetectedChange) error {
	if s == nil {
		return nil
	}
	msg := Message{
		To:      s.recipientFor(userID),
		From:    s.fromAddress,
		Subject: fmt.Sprintf("Watching a new change on %s", pageURL),
		Body:    s.changeDetectedBody(pageURL, change),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("change-detected email failed", "user_id", userID, "change_id", change.ID, "error", err)
		return err
	}
	return nil
}

// ChangeResolved sends the "correlation unlocked" email when a checkpoint
// run resolves a change to validated. Implements pkg/checkpoint.Notifier.
// Per spec §4.5/§6, only a validated finalStatus produces mail; regressed,
// inconclusive, and reverted resolutions are silent by design, and the
// checkpoint engine's own coalescing (§4.5) already ensures this is
// called at most once per change per run. Fail-open.
func (s *Service) ChangeResolved(ctx context.Context, userID, pageURL string, change models.DetectedChange, finalStatus models.ChangeStatus) error {
	if s == nil {
		return nil
	}
	if finalStatus != models.ChangeStatusValidated {
		return nil
	}
	msg := Message{
		To:      s.recipientFor(userID),
		From:    s.fromAddress,
		Subject: fmt.Sprintf("Correlation unlocked on %s", pageURL),
		Body:    s.changeResolvedBody(pageURL, change),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("change-resolved email failed", "user_id", userID, "change_id", change.ID, "error", err)
		return err
	}
	return nil
}

// DigestEntry is one page's contribution to a user's daily digest: the
// page URL and the changes recorded against it in the lookback window.
type DigestEntry struct {
	PageURL string
	Changes []models.ChangeCandidate
}

// SendDigest sends one consolidated email for a user's changed pages in
// the lookback window. Per spec §4.8, entries with no changes are dropped
// here before the email is built; a user with no changed pages at all
// gets no email. Fail-open.
func (s *Service) SendDigest(ctx context.Context, userID string, entries []DigestEntry) error {
	if s == nil {
		return nil
	}
	entries = withChanges(entries)
	if len(entries) == 0 {
		return nil
	}
	msg := Message{
		To:      s.recipientFor(userID),
		From:    s.fromAddress,
		Subject: fmt.Sprintf("Daily digest: %d page(s) changed", len(entries)),
		Body:    s.digestBody(entries),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("digest email failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// recipientFor resolves the destination address for a user. The user
// directory/email lookup is an out-of-scope collaborator (spec §1
// relational store and row-level security); this engine addresses mail
// by user ID, leaving the relational store's email-address expansion to
// the delivery API.
func (s *Service) recipientFor(userID string) string {
	return userID
}

func (s *Service) changeDetectedBody(pageURL string, change models.DetectedChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A new change is being watched on %s.\n\n", pageURL)
	fmt.Fprintf(&b, "%s: %s -> %s\n", change.Element, change.BeforeValue, change.AfterValue)
	if change.Description != "" {
		fmt.Fprintf(&b, "%s\n", change.Description)
	}
	if s.dashboardURL != "" {
		fmt.Fprintf(&b, "\nView details: %s\n", s.dashboardURL)
	}
	return b.String()
}

func (s *Service) changeResolvedBody(pageURL string, change models.DetectedChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A tracked change on %s has been validated against your metrics.\n\n", pageURL)
	fmt.Fprintf(&b, "%s: %s -> %s\n", change.Element, change.BeforeValue, change.AfterValue)
	if change.ObservationText != nil && *change.ObservationText != "" {
		fmt.Fprintf(&b, "\n%s\n", *change.ObservationText)
	}
	if s.dashboardURL != "" {
		fmt.Fprintf(&b, "\nView details: %s\n", s.dashboardURL)
	}
	return b.String()
}

func (s *Service) digestBody(entries []DigestEntry) string {
	var b strings.Builder
	b.WriteString("Here's what changed today:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s (%d change(s))\n", e.PageURL, len(e.Changes))
		for _, c := range e.Changes {
			fmt.Fprintf(&b, "  - %s: %s -> %s\n", c.Element, c.Before, c.After)
		}
	}
	if s.dashboardURL != "" {
		fmt.Fprintf(&b, "\nView details: %s\n", s.dashboardURL)
	}
	return b.String()
}

func withChanges(entries []DigestEntry) []DigestEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if len(e.Changes) > 0 {
			out = append(out, e)
		}
	}
	return out
}
