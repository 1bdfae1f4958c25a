package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestNewService_NilWithoutFromAddress(t *testing.T) {
	s := NewService(&fakeSender{}, "", "https://dashboard.example.com")
	assert.Nil(t, s)
}

func TestNilService_MethodsAreNoOps(t *testing.T) {
	var s *Service
	assert.NoError(t, s.ChangeDetected(context.Background(), "user-1", "https://example.com", models.DetectedChange{}))
	assert.NoError(t, s.ChangeResolved(context.Background(), "user-1", "https://example.com", models.DetectedChange{}, models.ChangeStatusValidated))
	assert.NoError(t, s.SendDigest(context.Background(), "user-1", nil))
}

func TestChangeDetected_SendsWatchingEmail(t *testing.T) {
	sender := &fakeSender{}
	s := NewService(sender, "alerts@sentinel.dev", "https://dashboard.example.com")

	change := models.DetectedChange{ID: "chg-1", Element: "hero headline", BeforeValue: "Old", AfterValue: "New"}
	err := s.ChangeDetected(context.Background(), "user-1", "https://example.com", change)

	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "example.com")
	assert.Contains(t, sender.sent[0].Body, "hero headline")
}

func TestChangeResolved_OnlySendsOnValidated(t *testing.T) {
	sender := &fakeSender{}
	s := NewService(sender, "alerts@sentinel.dev", "")

	change := models.DetectedChange{ID: "chg-1", Element: "hero headline"}

	require.NoError(t, s.ChangeResolved(context.Background(), "user-1", "https://example.com", change, models.ChangeStatusRegressed))
	assert.Empty(t, sender.sent)

	require.NoError(t, s.ChangeResolved(context.Background(), "user-1", "https://example.com", change, models.ChangeStatusValidated))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Subject, "Correlation unlocked")
}

func TestChangeResolved_PropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("send failed")}
	s := NewService(sender, "alerts@sentinel.dev", "")

	err := s.ChangeResolved(context.Background(), "user-1", "https://example.com", models.DetectedChange{}, models.ChangeStatusValidated)
	assert.Error(t, err)
}

func TestSendDigest_SkipsEmptyAndSendsNonEmpty(t *testing.T) {
	sender := &fakeSender{}
	s := NewService(sender, "alerts@sentinel.dev", "")

	err := s.SendDigest(context.Background(), "user-1", []DigestEntry{
		{PageURL: "https://example.com/a", Changes: nil},
	})
	require.NoError(t, err)
	assert.Empty(t, sender.sent, "pages with no changes must not trigger an email")

	err = s.SendDigest(context.Background(), "user-1", []DigestEntry{
		{PageURL: "https://example.com/a", Changes: nil},
		{PageURL: "https://example.com/b", Changes: []models.ChangeCandidate{{Element: "pricing table"}}},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Body, "pricing table")
	assert.NotContains(t, sender.sent[0].Body, "/a")
}
