package checkpoint

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/models"
)

// Notifier sends the checkpoint engine's terminal-status email. Implemented
// by pkg/notify.Service; declared here so this package never imports the
// ambient notification stack.
type Notifier interface {
	ChangeResolved(ctx context.Context, userID, pageURL string, change models.DetectedChange, finalStatus models.ChangeStatus) error
}

// pendingNotification is one change's most recent terminal transition in
// the current run. Keyed by change id in the caller's map so a later
// horizon's transition (e.g. D+60 reversing a D+30 "validated" to
// "regressed") overwrites rather than duplicates the outbound email.
type pendingNotification struct {
	userID      string
	pageURL     string
	change      models.DetectedChange
	finalStatus models.ChangeStatus
}
