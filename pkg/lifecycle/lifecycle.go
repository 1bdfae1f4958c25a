// Package lifecycle implements the change lifecycle state machine (spec
// §4.4): every detected_changes status mutation, paired atomically with a
// change_lifecycle_events audit row. Grounded directly on
// pkg/services/session_service.go's ClaimNextPendingSession CAS-via-
// conditional-Update pattern, generalized to detected_changes and wrapped
// in the same tx/defer-Rollback/Commit shape CreateSession uses.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/store"
)

// ErrTerminalChange is returned when a transition is attempted on a change
// already in a terminal (reverted) status (spec §4.4: "reverted -> any:
// forbidden").
var ErrTerminalChange = errors.New("lifecycle: change is in a terminal status")

// TransitionParams describes one status mutation and its audit trail.
type TransitionParams struct {
	ChangeID       string
	FromStatus     models.ChangeStatus
	ToStatus       models.ChangeStatus
	Reason         string
	ActorType      models.ActorType
	CheckpointID   *string
	Metrics        map[string]interface{}
	ObservationText *string
	MatchConfidence *float64
	MatchRationale  *string
}

// Transition performs a CAS status update on a detected_changes row and
// appends the paired lifecycle audit event inside one transaction. If the
// audit insert fails, the transaction is rolled back so the status update
// never survives without its audit row (spec §4.4 invariant).
func Transition(ctx context.Context, changes *store.ChangeStore, events *store.LifecycleStore, p TransitionParams) error {
	if p.FromStatus.IsTerminal() {
		return ErrTerminalChange
	}

	tx, err := changes.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	if err := changes.CASUpdateStatus(ctx, tx, p.ChangeID, p.FromStatus, p.ToStatus,
		p.Metrics, p.ObservationText, p.MatchConfidence, p.MatchRationale); err != nil {
		return err
	}

	from := string(p.FromStatus)
	event := &models.LifecycleEvent{
		ChangeID:     p.ChangeID,
		FromStatus:   &from,
		ToStatus:     string(p.ToStatus),
		ActorType:    p.ActorType,
		CheckpointID: p.CheckpointID,
	}
	if p.Reason != "" {
		event.Reason = &p.Reason
	}
	if err := events.Append(ctx, tx, event); err != nil {
		return fmt.Errorf("append lifecycle event, rolling back status change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}
