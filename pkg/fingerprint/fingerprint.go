// Package fingerprint validates LLM-proposed identifiers against the exact
// candidate set an orchestrator sent, before trusting them to mutate a row.
// Every id from an LLM is untrusted input (spec §9 "LLM matched_change_id
// trust boundary"): membership, ownership, and scope must all be checked,
// or the proposal is dropped to a fresh insert.
package fingerprint

import "github.com/pagewatch/sentinel/pkg/models"

// Candidate is one existing watching change eligible to be matched against.
type Candidate struct {
	ID     string
	UserID string
	Scope  models.ChangeScope
	Status models.ChangeStatus
}

// Match validates a proposed matched_change_id from an LLM-reported change
// against the candidate set that was actually sent to the LLM. It returns
// the matched candidate and true only if:
//   - proposedID is non-empty and present in candidates,
//   - the candidate's scope equals the proposed scope,
//   - the candidate is owned by userID.
//
// Any failure degrades to (zero value, false): the caller must treat this
// as "insert a fresh row", never as an error.
func Match(proposedID string, proposedScope models.ChangeScope, userID string, candidates []Candidate) (Candidate, bool) {
	if proposedID == "" {
		return Candidate{}, false
	}
	for _, c := range candidates {
		if c.ID != proposedID {
			continue
		}
		if c.Scope != proposedScope {
			return Candidate{}, false
		}
		if c.UserID != userID {
			return Candidate{}, false
		}
		return c, true
	}
	return Candidate{}, false
}

// ValidateRevertIDs filters a list of LLM-proposed revert ids down to those
// that are (a) present in candidates and (b) currently watching per
// watchingStatus. Ownership is not checked beyond candidate membership;
// Candidate.UserID is not compared. Order is preserved; unmatched ids are
// silently dropped (spec §4.2 Revert detection).
func ValidateRevertIDs(proposed []string, candidates []Candidate, watchingStatus func(changeID string) models.ChangeStatus) []string {
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	var valid []string
	for _, id := range proposed {
		cand, ok := byID[id]
		if !ok {
			continue
		}
		if watchingStatus(id) != models.ChangeStatusWatching {
			continue
		}
		_ = cand // ownership already encoded by candidate-set membership
		valid = append(valid, id)
	}
	return valid
}
