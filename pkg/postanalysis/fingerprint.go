package postanalysis

import (
	"github.com/pagewatch/sentinel/pkg/fingerprint"
	"github.com/pagewatch/sentinel/pkg/models"
)

// buildCandidates projects a page's currently-watching changes into the
// candidate set an LLM call site was given, for fingerprint validation of
// whatever matched_change_id it reports back.
func buildCandidates(changes []*models.DetectedChange) []fingerprint.Candidate {
	out := make([]fingerprint.Candidate, len(changes))
	for i, c := range changes {
		out[i] = fingerprint.Candidate{ID: c.ID, UserID: c.UserID, Scope: c.Scope, Status: c.Status}
	}
	return out
}
