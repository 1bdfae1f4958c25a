package fingerprint

import (
	"testing"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	candidates := []Candidate{
		{ID: "c1", UserID: "u1", Scope: models.ChangeScopeElement},
		{ID: "c2", UserID: "u1", Scope: models.ChangeScopeSection},
	}

	t.Run("valid match", func(t *testing.T) {
		c, ok := Match("c1", models.ChangeScopeElement, "u1", candidates)
		assert.True(t, ok)
		assert.Equal(t, "c1", c.ID)
	})

	t.Run("empty proposal drops to insert", func(t *testing.T) {
		_, ok := Match("", models.ChangeScopeElement, "u1", candidates)
		assert.False(t, ok)
	})

	t.Run("id not in candidate set drops to insert", func(t *testing.T) {
		_, ok := Match("unknown", models.ChangeScopeElement, "u1", candidates)
		assert.False(t, ok)
	})

	t.Run("scope mismatch drops to insert", func(t *testing.T) {
		_, ok := Match("c1", models.ChangeScopeSection, "u1", candidates)
		assert.False(t, ok)
	})

	t.Run("wrong owner drops to insert", func(t *testing.T) {
		_, ok := Match("c1", models.ChangeScopeElement, "other-user", candidates)
		assert.False(t, ok)
	})
}

func TestValidateRevertIDs(t *testing.T) {
	candidates := []Candidate{
		{ID: "c1", UserID: "u1", Scope: models.ChangeScopeElement},
		{ID: "c2", UserID: "u1", Scope: models.ChangeScopeElement},
	}
	status := map[string]models.ChangeStatus{
		"c1": models.ChangeStatusWatching,
		"c2": models.ChangeStatusValidated,
	}
	lookup := func(id string) models.ChangeStatus { return status[id] }

	got := ValidateRevertIDs([]string{"c1", "c2", "unknown"}, candidates, lookup)
	assert.Equal(t, []string{"c1"}, got)
}
