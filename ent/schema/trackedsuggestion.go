package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TrackedSuggestion holds the schema definition for the TrackedSuggestion
// entity: a persistent open-action surfaced by post-analysis.
type TrackedSuggestion struct {
	ent.Schema
}

// Fields of the TrackedSuggestion.
func (TrackedSuggestion) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("page_id").
			Immutable(),
		field.String("title"),
		field.String("element"),
		field.Text("suggested_fix"),
		field.Enum("impact").
			Values("high", "medium", "low"),
		field.Enum("status").
			Values("open", "addressed", "dismissed").
			Default("open"),
		field.Int("times_suggested").
			Default(1),
		field.Time("first_suggested_at").
			Default(time.Now).
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the TrackedSuggestion.
func (TrackedSuggestion) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("page", Page.Type).
			Ref("tracked_suggestions").
			Unique().
			Immutable(),
	}
}

// Indexes of the TrackedSuggestion.
func (TrackedSuggestion) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("page_id", "status"),
		// normalized (element, title) dedup key is enforced at the store layer,
		// since the key needs lower()/trim() normalization ent can't express here.
	}
}
