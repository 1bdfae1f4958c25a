package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Page holds the schema definition for the Page entity.
// A Page is a watched URL owned by a user.
type Page struct {
	ent.Schema
}

// Fields of the Page.
func (Page) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("url"),
		field.Enum("scan_frequency").
			Values("daily", "weekly", "manual").
			Default("daily"),
		field.String("stable_baseline_id").
			Optional().
			Nillable().
			Comment("Analysis id considered canonical; service layer enforces same-user/same-url/complete"),
		field.String("last_scan_id").
			Optional().
			Nillable(),
		field.String("metric_focus").
			Optional().
			Nillable().
			Comment("Free-text focus used to bias the assessor"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the Page.
func (Page) Edges() []ent.Edge {
	return []ent.Edge{
		edge.To("analyses", Analysis.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("detected_changes", DetectedChange.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("tracked_suggestions", TrackedSuggestion.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the Page.
func (Page) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id"),
		index.Fields("scan_frequency"),
		index.Fields("user_id", "url").
			Unique(),
	}
}
