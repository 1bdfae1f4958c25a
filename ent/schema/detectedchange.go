package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DetectedChange holds the schema definition for the DetectedChange entity,
// the central lifecycle entity of the engine.
//
// page_id and user_id are denormalized here (rather than resolved through
// the analysis edge) so the canonical progress composer never joins
// analyses to count or list items.
type DetectedChange struct {
	ent.Schema
}

// Fields of the DetectedChange.
func (DetectedChange) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("page_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("element").
			Comment("Short natural-language label"),
		field.Enum("scope").
			Values("element", "section", "page"),
		field.Text("before_value"),
		field.Text("after_value"),
		field.Text("description"),
		field.Enum("status").
			Values("watching", "validated", "regressed", "inconclusive", "reverted").
			Default("watching"),
		field.Time("first_detected_at").
			Immutable(),
		field.String("first_detected_analysis_id").
			Immutable(),
		field.String("hypothesis").
			Optional().
			Nillable().
			Comment("User-supplied"),
		field.JSON("correlation_metrics", map[string]interface{}{}).
			Optional().
			Nillable().
			Comment("Last recorded evidence snapshot"),
		field.Time("correlation_unlocked_at").
			Optional().
			Nillable().
			Comment("Non-null iff the change has ever left watching"),
		field.Text("observation_text").
			Optional().
			Nillable(),
		field.Float("match_confidence").
			Optional().
			Nillable(),
		field.String("match_rationale").
			Optional().
			Nillable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Edges of the DetectedChange.
func (DetectedChange) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("page", Page.Type).
			Ref("detected_changes").
			Unique().
			Immutable(),
		edge.To("checkpoints", CheckpointRow.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
		edge.To("lifecycle_events", LifecycleEvent.Type).
			Annotations(entsql.OnDelete(entsql.Cascade)),
	}
}

// Indexes of the DetectedChange.
func (DetectedChange) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id", "status"),
		index.Fields("page_id", "status"),
		index.Fields("status", "first_detected_at"),
	}
}
