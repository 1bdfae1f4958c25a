package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LifecycleEvent holds the schema definition for the LifecycleEvent entity
// (table name change_lifecycle_events). One audit row per status mutation of
// a DetectedChange.
type LifecycleEvent struct {
	ent.Schema
}

// Fields of the LifecycleEvent.
func (LifecycleEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("change_id").
			Immutable(),
		field.String("from_status").
			Optional().
			Nillable().
			Immutable().
			Comment("Absent for the initial (none) -> watching transition"),
		field.String("to_status").
			Immutable(),
		field.Text("reason").
			Optional().
			Nillable().
			Immutable(),
		field.Enum("actor_type").
			Values("system", "user").
			Immutable(),
		field.String("checkpoint_id").
			Optional().
			Nillable().
			Immutable().
			Comment("Set for every checkpoint-driven status change"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the LifecycleEvent.
func (LifecycleEvent) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("change", DetectedChange.Type).
			Ref("lifecycle_events").
			Unique().
			Immutable(),
	}
}

// Indexes of the LifecycleEvent.
func (LifecycleEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("change_id", "created_at"),
		index.Fields("checkpoint_id"),
	}
}
