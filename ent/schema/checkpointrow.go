package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CheckpointRow holds the schema definition for the CheckpointRow entity
// (table name change_checkpoints). Immutable per (change_id, horizon_days):
// the store layer never exposes an Update builder for this entity, mirroring
// the teacher's treatment of its own append-only timeline rows.
type CheckpointRow struct {
	ent.Schema
}

// Fields of the CheckpointRow.
func (CheckpointRow) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("change_id").
			Immutable(),
		field.Int("horizon_days").
			Immutable(),
		field.Time("before_window_start").
			Immutable(),
		field.Time("before_window_end").
			Immutable(),
		field.Time("after_window_start").
			Immutable(),
		field.Time("after_window_end").
			Immutable(),
		field.JSON("metrics_json", map[string]interface{}{}).
			Immutable(),
		field.Enum("assessment").
			Values("improved", "regressed", "neutral", "inconclusive").
			Immutable(),
		field.Float("confidence").
			Optional().
			Nillable().
			Immutable(),
		field.Text("reasoning").
			Immutable(),
		field.JSON("data_sources", []string{}).
			Immutable(),
		field.String("provider").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Edges of the CheckpointRow.
func (CheckpointRow) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("change", DetectedChange.Type).
			Ref("checkpoints").
			Unique().
			Immutable(),
	}
}

// Indexes of the CheckpointRow.
func (CheckpointRow) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("change_id", "horizon_days").
			Unique(),
	}
}
