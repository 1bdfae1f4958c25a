package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// OutcomeFeedback holds the schema definition for the OutcomeFeedback entity:
// a user judgment on a prior checkpoint, fed back into future checkpoint
// prompts.
type OutcomeFeedback struct {
	ent.Schema
}

// Fields of the OutcomeFeedback.
func (OutcomeFeedback) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("change_id").
			Immutable(),
		field.String("checkpoint_id").
			Optional().
			Nillable().
			Immutable(),
		field.Enum("feedback_type").
			Values("accurate", "inaccurate").
			Immutable(),
		field.Text("text").
			Optional().
			Nillable().
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the OutcomeFeedback.
func (OutcomeFeedback) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("change_id"),
	}
}
