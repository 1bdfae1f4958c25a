package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Analysis holds the schema definition for the Analysis entity.
// One capture+audit attempt for a Page.
type Analysis struct {
	ent.Schema
}

// Fields of the Analysis.
func (Analysis) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("page_id").
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.Enum("status").
			Values("pending", "processing", "complete", "failed").
			Default("pending"),
		field.String("desktop_screenshot_url").
			Optional().
			Nillable(),
		field.String("mobile_screenshot_url").
			Optional().
			Nillable(),
		field.JSON("structured_output", map[string]interface{}{}).
			Optional().
			Comment("Vision-audit structured payload, see structured_output contract"),
		field.JSON("changes_summary", map[string]interface{}{}).
			Optional().
			Nillable().
			Comment("Populated only when a parent, deploy, analytics, or feedback context exists"),
		field.String("parent_analysis_id").
			Optional().
			Nillable(),
		field.String("deploy_id").
			Optional().
			Nillable(),
		field.Enum("trigger_type").
			Values("manual", "daily", "weekly", "deploy"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.String("error_message").
			Optional().
			Nillable(),
	}
}

// Edges of the Analysis.
func (Analysis) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("page", Page.Type).
			Ref("analyses").
			Unique().
			Immutable(),
		edge.To("detected_changes", DetectedChange.Type).
			Annotations(entsql.OnDelete(entsql.SetNull)),
	}
}

// Indexes of the Analysis.
func (Analysis) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("page_id", "status"),
		index.Fields("user_id", "trigger_type", "created_at"),
		index.Fields("status"),
		index.Fields("parent_analysis_id"),
		index.Fields("deploy_id"),
	}
}
