package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Deploy holds the schema definition for the Deploy entity.
// One webhook-ingested commit batch.
type Deploy struct {
	ent.Schema
}

// Fields of the Deploy.
func (Deploy) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("user_id").
			Immutable(),
		field.String("repo_id"),
		field.String("commit_sha"),
		field.String("full_name"),
		field.Enum("status").
			Values("pending", "scanning", "complete").
			Default("pending"),
		field.JSON("changed_files", []string{}).
			Comment("Used to filter which pages are affected"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the Deploy.
func (Deploy) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("user_id"),
		index.Fields("status"),
		index.Fields("repo_id", "commit_sha"),
	}
}
