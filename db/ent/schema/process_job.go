package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/db/ent/schema/utils"
)

type ProcessJob struct{ ent.Schema }

func (ProcessJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "process_jobs"},
	}
}

func (ProcessJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		// explicit FK
		field.UUID("document_id", uuid.UUID{}),
		field.String("stage").NotEmpty().
			Validate(utils.EnumValidator(constants.StageNames()...)),
		field.String("status").NotEmpty().
			Validate(utils.EnumValidator(constants.JobStatusNames...)),
		field.Int("progress").Default(0).Min(0).Max(100),
		field.Int("retry_count").Default(0).Min(0),
		field.Time("started_at").Default(time.Now),
		field.Time("finished_at").Optional().Nillable(),
		field.String("error_code").Optional().Nillable(),
		field.String("error_message").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "text"}),
		field.Bool("error_retriable").Default(false),
		field.JSON("stage_history", json.RawMessage{}).Optional(),
		field.JSON("logs", json.RawMessage{}).Optional(),
		field.UUID("result_id", uuid.UUID{}).Optional().Nillable(),
	}
}

func (ProcessJob) Edges() []ent.Edge {
	return []ent.Edge{
		edge.From("document", Document.Type).
			Ref("jobs").
			Field("document_id").
			Unique().
			Required(),
	}
}

func (ProcessJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "status", "started_at"),
		index.Fields("stage"),
	}
}
