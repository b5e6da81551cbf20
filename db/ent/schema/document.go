package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"

	"github.com/ledgerline/docpipe/constants"
	"github.com/ledgerline/docpipe/db/ent/schema/utils"
)

type Document struct{ ent.Schema }

func (Document) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "documents"},
	}
}

func (Document) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.String("filename").NotEmpty(),
		field.String("checksum").NotEmpty().MaxLen(64),
		field.String("source_type").NotEmpty(),
		field.UUID("source_id", uuid.UUID{}).Optional().Nillable(),
		field.String("format").NotEmpty().
			Validate(utils.EnumValidator(constants.FileFormatNames...)),
		field.UUID("user_id", uuid.UUID{}).Optional().Nillable(),
		field.Strings("tags").Optional(),
		field.Time("ingested_at").Default(time.Now).Immutable(),
	}
}

func (Document) Edges() []ent.Edge {
	return []ent.Edge{
		// ONE document -> MANY jobs
		edge.To("jobs", ProcessJob.Type),
		// ONE document -> MANY loaded records (usually one)
		edge.To("records", InvoiceRecord.Type),
	}
}

func (Document) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("checksum").Unique(),
		index.Fields("ingested_at"),
	}
}
