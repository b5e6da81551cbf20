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
)

type InvoiceRecord struct{ ent.Schema }

func (InvoiceRecord) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "invoice_records"},
	}
}

func (InvoiceRecord) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.UUID("document_id", uuid.UUID{}),
		field.UUID("pipeline_id", uuid.UUID{}),
		field.String("checksum").NotEmpty().MaxLen(64),
		field.String("invoice_number").Optional(),
		field.String("vendor_name").Optional(),
		field.String("client_name").Optional(),
		field.Float("subtotal").
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.Float("tax").
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.Float("discount").
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.Float("grand_total").
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.String("currency").NotEmpty().MinLen(3).MaxLen(3).
			SchemaType(map[string]string{dialect.Postgres: "char(3)"}),
		field.Time("issue_date").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "date"}),
		field.Time("due_date").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "date"}),
		field.JSON("line_items", json.RawMessage{}).Optional(),
		field.Time("created_at").Default(time.Now),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (InvoiceRecord) Edges() []ent.Edge {
	return []ent.Edge{
		// MANY records -> ONE document (FK: invoice_records.document_id)
		edge.From("document", Document.Type).
			Ref("records").
			Field("document_id").
			Required().
			Unique(),
	}
}

func (InvoiceRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id").Unique(),
		index.Fields("vendor_name"),
		index.Fields("issue_date"),
	}
}
