package etl

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildCanonicalJSONSchema returns a JSON-Schema (draft 2020-12 subset) as
// a generic map describing the canonical record shape. Used to validate
// transformer output before anything is loaded downstream.
func BuildCanonicalJSONSchema() map[string]any {
	party := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":       map[string]any{"type": "string"},
			"address":    map[string]any{"type": "string"},
			"tax_id":     map[string]any{"type": "string"},
			"email":      map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
	}
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string"},
			"quantity":    map[string]any{"type": "number"},
			"unit_price":  map[string]any{"type": "number"},
			"total":       map[string]any{"type": "number"},
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"total"},
	}
	summary := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subtotal":    map[string]any{"type": "number"},
			"tax":         map[string]any{"type": "number"},
			"discount":    map[string]any{"type": "number"},
			"grand_total": map[string]any{"type": "number"},
			"currency":    map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
		},
		"required": []string{"grand_total", "currency"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string"},
			"document_type":  map[string]any{"type": "string"},
			"vendor":         party,
			"client":         party,
			"line_items":     map[string]any{"type": "array", "items": lineItem},
			"summary":        summary,
			"issue_date":     map[string]any{"type": "string"},
			"due_date":       map[string]any{"type": "string"},
		},
		"required": []string{"summary"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
