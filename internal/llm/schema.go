package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// BuildFieldJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map for the schema's field-name set. The model may return any
// scalar/array shape per field (values are coerced later by the validator)
// and may omit null fields, but it must not invent keys.
func BuildFieldJSONSchema(schema *entity.Schema) map[string]any {
	props := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		props[f.Name] = map[string]any{
			"type": []string{"string", "number", "integer", "boolean", "array", "null"},
		}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
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
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
