package llm

import (
	"encoding/json"
	"strings"

	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// StripFences removes a markdown code-fence wrapper, if present, so fenced
// and unfenced JSON parse identically.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseFields parses a model response into the schema's field map. Every
// schema field appears in the result; fields the model omitted or returned
// as null map to nil. A response that is not a JSON object, or that carries
// keys outside the field-name set, is an InvalidResponseError.
func ParseFields(response string, schema *entity.Schema) (map[string]any, error) {
	cleaned := StripFences(response)

	var raw map[string]any
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, &common.InvalidResponseError{Reason: "not a JSON object", Cause: err}
	}

	if err := ValidateJSONAgainstSchema(BuildFieldJSONSchema(schema), []byte(cleaned)); err != nil {
		return nil, &common.InvalidResponseError{Reason: "field-name mismatch", Cause: err}
	}

	out := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		out[f.Name] = raw[f.Name] // missing keys read as nil
	}
	return out, nil
}

// Confidence is the fraction of non-null, non-empty values over the total
// field count. Heuristic signal only; never treat it as a probability.
func Confidence(fieldValues map[string]any) float32 {
	if len(fieldValues) == 0 {
		return 0
	}
	nonEmpty := 0
	for _, v := range fieldValues {
		switch t := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(t) != "" {
				nonEmpty++
			}
		case []any:
			if len(t) > 0 {
				nonEmpty++
			}
		default:
			nonEmpty++
		}
	}
	return float32(nonEmpty) / float32(len(fieldValues))
}
