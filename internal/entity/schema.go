package entity

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

// Field is one named, typed slot in a Schema that extraction must populate.
type Field struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Type        constants.FieldType `json:"type"`
	Validation  string              `json:"validation,omitempty"` // boolean expression over `value`
	Required    bool                `json:"required"`
}

// Schema is a user-owned extraction template. In-flight jobs keep the
// snapshot they were given even if the row is updated afterwards.
type Schema struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Fields    []Field   `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks the schema invariants: at least one field, identifier-safe
// unique names, known types.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errSchema("name is required")
	}
	if len(s.Fields) == 0 {
		return errSchema("at least one field is required")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if !fieldNameRe.MatchString(f.Name) {
			return errSchema("field name must be identifier-safe: " + f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return errSchema("duplicate field name: " + f.Name)
		}
		seen[f.Name] = struct{}{}
		if !constants.IsValidFieldType(string(f.Type)) {
			return errSchema("unknown field type: " + string(f.Type))
		}
	}
	return nil
}

// FieldNames returns the field names in schema order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

type schemaError string

func (e schemaError) Error() string { return "invalid schema: " + string(e) }

func errSchema(msg string) error { return schemaError(msg) }
