package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

func TestSchemaValidate(t *testing.T) {
	valid := Schema{
		Name: "invoice",
		Fields: []Field{
			{Name: "invoice_number", Type: constants.FieldString},
			{Name: "total", Type: constants.FieldCurrency},
		},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(s *Schema)
		wantErr string
	}{
		{"missing name", func(s *Schema) { s.Name = "" }, "name is required"},
		{"no fields", func(s *Schema) { s.Fields = nil }, "at least one field"},
		{"bad field name", func(s *Schema) { s.Fields[0].Name = "invoice number" }, "identifier-safe"},
		{"leading digit", func(s *Schema) { s.Fields[0].Name = "1st" }, "identifier-safe"},
		{"duplicate field", func(s *Schema) { s.Fields[1].Name = s.Fields[0].Name }, "duplicate"},
		{"unknown type", func(s *Schema) { s.Fields[0].Type = "decimal" }, "unknown field type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			s.Fields = append([]Field(nil), valid.Fields...)
			tt.mutate(&s)
			err := s.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSchemaFieldNames(t *testing.T) {
	s := Schema{Fields: []Field{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, []string{"a", "b"}, s.FieldNames())
}
