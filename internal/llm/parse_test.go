package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/common"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

func invoiceSchema() *entity.Schema {
	return &entity.Schema{
		Name: "invoice",
		Fields: []entity.Field{
			{Name: "invoice_number", Type: constants.FieldString, Required: true},
			{Name: "total", Type: constants.FieldCurrency, Required: true},
			{Name: "vendor", Type: constants.FieldString},
		},
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json untouched", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseFields(t *testing.T) {
	schema := invoiceSchema()

	values, err := ParseFields("```json\n{\"invoice_number\":\"INV-1\",\"total\":150.0,\"vendor\":null}\n```", schema)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", values["invoice_number"])
	assert.Equal(t, 150.0, values["total"])
	assert.Nil(t, values["vendor"])
	assert.Len(t, values, 3)
}

// The model omitting a field entirely reads the same as returning null.
func TestParseFieldsMissingKeysAreNil(t *testing.T) {
	values, err := ParseFields(`{"invoice_number":"INV-1"}`, invoiceSchema())
	require.NoError(t, err)
	assert.Len(t, values, 3)
	assert.Nil(t, values["total"])
	assert.Nil(t, values["vendor"])
}

func TestParseFieldsRejectsNonJSON(t *testing.T) {
	_, err := ParseFields("I could not read the document.", invoiceSchema())
	var invalid *common.InvalidResponseError
	require.ErrorAs(t, err, &invalid)
}

func TestParseFieldsRejectsUnknownKeys(t *testing.T) {
	_, err := ParseFields(`{"invoice_number":"INV-1","made_up_field":1}`, invoiceSchema())
	var invalid *common.InvalidResponseError
	require.ErrorAs(t, err, &invalid)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, float32(0), Confidence(nil))
	assert.Equal(t, float32(0), Confidence(map[string]any{"a": nil, "b": ""}))
	assert.Equal(t, float32(1), Confidence(map[string]any{"a": "x", "b": 1.0}))
	assert.InDelta(t, 0.5, Confidence(map[string]any{"a": "x", "b": nil}), 1e-6)
	// empty arrays and whitespace strings count as empty
	assert.InDelta(t, 0.25, Confidence(map[string]any{
		"a": []any{"x"}, "b": []any{}, "c": "  ", "d": nil,
	}), 1e-6)
}
