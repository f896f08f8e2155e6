package validation

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(time.Second, nil)
}

func TestValidateFieldNoExpression(t *testing.T) {
	v := newTestValidator(t)
	res := v.ValidateField("notes", "anything", "", constants.FieldString)
	assert.True(t, res.IsValid)
	assert.Equal(t, "No validation defined", res.Message)
}

func TestValidateFieldExpressions(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name       string
		value      any
		expression string
		fieldType  constants.FieldType
		wantValid  bool
	}{
		{"positive total passes", "150.00", "value > 0", constants.FieldCurrency, true},
		{"negative total fails", "-5", "value > 0", constants.FieldCurrency, false},
		{"string length", "INV-2024-001", `len(value) > 5`, constants.FieldString, true},
		{"regex match", "a@b.com", `value matches "^[^@]+@[^@]+$"`, constants.FieldEmail, true},
		{"regex mismatch", "not-an-email", `value matches "^[^@]+@[^@]+$"`, constants.FieldEmail, false},
		{"range check", "500", "value >= 0 && value <= 1000", constants.FieldNumber, true},
		{"nil value fails comparison", nil, "value > 0", constants.FieldNumber, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.ValidateField("f", tt.value, tt.expression, tt.fieldType)
			assert.Equal(t, tt.wantValid, res.IsValid, "message: %s", res.Message)
		})
	}
}

// Expression errors report as invalid with a message, never as a panic or a
// batch failure.
func TestValidateFieldExpressionError(t *testing.T) {
	v := newTestValidator(t)

	res := v.ValidateField("f", "x", "value +++", constants.FieldString)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Message, "Validation error")

	// non-boolean result is an error too
	res = v.ValidateField("f", "5", "value + 1", constants.FieldNumber)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Message, "Validation error")
}

func TestValidateFieldTimeoutStopsEvaluation(t *testing.T) {
	v := NewValidator(5*time.Millisecond, nil)
	before := runtime.NumGoroutine()

	res := v.ValidateField("n", 1, "all(1..500000, {# >= 0 and # <= 1000000})", constants.FieldNumber)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Message, "timed out")

	// the evaluator goroutine stops once the deadline context fires
	deadline := time.Now().Add(5 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before)
}

func TestValidateAllCoverage(t *testing.T) {
	v := newTestValidator(t)
	schema := &entity.Schema{
		Name: "invoice",
		Fields: []entity.Field{
			{Name: "invoice_number", Type: constants.FieldString, Validation: `len(value) > 0`, Required: true},
			{Name: "total", Type: constants.FieldCurrency, Validation: "value > 0", Required: true},
			{Name: "vendor", Type: constants.FieldString},
		},
	}

	extracted := map[string]any{
		"invoice_number": "INV-2024-001",
		"total":          "150.00",
		// vendor intentionally missing
	}
	batch := v.ValidateAll(extracted, schema)

	require.Len(t, batch.Results, 3)
	assert.Equal(t, "invoice_number", batch.Results[0].FieldName)
	assert.Equal(t, "total", batch.Results[1].FieldName)
	assert.Equal(t, "vendor", batch.Results[2].FieldName)
	assert.True(t, batch.AllValid)
	assert.Equal(t, 3, batch.ValidCount)
	assert.Equal(t, 3, batch.TotalCount)
}

func TestValidateAllFailureIsolated(t *testing.T) {
	v := newTestValidator(t)
	schema := &entity.Schema{
		Name: "invoice",
		Fields: []entity.Field{
			{Name: "invoice_number", Type: constants.FieldString, Validation: `len(value) > 0`},
			{Name: "total", Type: constants.FieldCurrency, Validation: "value > 0"},
		},
	}

	batch := v.ValidateAll(map[string]any{
		"invoice_number": "INV-1",
		"total":          "-5",
	}, schema)

	require.Len(t, batch.Results, 2)
	assert.True(t, batch.Results[0].IsValid)
	assert.False(t, batch.Results[1].IsValid)
	assert.False(t, batch.AllValid)
	assert.Equal(t, 1, batch.ValidCount)
}

func TestValidateCoercedValueVisibleToExpression(t *testing.T) {
	v := newTestValidator(t)
	// the expression sees the coerced float, not the raw string
	res := v.ValidateField("total", "1,250.00", "value == 1250.0", constants.FieldCurrency)
	assert.True(t, res.IsValid, res.Message)
	assert.Equal(t, 1250.0, res.Value)
}
