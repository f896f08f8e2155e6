package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"float passthrough", 150.5, 150.5},
		{"int widens", 42, float64(42)},
		{"plain string", "150.00", 150.0},
		{"thousands separators", "1,234.56", 1234.56},
		{"surrounding whitespace", "  99.9 ", 99.9},
		{"negative", "-5", -5.0},
		{"unparseable", "a lot", nil},
		{"nil stays nil", nil, nil},
		{"bool is not a number", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.value, constants.FieldNumber))
		})
	}
}

func TestCoerceCurrencyMatchesNumber(t *testing.T) {
	assert.Equal(t, 1234.56, Coerce("1,234.56", constants.FieldCurrency))
	assert.Nil(t, Coerce("USD", constants.FieldCurrency))
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  any
	}{
		{"iso passthrough", "2024-03-15", "2024-03-15"},
		{"us slashes", "03/15/2024", "2024-03-15"},
		{"european dots", "15.03.2024", "2024-03-15"},
		{"long form", "Mar 15, 2024", "2024-03-15"},
		{"rfc3339", "2024-03-15T10:30:00Z", "2024-03-15"},
		{"garbage", "sometime soon", nil},
		{"empty", "", nil},
		{"nil stays nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.value, constants.FieldDate))
		})
	}
}

// Coercing an already coerced value must be a no-op.
func TestCoerceIdempotent(t *testing.T) {
	cases := []struct {
		value any
		ft    constants.FieldType
	}{
		{"1,250.00", constants.FieldNumber},
		{"03/15/2024", constants.FieldDate},
		{"a, b, c", constants.FieldArray},
		{42.0, constants.FieldString},
	}
	for _, c := range cases {
		once := Coerce(c.value, c.ft)
		twice := Coerce(once, c.ft)
		assert.Equal(t, once, twice, "type %s value %v", c.ft, c.value)
	}
}

func TestCoerceArray(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, Coerce([]any{"a", "b"}, constants.FieldArray))
	assert.Equal(t, []any{"a", "b", "c"}, Coerce("a, b,c", constants.FieldArray))
	assert.Equal(t, []any{"42"}, Coerce(42.0, constants.FieldArray))
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "hello", Coerce("hello", constants.FieldString))
	// whole-number floats render without an exponent or trailing zeros
	assert.Equal(t, "1000000", Coerce(1e6, constants.FieldString))
	assert.Equal(t, "1.5", Coerce(1.5, constants.FieldString))
	assert.Equal(t, "a@b.com", Coerce("a@b.com", constants.FieldEmail))
}
