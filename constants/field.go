package constants

// FieldType is the declared type of a schema field. It drives both the
// extraction prompt wording and validator type coercion.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldEmail    FieldType = "email"
	FieldCurrency FieldType = "currency"
	FieldArray    FieldType = "array"
)

// FieldTypes holds the allowed values for the type field in schema fields.
var FieldTypes = []FieldType{
	FieldString, FieldNumber, FieldDate, FieldEmail, FieldCurrency, FieldArray,
}

// IsValidFieldType reports whether s is one of the allowed field types.
func IsValidFieldType(s string) bool {
	for _, t := range FieldTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}
