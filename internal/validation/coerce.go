package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anchit2000/invoice-parsing-llms/constants"
)

// dateLayouts are tried in order when coercing a date field. The first match
// wins and is rendered back to ISO-8601.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Coerce converts a raw extracted value to its field type ahead of
// validation. Unparseable numbers and dates coerce to nil rather than
// raising; nil fails any non-null-requiring expression downstream.
func Coerce(value any, fieldType constants.FieldType) any {
	if value == nil {
		return nil
	}

	switch fieldType {
	case constants.FieldNumber, constants.FieldCurrency:
		return coerceNumber(value)
	case constants.FieldDate:
		return coerceDate(value)
	case constants.FieldArray:
		return coerceArray(value)
	case constants.FieldString, constants.FieldEmail:
		return stringify(value)
	default:
		return stringify(value)
	}
}

func coerceNumber(value any) any {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}

func coerceDate(value any) any {
	s := strings.TrimSpace(stringify(value))
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return nil
}

func coerceArray(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(v, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			out = append(out, strings.TrimSpace(p))
		}
		return out
	default:
		return []any{stringify(v)}
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// avoid "1e+06"-style rendering for whole numbers
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
