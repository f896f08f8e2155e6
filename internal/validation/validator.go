package validation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"

	"github.com/anchit2000/invoice-parsing-llms/constants"
	"github.com/anchit2000/invoice-parsing-llms/internal/entity"
)

// FieldResult is the outcome of validating one field.
type FieldResult struct {
	FieldName  string `json:"field_name"`
	Expression string `json:"expression,omitempty"`
	IsValid    bool   `json:"is_valid"`
	Message    string `json:"message"`
	Value      any    `json:"value,omitempty"` // coerced value the expression saw
}

// BatchResult aggregates per-field outcomes for one document. It always
// covers every schema field; expression errors never fail the batch.
type BatchResult struct {
	Results    []FieldResult `json:"results"`
	AllValid   bool          `json:"all_valid"`
	ValidCount int           `json:"valid_count"`
	TotalCount int           `json:"total_count"`
}

// Validator evaluates per-field boolean expressions over coerced values.
// Expressions run in the expr restricted language (comparisons, arithmetic,
// boolean operators, `matches`, len) with no process, network, or filesystem
// access, under a hard wall-clock cap.
type Validator struct {
	timeout time.Duration
	logger  *slog.Logger
}

func NewValidator(timeout time.Duration, logger *slog.Logger) *Validator {
	if timeout <= 0 {
		timeout = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{timeout: timeout, logger: logger}
}

// ValidateField coerces value per fieldType and evaluates expression against
// it. An absent expression always passes; required-ness is enforced upstream.
func (v *Validator) ValidateField(fieldName string, value any, expression string, fieldType constants.FieldType) FieldResult {
	res := FieldResult{FieldName: fieldName, Expression: strings.TrimSpace(expression)}
	res.Value = Coerce(value, fieldType)

	if res.Expression == "" {
		res.IsValid = true
		res.Message = "No validation defined"
		return res
	}

	ok, err := v.evaluate(res.Expression, res.Value)
	if err != nil {
		v.logger.Warn("validation.expression_error",
			"field", fieldName, "expression", res.Expression, "error", err)
		res.IsValid = false
		res.Message = "Validation error: " + err.Error()
		return res
	}

	res.IsValid = ok
	if ok {
		res.Message = "Validation passed"
	} else {
		res.Message = "Validation failed"
	}
	return res
}

// evaluate compiles and runs the expression with `value` bound to the single
// coerced value, bounded by the validator's wall-clock cap. The deadline
// context is handed to the program itself so a slow evaluation is stopped,
// not just abandoned.
func (v *Validator) evaluate(expression string, value any) (bool, error) {
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.WithContext("ctx"))
	if err != nil {
		return false, fmt.Errorf("compile: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	type evalOut struct {
		result any
		err    error
	}
	done := make(chan evalOut, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalOut{err: fmt.Errorf("runtime panic: %v", r)}
			}
		}()
		out, runErr := expr.Run(program, map[string]any{"value": value, "ctx": ctx})
		done <- evalOut{result: out, err: runErr}
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("expression timed out after %s", v.timeout)
	case out := <-done:
		if out.err != nil {
			return false, fmt.Errorf("run: %w", out.err)
		}
		b, ok := out.result.(bool)
		if !ok {
			return false, fmt.Errorf("expression must return a boolean, got %T", out.result)
		}
		return b, nil
	}
}

// ValidateAll validates every schema field independently and concurrently.
// The result slice follows schema field order; coverage over the field-name
// set is exact regardless of what extraction returned.
func (v *Validator) ValidateAll(extracted map[string]any, schema *entity.Schema) BatchResult {
	results := make([]FieldResult, len(schema.Fields))

	var wg sync.WaitGroup
	for i, f := range schema.Fields {
		wg.Add(1)
		go func(i int, f entity.Field) {
			defer wg.Done()
			results[i] = v.ValidateField(f.Name, extracted[f.Name], f.Validation, f.Type)
		}(i, f)
	}
	wg.Wait()

	batch := BatchResult{Results: results, TotalCount: len(results), AllValid: true}
	for _, r := range results {
		if r.IsValid {
			batch.ValidCount++
		} else {
			batch.AllValid = false
		}
	}
	return batch
}
