package common

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("duplicate content")
	ErrJobStalled   = errors.New("job stalled")
	ErrInternal     = errors.New("internal error")
)

// RenderError indicates malformed input or a page conversion failure inside
// the renderer. Pages already produced before the failure may still be usable.
type RenderError struct {
	Page  int // 0 when the whole document failed
	Cause error
}

func (e *RenderError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("render failed at page %d: %v", e.Page, e.Cause)
	}
	return fmt.Sprintf("render failed: %v", e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// SizeError indicates input exceeding the configured byte ceiling.
type SizeError struct {
	Size  int64
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("input size %d exceeds limit %d", e.Size, e.Limit)
}

// InvalidResponseError indicates model output that could not be parsed into
// the expected field-name set.
type InvalidResponseError struct {
	Reason string
	Cause  error
}

func (e *InvalidResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid model response: %s: %v", e.Reason, e.Cause)
	}
	return "invalid model response: " + e.Reason
}

func (e *InvalidResponseError) Unwrap() error { return e.Cause }

// ExtractionExhaustedError is returned once the retry budget is spent. It
// carries the last underlying error and the attempt count.
type ExtractionExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExtractionExhaustedError) Error() string {
	return fmt.Sprintf("extraction failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExtractionExhaustedError) Unwrap() error { return e.Last }

// PersistenceError indicates a store write or read failure.
type PersistenceError struct {
	Op    string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
