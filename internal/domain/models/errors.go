package models

import (
	"errors"
	"fmt"
)

var (
	ErrAggregation         = errors.New("aggregation")
	ErrInvalidSubscription = errors.New("invalid subscription")
)

// ValidationError rejects a request before any query runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(field, format string, a ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// StoreQueryError wraps a failure of the time-series store.
type StoreQueryError struct {
	Op  string
	Err error
}

func (e *StoreQueryError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreQueryError) Unwrap() error { return e.Err }
