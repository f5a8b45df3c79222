package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid. The store is never touched.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	if len(v.Fields) == 0 {
		return "validation error"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(v.Fields[k], ", "))
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("contract not found")
	ErrConflict = errors.New("contract conflict")
)

// ConflictError reports a conditional write rejected because of the stored contract's state.
// CurrentStatus is empty when the store did not report it.
type ConflictError struct {
	Operation     string
	PropertyID    string
	CurrentStatus Status
	Exists        bool
}

func (e *ConflictError) Error() string {
	switch {
	case !e.Exists:
		return fmt.Sprintf("%s: %s: property %q has no contract", ErrConflict, e.Operation, e.PropertyID)
	case e.CurrentStatus == "":
		return fmt.Sprintf("%s: %s: property %q", ErrConflict, e.Operation, e.PropertyID)
	default:
		return fmt.Sprintf("%s: %s: property %q has a %s contract", ErrConflict, e.Operation, e.PropertyID, e.CurrentStatus)
	}
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError wraps an infrastructure failure reported by the record store.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PublishError reports an event that could not be sent after the write committed.
// Contract holds the state that was persisted.
type PublishError struct {
	Event    string
	Contract Contract
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %q for property %q: %v", e.Event, e.Contract.PropertyID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}
