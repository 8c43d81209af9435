package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks scheduling overlaps and duplicate documents.
	ErrConflict = errors.New("conflict")
	// ErrIllegalTransition marks state machine violations.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrFinancialInvariant marks monetary inconsistencies such as overpayment.
	ErrFinancialInvariant = errors.New("financial invariant violated")
)

// ValidationError lists offending fields with a reason each.
type ValidationError struct {
	Fields map[string]string
}

// Invalid builds a single-field ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: fmt.Sprintf(format, args...)}}
}

// Add records another offending field.
func (e *ValidationError) Add(field, format string, args ...any) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = fmt.Sprintf(format, args...)
}

// OrNil returns nil when no field was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError carries the records that caused the conflict so callers can
// offer alternatives.
type ConflictError struct {
	Reason    string
	Conflicts any
}

func (e *ConflictError) Error() string {
	if e.Reason == "" {
		return "conflict"
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// IllegalTransitionError reports the current and attempted state. The entity is
// left unchanged whenever this error is returned.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *IllegalTransitionError) Error() string {
	msg := fmt.Sprintf("%s: illegal transition %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *IllegalTransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// FinancialInvariantError surfaces a monetary inconsistency instead of clamping it.
type FinancialInvariantError struct {
	Invariant string
	Detail    string
}

func (e *FinancialInvariantError) Error() string {
	return fmt.Sprintf("financial invariant %s violated: %s", e.Invariant, e.Detail)
}

func (e *FinancialInvariantError) Is(target error) bool { return target == ErrFinancialInvariant }
