// Package parsererror defines the typed errors raised at pipeline stage boundaries.
package parsererror

import (
	"errors"
	"fmt"
)

// ErrNoTransactions is reported when every pipeline strategy came back empty.
var ErrNoTransactions = errors.New("no transactions extracted")

// ErrMalformedRegion marks a table region whose cells lack usable indices.
var ErrMalformedRegion = errors.New("malformed table region")

// StructuralError describes a table-level defect. The offending unit is skipped.
type StructuralError struct {
	TableID int
	Page    int
	Reason  string
	Err     error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("table %d (page %d): %s: %v", e.TableID, e.Page, e.Reason, e.Err)
	}
	return fmt.Sprintf("table %d (page %d): %s", e.TableID, e.Page, e.Reason)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// ServiceError wraps a failure of an external suggestion service.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// MappingError reports a suggestion-service response that failed validation.
// The whole response is rejected.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid column mapping: %s", e.Reason)
	}
	return fmt.Sprintf("invalid column mapping at %s: %s", e.Field, e.Reason)
}

// InvariantError is produced when a stage panics; the panic value is preserved.
type InvariantError struct {
	Stage string
	Value interface{}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal error in %s: %v", e.Stage, e.Value)
}

// ValidationError represents an invalid input file or argument.
type ValidationError struct {
	FilePath string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.FilePath, e.Reason)
}

// InvalidFormatError represents an input file that does not conform to any
// supported OCR document layout.
type InvalidFormatError struct {
	FilePath             string
	ExpectedFormat       string
	ActualContentSnippet string
	Msg                  string
}

func (e *InvalidFormatError) Error() string {
	if e.ActualContentSnippet != "" {
		return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s. Content snippet: '%s'",
			e.FilePath, e.Msg, e.ExpectedFormat, e.ActualContentSnippet)
	}
	return fmt.Sprintf("invalid format in file '%s': %s. Expected: %s",
		e.FilePath, e.Msg, e.ExpectedFormat)
}

// RuleError describes a correction rule rejected by the rule store.
type RuleError struct {
	Pattern string
	Reason  string
	Err     error
}

func (e *RuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule %q rejected: %s: %v", e.Pattern, e.Reason, e.Err)
	}
	return fmt.Sprintf("rule %q rejected: %s", e.Pattern, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Recover converts a recovered panic value into an InvariantError.
// It returns nil when r is nil.
func Recover(stage string, r interface{}) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return &InvariantError{Stage: stage, Value: err}
	}
	return &InvariantError{Stage: stage, Value: r}
}
