package fhirindexer

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrSchema matches any *SchemaError.
	ErrSchema = errors.New("schema error")

	// ErrPathEvaluation matches any *PathEvaluationError.
	ErrPathEvaluation = errors.New("path evaluation error")

	// ErrUnknownResourceType is wrapped by a SchemaError when no search
	// parameters are registered for a resource type.
	ErrUnknownResourceType = errors.New("unknown resource type")

	// ErrMissingResourceType is wrapped by a SchemaError when a document
	// does not declare its type.
	ErrMissingResourceType = errors.New("missing resourceType")
)

// SchemaError reports that search parameter definitions could not be
// discovered for a resource type. It aborts indexing of the document.
type SchemaError struct {
	ResourceType string
	Err          error
}

func (e *SchemaError) Error() string {
	if e.ResourceType == "" {
		return fmt.Sprintf("schema error: %v", e.Err)
	}
	return fmt.Sprintf("schema error for %s: %v", e.ResourceType, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// PathEvaluationError reports that a search parameter's path expression could
// not be evaluated. It aborts indexing of the document.
type PathEvaluationError struct {
	Parameter  string
	Expression string
	Err        error
}

func (e *PathEvaluationError) Error() string {
	return fmt.Sprintf("evaluating %s (%q): %v", e.Parameter, e.Expression, e.Err)
}

func (e *PathEvaluationError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPathEvaluation.
func (e *PathEvaluationError) Is(target error) bool { return target == ErrPathEvaluation }
