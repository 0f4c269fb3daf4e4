// Package service defines the collaborators the indexing engine depends on
// and composable implementations of them.
package service

import (
	"context"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
	"github.com/gofhir/indexer/value"
)

// PathEvaluator evaluates a search parameter path expression against a
// resource. Implementations must be safe for concurrent use and must not
// mutate the resource.
type PathEvaluator interface {
	Evaluate(ctx context.Context, res document.Resource, expression string) ([]value.Value, error)
}

// DefinitionSource returns the search parameters declared for a resource type.
// Unknown types yield a *fi.SchemaError wrapping fi.ErrUnknownResourceType.
type DefinitionSource interface {
	Definitions(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error)
}

// CriteriaEvaluator decides whether a single item passes a where() criteria
// expression. item is a decoded JSON node.
type CriteriaEvaluator interface {
	Matches(ctx context.Context, item any, criteria string) (bool, error)
}

// PathEvaluatorFunc adapts a function to PathEvaluator.
type PathEvaluatorFunc func(ctx context.Context, res document.Resource, expression string) ([]value.Value, error)

// Evaluate calls f.
func (f PathEvaluatorFunc) Evaluate(ctx context.Context, res document.Resource, expression string) ([]value.Value, error) {
	return f(ctx, res, expression)
}

// DefinitionSourceFunc adapts a function to DefinitionSource.
type DefinitionSourceFunc func(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error)

// Definitions calls f.
func (f DefinitionSourceFunc) Definitions(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error) {
	return f(ctx, resourceType)
}
