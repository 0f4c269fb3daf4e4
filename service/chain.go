package service

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	fi "github.com/gofhir/indexer"
)

// --- Definition Chain ---

// DefinitionChain implements DefinitionSource by trying multiple sources in
// order. The first source that knows the resource type wins.
type DefinitionChain struct {
	sources []DefinitionSource
}

// NewDefinitionChain creates a new definition chain.
func NewDefinitionChain(sources ...DefinitionSource) *DefinitionChain {
	return &DefinitionChain{sources: sources}
}

// Definitions tries each source until one knows the resource type.
func (c *DefinitionChain) Definitions(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error) {
	if resourceType == "" {
		return nil, &fi.SchemaError{Err: fi.ErrMissingResourceType}
	}
	for _, source := range c.sources {
		defs, err := source.Definitions(ctx, resourceType)
		if err == nil {
			return defs, nil
		}
		// Continue to next source if the type is unknown there
		if !errors.Is(err, fi.ErrUnknownResourceType) {
			return nil, err
		}
	}
	return nil, &fi.SchemaError{ResourceType: resourceType, Err: fi.ErrUnknownResourceType}
}

// Add appends a source to the chain.
func (c *DefinitionChain) Add(source DefinitionSource) {
	c.sources = append(c.sources, source)
}

// Len returns the number of sources in the chain.
func (c *DefinitionChain) Len() int {
	return len(c.sources)
}

// --- Caching Wrappers ---

// CachingDefinitionSource wraps a DefinitionSource with an LRU cache keyed by
// resource type. Errors are not cached.
type CachingDefinitionSource struct {
	source DefinitionSource
	cache  *lru.Cache[string, []fi.SearchParameterDefinition]
}

// NewCachingDefinitionSource creates a caching wrapper holding up to size
// resource types.
func NewCachingDefinitionSource(source DefinitionSource, size int) (*CachingDefinitionSource, error) {
	cache, err := lru.New[string, []fi.SearchParameterDefinition](size)
	if err != nil {
		return nil, err
	}
	return &CachingDefinitionSource{source: source, cache: cache}, nil
}

// Definitions checks the cache first, then calls the wrapped source.
func (c *CachingDefinitionSource) Definitions(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error) {
	if defs, ok := c.cache.Get(resourceType); ok {
		return copyDefinitions(defs), nil
	}

	defs, err := c.source.Definitions(ctx, resourceType)
	if err != nil {
		return nil, err
	}

	c.cache.Add(resourceType, copyDefinitions(defs))
	return defs, nil
}

// Purge drops every cached entry.
func (c *CachingDefinitionSource) Purge() {
	c.cache.Purge()
}

func copyDefinitions(defs []fi.SearchParameterDefinition) []fi.SearchParameterDefinition {
	if defs == nil {
		return nil
	}
	out := make([]fi.SearchParameterDefinition, len(defs))
	copy(out, defs)
	return out
}

// --- Null Implementations ---

// NullDefinitionSource knows no resource types.
type NullDefinitionSource struct{}

// Definitions always returns a SchemaError for an unknown type.
func (NullDefinitionSource) Definitions(_ context.Context, resourceType string) ([]fi.SearchParameterDefinition, error) {
	return nil, &fi.SchemaError{ResourceType: resourceType, Err: fi.ErrUnknownResourceType}
}

// NullCriteriaEvaluator rejects every criteria expression.
type NullCriteriaEvaluator struct{}

// Matches always returns ErrCriteriaNotSupported.
func (NullCriteriaEvaluator) Matches(_ context.Context, _ any, criteria string) (bool, error) {
	return false, &CriteriaError{Criteria: criteria, Err: ErrCriteriaNotSupported}
}

var (
	_ DefinitionSource  = (*DefinitionChain)(nil)
	_ DefinitionSource  = (*CachingDefinitionSource)(nil)
	_ DefinitionSource  = NullDefinitionSource{}
	_ CriteriaEvaluator = NullCriteriaEvaluator{}
)
