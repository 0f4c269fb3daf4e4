package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"
	lru "github.com/hashicorp/golang-lru/v2"

	fi "github.com/gofhir/indexer"
)

// DefaultCriteriaCacheSize is the compiled expression cache size used when
// none is given.
const DefaultCriteriaCacheSize = 500

// ErrCriteriaNotSupported is returned when no evaluator can handle a where()
// criteria expression.
var ErrCriteriaNotSupported = errors.New("where() criteria not supported")

// CriteriaError reports a where() criteria that failed to compile or evaluate.
type CriteriaError struct {
	Criteria string
	Err      error
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("criteria %q: %v", e.Criteria, e.Err)
}

func (e *CriteriaError) Unwrap() error { return e.Err }

// FHIRPathAdapter adapts the fhirpath package to the CriteriaEvaluator
// interface. Compiled expressions are kept in an LRU cache; it is safe for
// concurrent use.
type FHIRPathAdapter struct {
	cache   *lru.Cache[string, *fhirpath.Expression]
	metrics *fi.Metrics
}

// NewFHIRPathAdapter creates a new FHIRPath adapter caching up to cacheSize
// compiled expressions.
func NewFHIRPathAdapter(cacheSize int) *FHIRPathAdapter {
	if cacheSize <= 0 {
		cacheSize = DefaultCriteriaCacheSize
	}
	cache, _ := lru.New[string, *fhirpath.Expression](cacheSize)
	return &FHIRPathAdapter{cache: cache}
}

// SetMetrics records cache hits and misses on m.
func (a *FHIRPathAdapter) SetMetrics(m *fi.Metrics) {
	a.metrics = m
}

// Matches evaluates criteria with item as the context node.
//
// The result follows FHIRPath truthiness rules:
// - Empty collection = false
// - Single boolean = that boolean's value
// - Non-empty collection = true
func (a *FHIRPathAdapter) Matches(ctx context.Context, item any, criteria string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	itemBytes, err := a.toJSON(item)
	if err != nil {
		return false, &CriteriaError{Criteria: criteria, Err: fmt.Errorf("failed to convert item to JSON: %w", err)}
	}

	compiled, err := a.getOrCompile(criteria)
	if err != nil {
		return false, &CriteriaError{Criteria: criteria, Err: err}
	}

	result, err := compiled.Evaluate(itemBytes)
	if err != nil {
		return false, &CriteriaError{Criteria: criteria, Err: err}
	}

	return a.toBool(result), nil
}

// toJSON converts a decoded JSON node back to bytes. Whole resources such
// as *document.Document encode themselves.
func (a *FHIRPathAdapter) toJSON(item any) ([]byte, error) {
	switch v := item.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case interface{ JSON() ([]byte, error) }:
		return v.JSON()
	default:
		return json.Marshal(v)
	}
}

// getOrCompile returns a cached compiled expression or compiles a new one.
func (a *FHIRPathAdapter) getOrCompile(expression string) (*fhirpath.Expression, error) {
	if compiled, ok := a.cache.Get(expression); ok {
		if a.metrics != nil {
			a.metrics.RecordCacheHit()
		}
		return compiled, nil
	}
	if a.metrics != nil {
		a.metrics.RecordCacheMiss()
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	a.cache.Add(expression, compiled)
	return compiled, nil
}

// toBool converts a FHIRPath result collection to a boolean.
func (a *FHIRPathAdapter) toBool(result types.Collection) bool {
	if len(result) == 0 {
		return false
	}

	// If it's a single boolean, return its value
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}

	// Non-empty collection is truthy
	return true
}

// ClearCache clears the expression cache.
func (a *FHIRPathAdapter) ClearCache() {
	a.cache.Purge()
}

// CacheSize returns the number of cached expressions.
func (a *FHIRPathAdapter) CacheSize() int {
	return a.cache.Len()
}

// Verify interface compliance
var _ CriteriaEvaluator = (*FHIRPathAdapter)(nil)
