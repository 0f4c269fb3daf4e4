// Package fhirindexer extracts typed search index entries from FHIR resources.
//
// For every search parameter declared for a resource's type, the indexer
// evaluates the parameter's path expression and turns each matched value into
// zero or more entries of the parameter's category: number, date, string,
// token, reference, quantity or uri. A synthetic _lastUpdated date entry is
// added when the resource carries meta.lastUpdated.
//
// # Quick Start
//
//	import (
//	    fi "github.com/gofhir/indexer"
//	    "github.com/gofhir/indexer/engine"
//	)
//
//	indexer, err := engine.New(ctx, fi.R4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	indices, err := indexer.IndexBytes(ctx, resourceJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, tok := range indices.TokenIndices() {
//	    fmt.Println(tok.Name, tok.Code)
//	}
//
// # Functional Options
//
//	indexer, err := engine.New(ctx, fi.R4,
//	    fi.WithWorkerCount(runtime.NumCPU()),
//	    fi.WithExpressionCacheSize(5000),
//	    fi.WithStrictSchema(true),
//	)
//
// # Errors
//
// Indexing a document either succeeds completely or fails. A *SchemaError
// means no definitions could be found for the resource type; a
// *PathEvaluationError means a definition's expression could not be
// evaluated. Values whose shape does not fit a category are skipped, never
// reported.
//
// Composite and special search parameters are not indexed.
//
// # Package Structure
//
//   - engine: Indexer orchestrating discovery, evaluation and extraction
//   - registry: search parameter definitions per resource type, FHIR packages
//   - walker: path expression evaluator over decoded JSON
//   - extract: category extractors
//   - value: matched value shapes
//   - worker, stream: batch and Bundle indexing
package fhirindexer
