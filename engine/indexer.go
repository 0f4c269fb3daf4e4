// Package engine provides the main FHIR search indexing engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
	"github.com/gofhir/indexer/extract"
	"github.com/gofhir/indexer/pkg/logger"
	"github.com/gofhir/indexer/registry"
	"github.com/gofhir/indexer/schema"
	"github.com/gofhir/indexer/service"
	"github.com/gofhir/indexer/stream"
	"github.com/gofhir/indexer/walker"
	"github.com/gofhir/indexer/worker"
)

// Indexer extracts search index entries from FHIR resources.
// It coordinates definition discovery, path evaluation and extraction.
//
// Index is safe for concurrent use. The Set* and Load* methods are not, and
// must complete before the Indexer is shared.
type Indexer struct {
	// Configuration
	version fi.FHIRVersion
	options *fi.Options

	// Services
	definitions service.DefinitionSource
	evaluator   service.PathEvaluator

	// Built-in collaborators
	registry *registry.Registry
	schema   *schema.Index
	walker   *walker.Evaluator
	criteria *service.FHIRPathAdapter

	// Metrics is nil when disabled
	metrics *fi.Metrics
	log     *logger.Logger
}

// New creates a new Indexer for the specified FHIR version. Versions with
// embedded definitions start with the curated search parameters and element
// types loaded; others start empty and are filled with LoadPackage.
func New(ctx context.Context, version fi.FHIRVersion, opts ...fi.Option) (*Indexer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !version.IsValid() {
		return nil, fmt.Errorf("unsupported FHIR version %q", version)
	}

	options := fi.Apply(opts...)

	i := &Indexer{
		version: version,
		options: options,
		log:     options.Logger,
	}
	if i.log == nil {
		i.log = logger.Nop()
	}
	if options.EnableMetrics {
		i.metrics = fi.NewMetrics()
	}

	if version.HasEmbeddedDefinitions() {
		idx, err := schema.Embedded(version)
		if err != nil {
			return nil, fmt.Errorf("failed to load element types: %w", err)
		}
		reg, err := registry.NewFromSpecs(version)
		if err != nil {
			return nil, err
		}
		i.schema, i.registry = idx, reg
	} else {
		i.schema, i.registry = schema.NewIndex(), registry.New()
	}

	i.criteria = service.NewFHIRPathAdapter(options.CriteriaCacheSize)
	i.criteria.SetMetrics(i.metrics)

	i.walker = walker.New(i.schema,
		walker.WithCriteriaEvaluator(i.criteria),
		walker.WithStrictSchema(options.StrictSchema),
		walker.WithCacheSize(options.ExpressionCacheSize),
		walker.WithMetrics(i.metrics),
	)

	i.definitions = i.registry
	i.evaluator = i.walker

	i.log.DebugEvent().
		Str("version", version.String()).
		Int("types", len(i.registry.Types())).
		Int("definitions", i.registry.Len()).
		Msg("indexer ready")

	return i, nil
}

// SetDefinitionSource replaces the source of search parameter definitions.
// Use service.NewDefinitionChain to layer a source over Registry().
func (i *Indexer) SetDefinitionSource(src service.DefinitionSource) {
	if src == nil {
		src = i.registry
	}
	i.definitions = src
}

// SetPathEvaluator replaces the path expression evaluator.
func (i *Indexer) SetPathEvaluator(eval service.PathEvaluator) {
	if eval == nil {
		eval = i.walker
	}
	i.evaluator = eval
}

// Registry returns the built-in search parameter registry.
func (i *Indexer) Registry() *registry.Registry {
	return i.registry
}

// Schema returns the element type index used by the built-in evaluator.
func (i *Indexer) Schema() *schema.Index {
	return i.schema
}

// LoadPackage loads the search parameters and structure definitions of an
// extracted FHIR package into the built-in registry and schema.
func (i *Indexer) LoadPackage(ctx context.Context, packageDir string) (*registry.LoadStats, error) {
	loader := registry.NewPackageLoader(i.registry, i.schema)
	stats, err := loader.LoadPackageParallel(ctx, packageDir, i.options.WorkerCount)
	if err != nil {
		return stats, err
	}

	i.log.InfoEvent().
		Str("package", packageDir).
		Int64("searchParameters", stats.SearchParameters).
		Int64("structureDefinitions", stats.StructureDefinitions).
		Int64("errors", stats.Errors).
		Msg("package loaded")

	return stats, nil
}

// PruneUnsupported removes registered definitions whose path expression the
// built-in evaluator cannot parse, so they do not fail every document of
// their type.
func (i *Indexer) PruneUnsupported() []registry.Rejected {
	rejected := i.registry.Prune(i.walker.Validate)
	for _, r := range rejected {
		i.log.WarnEvent().
			Str("resourceType", r.ResourceType).
			Str("parameter", r.Definition.Name).
			Str("expression", r.Definition.Path).
			Err(r.Err).
			Msg("dropping search parameter")
	}
	return rejected
}

// Index extracts the search index entries of a single resource.
//
// A *fi.SchemaError or *fi.PathEvaluationError aborts the document; no
// partial result is returned. Values whose shape does not fit the
// definition's category are skipped.
func (i *Indexer) Index(ctx context.Context, res document.Resource) (*fi.ResourceIndices, error) {
	start := time.Now()

	indices, err := i.index(ctx, res)

	if i.metrics != nil {
		if err != nil {
			i.metrics.RecordFailure(time.Since(start))
		} else {
			i.metrics.RecordDocument(time.Since(start), indices)
		}
	}

	return indices, err
}

func (i *Indexer) index(ctx context.Context, res document.Resource) (*fi.ResourceIndices, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resourceType := res.ResourceType()
	defs, err := i.definitions.Definitions(ctx, resourceType)
	if err != nil {
		var schemaErr *fi.SchemaError
		if isContextError(err) || errors.As(err, &schemaErr) {
			return nil, err
		}
		return nil, &fi.SchemaError{ResourceType: resourceType, Err: err}
	}

	var b *fi.Builder
	if i.options.EnablePooling {
		b = fi.AcquireBuilder(resourceType, res.ResourceID())
		defer b.Release()
	} else {
		b = fi.NewBuilder(resourceType, res.ResourceID())
	}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// _lastUpdated is synthesized from the resource metadata below
		if def.Path == "" || def.Name == fi.LastUpdatedName {
			continue
		}

		if !def.Category.IsSupported() {
			if i.metrics != nil {
				i.metrics.RecordUnsupported()
			}
			i.log.DebugEvent().
				Str("resourceType", resourceType).
				Str("parameter", def.Name).
				Msg("skipping search parameter without extractor")
			continue
		}

		values, err := i.evaluator.Evaluate(ctx, res, def.Path)
		if err != nil {
			if isContextError(err) {
				return nil, err
			}
			return nil, &fi.PathEvaluationError{Parameter: def.Name, Expression: def.Path, Err: err}
		}

		for _, v := range values {
			if extract.Apply(b, def, v) == 0 && i.metrics != nil {
				i.metrics.RecordUnmatched()
			}
		}
	}

	if lastUpdated, ok := res.LastUpdated(); ok {
		b.AddLastUpdated(lastUpdated)
	}

	indices := b.Build()

	i.log.DebugEvent().
		Str("resourceType", resourceType).
		Str("id", indices.ID()).
		Int("definitions", len(defs)).
		Int("entries", indices.Len()).
		Msg("resource indexed")

	return indices, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IndexBytes parses JSON and indexes the resource.
func (i *Indexer) IndexBytes(ctx context.Context, data []byte) (*fi.ResourceIndices, error) {
	doc, err := document.Parse(data)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordRejected()
		}
		return nil, err
	}
	return i.Index(ctx, doc)
}

// IndexMap indexes an already decoded resource. Numbers should be
// json.Number to keep decimals exact.
func (i *Indexer) IndexMap(ctx context.Context, resourceMap map[string]any) (*fi.ResourceIndices, error) {
	doc, err := document.FromMap(resourceMap)
	if err != nil {
		if i.metrics != nil {
			i.metrics.RecordRejected()
		}
		return nil, err
	}
	return i.Index(ctx, doc)
}

// IndexBatch indexes multiple resources in parallel using the configured
// worker count. Results keep the input order.
func (i *Indexer) IndexBatch(ctx context.Context, resources [][]byte) *worker.BatchResult {
	return worker.NewBatchIndexer(i.IndexBytes, i.options.WorkerCount).IndexBatch(ctx, resources)
}

// IndexBundleStream indexes the entries of a Bundle read from r one at a
// time. Memory use stays constant in the size of the bundle.
func (i *Indexer) IndexBundleStream(ctx context.Context, r io.Reader) <-chan *stream.EntryResult {
	return stream.NewBundleIndexer(i.Index).
		WithBufferSize(100).
		IndexStream(ctx, r)
}

// IndexBundleStreamParallel indexes the entries of a Bundle with the
// configured worker count, emitting results in bundle order.
func (i *Indexer) IndexBundleStreamParallel(ctx context.Context, r io.Reader) <-chan *stream.EntryResult {
	return stream.NewBundleIndexer(i.Index).
		WithWorkerCount(i.options.WorkerCount).
		WithBufferSize(100).
		IndexStreamParallel(ctx, r)
}

// AggregateBundleResults collects all results from a bundle stream.
func AggregateBundleResults(results <-chan *stream.EntryResult) *stream.BundleStreamResult {
	return stream.Aggregate(results)
}

// Metrics returns the indexer's metrics, or nil when disabled.
func (i *Indexer) Metrics() *fi.Metrics {
	return i.metrics
}

// Version returns the FHIR version.
func (i *Indexer) Version() fi.FHIRVersion {
	return i.version
}

// Options returns the indexer options.
func (i *Indexer) Options() *fi.Options {
	return i.options
}

// Close releases cached expressions.
func (i *Indexer) Close() error {
	i.walker.ClearCache()
	i.criteria.ClearCache()
	return nil
}
