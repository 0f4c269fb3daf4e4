// Package stream indexes the entries of large FHIR Bundles without holding
// the whole bundle in memory.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
)

// IndexFunc indexes a single resource.
type IndexFunc func(ctx context.Context, res document.Resource) (*fi.ResourceIndices, error)

// EntryResult represents the indexing result for a single bundle entry.
type EntryResult struct {
	// Index is the position of the entry in the bundle, or -1 for errors
	// reading the bundle itself.
	Index int

	// FullURL is the fullUrl of the entry (if present)
	FullURL string

	// ResourceType is the type of resource in the entry
	ResourceType string

	// ResourceID is the id of the resource (if present)
	ResourceID string

	// Indices holds the entries extracted from the resource. It is nil for
	// entries without a resource and when Error is set.
	Indices *fi.ResourceIndices

	// Error is set if there was an error processing the entry
	Error error
}

// BundleIndexer indexes bundles in a streaming fashion.
type BundleIndexer struct {
	// indexEntry is the function to index individual entries
	indexEntry IndexFunc

	// bufferSize is the channel buffer size
	bufferSize int

	// workerCount is the number of parallel workers
	workerCount int
}

// NewBundleIndexer creates a new streaming bundle indexer.
func NewBundleIndexer(indexFunc IndexFunc) *BundleIndexer {
	return &BundleIndexer{
		indexEntry:  indexFunc,
		bufferSize:  100,
		workerCount: 4,
	}
}

// WithBufferSize sets the channel buffer size.
func (b *BundleIndexer) WithBufferSize(size int) *BundleIndexer {
	if size > 0 {
		b.bufferSize = size
	}
	return b
}

// WithWorkerCount sets the number of parallel workers.
func (b *BundleIndexer) WithWorkerCount(count int) *BundleIndexer {
	if count > 0 {
		b.workerCount = count
	}
	return b
}

// IndexStream indexes a bundle from an io.Reader, emitting results as
// entries are decoded. Only one entry is held in memory at a time. Results
// are emitted in bundle order.
func (b *BundleIndexer) IndexStream(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, b.bufferSize)

	go func() {
		defer close(results)
		_ = b.scanEntries(ctx, r, results, func(index int, entry map[string]any) {
			send(ctx, results, b.processEntry(ctx, entry, index))
		})
	}()

	return results
}

// IndexStreamParallel indexes entries in parallel while preserving order in
// the output. Decoding pauses while all workers are busy.
func (b *BundleIndexer) IndexStreamParallel(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, b.bufferSize)

	go func() {
		defer close(results)

		resultChan := make(chan *EntryResult, b.bufferSize)

		// Decode entries and hand each to a worker
		go func() {
			defer close(resultChan)
			var workers errgroup.Group
			workers.SetLimit(b.workerCount)
			_ = b.scanEntries(ctx, r, resultChan, func(index int, entry map[string]any) {
				workers.Go(func() error {
					send(ctx, resultChan, b.processEntry(ctx, entry, index))
					return nil
				})
			})
			_ = workers.Wait()
		}()

		// Collect results and reorder; bundle-level errors pass through
		pending := make(map[int]*EntryResult)
		nextIndex := 0
		for result := range resultChan {
			if result.Index < 0 {
				send(ctx, results, result)
				continue
			}
			pending[result.Index] = result
			for {
				r, ok := pending[nextIndex]
				if !ok {
					break
				}
				send(ctx, results, r)
				delete(pending, nextIndex)
				nextIndex++
			}
		}
	}()

	return results
}

// send delivers r, giving up once ctx is done and the consumer has stopped
// reading.
func send(ctx context.Context, ch chan<- *EntryResult, r *EntryResult) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case ch <- r:
	case <-ctx.Done():
	}
}

// scanEntries walks the bundle with the JSON tokenizer and calls handle for
// each decoded entry. Errors are reported on results.
func (b *BundleIndexer) scanEntries(ctx context.Context, r io.Reader, results chan<- *EntryResult, handle func(int, map[string]any)) error {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	fail := func(index int, err error) error {
		send(ctx, results, &EntryResult{Index: index, Error: err})
		return err
	}

	// Read opening brace
	token, err := decoder.Token()
	if err != nil {
		return fail(-1, fmt.Errorf("failed to read bundle: %w", err))
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fail(-1, fmt.Errorf("expected object start, got %v", token))
	}

	// Process bundle fields until we find "entry"
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return fail(-1, err)
		}

		token, err := decoder.Token()
		if err != nil {
			return fail(-1, fmt.Errorf("failed to read field: %w", err))
		}
		fieldName, _ := token.(string)

		if fieldName == "entry" {
			return b.scanEntryArray(ctx, decoder, fail, handle)
		}

		// Skip other fields
		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return fail(-1, fmt.Errorf("failed to skip field %s: %w", fieldName, err))
		}
	}

	// No entry field found - empty bundle
	return nil
}

func (b *BundleIndexer) scanEntryArray(ctx context.Context, decoder *json.Decoder, fail func(int, error) error, handle func(int, map[string]any)) error {
	token, err := decoder.Token()
	if err != nil {
		return fail(-1, fmt.Errorf("failed to read entry array: %w", err))
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		return fail(-1, fmt.Errorf("expected array start, got %v", token))
	}

	index := 0
	for decoder.More() {
		if err := ctx.Err(); err != nil {
			return fail(-1, err)
		}

		var entry map[string]any
		if err := decoder.Decode(&entry); err != nil {
			// The decoder cannot resynchronize after a syntax error
			return fail(-1, fmt.Errorf("failed to decode entry %d: %w", index, err))
		}
		handle(index, entry)
		index++
	}
	return nil
}

// processEntry indexes a single bundle entry.
func (b *BundleIndexer) processEntry(ctx context.Context, entry map[string]any, index int) *EntryResult {
	result := &EntryResult{Index: index}

	if fullURL, ok := entry["fullUrl"].(string); ok {
		result.FullURL = fullURL
	}

	raw, ok := entry["resource"]
	if !ok || raw == nil {
		// No resource in entry (e.g. a DELETE request)
		return result
	}
	resource, ok := raw.(map[string]any)
	if !ok {
		result.Error = fmt.Errorf("entry %d: resource is not an object", index)
		return result
	}

	doc, err := document.FromMap(resource)
	if err != nil {
		result.Error = err
		return result
	}
	result.ResourceType = doc.ResourceType()
	result.ResourceID = doc.ResourceID()

	indices, err := b.indexEntry(ctx, doc)
	if err != nil {
		result.Error = err
		return result
	}
	result.Indices = indices
	return result
}

// BundleStreamResult aggregates results from streaming indexing.
type BundleStreamResult struct {
	// TotalEntries is the number of entries processed
	TotalEntries int

	// IndexedEntries is the count of entries that produced indices
	IndexedEntries int

	// FailedEntries is the count of entries whose indexing failed
	FailedEntries int

	// TotalIndices is the total number of index entries extracted
	TotalIndices int

	// ByCategory counts the extracted entries per category
	ByCategory map[fi.Category]int

	// ProcessingErrors are entry and bundle level errors
	ProcessingErrors []error
}

// Aggregate collects all results from a streaming run.
func Aggregate(results <-chan *EntryResult) *BundleStreamResult {
	agg := &BundleStreamResult{ByCategory: make(map[fi.Category]int)}

	for result := range results {
		if result.Index < 0 {
			agg.ProcessingErrors = append(agg.ProcessingErrors, result.Error)
			continue
		}

		agg.TotalEntries++
		if result.Error != nil {
			agg.FailedEntries++
			agg.ProcessingErrors = append(agg.ProcessingErrors, fmt.Errorf("entry %d: %w", result.Index, result.Error))
			continue
		}
		if result.Indices == nil {
			continue
		}

		agg.IndexedEntries++
		agg.TotalIndices += result.Indices.Len()
		for c, n := range result.Indices.CountByCategory() {
			agg.ByCategory[c] += n
		}
	}

	return agg
}

// HasErrors returns true if any entry or the bundle itself failed.
func (r *BundleStreamResult) HasErrors() bool {
	return r.FailedEntries > 0 || len(r.ProcessingErrors) > 0
}

// Summary returns a human-readable summary of the run.
func (r *BundleStreamResult) Summary() string {
	return fmt.Sprintf(
		"Indexed %d of %d entries: %d failed, %d index entries",
		r.IndexedEntries,
		r.TotalEntries,
		r.FailedEntries,
		r.TotalIndices,
	)
}
