package worker

import (
	"context"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	fi "github.com/gofhir/indexer"
)

// IndexFunc is the function signature for indexing a single resource.
type IndexFunc func(ctx context.Context, resource []byte) (*fi.ResourceIndices, error)

// BatchIndexer indexes many resources with a bounded number of goroutines.
type BatchIndexer struct {
	index   IndexFunc
	workers int
}

// NewBatchIndexer creates a new batch indexer. If workers <= 0, it defaults
// to runtime.NumCPU().
func NewBatchIndexer(indexFunc IndexFunc, workers int) *BatchIndexer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchIndexer{
		index:   indexFunc,
		workers: workers,
	}
}

// Workers returns the configured parallelism.
func (bi *BatchIndexer) Workers() int {
	return bi.workers
}

// IndexBatch indexes multiple resources. Each result gets a random job ID.
func (bi *BatchIndexer) IndexBatch(ctx context.Context, resources [][]byte) *BatchResult {
	jobs := make([]Job, len(resources))
	for i, resource := range resources {
		jobs[i] = Job{Resource: resource}
	}
	return bi.IndexJobs(ctx, jobs)
}

// IndexJobs runs the jobs and returns their results in submission order.
// Jobs not started before ctx is cancelled carry the context error.
func (bi *BatchIndexer) IndexJobs(ctx context.Context, jobs []Job) *BatchResult {
	start := time.Now()
	results := make([]*JobResult, len(jobs))
	ran := make([]bool, len(jobs))
	for i, job := range jobs {
		id := job.ID
		if id == "" {
			id = uuid.NewString()
		}
		results[i] = &JobResult{ID: id}
	}

	// For small batches, don't use parallelism
	if len(jobs) <= 2 || bi.workers == 1 {
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				continue
			}
			bi.run(ctx, job, results[i])
			ran[i] = true
		}
	} else {
		var g errgroup.Group
		g.SetLimit(bi.workers)
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				results[i].Error = err
				continue
			}
			g.Go(func() error {
				bi.run(ctx, job, results[i])
				ran[i] = true
				return nil
			})
		}
		_ = g.Wait()
	}

	batch := &BatchResult{
		Results:       results,
		TotalJobs:     len(jobs),
		TotalDuration: time.Since(start),
	}
	for i, r := range results {
		if ran[i] {
			batch.CompletedJobs++
		}
		if r.Error != nil {
			batch.FailedJobs++
		}
	}
	return batch
}

func (bi *BatchIndexer) run(ctx context.Context, job Job, result *JobResult) {
	start := time.Now()
	result.Indices, result.Error = bi.index(ctx, job.Resource)
	result.Duration = time.Since(start)
}

// IndexBatchSimple is a convenience function for batch indexing.
func IndexBatchSimple(ctx context.Context, indexFunc IndexFunc, resources [][]byte) *BatchResult {
	return NewBatchIndexer(indexFunc, runtime.NumCPU()).IndexBatch(ctx, resources)
}
