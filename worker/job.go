package worker

import (
	"time"

	fi "github.com/gofhir/indexer"
)

// Job is a single resource to index.
type Job struct {
	// ID identifies the job in its result. A random UUID is assigned when
	// empty.
	ID string

	// Resource is the FHIR resource as JSON bytes.
	Resource []byte
}

// JobResult represents the result of an indexing job.
type JobResult struct {
	// ID matches the Job.ID that produced this result.
	ID string

	// Indices holds the extracted entries; nil when Error is set.
	Indices *fi.ResourceIndices

	// Error contains any error that occurred during indexing, including
	// the context error for jobs that never started.
	Error error

	// Duration is the time taken to index the resource.
	Duration time.Duration
}

// BatchResult aggregates results from multiple jobs.
type BatchResult struct {
	// Results contains one result per job, in submission order.
	Results []*JobResult

	// TotalJobs is the number of jobs submitted.
	TotalJobs int

	// CompletedJobs is the number of jobs that ran (including errors).
	CompletedJobs int

	// FailedJobs is the number of jobs that failed with an error.
	FailedJobs int

	// TotalDuration is the wall time of the whole batch.
	TotalDuration time.Duration
}

// HasErrors returns true if any job failed.
func (br *BatchResult) HasErrors() bool {
	for _, r := range br.Results {
		if r.Error != nil {
			return true
		}
	}
	return false
}

// EntryCount returns the total number of index entries across all results.
func (br *BatchResult) EntryCount() int {
	count := 0
	for _, r := range br.Results {
		if r.Indices != nil {
			count += r.Indices.Len()
		}
	}
	return count
}
