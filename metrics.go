package fhirindexer

import (
	"sync/atomic"
	"time"
)

// Metrics tracks indexing performance metrics using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Document counts
	documentsIndexed atomic.Uint64
	documentsFailed  atomic.Uint64

	// Timing (stored as nanoseconds)
	timedDocuments atomic.Uint64
	indexTimeTotal atomic.Uint64
	indexTimeMin   atomic.Uint64
	indexTimeMax   atomic.Uint64

	// Entry counts by category
	entries [CategoryURI + 1]atomic.Uint64

	// Definitions skipped because their category has no extractor
	unsupportedSkipped atomic.Uint64

	// Matched values that produced no entry
	unmatchedValues atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.indexTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordDocument records a completed indexing call.
func (m *Metrics) RecordDocument(duration time.Duration, indices *ResourceIndices) {
	m.documentsIndexed.Add(1)
	m.recordDuration(duration)
	if indices == nil {
		return
	}
	for c, n := range indices.CountByCategory() {
		m.entries[c].Add(uint64(n)) //nolint:gosec // Safe: counts are non-negative
	}
}

// RecordFailure records an indexing call that returned an error.
func (m *Metrics) RecordFailure(duration time.Duration) {
	m.documentsFailed.Add(1)
	m.recordDuration(duration)
}

// RecordRejected records a document that failed before indexing started,
// such as unparseable JSON. No duration is recorded.
func (m *Metrics) RecordRejected() {
	m.documentsFailed.Add(1)
}

func (m *Metrics) recordDuration(duration time.Duration) {
	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: nanoseconds are always positive for valid durations
	m.timedDocuments.Add(1)
	m.indexTimeTotal.Add(ns)

	// Update min (CAS loop)
	for {
		old := m.indexTimeMin.Load()
		if ns >= old {
			break
		}
		if m.indexTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (CAS loop)
	for {
		old := m.indexTimeMax.Load()
		if ns <= old {
			break
		}
		if m.indexTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordUnsupported records a definition skipped for its category.
func (m *Metrics) RecordUnsupported() {
	m.unsupportedSkipped.Add(1)
}

// RecordUnmatched records a matched value that yielded no entry.
func (m *Metrics) RecordUnmatched() {
	m.unmatchedValues.Add(1)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Add(1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Add(1)
}

// --- Query Methods ---

// DocumentsIndexed returns the number of documents indexed successfully.
func (m *Metrics) DocumentsIndexed() uint64 {
	return m.documentsIndexed.Load()
}

// DocumentsFailed returns the number of documents that failed to index.
func (m *Metrics) DocumentsFailed() uint64 {
	return m.documentsFailed.Load()
}

// EntriesTotal returns the number of entries produced for a category.
func (m *Metrics) EntriesTotal(c Category) uint64 {
	if c < 0 || int(c) >= len(m.entries) {
		return 0
	}
	return m.entries[c].Load()
}

// UnsupportedSkipped returns the number of skipped unsupported definitions.
func (m *Metrics) UnsupportedSkipped() uint64 {
	return m.unsupportedSkipped.Load()
}

// UnmatchedValues returns the number of values that produced no entry.
func (m *Metrics) UnmatchedValues() uint64 {
	return m.unmatchedValues.Load()
}

// AverageIndexTime returns the average indexing duration.
func (m *Metrics) AverageIndexTime() time.Duration {
	total := m.timedDocuments.Load()
	if total == 0 {
		return 0
	}
	avgNs := m.indexTimeTotal.Load() / total
	return time.Duration(avgNs) //nolint:gosec // Safe: avgNs represents nanoseconds within int64 range
}

// MinIndexTime returns the minimum indexing duration.
func (m *Metrics) MinIndexTime() time.Duration {
	minVal := m.indexTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // Safe: minVal represents nanoseconds within int64 range
}

// MaxIndexTime returns the maximum indexing duration.
func (m *Metrics) MaxIndexTime() time.Duration {
	return time.Duration(m.indexTimeMax.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timestamp when the snapshot was taken
	Timestamp time.Time `json:"timestamp"`

	// Document metrics
	DocumentsIndexed uint64 `json:"documents_indexed"`
	DocumentsFailed  uint64 `json:"documents_failed"`

	// Timing metrics (in nanoseconds for precision)
	AvgIndexTimeNs uint64 `json:"avg_index_time_ns"`
	MinIndexTimeNs uint64 `json:"min_index_time_ns"`
	MaxIndexTimeNs uint64 `json:"max_index_time_ns"`

	// Entry metrics keyed by category code
	Entries map[string]uint64 `json:"entries"`

	UnsupportedSkipped uint64 `json:"unsupported_skipped"`
	UnmatchedValues    uint64 `json:"unmatched_values"`

	// Cache metrics
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	minTime := m.indexTimeMin.Load()
	if minTime == ^uint64(0) {
		minTime = 0
	}

	entries := make(map[string]uint64, len(m.entries)-1)
	for c := CategoryNumber; c <= CategoryURI; c++ {
		entries[c.String()] = m.entries[c].Load()
	}

	return Snapshot{
		Timestamp:          time.Now(),
		DocumentsIndexed:   m.documentsIndexed.Load(),
		DocumentsFailed:    m.documentsFailed.Load(),
		AvgIndexTimeNs:     uint64(m.AverageIndexTime().Nanoseconds()), //nolint:gosec // Safe: non-negative
		MinIndexTimeNs:     minTime,
		MaxIndexTimeNs:     m.indexTimeMax.Load(),
		Entries:            entries,
		UnsupportedSkipped: m.unsupportedSkipped.Load(),
		UnmatchedValues:    m.unmatchedValues.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		CacheHitRate:       m.CacheHitRate(),
	}
}

// Reset resets all metrics to zero.
func (m *Metrics) Reset() {
	m.documentsIndexed.Store(0)
	m.documentsFailed.Store(0)
	m.timedDocuments.Store(0)
	m.indexTimeTotal.Store(0)
	m.indexTimeMin.Store(^uint64(0))
	m.indexTimeMax.Store(0)
	for i := range m.entries {
		m.entries[i].Store(0)
	}
	m.unsupportedSkipped.Store(0)
	m.unmatchedValues.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
}
