package fhirindexer

import (
	"runtime"

	"github.com/gofhir/indexer/pkg/logger"
)

// Option configures the Indexer.
type Option func(*Options)

// Options holds all configuration for the Indexer.
type Options struct {
	// Schema behavior
	StrictSchema bool

	// Performance
	WorkerCount   int
	EnablePooling bool

	// Cache sizes
	ExpressionCacheSize int
	CriteriaCacheSize   int

	// Observability
	EnableMetrics bool
	Logger        *logger.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		StrictSchema: false,

		// Performance defaults
		WorkerCount:   runtime.NumCPU(),
		EnablePooling: true,

		// Cache defaults
		ExpressionCacheSize: 2000,
		CriteriaCacheSize:   500,

		EnableMetrics: true,
		Logger:        logger.Default(),
	}
}

// Apply applies opts on top of the defaults.
func Apply(opts ...Option) *Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// --- Schema Options ---

// WithStrictSchema stops the evaluator from guessing the shape of values at
// element paths the schema does not know. Such values become unrecognized
// and produce no entries.
func WithStrictSchema(enable bool) Option {
	return func(o *Options) {
		o.StrictSchema = enable
	}
}

// --- Performance Options ---

// WithWorkerCount sets the number of workers for batch indexing.
// Defaults to runtime.NumCPU().
func WithWorkerCount(count int) Option {
	return func(o *Options) {
		if count > 0 {
			o.WorkerCount = count
		}
	}
}

// WithPooling enables or disables builder pooling.
func WithPooling(enable bool) Option {
	return func(o *Options) {
		o.EnablePooling = enable
	}
}

// --- Cache Options ---

// WithExpressionCacheSize sets the parsed path expression cache size.
func WithExpressionCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ExpressionCacheSize = size
		}
	}
}

// WithCriteriaCacheSize sets the compiled where() criteria cache size.
func WithCriteriaCacheSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.CriteriaCacheSize = size
		}
	}
}

// --- Observability Options ---

// WithMetrics enables or disables metrics collection.
func WithMetrics(enable bool) Option {
	return func(o *Options) {
		o.EnableMetrics = enable
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		if l == nil {
			l = logger.Nop()
		}
		o.Logger = l
	}
}

// --- Presets ---

// FastOptions returns options tuned for large batch runs.
func FastOptions() []Option {
	return []Option{
		WithPooling(true),
		WithExpressionCacheSize(5000),
		WithCriteriaCacheSize(1000),
	}
}

// DebugOptions returns options useful for debugging.
func DebugOptions() []Option {
	return []Option{
		WithPooling(false),
		WithStrictSchema(true),
	}
}
