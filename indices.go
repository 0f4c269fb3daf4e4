package fhirindexer

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gofhir/indexer/value"
)

// CurrencyCodeSystem is the system recorded for Money quantities.
const CurrencyCodeSystem = "urn:iso:std:iso:4217"

// LastUpdatedName is the name of the synthetic last-updated date entry.
const LastUpdatedName = "_lastUpdated"

// NumberIndex is a number entry.
type NumberIndex struct {
	Name  string          `json:"name"`
	Path  string          `json:"path"`
	Value decimal.Decimal `json:"value"`
}

// DateIndex is a date entry. Low and High are equal for the point values
// indexed today; the range form leaves room for periods.
type DateIndex struct {
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	Low       time.Time       `json:"low"`
	High      time.Time       `json:"high"`
	Precision value.Precision `json:"precision"`
}

// LowEpochMilli returns Low as milliseconds since the Unix epoch.
func (d DateIndex) LowEpochMilli() int64 { return d.Low.UnixMilli() }

// HighEpochMilli returns High as milliseconds since the Unix epoch.
func (d DateIndex) HighEpochMilli() int64 { return d.High.UnixMilli() }

// StringIndex is a string entry.
type StringIndex struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// TokenIndex is a token entry. System is nil when the source carries no
// system at all, and points to "" when the source defaulted it.
type TokenIndex struct {
	Name   string  `json:"name"`
	Path   string  `json:"path"`
	System *string `json:"system,omitempty"`
	Code   string  `json:"code"`
}

// ReferenceIndex is a reference entry.
type ReferenceIndex struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Reference string `json:"reference"`
}

// QuantityIndex is a quantity entry.
type QuantityIndex struct {
	Name   string          `json:"name"`
	Path   string          `json:"path"`
	System string          `json:"system"`
	Unit   string          `json:"unit"`
	Value  decimal.Decimal `json:"value"`
}

// URIIndex is a uri entry.
type URIIndex struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URI  string `json:"uri"`
}

// ResourceIndices holds every index entry extracted from one resource.
// It is immutable: accessors return copies.
type ResourceIndices struct {
	resourceType string
	id           string

	numbers    []NumberIndex
	dates      []DateIndex
	strings    []StringIndex
	tokens     []TokenIndex
	references []ReferenceIndex
	quantities []QuantityIndex
	uris       []URIIndex
}

// ResourceType returns the type of the indexed resource.
func (r *ResourceIndices) ResourceType() string { return r.resourceType }

// ID returns the logical id of the indexed resource ("" if it has none).
func (r *ResourceIndices) ID() string { return r.id }

// NumberIndices returns the number entries.
func (r *ResourceIndices) NumberIndices() []NumberIndex { return slices.Clone(r.numbers) }

// DateIndices returns the date entries.
func (r *ResourceIndices) DateIndices() []DateIndex { return slices.Clone(r.dates) }

// StringIndices returns the string entries.
func (r *ResourceIndices) StringIndices() []StringIndex { return slices.Clone(r.strings) }

// TokenIndices returns the token entries.
func (r *ResourceIndices) TokenIndices() []TokenIndex {
	out := slices.Clone(r.tokens)
	for i := range out {
		if out[i].System != nil {
			s := *out[i].System
			out[i].System = &s
		}
	}
	return out
}

// ReferenceIndices returns the reference entries.
func (r *ResourceIndices) ReferenceIndices() []ReferenceIndex { return slices.Clone(r.references) }

// QuantityIndices returns the quantity entries.
func (r *ResourceIndices) QuantityIndices() []QuantityIndex { return slices.Clone(r.quantities) }

// URIIndices returns the uri entries.
func (r *ResourceIndices) URIIndices() []URIIndex { return slices.Clone(r.uris) }

// Len returns the total number of entries across all categories.
func (r *ResourceIndices) Len() int {
	return len(r.numbers) + len(r.dates) + len(r.strings) + len(r.tokens) +
		len(r.references) + len(r.quantities) + len(r.uris)
}

// CountByCategory returns the number of entries per category.
func (r *ResourceIndices) CountByCategory() map[Category]int {
	return map[Category]int{
		CategoryNumber:    len(r.numbers),
		CategoryDate:      len(r.dates),
		CategoryString:    len(r.strings),
		CategoryToken:     len(r.tokens),
		CategoryReference: len(r.references),
		CategoryQuantity:  len(r.quantities),
		CategoryURI:       len(r.uris),
	}
}

// resourceIndicesJSON is the wire view of ResourceIndices.
type resourceIndicesJSON struct {
	ResourceType     string           `json:"resourceType"`
	ID               string           `json:"id,omitempty"`
	NumberIndices    []NumberIndex    `json:"numberIndices,omitempty"`
	DateIndices      []DateIndex      `json:"dateIndices,omitempty"`
	StringIndices    []StringIndex    `json:"stringIndices,omitempty"`
	TokenIndices     []TokenIndex     `json:"tokenIndices,omitempty"`
	ReferenceIndices []ReferenceIndex `json:"referenceIndices,omitempty"`
	QuantityIndices  []QuantityIndex  `json:"quantityIndices,omitempty"`
	URIIndices       []URIIndex       `json:"uriIndices,omitempty"`
}

// MarshalJSON renders the indices for hosts that persist or print them.
func (r *ResourceIndices) MarshalJSON() ([]byte, error) {
	return json.Marshal(resourceIndicesJSON{
		ResourceType:     r.resourceType,
		ID:               r.id,
		NumberIndices:    r.numbers,
		DateIndices:      r.dates,
		StringIndices:    r.strings,
		TokenIndices:     r.tokens,
		ReferenceIndices: r.references,
		QuantityIndices:  r.quantities,
		URIIndices:       r.uris,
	})
}

// Builder accumulates entries for one resource. It is not safe for
// concurrent use. Use AcquireBuilder/Release to reuse builders.
type Builder struct {
	resourceType string
	id           string

	numbers    []NumberIndex
	dates      []DateIndex
	strings    []StringIndex
	tokens     []TokenIndex
	references []ReferenceIndex
	quantities []QuantityIndex
	uris       []URIIndex
}

// builderPool holds reusable Builder instances.
var builderPool = sync.Pool{
	New: func() any {
		return &Builder{
			strings: make([]StringIndex, 0, 16),
			tokens:  make([]TokenIndex, 0, 16),
		}
	},
}

// NewBuilder creates a builder for a resource.
func NewBuilder(resourceType, id string) *Builder {
	return &Builder{resourceType: resourceType, id: id}
}

// AcquireBuilder gets a Builder from the pool.
func AcquireBuilder(resourceType, id string) *Builder {
	b := builderPool.Get().(*Builder)
	b.Reset(resourceType, id)
	return b
}

// Release returns the Builder to the pool. Indices already built from it stay
// valid; the builder itself must not be used afterwards.
func (b *Builder) Release() {
	if b == nil {
		return
	}
	// Don't keep oversized buffers around
	if cap(b.strings) <= 1024 && cap(b.tokens) <= 1024 {
		builderPool.Put(b)
	}
}

// Reset clears the builder for reuse.
func (b *Builder) Reset(resourceType, id string) {
	b.resourceType = resourceType
	b.id = id
	b.numbers = b.numbers[:0]
	b.dates = b.dates[:0]
	b.strings = b.strings[:0]
	b.tokens = b.tokens[:0]
	b.references = b.references[:0]
	b.quantities = b.quantities[:0]
	b.uris = b.uris[:0]
}

// AddNumber appends a number entry.
func (b *Builder) AddNumber(e NumberIndex) { b.numbers = append(b.numbers, e) }

// AddDate appends a date entry.
func (b *Builder) AddDate(e DateIndex) { b.dates = append(b.dates, e) }

// AddString appends a string entry.
func (b *Builder) AddString(e StringIndex) { b.strings = append(b.strings, e) }

// AddToken appends a token entry.
func (b *Builder) AddToken(e TokenIndex) { b.tokens = append(b.tokens, e) }

// AddReference appends a reference entry.
func (b *Builder) AddReference(e ReferenceIndex) { b.references = append(b.references, e) }

// AddQuantity appends a quantity entry.
func (b *Builder) AddQuantity(e QuantityIndex) { b.quantities = append(b.quantities, e) }

// AddURI appends a uri entry.
func (b *Builder) AddURI(e URIIndex) { b.uris = append(b.uris, e) }

// AddLastUpdated appends the synthetic _lastUpdated entry for an instant.
func (b *Builder) AddLastUpdated(lastUpdated value.Date) {
	b.AddDate(DateIndex{
		Name:      LastUpdatedName,
		Path:      b.resourceType + ".meta.lastUpdated",
		Low:       lastUpdated.Time,
		High:      lastUpdated.Time,
		Precision: lastUpdated.Precision,
	})
}

// Build returns the accumulated entries as an immutable ResourceIndices.
// The builder's buffers are copied, so the builder may be reused.
func (b *Builder) Build() *ResourceIndices {
	return &ResourceIndices{
		resourceType: b.resourceType,
		id:           b.id,
		numbers:      slices.Clone(b.numbers),
		dates:        slices.Clone(b.dates),
		strings:      slices.Clone(b.strings),
		tokens:       slices.Clone(b.tokens),
		references:   slices.Clone(b.references),
		quantities:   slices.Clone(b.quantities),
		uris:         slices.Clone(b.uris),
	}
}
