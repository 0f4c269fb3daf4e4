// Package document holds parsed FHIR resources handed to the indexer.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/value"
)

// Resource is a single FHIR resource as seen by the indexer. Implementations
// must not be mutated while an Index call is running.
type Resource interface {
	// ResourceType returns the declared resourceType.
	ResourceType() string

	// ResourceID returns the logical id, or "".
	ResourceID() string

	// LastUpdated returns meta.lastUpdated when present and parseable.
	LastUpdated() (value.Date, bool)

	// Root returns the decoded JSON object. Numbers are json.Number.
	Root() map[string]any
}

// Document is a Resource backed by a decoded JSON object.
type Document struct {
	root         map[string]any
	resourceType string
	id           string
}

// Parse decodes a FHIR resource from JSON. Numbers keep their exact textual
// form so decimals are never rounded through float64.
func Parse(data []byte) (*Document, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a single FHIR resource from r.
func Decode(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("failed to parse resource: %w", err)
	}
	return FromMap(root)
}

// FromMap wraps an already decoded JSON object. The map must not be mutated
// afterwards.
func FromMap(root map[string]any) (*Document, error) {
	if root == nil {
		return nil, &fi.SchemaError{Err: fi.ErrMissingResourceType}
	}
	resourceType, _ := root["resourceType"].(string)
	if resourceType == "" {
		return nil, &fi.SchemaError{Err: fi.ErrMissingResourceType}
	}
	id, _ := root["id"].(string)
	return &Document{root: root, resourceType: resourceType, id: id}, nil
}

// ResourceType returns the declared resourceType.
func (d *Document) ResourceType() string { return d.resourceType }

// ResourceID returns the logical id, or "".
func (d *Document) ResourceID() string { return d.id }

// Root returns the decoded JSON object.
func (d *Document) Root() map[string]any { return d.root }

// LastUpdated returns meta.lastUpdated parsed as an instant.
func (d *Document) LastUpdated() (value.Date, bool) {
	meta, ok := d.root["meta"].(map[string]any)
	if !ok {
		return value.Date{}, false
	}
	raw, ok := meta["lastUpdated"].(string)
	if !ok || raw == "" {
		return value.Date{}, false
	}
	lu, err := value.ParseInstant(raw)
	if err != nil {
		return value.Date{}, false
	}
	return lu, true
}

// JSON re-encodes the resource.
func (d *Document) JSON() ([]byte, error) {
	return json.Marshal(d.root)
}

var _ Resource = (*Document)(nil)
