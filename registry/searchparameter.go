package registry

import (
	"encoding/json"
	"fmt"
	"os"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/specs"
)

// SearchParameter is the subset of a FHIR SearchParameter resource the
// registry reads.
type SearchParameter struct {
	ResourceType string   `json:"resourceType"`
	ID           string   `json:"id,omitempty"`
	URL          string   `json:"url,omitempty"`
	Name         string   `json:"name,omitempty"`
	Status       string   `json:"status,omitempty"`
	Code         string   `json:"code"`
	Base         []string `json:"base"`
	Type         string   `json:"type"`
	Expression   string   `json:"expression,omitempty"`
}

// Definition converts the resource to a search parameter definition.
func (sp *SearchParameter) Definition() fi.SearchParameterDefinition {
	return fi.SearchParameterDefinition{
		Name:     sp.Code,
		Path:     sp.Expression,
		Category: fi.ParseCategory(sp.Type),
		URL:      sp.URL,
	}
}

// isCommonBase reports whether a base applies to every resource type.
func isCommonBase(base string) bool {
	return base == "Resource" || base == "DomainResource"
}

// Add registers sp under each of its bases. It returns false when sp has no
// code or no base.
func (r *Registry) Add(sp *SearchParameter) bool {
	if sp == nil || sp.Code == "" || len(sp.Base) == 0 {
		return false
	}
	def := sp.Definition()
	for _, base := range sp.Base {
		if isCommonBase(base) {
			r.RegisterCommon(def)
			continue
		}
		r.Register(base, def)
	}
	return true
}

// LoadBundle registers the SearchParameter resources of a Bundle, or a single
// SearchParameter resource. Entries of other types are ignored. It returns
// the number of search parameters registered.
func (r *Registry) LoadBundle(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, &fi.SchemaError{Err: fmt.Errorf("invalid search parameter bundle: %w", err)}
	}

	switch probe.ResourceType {
	case "SearchParameter":
		var sp SearchParameter
		if err := json.Unmarshal(data, &sp); err != nil {
			return 0, &fi.SchemaError{Err: fmt.Errorf("invalid search parameter: %w", err)}
		}
		if !r.Add(&sp) {
			return 0, nil
		}
		return 1, nil

	case "Bundle":
		var bundle struct {
			Entry []struct {
				Resource json.RawMessage `json:"resource"`
			} `json:"entry"`
		}
		if err := json.Unmarshal(data, &bundle); err != nil {
			return 0, &fi.SchemaError{Err: fmt.Errorf("invalid search parameter bundle: %w", err)}
		}

		count := 0
		for i, entry := range bundle.Entry {
			if entry.Resource == nil {
				continue
			}
			var sp SearchParameter
			if err := json.Unmarshal(entry.Resource, &sp); err != nil {
				return count, &fi.SchemaError{Err: fmt.Errorf("invalid search parameter at entry %d: %w", i, err)}
			}
			if sp.ResourceType != "SearchParameter" {
				continue
			}
			if r.Add(&sp) {
				count++
			}
		}
		return count, nil

	default:
		return 0, &fi.SchemaError{Err: fmt.Errorf("expected Bundle or SearchParameter, got %q", probe.ResourceType)}
	}
}

// LoadFile registers the search parameters of a JSON file.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read search parameters: %w", err)
	}
	return r.LoadBundle(data)
}

// LoadSpecs registers the search parameters embedded for version.
func (r *Registry) LoadSpecs(version fi.FHIRVersion) (int, error) {
	data, err := specs.ReadFile(version, specs.SpecFiles.SearchParameters)
	if err != nil {
		return 0, &fi.SchemaError{Err: err}
	}
	return r.LoadBundle(data)
}

// NewFromSpecs creates a registry holding the search parameters embedded for
// version.
func NewFromSpecs(version fi.FHIRVersion) (*Registry, error) {
	r := New()
	if _, err := r.LoadSpecs(version); err != nil {
		return nil, err
	}
	return r, nil
}
