package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gofhir/fhir/r4"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/specs"
)

// coreCanonicalPrefix prefixes the canonical URL of every core definition.
const coreCanonicalPrefix = "http://hl7.org/fhir/StructureDefinition/"

// compactType is one entry of the embedded element type table.
type compactType struct {
	Base     string            `json:"base"`
	Elements map[string]string `json:"elements"`
}

// Embedded returns an Index built from the element type table embedded for
// version.
func Embedded(version fi.FHIRVersion) (*Index, error) {
	data, err := specs.ReadFile(version, specs.SpecFiles.ElementTypes)
	if err != nil {
		return nil, err
	}
	return LoadCompact(data)
}

// LoadCompact builds an Index from a compact element type table: a JSON
// object keyed by type name, each entry holding an optional "base" and an
// "elements" object mapping relative paths to "|"-separated type codes.
func LoadCompact(data []byte) (*Index, error) {
	var table map[string]compactType
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse element type table: %w", err)
	}

	idx := NewIndex()
	for typeName, t := range table {
		elements := make([]Element, 0, len(t.Elements))
		for rel, codes := range t.Elements {
			elements = append(elements, Element{
				Path:  typeName + "." + rel,
				Types: strings.Split(codes, "|"),
			})
		}
		idx.AddType(typeName, t.Base, elements)
	}
	return idx, nil
}

// FromStructureDefinition adds the snapshot (or, lacking one, the
// differential) of sd to idx. Constraint profiles add nothing new for their
// base type's paths but still register their elements.
func (idx *Index) FromStructureDefinition(sd *r4.StructureDefinition) error {
	if sd == nil || sd.Type == nil || *sd.Type == "" {
		return fmt.Errorf("StructureDefinition has no type")
	}
	typeName := *sd.Type

	var defs []r4.ElementDefinition
	switch {
	case sd.Snapshot != nil && len(sd.Snapshot.Element) > 0:
		defs = sd.Snapshot.Element
	case sd.Differential != nil:
		defs = sd.Differential.Element
	}

	elements := make([]Element, 0, len(defs))
	for i := range defs {
		ed := &defs[i]
		if ed.Path == nil || !strings.Contains(*ed.Path, ".") {
			continue
		}
		elem := Element{Path: *ed.Path}
		if ed.Max != nil {
			elem.Max = *ed.Max
		}
		for j := range ed.Type {
			if code := ed.Type[j].Code; code != nil && *code != "" {
				elem.Types = append(elem.Types, NormalizeSystemType(*code))
			}
		}
		elements = append(elements, elem)
	}

	idx.AddType(typeName, baseTypeName(sd), elements)
	return nil
}

// baseTypeName returns the core type sd derives from, or "".
func baseTypeName(sd *r4.StructureDefinition) string {
	if sd.BaseDefinition == nil {
		return ""
	}
	base := *sd.BaseDefinition
	if !strings.HasPrefix(base, coreCanonicalPrefix) {
		return ""
	}
	return strings.TrimPrefix(base, coreCanonicalPrefix)
}

// LoadFromFile loads StructureDefinitions from a JSON file into idx.
// Supports both single StructureDefinition and Bundle formats.
func (idx *Index) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return idx.LoadFromJSON(data)
}

// LoadFromJSON loads StructureDefinitions from JSON data.
// Auto-detects Bundle vs single StructureDefinition format.
func (idx *Index) LoadFromJSON(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "Bundle":
		return idx.loadBundle(data)
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return 0, fmt.Errorf("failed to parse StructureDefinition: %w", err)
		}
		if err := idx.FromStructureDefinition(&sd); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported resourceType: %s", probe.ResourceType)
	}
}

// loadBundle loads the StructureDefinitions of a Bundle, skipping entries of
// other types and entries that fail to parse.
func (idx *Index) loadBundle(data []byte) (int, error) {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("failed to parse Bundle: %w", err)
	}

	count := 0
	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}

		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != "StructureDefinition" {
			continue
		}

		var sd r4.StructureDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			continue
		}
		if err := idx.FromStructureDefinition(&sd); err != nil {
			continue
		}
		count++
	}

	return count, nil
}
