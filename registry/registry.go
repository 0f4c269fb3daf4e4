// Package registry discovers the search parameters declared for each resource
// type.
//
// A Registry is filled from FHIR SearchParameter resources: the curated R4 set
// embedded in the specs package, Bundle files, or FHIR NPM packages (local
// directories or downloaded from the FHIR package registry). Parameters whose
// base is Resource or DomainResource apply to every registered type.
package registry

import (
	"context"
	"maps"
	"slices"
	"sync"

	fi "github.com/gofhir/indexer"
)

// Registry is an in-memory service.DefinitionSource. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	common []fi.SearchParameterDefinition
	types  map[string][]fi.SearchParameterDefinition
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string][]fi.SearchParameterDefinition, 64)}
}

// Register adds definitions for resourceType. Registering a type without
// definitions still makes it known. A definition whose name is already
// registered for the type replaces the earlier one in place.
func (r *Registry) Register(resourceType string, defs ...fi.SearchParameterDefinition) {
	if resourceType == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[resourceType] = upsert(r.types[resourceType], defs)
}

// RegisterCommon adds definitions that apply to every resource type.
func (r *Registry) RegisterCommon(defs ...fi.SearchParameterDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.common = upsert(r.common, defs)
}

func upsert(existing, defs []fi.SearchParameterDefinition) []fi.SearchParameterDefinition {
	if existing == nil {
		existing = make([]fi.SearchParameterDefinition, 0, len(defs))
	}
	for _, def := range defs {
		i := slices.IndexFunc(existing, func(d fi.SearchParameterDefinition) bool { return d.Name == def.Name })
		if i >= 0 {
			existing[i] = def
			continue
		}
		existing = append(existing, def)
	}
	return existing
}

// Definitions returns the common definitions followed by the type's own, each
// in registration order. Definitions without a path and the synthetic
// _lastUpdated parameter are left out.
func (r *Registry) Definitions(ctx context.Context, resourceType string) ([]fi.SearchParameterDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resourceType == "" {
		return nil, &fi.SchemaError{Err: fi.ErrMissingResourceType}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	own, ok := r.types[resourceType]
	if !ok {
		return nil, &fi.SchemaError{ResourceType: resourceType, Err: fi.ErrUnknownResourceType}
	}

	out := make([]fi.SearchParameterDefinition, 0, len(r.common)+len(own))
	out = appendIndexable(out, r.common)
	out = appendIndexable(out, own)
	return out, nil
}

func appendIndexable(out, defs []fi.SearchParameterDefinition) []fi.SearchParameterDefinition {
	for _, def := range defs {
		if def.Path == "" || def.Name == fi.LastUpdatedName {
			continue
		}
		out = append(out, def)
	}
	return out
}

// HasType returns true if resourceType has been registered.
func (r *Registry) HasType(resourceType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[resourceType]
	return ok
}

// Types returns the registered resource types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered definitions, common ones counted once.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.common)
	for _, defs := range r.types {
		n += len(defs)
	}
	return n
}

// Rejected is a definition removed by Prune.
type Rejected struct {
	ResourceType string
	Definition   fi.SearchParameterDefinition
	Err          error
}

// Prune removes every definition whose path validate rejects and returns what
// was removed. Definitions without a path are kept; they are never evaluated.
// Common definitions are reported with an empty ResourceType.
func (r *Registry) Prune(validate func(expression string) error) []Rejected {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rejected []Rejected
	keep := func(resourceType string, defs []fi.SearchParameterDefinition) []fi.SearchParameterDefinition {
		kept := defs[:0]
		for _, def := range defs {
			if def.Path != "" {
				if err := validate(def.Path); err != nil {
					rejected = append(rejected, Rejected{ResourceType: resourceType, Definition: def, Err: err})
					continue
				}
			}
			kept = append(kept, def)
		}
		return kept
	}

	r.common = keep("", r.common)
	for _, name := range slices.Sorted(maps.Keys(r.types)) {
		r.types[name] = keep(name, r.types[name])
	}
	return rejected
}
