// Package schema maps FHIR element paths to their declared types.
//
// The evaluator uses an Index to tag each navigated JSON node with its FHIR
// type code, so that extraction can tell a Money from a Quantity or a date
// from a dateTime. An Index is built from R4 StructureDefinitions or from the
// compact table embedded in specs, and is read-only once shared.
package schema

import (
	"slices"
	"strings"
)

// maxBaseDepth bounds walks up the base type chain.
const maxBaseDepth = 16

// Element is one element of a type definition.
type Element struct {
	// Path is the full element path (e.g. "Observation.value[x]").
	Path string

	// Types holds the allowed type codes in declaration order.
	Types []string

	// Max is the declared maximum cardinality ("1", "*"), if known.
	Max string
}

// IsChoice returns true for [x] elements.
func (e *Element) IsChoice() bool {
	return strings.HasSuffix(e.Path, "[x]")
}

// Allows returns true if typeCode is one of the element's types.
func (e *Element) Allows(typeCode string) bool {
	return slices.Contains(e.Types, typeCode)
}

// SingleType returns the element's type when exactly one is declared.
func (e *Element) SingleType() string {
	if len(e.Types) == 1 {
		return e.Types[0]
	}
	return ""
}

// Context locates a node within a type definition: Type names the definition
// that declares the node's children and Path is the node's path within it.
// Inline BackboneElements keep the enclosing type.
type Context struct {
	Type string
	Path string
}

// RootContext returns the context of an instance of typeName.
func RootContext(typeName string) Context {
	return Context{Type: typeName, Path: typeName}
}

// IsZero returns true if the context carries no type information.
func (c Context) IsZero() bool {
	return c.Type == ""
}

// Child is a member of a JSON object resolved against the schema.
type Child struct {
	// Key is the JSON property holding the member (e.g. "valueQuantity").
	Key string

	// Type is the resolved type code, or "" if unknown.
	Type string

	// Context is the context for navigating into the member.
	Context Context
}

// Index provides O(1) lookup of element definitions by path across types.
// Build it fully before sharing it between goroutines.
type Index struct {
	// elements maps full element paths to their definitions
	elements map[string]*Element

	// choices maps choice base paths (without [x]) to their definitions
	choices map[string]*Element

	// bases maps type names to their base type names
	bases map[string]string
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		elements: make(map[string]*Element, 256),
		choices:  make(map[string]*Element, 32),
		bases:    make(map[string]string, 64),
	}
}

// AddType registers the elements of a type. Element paths must be full paths
// starting with typeName. A later registration of the same path replaces the
// earlier one.
func (idx *Index) AddType(typeName, baseType string, elements []Element) {
	if typeName == "" {
		return
	}
	if baseType != "" && baseType != typeName {
		idx.bases[typeName] = baseType
	} else if _, ok := idx.bases[typeName]; !ok {
		idx.bases[typeName] = ""
	}

	for i := range elements {
		elem := elements[i]
		if !strings.HasPrefix(elem.Path, typeName+".") {
			continue
		}
		e := &elem
		if e.IsChoice() {
			idx.choices[strings.TrimSuffix(e.Path, "[x]")] = e
			continue
		}
		idx.elements[e.Path] = e
	}
}

// Merge copies every definition of other into idx. Definitions in other
// replace those already present.
func (idx *Index) Merge(other *Index) {
	if other == nil {
		return
	}
	for k, v := range other.elements {
		idx.elements[k] = v
	}
	for k, v := range other.choices {
		idx.choices[k] = v
	}
	for k, v := range other.bases {
		if v != "" || idx.bases[k] == "" {
			idx.bases[k] = v
		}
	}
}

// HasType returns true if the type has been registered.
func (idx *Index) HasType(typeName string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.bases[typeName]
	return ok
}

// Types returns the registered type names in sorted order.
func (idx *Index) Types() []string {
	if idx == nil {
		return nil
	}
	names := make([]string, 0, len(idx.bases))
	for name := range idx.bases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Size returns the number of indexed element paths.
func (idx *Index) Size() int {
	if idx == nil {
		return 0
	}
	return len(idx.elements) + len(idx.choices)
}

// Base returns the base type of typeName, or "".
func (idx *Index) Base(typeName string) string {
	if idx == nil {
		return ""
	}
	return idx.bases[typeName]
}

// IsA returns true if typeCode is target or derives from it.
func (idx *Index) IsA(typeCode, target string) bool {
	if typeCode == "" || target == "" {
		return false
	}
	t := typeCode
	for depth := 0; t != "" && depth < maxBaseDepth; depth++ {
		if t == target {
			return true
		}
		if idx == nil {
			break
		}
		t = idx.bases[t]
	}
	return false
}

// Lookup finds the definition of member name under ctx, walking the base type
// chain. It returns the element and the type whose definition declares it.
func (idx *Index) Lookup(ctx Context, name string) (*Element, string) {
	if idx == nil || ctx.IsZero() || !strings.HasPrefix(ctx.Path, ctx.Type) {
		return nil, ""
	}
	rel := ctx.Path[len(ctx.Type):]

	t := ctx.Type
	for depth := 0; t != "" && depth < maxBaseDepth; depth++ {
		path := t + rel + "." + name
		if e := idx.elements[path]; e != nil {
			return e, t
		}
		if e := idx.choices[path]; e != nil {
			return e, t
		}
		t = idx.bases[t]
	}

	// Members every backbone element carries (id, extension, modifierExtension)
	if rel != "" {
		return idx.Lookup(RootContext("BackboneElement"), name)
	}
	return nil, ""
}

// Children resolves member name of obj. Choice elements yield one child per
// variant present in obj, in declaration order. Members unknown to the schema
// are resolved by key, falling back to a choice type suffix scan.
func (idx *Index) Children(ctx Context, name string, obj map[string]any) []Child {
	if len(obj) == 0 || name == "" {
		return nil
	}

	elem, owner := idx.Lookup(ctx, name)
	if elem == nil {
		return untypedChildren(idx, name, obj)
	}

	if elem.IsChoice() {
		var children []Child
		for _, t := range elem.Types {
			key := name + SuffixForType(t)
			if _, ok := obj[key]; ok {
				children = append(children, Child{Key: key, Type: t, Context: idx.contextFor(owner, elem, t)})
			}
		}
		return children
	}

	if _, ok := obj[name]; !ok {
		return nil
	}
	t := elem.SingleType()
	return []Child{{Key: name, Type: t, Context: idx.contextFor(owner, elem, t)}}
}

// contextFor returns the context for navigating into a member of type t.
func (idx *Index) contextFor(owner string, elem *Element, t string) Context {
	switch {
	case t == "":
		return Context{}
	case IsInlineElementType(t):
		return Context{Type: owner, Path: elem.Path}
	default:
		return RootContext(t)
	}
}

func untypedChildren(idx *Index, name string, obj map[string]any) []Child {
	if _, ok := obj[name]; ok {
		return []Child{{Key: name}}
	}

	var children []Child
	for _, suffix := range ChoiceTypeSuffixes {
		key := name + suffix
		if _, ok := obj[key]; !ok {
			continue
		}
		t := TypeForSuffix(suffix)
		ctx := RootContext(t)
		if !idx.HasType(t) {
			ctx = Context{}
		}
		children = append(children, Child{Key: key, Type: t, Context: ctx})
	}
	return children
}
