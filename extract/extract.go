// Package extract turns matched values into index entries.
//
// There is one extractor per search parameter category. Each is a pure
// function of a definition and a single value; values whose shape the category
// does not recognize produce no entries, and never an error.
package extract

import (
	"strconv"

	"github.com/shopspring/decimal"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/value"
)

// Number indexes integers and decimals.
func Number(def fi.SearchParameterDefinition, v value.Value) []fi.NumberIndex {
	var d decimal.Decimal
	switch v := v.(type) {
	case value.Integer:
		d = decimal.NewFromInt(v.V)
	case value.Decimal:
		d = v.V
	default:
		return nil
	}
	return []fi.NumberIndex{{Name: def.Name, Path: def.Path, Value: d}}
}

// Date indexes date and instant values as a point range. dateTime values are
// not indexed.
func Date(def fi.SearchParameterDefinition, v value.Value) []fi.DateIndex {
	d, ok := v.(value.Date)
	if !ok || d.Time.IsZero() {
		return nil
	}
	switch d.Kind {
	case value.ShapeDate, value.ShapeInstant:
	default:
		return nil
	}
	return []fi.DateIndex{{
		Name:      def.Name,
		Path:      def.Path,
		Low:       d.Time,
		High:      d.Time,
		Precision: d.Precision,
	}}
}

// String indexes the textual form of any non-empty value.
func String(def fi.SearchParameterDefinition, v value.Value) []fi.StringIndex {
	if v == nil || v.IsEmpty() {
		return nil
	}
	s := v.String()
	if s == "" {
		return nil
	}
	return []fi.StringIndex{{Name: def.Name, Path: def.Path, Value: s}}
}

// Token indexes booleans, identifiers with a value, and the codings of a
// CodeableConcept that carry a code.
func Token(def fi.SearchParameterDefinition, v value.Value) []fi.TokenIndex {
	switch v := v.(type) {
	case value.Boolean:
		return []fi.TokenIndex{{Name: def.Name, Path: def.Path, Code: strconv.FormatBool(v.V)}}

	case value.Identifier:
		if v.Value == nil || *v.Value == "" {
			return nil
		}
		return []fi.TokenIndex{{Name: def.Name, Path: def.Path, System: cloneString(v.System), Code: *v.Value}}

	case value.CodeableConcept:
		var out []fi.TokenIndex
		for i := range v.Coding {
			c := &v.Coding[i]
			if c.Code == nil || *c.Code == "" {
				continue
			}
			system := ""
			if c.System != nil {
				system = *c.System
			}
			out = append(out, fi.TokenIndex{Name: def.Name, Path: def.Path, System: &system, Code: *c.Code})
		}
		return out

	default:
		return nil
	}
}

// Reference indexes literal references.
func Reference(def fi.SearchParameterDefinition, v value.Value) []fi.ReferenceIndex {
	ref, ok := v.(value.Reference)
	if !ok || ref.Reference == nil || *ref.Reference == "" {
		return nil
	}
	return []fi.ReferenceIndex{{Name: def.Name, Path: def.Path, Reference: *ref.Reference}}
}

// Quantity indexes Money and Quantity values that carry a numeric value.
func Quantity(def fi.SearchParameterDefinition, v value.Value) []fi.QuantityIndex {
	switch v := v.(type) {
	case value.Money:
		if v.Value == nil {
			return nil
		}
		return []fi.QuantityIndex{{
			Name:   def.Name,
			Path:   def.Path,
			System: fi.CurrencyCodeSystem,
			Unit:   deref(v.Currency),
			Value:  *v.Value,
		}}

	case value.Quantity:
		if v.Value == nil {
			return nil
		}
		return []fi.QuantityIndex{{
			Name:   def.Name,
			Path:   def.Path,
			System: deref(v.System),
			Unit:   deref(v.Unit),
			Value:  *v.Value,
		}}

	default:
		return nil
	}
}

// URI indexes non-empty uri values.
func URI(def fi.SearchParameterDefinition, v value.Value) []fi.URIIndex {
	u, ok := v.(value.URI)
	if !ok || u.V == "" {
		return nil
	}
	return []fi.URIIndex{{Name: def.Name, Path: def.Path, URI: u.V}}
}

// Apply extracts the entries of v for def's category into b and returns how
// many were added. Unsupported categories add nothing.
func Apply(b *fi.Builder, def fi.SearchParameterDefinition, v value.Value) int {
	switch def.Category {
	case fi.CategoryNumber:
		return addAll(b.AddNumber, Number(def, v))
	case fi.CategoryDate:
		return addAll(b.AddDate, Date(def, v))
	case fi.CategoryString:
		return addAll(b.AddString, String(def, v))
	case fi.CategoryToken:
		return addAll(b.AddToken, Token(def, v))
	case fi.CategoryReference:
		return addAll(b.AddReference, Reference(def, v))
	case fi.CategoryQuantity:
		return addAll(b.AddQuantity, Quantity(def, v))
	case fi.CategoryURI:
		return addAll(b.AddURI, URI(def, v))
	default:
		return 0
	}
}

func addAll[E any](add func(E), entries []E) int {
	for _, e := range entries {
		add(e)
	}
	return len(entries)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
