// Package value defines the closed set of shapes a path evaluation can yield.
//
// Every matched value is one of the concrete types in this package. Extractors
// switch on the concrete type (or on Shape) and treat anything they do not
// recognize, including Unrecognized, as "no entry".
package value

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofhir/fhir/r4"
	"github.com/shopspring/decimal"
)

// Shape is the runtime structural kind of a matched value. Primitive shapes use
// the FHIR primitive type code, complex shapes the FHIR data type name.
type Shape string

// Recognized shapes.
const (
	ShapeInteger         Shape = "integer"
	ShapeDecimal         Shape = "decimal"
	ShapeBoolean         Shape = "boolean"
	ShapeString          Shape = "string"
	ShapeURI             Shape = "uri"
	ShapeDate            Shape = "date"
	ShapeDateTime        Shape = "dateTime"
	ShapeInstant         Shape = "instant"
	ShapeIdentifier      Shape = "Identifier"
	ShapeCoding          Shape = "Coding"
	ShapeCodeableConcept Shape = "CodeableConcept"
	ShapeReference       Shape = "Reference"
	ShapeMoney           Shape = "Money"
	ShapeQuantity        Shape = "Quantity"
	ShapeHumanName       Shape = "HumanName"
	ShapeAddress         Shape = "Address"
)

// Value is a single matched value.
type Value interface {
	// Shape returns the runtime shape tag.
	Shape() Shape

	// TypeCode returns the declared FHIR type code (e.g. "code" for a String
	// decoded from a code element). For most shapes it equals Shape.
	TypeCode() string

	// IsEmpty reports whether the value carries no content.
	IsEmpty() bool

	// String returns the textual representation used by string indexing.
	String() string

	sealed()
}

// Integer is a FHIR integer, positiveInt, unsignedInt or integer64.
type Integer struct {
	V    int64
	Type string
}

func (Integer) Shape() Shape { return ShapeInteger }
func (v Integer) TypeCode() string {
	if v.Type == "" {
		return string(ShapeInteger)
	}
	return v.Type
}
func (Integer) IsEmpty() bool    { return false }
func (v Integer) String() string { return strconv.FormatInt(v.V, 10) }
func (Integer) sealed()          {}

// Decimal is a FHIR decimal kept at full precision.
type Decimal struct {
	V decimal.Decimal
}

func (Decimal) Shape() Shape     { return ShapeDecimal }
func (Decimal) TypeCode() string { return string(ShapeDecimal) }
func (Decimal) IsEmpty() bool    { return false }
func (v Decimal) String() string { return v.V.String() }
func (Decimal) sealed()          {}

// Boolean is a FHIR boolean.
type Boolean struct {
	V bool
}

func (Boolean) Shape() Shape     { return ShapeBoolean }
func (Boolean) TypeCode() string { return string(ShapeBoolean) }
func (Boolean) IsEmpty() bool    { return false }
func (v Boolean) String() string { return strconv.FormatBool(v.V) }
func (Boolean) sealed()          {}

// String is a string-like primitive: string, code, id, markdown, time,
// base64Binary.
type String struct {
	V    string
	Type string
}

func (String) Shape() Shape { return ShapeString }
func (v String) TypeCode() string {
	if v.Type == "" {
		return string(ShapeString)
	}
	return v.Type
}
func (v String) IsEmpty() bool  { return v.V == "" }
func (v String) String() string { return v.V }
func (String) sealed()          {}

// URI is a uri-like primitive: uri, url, canonical, oid, uuid.
type URI struct {
	V    string
	Type string
}

func (URI) Shape() Shape { return ShapeURI }
func (v URI) TypeCode() string {
	if v.Type == "" {
		return string(ShapeURI)
	}
	return v.Type
}
func (v URI) IsEmpty() bool  { return v.V == "" }
func (v URI) String() string { return v.V }
func (URI) sealed()          {}

// Date is a parsed date, dateTime or instant. Kind tells which.
type Date struct {
	Time      time.Time
	Precision Precision
	Kind      Shape
	Raw       string
}

func (v Date) Shape() Shape     { return v.Kind }
func (v Date) TypeCode() string { return string(v.Kind) }
func (v Date) IsEmpty() bool    { return v.Raw == "" && v.Time.IsZero() }
func (v Date) String() string   { return v.Raw }
func (Date) sealed()            {}

// Identifier wraps an R4 Identifier.
type Identifier struct {
	r4.Identifier
}

func (Identifier) Shape() Shape     { return ShapeIdentifier }
func (Identifier) TypeCode() string { return string(ShapeIdentifier) }
func (v Identifier) IsEmpty() bool {
	return isBlank(v.System) && isBlank(v.Value) && v.Use == nil
}
func (v Identifier) String() string { return deref(v.Value) }
func (Identifier) sealed()          {}

// Coding wraps an R4 Coding.
type Coding struct {
	r4.Coding
}

func (Coding) Shape() Shape     { return ShapeCoding }
func (Coding) TypeCode() string { return string(ShapeCoding) }
func (v Coding) IsEmpty() bool {
	return isBlank(v.System) && isBlank(v.Code) && isBlank(v.Display) && isBlank(v.Version)
}
func (v Coding) String() string {
	if !isBlank(v.Display) {
		return *v.Display
	}
	return deref(v.Code)
}
func (Coding) sealed() {}

// CodeableConcept wraps an R4 CodeableConcept.
type CodeableConcept struct {
	r4.CodeableConcept
}

func (CodeableConcept) Shape() Shape     { return ShapeCodeableConcept }
func (CodeableConcept) TypeCode() string { return string(ShapeCodeableConcept) }
func (v CodeableConcept) IsEmpty() bool {
	if !isBlank(v.Text) {
		return false
	}
	for i := range v.Coding {
		if !(Coding{v.Coding[i]}).IsEmpty() {
			return false
		}
	}
	return true
}
func (v CodeableConcept) String() string {
	if !isBlank(v.Text) {
		return *v.Text
	}
	for i := range v.Coding {
		if s := (Coding{v.Coding[i]}).String(); s != "" {
			return s
		}
	}
	return ""
}
func (CodeableConcept) sealed() {}

// Reference is a FHIR Reference.
type Reference struct {
	Reference *string `json:"reference,omitempty"`
	Type      *string `json:"type,omitempty"`
	Display   *string `json:"display,omitempty"`
}

func (Reference) Shape() Shape     { return ShapeReference }
func (Reference) TypeCode() string { return string(ShapeReference) }
func (v Reference) IsEmpty() bool {
	return isBlank(v.Reference) && isBlank(v.Type) && isBlank(v.Display)
}
func (v Reference) String() string {
	if !isBlank(v.Reference) {
		return *v.Reference
	}
	return deref(v.Display)
}
func (Reference) sealed() {}

// TargetType returns the resource type named by a relative or absolute
// literal reference ("Patient/123", "http://x/fhir/Patient/123/_history/2"),
// falling back to the explicit type element.
func (v Reference) TargetType() string {
	ref := deref(v.Reference)
	if ref != "" && !strings.HasPrefix(ref, "#") {
		if i := strings.Index(ref, "/_history/"); i >= 0 {
			ref = ref[:i]
		}
		parts := strings.Split(ref, "/")
		if n := len(parts); n >= 2 && isResourceTypeName(parts[n-2]) {
			return parts[n-2]
		}
	}
	return deref(v.Type)
}

// Money is a FHIR Money: an amount and an ISO 4217 currency code.
type Money struct {
	Value    *decimal.Decimal
	Currency *string
}

func (Money) Shape() Shape     { return ShapeMoney }
func (Money) TypeCode() string { return string(ShapeMoney) }
func (v Money) IsEmpty() bool  { return v.Value == nil && isBlank(v.Currency) }
func (v Money) String() string {
	return joinNonEmpty(" ", decimalString(v.Value), deref(v.Currency))
}
func (Money) sealed() {}

// Quantity is a FHIR Quantity (including SimpleQuantity and MoneyQuantity).
type Quantity struct {
	Value      *decimal.Decimal
	Comparator *string
	Unit       *string
	System     *string
	Code       *string
}

func (Quantity) Shape() Shape     { return ShapeQuantity }
func (Quantity) TypeCode() string { return string(ShapeQuantity) }
func (v Quantity) IsEmpty() bool {
	return v.Value == nil && isBlank(v.Comparator) && isBlank(v.Unit) && isBlank(v.System) && isBlank(v.Code)
}
func (v Quantity) String() string {
	unit := deref(v.Unit)
	if unit == "" {
		unit = deref(v.Code)
	}
	return joinNonEmpty(" ", deref(v.Comparator)+decimalString(v.Value), unit)
}
func (Quantity) sealed() {}

// HumanName is a FHIR HumanName.
type HumanName struct {
	Text   *string  `json:"text,omitempty"`
	Family *string  `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
}

func (HumanName) Shape() Shape     { return ShapeHumanName }
func (HumanName) TypeCode() string { return string(ShapeHumanName) }
func (v HumanName) IsEmpty() bool {
	return isBlank(v.Text) && isBlank(v.Family) && len(v.Given) == 0 && len(v.Prefix) == 0 && len(v.Suffix) == 0
}
func (v HumanName) String() string {
	if !isBlank(v.Text) {
		return *v.Text
	}
	parts := make([]string, 0, len(v.Prefix)+len(v.Given)+len(v.Suffix)+1)
	parts = append(parts, v.Prefix...)
	parts = append(parts, v.Given...)
	parts = append(parts, deref(v.Family))
	parts = append(parts, v.Suffix...)
	return joinNonEmpty(" ", parts...)
}
func (HumanName) sealed() {}

// Address is a FHIR Address.
type Address struct {
	Text       *string  `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       *string  `json:"city,omitempty"`
	District   *string  `json:"district,omitempty"`
	State      *string  `json:"state,omitempty"`
	PostalCode *string  `json:"postalCode,omitempty"`
	Country    *string  `json:"country,omitempty"`
}

func (Address) Shape() Shape     { return ShapeAddress }
func (Address) TypeCode() string { return string(ShapeAddress) }
func (v Address) IsEmpty() bool {
	return isBlank(v.Text) && len(v.Line) == 0 && isBlank(v.City) && isBlank(v.District) &&
		isBlank(v.State) && isBlank(v.PostalCode) && isBlank(v.Country)
}
func (v Address) String() string {
	if !isBlank(v.Text) {
		return *v.Text
	}
	parts := append([]string{}, v.Line...)
	parts = append(parts, deref(v.City), deref(v.District), deref(v.State), deref(v.PostalCode), deref(v.Country))
	return joinNonEmpty(", ", parts...)
}
func (Address) sealed() {}

// Unrecognized carries any value whose type has no dedicated arm, or whose
// content could not be decoded as its declared type.
type Unrecognized struct {
	Type string
	Raw  any
}

func (v Unrecognized) Shape() Shape     { return Shape(v.Type) }
func (v Unrecognized) TypeCode() string { return v.Type }
func (v Unrecognized) IsEmpty() bool {
	switch raw := v.Raw.(type) {
	case nil:
		return true
	case string:
		return raw == ""
	case map[string]any:
		return len(raw) == 0
	case []any:
		return len(raw) == 0
	default:
		return false
	}
}

// String renders primitives as-is and complex content as compact JSON with
// sorted keys, so the output is deterministic.
func (v Unrecognized) String() string {
	switch raw := v.Raw.(type) {
	case nil:
		return ""
	case string:
		return raw
	case json.Number:
		return raw.String()
	case bool:
		return strconv.FormatBool(raw)
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
func (Unrecognized) sealed() {}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isBlank(s *string) bool {
	return s == nil || *s == ""
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func isResourceTypeName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
