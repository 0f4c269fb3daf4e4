package fhirindexer

// Category is the value category a search parameter declares.
// Maps to SearchParameter.type in FHIR.
type Category int

const (
	// CategoryUnsupported covers composite and special parameters, and any
	// type code this indexer does not know. No entries are extracted for it.
	CategoryUnsupported Category = iota
	// CategoryNumber indexes integer and decimal values.
	CategoryNumber
	// CategoryDate indexes date and instant values as time ranges.
	CategoryDate
	// CategoryString indexes textual representations.
	CategoryString
	// CategoryToken indexes system/code pairs.
	CategoryToken
	// CategoryReference indexes literal references.
	CategoryReference
	// CategoryQuantity indexes system/unit/value triples.
	CategoryQuantity
	// CategoryURI indexes uri values.
	CategoryURI
)

// String returns the FHIR search parameter type code.
func (c Category) String() string {
	switch c {
	case CategoryNumber:
		return "number"
	case CategoryDate:
		return "date"
	case CategoryString:
		return "string"
	case CategoryToken:
		return "token"
	case CategoryReference:
		return "reference"
	case CategoryQuantity:
		return "quantity"
	case CategoryURI:
		return "uri"
	default:
		return "unsupported"
	}
}

// IsSupported returns true if extraction exists for the category.
func (c Category) IsSupported() bool {
	return c != CategoryUnsupported
}

// MarshalText renders the category as its type code.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseCategory maps a SearchParameter.type code to a Category.
// "composite", "special" and unknown codes map to CategoryUnsupported.
func ParseCategory(code string) Category {
	switch code {
	case "number":
		return CategoryNumber
	case "date":
		return CategoryDate
	case "string":
		return CategoryString
	case "token":
		return CategoryToken
	case "reference":
		return CategoryReference
	case "quantity":
		return CategoryQuantity
	case "uri":
		return CategoryURI
	default:
		return CategoryUnsupported
	}
}

// SearchParameterDefinition declares one search parameter: the name it is
// searched by, the path expression locating its values, and its category.
type SearchParameterDefinition struct {
	// Name is the search code (e.g. "birthdate").
	Name string `json:"name"`

	// Path is the FHIRPath expression (e.g. "Patient.birthDate").
	Path string `json:"path"`

	// Category is the declared value category.
	Category Category `json:"category"`

	// URL is the canonical URL of the SearchParameter resource, if known.
	URL string `json:"url,omitempty"`
}
