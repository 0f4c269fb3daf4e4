package schema

import "strings"

// SystemTypeMapping maps FHIRPath system types to FHIR primitive types.
// StructureDefinitions use these for primitive value elements such as
// Patient.id or Element.id.
var SystemTypeMapping = map[string]string{
	"http://hl7.org/fhirpath/System.String":   "string",
	"http://hl7.org/fhirpath/System.Boolean":  "boolean",
	"http://hl7.org/fhirpath/System.Integer":  "integer",
	"http://hl7.org/fhirpath/System.Decimal":  "decimal",
	"http://hl7.org/fhirpath/System.DateTime": "dateTime",
	"http://hl7.org/fhirpath/System.Time":     "time",
	"http://hl7.org/fhirpath/System.Date":     "date",
}

// FHIRPrimitiveTypes contains all FHIR primitive type codes.
var FHIRPrimitiveTypes = map[string]bool{
	"boolean":      true,
	"integer":      true,
	"integer64":    true,
	"string":       true,
	"decimal":      true,
	"uri":          true,
	"url":          true,
	"canonical":    true,
	"base64Binary": true,
	"instant":      true,
	"date":         true,
	"dateTime":     true,
	"time":         true,
	"code":         true,
	"oid":          true,
	"id":           true,
	"markdown":     true,
	"unsignedInt":  true,
	"positiveInt":  true,
	"uuid":         true,
	"xhtml":        true,
}

// ChoiceTypeSuffixes contains all valid suffixes for choice types (value[x]).
// Longer suffixes that end with a shorter one (DateTime/Time) come first so
// suffix matching picks the longest.
var ChoiceTypeSuffixes = []string{
	// Primitives
	"Base64Binary",
	"Boolean",
	"Canonical",
	"Code",
	"DateTime",
	"Date",
	"Decimal",
	"Id",
	"Instant",
	"Integer64",
	"Integer",
	"Markdown",
	"Oid",
	"PositiveInt",
	"String",
	"Time",
	"UnsignedInt",
	"Uri",
	"Url",
	"Uuid",

	// Complex types
	"Address",
	"Age",
	"Annotation",
	"Attachment",
	"CodeableConcept",
	"CodeableReference",
	"Coding",
	"ContactDetail",
	"ContactPoint",
	"Contributor",
	"Count",
	"DataRequirement",
	"Distance",
	"Dosage",
	"Duration",
	"Expression",
	"HumanName",
	"Identifier",
	"Meta",
	"Money",
	"MoneyQuantity",
	"ParameterDefinition",
	"Period",
	"Quantity",
	"Range",
	"RatioRange",
	"Ratio",
	"Reference",
	"RelatedArtifact",
	"SampledData",
	"Signature",
	"SimpleQuantity",
	"Timing",
	"TriggerDefinition",
	"UsageContext",
}

// InlineElementTypes contains types whose children are defined inline in the
// parent's definition. Navigation stays in the parent type for these.
var InlineElementTypes = map[string]bool{
	"BackboneElement": true,
	"Element":         true,
}

// IsPrimitiveType returns true if the type code is a FHIR primitive type.
func IsPrimitiveType(typeCode string) bool {
	return FHIRPrimitiveTypes[typeCode]
}

// IsInlineElementType returns true if children of the type are defined in the
// enclosing definition.
func IsInlineElementType(typeName string) bool {
	return InlineElementTypes[typeName]
}

// NormalizeSystemType converts a FHIRPath system type URL to a FHIR primitive type.
// If the type is not a system type, it returns the original type.
func NormalizeSystemType(typeCode string) string {
	if normalized, ok := SystemTypeMapping[typeCode]; ok {
		return normalized
	}
	return typeCode
}

// TypeForSuffix maps a choice suffix ("DateTime", "Quantity") to the type code
// it names ("dateTime", "Quantity").
func TypeForSuffix(suffix string) string {
	if lower := lowerFirst(suffix); IsPrimitiveType(lower) {
		return lower
	}
	return suffix
}

// SuffixForType maps a type code to the suffix it takes on a choice element.
func SuffixForType(typeCode string) string {
	return upperFirst(typeCode)
}

// upperFirst capitalizes the first letter of a string.
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// lowerFirst lowercases the first letter of a string.
func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
