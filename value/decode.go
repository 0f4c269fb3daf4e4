package value

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Decode builds a Value from a JSON node (decoded with UseNumber) whose
// declared FHIR type is typeCode. Content that does not fit the declared type
// yields Unrecognized; Decode never fails.
func Decode(typeCode string, raw any) Value {
	switch typeCode {
	case "integer", "positiveInt", "unsignedInt", "integer64":
		if _, isString := raw.(string); isString && typeCode != "integer64" {
			break
		}
		if i, ok := toInt64(raw); ok {
			return Integer{V: i, Type: typeCode}
		}

	case "decimal":
		if d, ok := toDecimal(raw); ok {
			return Decimal{V: d}
		}

	case "boolean":
		if b, ok := raw.(bool); ok {
			return Boolean{V: b}
		}

	case "string", "code", "id", "markdown", "time", "base64Binary", "xhtml":
		if s, ok := raw.(string); ok {
			return String{V: s, Type: typeCode}
		}

	case "uri", "url", "canonical", "oid", "uuid":
		if s, ok := raw.(string); ok {
			return URI{V: s, Type: typeCode}
		}

	case "date":
		if s, ok := raw.(string); ok {
			if d, err := ParseDate(s); err == nil {
				return d
			}
		}

	case "dateTime":
		if s, ok := raw.(string); ok {
			if d, err := ParseDateTime(s); err == nil {
				return d
			}
		}

	case "instant":
		if s, ok := raw.(string); ok {
			if d, err := ParseInstant(s); err == nil {
				return d
			}
		}

	case "Identifier":
		var v Identifier
		if decodeObject(raw, &v.Identifier) {
			return v
		}

	case "Coding":
		var v Coding
		if decodeObject(raw, &v.Coding) {
			return v
		}

	case "CodeableConcept":
		var v CodeableConcept
		if decodeObject(raw, &v.CodeableConcept) {
			return v
		}

	case "Reference":
		var v Reference
		if decodeObject(raw, &v) {
			return v
		}

	case "HumanName":
		var v HumanName
		if decodeObject(raw, &v) {
			return v
		}

	case "Address":
		var v Address
		if decodeObject(raw, &v) {
			return v
		}

	case "Money":
		if obj, ok := raw.(map[string]any); ok {
			if m, ok := decodeMoney(obj); ok {
				return m
			}
		}

	case "Quantity", "SimpleQuantity", "MoneyQuantity", "Age", "Duration", "Count", "Distance":
		if obj, ok := raw.(map[string]any); ok {
			if q, ok := decodeQuantity(obj); ok {
				return q
			}
		}
	}

	return Unrecognized{Type: typeCode, Raw: raw}
}

// Infer guesses the type of a JSON node that has no schema entry. Strings are
// strings unless they are a well-formed FHIR date; objects are classified by
// their keys.
func Infer(raw any) Value {
	switch v := raw.(type) {
	case bool:
		return Boolean{V: v}
	case json.Number:
		if _, err := v.Int64(); err == nil && !strings.ContainsAny(v.String(), ".eE") {
			return Decode("integer", v)
		}
		return Decode("decimal", v)
	case float64:
		return Decode("decimal", v)
	case string:
		if dateRegex.MatchString(v) {
			return Decode("date", v)
		}
		if instantRegex.MatchString(v) {
			return Decode("dateTime", v)
		}
		return String{V: v}
	case map[string]any:
		return Decode(inferComplexType(v), v)
	default:
		return Unrecognized{Raw: raw}
	}
}

// inferComplexType classifies an object by the keys it carries.
func inferComplexType(obj map[string]any) string {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := obj[k]; ok {
				return true
			}
		}
		return false
	}

	numeric := false
	switch obj["value"].(type) {
	case json.Number, float64:
		numeric = true
	}

	switch {
	case has("coding"):
		return "CodeableConcept"
	case has("reference"):
		return "Reference"
	case has("currency"):
		return "Money"
	case has("family", "given"):
		return "HumanName"
	case has("line", "city", "postalCode", "country"):
		return "Address"
	case numeric && has("unit", "comparator", "code", "system"):
		return "Quantity"
	case has("code") && has("system"):
		return "Coding"
	case has("value") && !numeric && has("system", "assigner"):
		return "Identifier"
	}
	return ""
}

// decodeObject re-encodes a JSON object and decodes it into target.
func decodeObject(raw any, target any) bool {
	obj, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}

func decodeMoney(obj map[string]any) (Money, bool) {
	var m Money
	if raw, ok := obj["value"]; ok {
		d, ok := toDecimal(raw)
		if !ok {
			return Money{}, false
		}
		m.Value = &d
	}
	if s, ok := optionalString(obj, "currency"); ok {
		m.Currency = s
	} else {
		return Money{}, false
	}
	return m, true
}

func decodeQuantity(obj map[string]any) (Quantity, bool) {
	var q Quantity
	if raw, ok := obj["value"]; ok {
		d, ok := toDecimal(raw)
		if !ok {
			return Quantity{}, false
		}
		q.Value = &d
	}
	for key, dst := range map[string]**string{
		"comparator": &q.Comparator,
		"unit":       &q.Unit,
		"system":     &q.System,
		"code":       &q.Code,
	} {
		s, ok := optionalString(obj, key)
		if !ok {
			return Quantity{}, false
		}
		*dst = s
	}
	return q, true
}

// optionalString returns the string at key, nil when absent, and false when
// the key holds something other than a string.
func optionalString(obj map[string]any, key string) (*string, bool) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return nil, true
	}
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return &s, true
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	default:
		return decimal.Decimal{}, false
	}
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return 0, false
		}
		i, err := v.Int64()
		return i, err == nil
	case string:
		// integer64 is carried as a JSON string.
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
