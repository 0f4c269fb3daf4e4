package value

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// node decodes a JSON literal the way documents are decoded.
func node(t *testing.T, s string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	require.NoError(t, dec.Decode(&v))
	return v
}

func TestParseTemporal(t *testing.T) {
	tests := []struct {
		name      string
		parse     func(string) (Date, error)
		input     string
		want      time.Time
		precision Precision
		kind      Shape
	}{
		{"year", ParseDate, "2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), PrecisionYear, ShapeDate},
		{"month", ParseDate, "2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), PrecisionMonth, ShapeDate},
		{"day", ParseDate, "2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), PrecisionDay, ShapeDate},
		{"dateTime seconds", ParseDateTime, "2024-03-15T10:20:30+02:00", time.Date(2024, 3, 15, 8, 20, 30, 0, time.UTC), PrecisionSecond, ShapeDateTime},
		{"dateTime partial", ParseDateTime, "2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), PrecisionMonth, ShapeDateTime},
		{"instant", ParseInstant, "2024-03-15T10:20:30Z", time.Date(2024, 3, 15, 10, 20, 30, 0, time.UTC), PrecisionSecond, ShapeInstant},
		{"instant millis", ParseInstant, "2024-03-15T10:20:30.123Z", time.Date(2024, 3, 15, 10, 20, 30, 123000000, time.UTC), PrecisionMillisecond, ShapeInstant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.parse(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.Time), "time = %v; want %v", d.Time, tt.want)
			assert.Equal(t, tt.precision, d.Precision)
			assert.Equal(t, tt.kind, d.Shape())
			assert.Equal(t, tt.input, d.String())
		})
	}
}

func TestParseTemporal_Invalid(t *testing.T) {
	for _, s := range []string{"", "24", "2024-13", "2024-03-15T10:20", "2024-03-15T10:20:30"} {
		_, err := ParseInstant(s)
		assert.Error(t, err, "ParseInstant(%q)", s)
	}
	_, err := ParseDate("2024-03-15T10:20:30Z")
	assert.Error(t, err)
}

func TestDecode_Primitives(t *testing.T) {
	t.Run("integer", func(t *testing.T) {
		v := Decode("integer", node(t, "42"))
		require.IsType(t, Integer{}, v)
		assert.Equal(t, int64(42), v.(Integer).V)
		assert.Equal(t, ShapeInteger, v.Shape())
	})

	t.Run("integer rejects fractions", func(t *testing.T) {
		v := Decode("integer", node(t, "4.5"))
		assert.IsType(t, Unrecognized{}, v)
	})

	t.Run("integer64 as string", func(t *testing.T) {
		v := Decode("integer64", node(t, `"9007199254740993"`))
		require.IsType(t, Integer{}, v)
		assert.Equal(t, int64(9007199254740993), v.(Integer).V)
		assert.Equal(t, "integer64", v.TypeCode())
	})

	t.Run("decimal keeps precision", func(t *testing.T) {
		v := Decode("decimal", node(t, "0.10000000000000000001"))
		require.IsType(t, Decimal{}, v)
		assert.Equal(t, "0.10000000000000000001", v.String())
	})

	t.Run("boolean", func(t *testing.T) {
		v := Decode("boolean", node(t, "true"))
		assert.Equal(t, Boolean{V: true}, v)
		assert.Equal(t, "true", v.String())
	})

	t.Run("code is a string shape", func(t *testing.T) {
		v := Decode("code", node(t, `"male"`))
		assert.Equal(t, ShapeString, v.Shape())
		assert.Equal(t, "code", v.TypeCode())
	})

	t.Run("canonical is a uri shape", func(t *testing.T) {
		v := Decode("canonical", node(t, `"http://example.org/sd"`))
		assert.Equal(t, ShapeURI, v.Shape())
	})

	t.Run("bad date is unrecognized", func(t *testing.T) {
		v := Decode("date", node(t, `"not-a-date"`))
		assert.Equal(t, Shape("date"), v.Shape())
		assert.IsType(t, Unrecognized{}, v)
	})
}

func TestDecode_Complex(t *testing.T) {
	t.Run("identifier", func(t *testing.T) {
		v := Decode("Identifier", node(t, `{"system":"urn:sys","value":"123"}`))
		require.IsType(t, Identifier{}, v)
		id := v.(Identifier)
		require.NotNil(t, id.System)
		assert.Equal(t, "urn:sys", *id.System)
		assert.Equal(t, "123", id.String())
	})

	t.Run("codeable concept", func(t *testing.T) {
		v := Decode("CodeableConcept", node(t, `{"coding":[{"system":"s","code":"c"}],"text":"t"}`))
		require.IsType(t, CodeableConcept{}, v)
		cc := v.(CodeableConcept)
		require.Len(t, cc.Coding, 1)
		assert.Equal(t, "c", *cc.Coding[0].Code)
		assert.Equal(t, "t", cc.String())
	})

	t.Run("money", func(t *testing.T) {
		v := Decode("Money", node(t, `{"value":100.50,"currency":"USD"}`))
		require.IsType(t, Money{}, v)
		m := v.(Money)
		require.NotNil(t, m.Value)
		assert.True(t, m.Value.Equal(decimal.RequireFromString("100.5")))
		assert.Equal(t, "USD", *m.Currency)
	})

	t.Run("quantity", func(t *testing.T) {
		v := Decode("Quantity", node(t, `{"value":6.3,"unit":"mmol/l","system":"http://unitsofmeasure.org","code":"mmol/L"}`))
		require.IsType(t, Quantity{}, v)
		q := v.(Quantity)
		assert.Equal(t, "6.3", q.Value.String())
		assert.Equal(t, "mmol/l", *q.Unit)
		assert.Equal(t, "6.3 mmol/l", q.String())
	})

	t.Run("quantity with non-numeric value", func(t *testing.T) {
		v := Decode("Quantity", node(t, `{"value":"six"}`))
		assert.IsType(t, Unrecognized{}, v)
	})

	t.Run("reference", func(t *testing.T) {
		v := Decode("Reference", node(t, `{"reference":"Patient/123"}`))
		require.IsType(t, Reference{}, v)
		assert.Equal(t, "Patient", v.(Reference).TargetType())
	})

	t.Run("human name", func(t *testing.T) {
		v := Decode("HumanName", node(t, `{"family":"Chalmers","given":["Peter","James"]}`))
		assert.Equal(t, "Peter James Chalmers", v.String())
		assert.False(t, v.IsEmpty())
	})

	t.Run("empty address", func(t *testing.T) {
		v := Decode("Address", node(t, `{}`))
		assert.True(t, v.IsEmpty())
	})

	t.Run("unknown type keeps raw", func(t *testing.T) {
		v := Decode("Period", node(t, `{"start":"2024"}`))
		assert.Equal(t, Shape("Period"), v.Shape())
		assert.Equal(t, `{"start":"2024"}`, v.String())
	})
}

func TestReference_TargetType(t *testing.T) {
	ref := func(s string) Reference { return Reference{Reference: &s} }
	typ := "Group"

	assert.Equal(t, "Patient", ref("Patient/1").TargetType())
	assert.Equal(t, "Patient", ref("http://example.org/fhir/Patient/1/_history/2").TargetType())
	assert.Equal(t, "", ref("#contained").TargetType())
	assert.Equal(t, "Group", Reference{Type: &typ}.TargetType())
}

func TestInfer(t *testing.T) {
	tests := []struct {
		input string
		shape Shape
	}{
		{"42", ShapeInteger},
		{"4.2", ShapeDecimal},
		{"true", ShapeBoolean},
		{`"hello"`, ShapeString},
		{`"2024-01-02"`, ShapeDate},
		{`"2024-01-02T10:00:00Z"`, ShapeDateTime},
		{`{"coding":[]}`, ShapeCodeableConcept},
		{`{"reference":"Patient/1"}`, ShapeReference},
		{`{"value":1,"currency":"EUR"}`, ShapeMoney},
		{`{"value":1,"unit":"kg"}`, ShapeQuantity},
		{`{"value":5,"system":"x"}`, ShapeQuantity},
		{`{"value":5,"assigner":{"display":"x"}}`, Shape("")},
		{`{"system":"s","value":"v"}`, ShapeIdentifier},
		{`{"system":"s","code":"c"}`, ShapeCoding},
		{`{"family":"Doe"}`, ShapeHumanName},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.shape, Infer(node(t, tt.input)).Shape())
		})
	}
}

func TestPrecision_String(t *testing.T) {
	assert.Equal(t, "SECOND", PrecisionSecond.String())
	text, err := PrecisionMillisecond.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "MILLISECOND", string(text))
}
