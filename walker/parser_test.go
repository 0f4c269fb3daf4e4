package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want string
	}{
		{"path", "Patient.name.family", "Patient.name.family"},
		{"relative path", "name.given", "name.given"},
		{"union", "Patient.name.family | Practitioner.name.family", "Patient.name.family | Practitioner.name.family"},
		{"as operator", "(Observation.value as Quantity)", "(Observation.value as Quantity)"},
		{"as operator then member", "(Observation.value as CodeableConcept).text", "(Observation.value as CodeableConcept).text"},
		{"qualified type", "Observation.value as FHIR.Quantity", "(Observation.value as Quantity)"},
		{"as function", "Condition.onset.as(Age)", "Condition.onset.as(Age)"},
		{"ofType", "Observation.value.ofType(Quantity)", "Observation.value.ofType(Quantity)"},
		{"where resolve", "Observation.subject.where(resolve() is Patient)", "Observation.subject.where(resolve() is Patient)"},
		{"where comparison", "Patient.telecom.where(system='email')", "Patient.telecom.where(system='email')"},
		{"where nested parens", "Patient.name.where((use = 'official') and (family != 'x'))", "Patient.name.where((use = 'official') and (family != 'x'))"},
		{"extension", "Patient.extension('http://example.org/ext').value", "Patient.extension(http://example.org/ext).value"},
		{"first", "Patient.name.first().family", "Patient.name.first().family"},
		{"delimited identifier", "Patient.`name`", "Patient.name"},
		{"comment", "Patient.name // the names", "Patient.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	syntax := []string{
		"",
		"   ",
		"Patient.",
		"Patient..name",
		"(Patient.name",
		"Patient.name)",
		"Patient.name |",
		"Patient.where()",
		"Patient.where(active = true",
		"Patient.extension(url)",
		"Patient.name.as()",
		"Patient.name as",
		"'unterminated",
		"Patient.`name",
	}
	for _, src := range syntax {
		t.Run("syntax "+src, func(t *testing.T) {
			_, err := parse(src)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}

	unsupported := []string{
		"Patient.name.exists()",
		"Patient.deceased.exists() and Patient.deceased != false",
		"resolve()",
		"$this.name",
	}
	for _, src := range unsupported {
		t.Run("unsupported "+src, func(t *testing.T) {
			_, err := parse(src)
			assert.ErrorIs(t, err, ErrUnsupportedFunction)
		})
	}
}

func TestLex(t *testing.T) {
	tokens, err := lex(`a.where(x != 'it\'s' and y <= 2.5)`)
	require.NoError(t, err)

	var texts []string
	for _, tok := range tokens {
		texts = append(texts, tok.text)
	}
	assert.Equal(t, []string{"a", ".", "where", "(", "x", "!=", "it's", "and", "y", "<=", "2.5", ")", ""}, texts)
	assert.Equal(t, tokEOF, tokens[len(tokens)-1].kind)
}
