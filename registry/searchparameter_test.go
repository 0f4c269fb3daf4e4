package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fi "github.com/gofhir/indexer"
)

const bundleJSON = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {"resource": {"resourceType": "SearchParameter", "url": "http://hl7.org/fhir/SearchParameter/Resource-id",
      "code": "_id", "base": ["Resource"], "type": "token", "expression": "Resource.id"}},
    {"resource": {"resourceType": "SearchParameter", "code": "family", "base": ["Patient", "Practitioner"],
      "type": "string", "expression": "Patient.name.family | Practitioner.name.family"}},
    {"resource": {"resourceType": "SearchParameter", "code": "code-value-quantity", "base": ["Observation"],
      "type": "composite", "expression": "Observation"}},
    {"resource": {"resourceType": "StructureDefinition", "type": "Patient"}},
    {"resource": {"resourceType": "SearchParameter", "code": "", "base": ["Patient"], "type": "string"}},
    {"fullUrl": "urn:uuid:empty"}
  ]
}`

func TestLoadBundle(t *testing.T) {
	r := New()
	n, err := r.LoadBundle([]byte(bundleJSON))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"Observation", "Patient", "Practitioner"}, r.Types())

	defs, err := r.Definitions(context.Background(), "Practitioner")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, fi.SearchParameterDefinition{
		Name:     "_id",
		Path:     "Resource.id",
		Category: fi.CategoryToken,
		URL:      "http://hl7.org/fhir/SearchParameter/Resource-id",
	}, defs[0])
	assert.Equal(t, fi.CategoryString, defs[1].Category)

	defs, err = r.Definitions(context.Background(), "Observation")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, fi.CategoryUnsupported, defs[1].Category)
}

func TestLoadBundle_SingleResource(t *testing.T) {
	r := New()
	n, err := r.LoadBundle([]byte(`{"resourceType": "SearchParameter", "code": "status", "base": ["Observation"], "type": "token", "expression": "Observation.status"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, r.HasType("Observation"))
}

func TestLoadBundle_Errors(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"resourceType": `,
		"wrong type":     `{"resourceType": "Patient"}`,
		"bad entry":      `{"resourceType": "Bundle", "entry": [{"resource": {"resourceType": "SearchParameter", "base": "Patient"}}]}`,
		"bad entry list": `{"resourceType": "Bundle", "entry": {}}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New().LoadBundle([]byte(data))
			assert.ErrorIs(t, err, fi.ErrSchema)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	require.NoError(t, os.WriteFile(path, []byte(bundleJSON), 0o644))

	r := New()
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = r.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadSpecs(t *testing.T) {
	r, err := NewFromSpecs(fi.R4)
	require.NoError(t, err)

	for _, typ := range []string{"Patient", "Observation", "Condition", "Invoice", "ChargeItem", "RiskAssessment"} {
		assert.True(t, r.HasType(typ), typ)
	}

	defs, err := r.Definitions(context.Background(), "Patient")
	require.NoError(t, err)

	got := names(defs)
	assert.Equal(t, "_id", got[0])
	assert.Contains(t, got, "birthdate")
	assert.Contains(t, got, "family")
	assert.NotContains(t, got, "_lastUpdated")
	assert.NotContains(t, got, "_text")
	for _, d := range defs {
		assert.NotEmpty(t, d.Path, d.Name)
	}

	_, err = NewFromSpecs(fi.R5)
	assert.ErrorIs(t, err, fi.ErrSchema)
}
