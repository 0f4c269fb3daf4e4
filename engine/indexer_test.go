package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
	"github.com/gofhir/indexer/pkg/logger"
	"github.com/gofhir/indexer/service"
	"github.com/gofhir/indexer/stream"
	"github.com/gofhir/indexer/value"
	"github.com/gofhir/indexer/walker"
)

const patientJSON = `{
	"resourceType": "Patient",
	"id": "p1",
	"meta": {"lastUpdated": "2024-01-02T03:04:05Z"},
	"active": true,
	"gender": "female",
	"birthDate": "1980-05-12",
	"identifier": [{"system": "urn:mrn", "value": "123"}],
	"name": [{"family": "Chalmers", "given": ["Peter", "James"]}],
	"telecom": [
		{"system": "email", "value": "p@example.org"},
		{"system": "phone", "value": "555-0100"}
	],
	"managingOrganization": {"reference": "Organization/1"}
}`

const observationJSON = `{
	"resourceType": "Observation",
	"id": "o1",
	"status": "final",
	"code": {"coding": [{"system": "http://loinc.org", "code": ""}, {"system": "http://loinc.org", "code": "8867-4"}]},
	"subject": {"reference": "Patient/p1"},
	"valueQuantity": {"value": 72.50, "unit": "beats/min", "system": "http://unitsofmeasure.org", "code": "/min"}
}`

func newIndexer(t testing.TB, opts ...fi.Option) *Indexer {
	t.Helper()
	opts = append([]fi.Option{fi.WithLogger(logger.Nop())}, opts...)
	i, err := New(context.Background(), fi.R4, opts...)
	require.NoError(t, err)
	return i
}

func stringValues(entries []fi.StringIndex, name string) []string {
	var out []string
	for _, e := range entries {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}

func TestNew(t *testing.T) {
	i := newIndexer(t)
	assert.Equal(t, fi.R4, i.Version())
	assert.NotNil(t, i.Options())
	assert.NotNil(t, i.Metrics())
	assert.True(t, i.Registry().HasType("Patient"))
	assert.True(t, i.Schema().HasType("Patient"))
	assert.NoError(t, i.Close())

	_, err := New(context.Background(), fi.FHIRVersion("R9"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(ctx, fi.R4)
	assert.ErrorIs(t, err, context.Canceled)

	i = newIndexer(t, fi.WithMetrics(false))
	assert.Nil(t, i.Metrics())
}

func TestIndex_Patient(t *testing.T) {
	i := newIndexer(t)

	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)

	assert.Equal(t, "Patient", indices.ResourceType())
	assert.Equal(t, "p1", indices.ID())

	strs := indices.StringIndices()
	assert.Equal(t, []string{"Chalmers"}, stringValues(strs, "family"))
	assert.Equal(t, []string{"Peter", "James"}, stringValues(strs, "given"))
	assert.Equal(t, []string{"Peter James Chalmers"}, stringValues(strs, "name"))

	var active, identifier *fi.TokenIndex
	for _, tok := range indices.TokenIndices() {
		switch tok.Name {
		case "active":
			active = &tok
		case "identifier":
			identifier = &tok
		}
	}
	require.NotNil(t, active)
	assert.Equal(t, "true", active.Code)
	assert.Nil(t, active.System)
	require.NotNil(t, identifier)
	require.NotNil(t, identifier.System)
	assert.Equal(t, "urn:mrn", *identifier.System)
	assert.Equal(t, "123", identifier.Code)

	refs := indices.ReferenceIndices()
	require.Len(t, refs, 1)
	assert.Equal(t, fi.ReferenceIndex{Name: "organization", Path: refs[0].Path, Reference: "Organization/1"}, refs[0])

	dates := indices.DateIndices()
	require.Len(t, dates, 2)
	assert.Equal(t, "birthdate", dates[0].Name)
	assert.Equal(t, time.Date(1980, 5, 12, 0, 0, 0, 0, time.UTC), dates[0].Low.UTC())
	assert.Equal(t, value.PrecisionDay, dates[0].Precision)

	for _, e := range strs {
		assert.NotEmpty(t, e.Name)
		assert.NotEmpty(t, e.Path)
	}
}

func TestIndex_LastUpdated(t *testing.T) {
	i := newIndexer(t)

	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)

	var last []fi.DateIndex
	for _, d := range indices.DateIndices() {
		if d.Name == fi.LastUpdatedName {
			last = append(last, d)
		}
	}
	require.Len(t, last, 1)
	assert.Equal(t, "Patient.meta.lastUpdated", last[0].Path)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), last[0].Low.UTC())
	assert.Equal(t, last[0].Low, last[0].High)

	for _, doc := range []string{
		`{"resourceType": "Patient", "id": "p2"}`,
		`{"resourceType": "Patient", "id": "p3", "meta": {"lastUpdated": "not a date"}}`,
	} {
		indices, err := i.IndexBytes(context.Background(), []byte(doc))
		require.NoError(t, err)
		for _, d := range indices.DateIndices() {
			assert.NotEqual(t, fi.LastUpdatedName, d.Name, doc)
		}
	}
}

func TestIndex_InjectedSourceFiltering(t *testing.T) {
	i := newIndexer(t)
	i.SetDefinitionSource(service.DefinitionSourceFunc(func(context.Context, string) ([]fi.SearchParameterDefinition, error) {
		return []fi.SearchParameterDefinition{
			{Name: "nopath", Path: "", Category: fi.CategoryToken},
			{Name: fi.LastUpdatedName, Path: "Resource.meta.lastUpdated", Category: fi.CategoryDate},
			{Name: "birthdate", Path: "Patient.birthDate", Category: fi.CategoryDate},
		}, nil
	}))

	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, d := range indices.DateIndices() {
		counts[d.Name]++
	}
	assert.Equal(t, 1, counts[fi.LastUpdatedName])
	assert.Equal(t, 1, counts["birthdate"])
	assert.Empty(t, indices.TokenIndices())
}

func TestIndex_ParseFailureMetrics(t *testing.T) {
	i := newIndexer(t)

	_, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)
	minTime := i.Metrics().MinIndexTime()

	_, err = i.IndexBytes(context.Background(), []byte(`{not json`))
	require.Error(t, err)
	_, err = i.IndexMap(context.Background(), map[string]any{"id": "x"})
	require.Error(t, err)

	assert.Equal(t, uint64(2), i.Metrics().DocumentsFailed())
	assert.Equal(t, minTime, i.Metrics().MinIndexTime())
}

func TestIndex_Observation(t *testing.T) {
	i := newIndexer(t)

	indices, err := i.IndexBytes(context.Background(), []byte(observationJSON))
	require.NoError(t, err)

	var codes []fi.TokenIndex
	for _, tok := range indices.TokenIndices() {
		if tok.Name == "code" {
			codes = append(codes, tok)
		}
	}
	require.Len(t, codes, 1)
	require.NotNil(t, codes[0].System)
	assert.Equal(t, "http://loinc.org", *codes[0].System)
	assert.Equal(t, "8867-4", codes[0].Code)

	var quantities []fi.QuantityIndex
	for _, q := range indices.QuantityIndices() {
		if q.Name == "value-quantity" {
			quantities = append(quantities, q)
		}
	}
	require.Len(t, quantities, 1)
	assert.Equal(t, "http://unitsofmeasure.org", quantities[0].System)
	assert.Equal(t, "beats/min", quantities[0].Unit)
	assert.Equal(t, "72.5", quantities[0].Value.String())

	var refs []string
	for _, r := range indices.ReferenceIndices() {
		refs = append(refs, r.Name+"="+r.Reference)
	}
	assert.Contains(t, refs, "patient=Patient/p1")
	assert.Contains(t, refs, "subject=Patient/p1")

	assert.Positive(t, i.Metrics().UnsupportedSkipped(), "composite code-value-quantity is skipped")
}

func TestIndex_WhereCriteria(t *testing.T) {
	i := newIndexer(t)
	i.Registry().Register("Patient", fi.SearchParameterDefinition{
		Name:     "email-address",
		Path:     "Patient.telecom.where(system = 'email').value",
		Category: fi.CategoryString,
	})

	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"p@example.org"}, stringValues(indices.StringIndices(), "email-address"))
}

func TestIndex_Deterministic(t *testing.T) {
	pooled := newIndexer(t)
	plain := newIndexer(t, fi.WithPooling(false))

	first, err := pooled.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)

	for n := 0; n < 5; n++ {
		for _, i := range []*Indexer{pooled, plain} {
			again, err := i.IndexBytes(context.Background(), []byte(patientJSON))
			require.NoError(t, err)
			got, err := json.Marshal(again)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		}
	}
}

func TestIndex_QuantityOnBoolean(t *testing.T) {
	i := newIndexer(t)
	i.Registry().Register("Patient", fi.SearchParameterDefinition{
		Name:     "odd",
		Path:     "Patient.active",
		Category: fi.CategoryQuantity,
	})

	before := i.Metrics().UnmatchedValues()
	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	require.NoError(t, err)
	assert.Empty(t, indices.QuantityIndices())
	assert.Greater(t, i.Metrics().UnmatchedValues(), before)
}

func TestIndex_MalformedPath(t *testing.T) {
	i := newIndexer(t)
	i.Registry().Register("Patient", fi.SearchParameterDefinition{
		Name:     "broken",
		Path:     "Patient.name.(",
		Category: fi.CategoryString,
	})

	indices, err := i.IndexBytes(context.Background(), []byte(patientJSON))
	assert.Nil(t, indices)
	require.Error(t, err)
	assert.ErrorIs(t, err, fi.ErrPathEvaluation)
	assert.ErrorIs(t, err, walker.ErrSyntax)

	var pe *fi.PathEvaluationError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "broken", pe.Parameter)
	assert.Equal(t, "Patient.name.(", pe.Expression)
	assert.Equal(t, uint64(1), i.Metrics().DocumentsFailed())

	rejected := i.PruneUnsupported()
	require.Len(t, rejected, 1)
	assert.Equal(t, "broken", rejected[0].Definition.Name)

	_, err = i.IndexBytes(context.Background(), []byte(patientJSON))
	assert.NoError(t, err)
}

func TestIndex_SchemaErrors(t *testing.T) {
	i := newIndexer(t)

	_, err := i.IndexBytes(context.Background(), []byte(`{"resourceType": "Basic", "id": "b"}`))
	assert.ErrorIs(t, err, fi.ErrSchema)
	assert.ErrorIs(t, err, fi.ErrUnknownResourceType)

	_, err = i.IndexBytes(context.Background(), []byte(`{"id": "b"}`))
	assert.ErrorIs(t, err, fi.ErrMissingResourceType)

	_, err = i.IndexMap(context.Background(), nil)
	assert.ErrorIs(t, err, fi.ErrSchema)

	i.SetDefinitionSource(service.DefinitionSourceFunc(func(context.Context, string) ([]fi.SearchParameterDefinition, error) {
		return nil, errors.New("store offline")
	}))
	_, err = i.IndexBytes(context.Background(), []byte(patientJSON))
	var se *fi.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Patient", se.ResourceType)
	assert.EqualError(t, se.Err, "store offline")

	i.SetDefinitionSource(nil)
	_, err = i.IndexBytes(context.Background(), []byte(patientJSON))
	assert.NoError(t, err)
}

func TestIndex_Cancelled(t *testing.T) {
	i := newIndexer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	indices, err := i.IndexBytes(ctx, []byte(patientJSON))
	assert.Nil(t, indices)
	assert.ErrorIs(t, err, context.Canceled)

	// Cancelled between definitions
	ctx, cancel = context.WithCancel(context.Background())
	calls := 0
	i.SetPathEvaluator(service.PathEvaluatorFunc(func(ctx context.Context, res document.Resource, expr string) ([]value.Value, error) {
		calls++
		cancel()
		return nil, nil
	}))
	indices, err = i.IndexBytes(ctx, []byte(patientJSON))
	assert.Nil(t, indices)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.False(t, errors.Is(err, fi.ErrPathEvaluation))
}

func TestIndex_CustomEvaluator(t *testing.T) {
	i := newIndexer(t)
	i.SetDefinitionSource(service.DefinitionSourceFunc(func(_ context.Context, rt string) ([]fi.SearchParameterDefinition, error) {
		return []fi.SearchParameterDefinition{
			{Name: "length", Path: "Patient.length", Category: fi.CategoryNumber},
			{Name: "special", Path: "Patient.near", Category: fi.CategoryUnsupported},
		}, nil
	}))
	i.SetPathEvaluator(service.PathEvaluatorFunc(func(_ context.Context, _ document.Resource, expr string) ([]value.Value, error) {
		if expr == "Patient.near" {
			t.Fatalf("unsupported definition must not be evaluated")
		}
		return []value.Value{value.Decode("integer", json.Number("42"))}, nil
	}))

	indices, err := i.IndexBytes(context.Background(), []byte(`{"resourceType": "Patient"}`))
	require.NoError(t, err)
	nums := indices.NumberIndices()
	require.Len(t, nums, 1)
	assert.Equal(t, "length", nums[0].Name)
	assert.Equal(t, "42", nums[0].Value.String())
	assert.Equal(t, uint64(1), i.Metrics().UnsupportedSkipped())

	i.SetPathEvaluator(nil)
	_, err = i.IndexBytes(context.Background(), []byte(`{"resourceType": "Patient"}`))
	assert.NoError(t, err)
}

func TestIndexBatch(t *testing.T) {
	i := newIndexer(t, fi.WithWorkerCount(3))

	resources := [][]byte{
		[]byte(patientJSON),
		[]byte(observationJSON),
		[]byte(`{"resourceType": "Basic"}`),
		[]byte(patientJSON),
	}
	batch := i.IndexBatch(context.Background(), resources)

	require.Len(t, batch.Results, 4)
	assert.Equal(t, 1, batch.FailedJobs)
	assert.Equal(t, "Patient", batch.Results[0].Indices.ResourceType())
	assert.Equal(t, "Observation", batch.Results[1].Indices.ResourceType())
	assert.ErrorIs(t, batch.Results[2].Error, fi.ErrSchema)
	assert.Equal(t, uint64(3), i.Metrics().DocumentsIndexed())
}

func TestIndexBundleStream(t *testing.T) {
	i := newIndexer(t, fi.WithWorkerCount(2))
	bundle := `{"resourceType": "Bundle", "type": "collection", "entry": [
		{"fullUrl": "urn:uuid:1", "resource": ` + patientJSON + `},
		{"fullUrl": "urn:uuid:2", "resource": ` + observationJSON + `},
		{"fullUrl": "urn:uuid:3", "resource": {"resourceType": "Basic"}}
	]}`

	streams := map[string]func(context.Context, io.Reader) <-chan *stream.EntryResult{
		"sequential": i.IndexBundleStream,
		"parallel":   i.IndexBundleStreamParallel,
	}
	for name, run := range streams {
		t.Run(name, func(t *testing.T) {
			agg := AggregateBundleResults(run(context.Background(), strings.NewReader(bundle)))
			assert.Equal(t, 3, agg.TotalEntries)
			assert.Equal(t, 2, agg.IndexedEntries)
			assert.Equal(t, 1, agg.FailedEntries)
			assert.Positive(t, agg.TotalIndices)
		})
	}
}

func TestLoadPackage(t *testing.T) {
	dir := t.TempDir()
	sp := `{
		"resourceType": "SearchParameter",
		"id": "basic-author",
		"url": "http://example.org/SearchParameter/basic-author",
		"name": "author",
		"status": "active",
		"code": "author",
		"base": ["Basic"],
		"type": "reference",
		"expression": "Basic.author"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SearchParameter-basic-author.json"), []byte(sp), 0o600))

	i := newIndexer(t)
	stats, err := i.LoadPackage(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SearchParameters)

	indices, err := i.IndexBytes(context.Background(), []byte(`{"resourceType": "Basic", "id": "b", "author": {"reference": "Practitioner/7"}}`))
	require.NoError(t, err)
	refs := indices.ReferenceIndices()
	require.Len(t, refs, 1)
	assert.Equal(t, "Practitioner/7", refs[0].Reference)

	_, err = i.LoadPackage(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestNew_WithoutEmbeddedDefinitions(t *testing.T) {
	i, err := New(context.Background(), fi.R5, fi.WithLogger(nil))
	require.NoError(t, err)
	assert.Zero(t, i.Registry().Len())

	_, err = i.IndexBytes(context.Background(), []byte(patientJSON))
	assert.ErrorIs(t, err, fi.ErrUnknownResourceType)
}
