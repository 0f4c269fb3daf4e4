package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fi "github.com/gofhir/indexer"
)

func def(name, path string, c fi.Category) fi.SearchParameterDefinition {
	return fi.SearchParameterDefinition{Name: name, Path: path, Category: c}
}

func names(defs []fi.SearchParameterDefinition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func TestRegistry_Definitions(t *testing.T) {
	r := New()
	r.RegisterCommon(
		def("_id", "Resource.id", fi.CategoryToken),
		def("_lastUpdated", "Resource.meta.lastUpdated", fi.CategoryDate),
		def("_text", "", fi.CategoryString),
	)
	r.Register("Patient",
		def("birthdate", "Patient.birthDate", fi.CategoryDate),
		def("gender", "Patient.gender", fi.CategoryToken),
	)
	r.Register("Basic")
	ctx := context.Background()

	t.Run("common first then own in order", func(t *testing.T) {
		defs, err := r.Definitions(ctx, "Patient")
		require.NoError(t, err)
		assert.Equal(t, []string{"_id", "birthdate", "gender"}, names(defs))
	})

	t.Run("type without own definitions", func(t *testing.T) {
		defs, err := r.Definitions(ctx, "Basic")
		require.NoError(t, err)
		assert.Equal(t, []string{"_id"}, names(defs))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := r.Definitions(ctx, "Observation")
		assert.ErrorIs(t, err, fi.ErrSchema)
		assert.ErrorIs(t, err, fi.ErrUnknownResourceType)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := r.Definitions(ctx, "")
		assert.ErrorIs(t, err, fi.ErrMissingResourceType)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := r.Definitions(cctx, "Patient")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("result is a copy", func(t *testing.T) {
		defs, err := r.Definitions(ctx, "Patient")
		require.NoError(t, err)
		defs[1].Name = "changed"

		again, err := r.Definitions(ctx, "Patient")
		require.NoError(t, err)
		assert.Equal(t, "birthdate", again[1].Name)
	})
}

func TestRegistry_Register(t *testing.T) {
	r := New()
	r.Register("", def("x", "x", fi.CategoryString))
	assert.Empty(t, r.Types())

	r.Register("Patient", def("name", "Patient.name", fi.CategoryString), def("gender", "Patient.gender", fi.CategoryToken))
	r.Register("Patient", def("name", "Patient.name.text", fi.CategoryString))
	r.Register("Observation", def("code", "Observation.code", fi.CategoryToken))

	defs, err := r.Definitions(context.Background(), "Patient")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "Patient.name.text", defs[0].Path)

	assert.Equal(t, []string{"Observation", "Patient"}, r.Types())
	assert.True(t, r.HasType("Patient"))
	assert.False(t, r.HasType("Basic"))
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_Prune(t *testing.T) {
	r := New()
	r.RegisterCommon(def("_id", "Resource.id", fi.CategoryToken), def("_text", "", fi.CategoryString))
	r.Register("Patient",
		def("deceased", "Patient.deceased.exists()", fi.CategoryToken),
		def("birthdate", "Patient.birthDate", fi.CategoryDate),
	)

	unsupported := errors.New("unsupported")
	rejected := r.Prune(func(expr string) error {
		if expr == "Patient.deceased.exists()" {
			return unsupported
		}
		return nil
	})

	require.Len(t, rejected, 1)
	assert.Equal(t, "Patient", rejected[0].ResourceType)
	assert.Equal(t, "deceased", rejected[0].Definition.Name)
	assert.ErrorIs(t, rejected[0].Err, unsupported)

	defs, err := r.Definitions(context.Background(), "Patient")
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "birthdate"}, names(defs))
	assert.Equal(t, 3, r.Len())
}
