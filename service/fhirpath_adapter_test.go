package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fi "github.com/gofhir/indexer"
	"github.com/gofhir/indexer/document"
)

func decodeItem(t *testing.T, data string) map[string]any {
	t.Helper()
	var item map[string]any
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&item))
	return item
}

func TestFHIRPathAdapter_Matches(t *testing.T) {
	adapter := NewFHIRPathAdapter(10)
	ctx := context.Background()

	email := decodeItem(t, `{"system": "email", "value": "jim@example.org"}`)
	phone := decodeItem(t, `{"system": "phone", "value": "555-1234", "rank": 1}`)

	ok, err := adapter.Matches(ctx, email, "system = 'email'")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.Matches(ctx, phone, "system = 'email'")
	require.NoError(t, err)
	assert.False(t, ok)

	// A missing element compares to empty, which is false
	ok, err = adapter.Matches(ctx, phone, "use = 'home'")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = adapter.Matches(ctx, []byte(`{"system":"email"}`), "system = 'email'")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 2, adapter.CacheSize())
}

func TestFHIRPathAdapter_MatchesResource(t *testing.T) {
	adapter := NewFHIRPathAdapter(10)
	doc, err := document.Parse([]byte(`{"resourceType": "Patient", "id": "p1", "active": true}`))
	require.NoError(t, err)

	ok, err := adapter.Matches(context.Background(), doc, "active = true and id = 'p1'")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.Matches(context.Background(), doc, "active = false")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFHIRPathAdapter_Errors(t *testing.T) {
	adapter := NewFHIRPathAdapter(0)

	_, err := adapter.Matches(context.Background(), map[string]any{}, "system = ")
	var criteriaErr *CriteriaError
	require.ErrorAs(t, err, &criteriaErr)
	assert.Equal(t, "system = ", criteriaErr.Criteria)
	assert.Zero(t, adapter.CacheSize())

	_, err = adapter.Matches(context.Background(), map[string]any{"bad": func() {}}, "true")
	assert.ErrorAs(t, err, &criteriaErr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = adapter.Matches(ctx, map[string]any{}, "true")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFHIRPathAdapter_Cache(t *testing.T) {
	adapter := NewFHIRPathAdapter(1)
	metrics := fi.NewMetrics()
	adapter.SetMetrics(metrics)
	ctx := context.Background()
	item := map[string]any{"active": true}

	for i := 0; i < 2; i++ {
		_, err := adapter.Matches(ctx, item, "active = true")
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.5, metrics.CacheHitRate(), 0.001)

	// Size one evicts the previous expression
	_, err := adapter.Matches(ctx, item, "active = false")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.CacheSize())

	adapter.ClearCache()
	assert.Zero(t, adapter.CacheSize())
}
