package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	prefetch "github.com/xelixdev/memoized-prefetch"
)

type staticSource map[any]any

func (s staticSource) ReadByKeys(_ context.Context, keys []any) (map[any]any, error) {
	out := make(map[any]any)
	for _, key := range keys {
		if entity, ok := s[key]; ok {
			out[key] = entity
		}
	}
	return out, nil
}

func (s staticSource) ReadAll(context.Context) (map[any]any, error) {
	return map[any]any(s), nil
}

func TestCollectorExportsEngineStats(t *testing.T) {
	source := staticSource{
		1: map[string]any{"id": 1, "name": "Acme"},
		2: map[string]any{"id": 2, "name": "Globex"},
	}
	engine, err := prefetch.New(context.Background(), []prefetch.RelationSpec{{
		Name:   "supplier",
		Paths:  []string{"supplier"},
		Source: source,
	}})
	require.NoError(t, err)

	records := []prefetch.Record{
		prefetch.MapRecord{"id": 1, "supplier_id": 1},
		prefetch.MapRecord{"id": 2, "supplier_id": 2},
		prefetch.MapRecord{"id": 3, "supplier_id": 1},
	}
	require.NoError(t, engine.ProcessChunk(context.Background(), records))
	require.NoError(t, engine.ProcessChunk(context.Background(), records))

	collector := NewCollector(engine)

	expected := `# HELP prefetch_cache_entries Entries currently held in the relation cache.
# TYPE prefetch_cache_entries gauge
prefetch_cache_entries{relation="supplier"} 2
# HELP prefetch_cache_hits_total Distinct keys per chunk satisfied from the relation cache.
# TYPE prefetch_cache_hits_total counter
prefetch_cache_hits_total{relation="supplier"} 2
# HELP prefetch_cache_misses_total Distinct keys per chunk that required a data-source read.
# TYPE prefetch_cache_misses_total counter
prefetch_cache_misses_total{relation="supplier"} 2
# HELP prefetch_keys_fetched_total Keys sent to the data source in bulk reads.
# TYPE prefetch_keys_fetched_total counter
prefetch_keys_fetched_total{relation="supplier"} 2
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"prefetch_cache_hits_total",
		"prefetch_cache_misses_total",
		"prefetch_keys_fetched_total",
		"prefetch_cache_entries",
	))
}

func TestCollectorEmitsAllSeriesPerRelation(t *testing.T) {
	engine, err := prefetch.New(context.Background(), []prefetch.RelationSpec{
		{Name: "supplier", Paths: []string{"supplier"}, Source: staticSource{}},
		{Name: "currency", Paths: []string{"currency"}, Source: staticSource{}},
	})
	require.NoError(t, err)

	collector := NewCollector(engine)

	// Eight series per relation.
	assert.Equal(t, 16, testutil.CollectAndCount(collector))
}
