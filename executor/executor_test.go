package executor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/idresolve/cachestore"
	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/executor"
	"github.com/c360/idresolve/historical"
	"github.com/c360/idresolve/metric"
	"github.com/c360/idresolve/pathfinder"
	"github.com/c360/idresolve/pkg/breaker"
	"github.com/c360/idresolve/pkg/retry"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/resource/statictable"
	"github.com/c360/idresolve/testutil"
	"github.com/c360/idresolve/types"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

// newRegistry builds the standard fixture: a reference table r1 for
// UNIPROT->GENE_NAME and a historical resolver for UNIPROT.
func newRegistry(t *testing.T) *resource.Registry {
	t.Helper()
	reg := resource.NewRegistry()
	require.NoError(t, statictable.Register(reg))
	require.NoError(t, historical.Register(reg))

	_, err := reg.Create(resource.Descriptor{
		Name:         "r1",
		Kind:         statictable.Kind,
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "GENE_NAME"}},
		Priority:     1,
	}, mustJSON(t, statictable.Config{Rows: []statictable.Row{
		{Source: "UNIPROT", Target: "GENE_NAME", ID: "P12345", Targets: []string{"TP53"}, Confidence: 0.95},
		{Source: "UNIPROT", Target: "GENE_NAME", ID: "P00000", Targets: []string{"GENE_A"}, Confidence: 0.9},
		{Source: "UNIPROT", Target: "GENE_NAME", ID: "Q11111", Targets: []string{"GENE_B"}, Confidence: 0.8},
	}}), resource.Dependencies{})
	require.NoError(t, err)

	_, err = reg.Create(resource.Descriptor{
		Name:         "hist",
		Kind:         historical.Kind,
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "UNIPROT"}},
		Priority:     1,
	}, mustJSON(t, historical.Config{Records: []historical.Record{
		{ID: "Q99999", Ontology: "UNIPROT", Type: types.ResolutionObsolete},
		{ID: "P11111", Ontology: "UNIPROT", Type: types.ResolutionUpdated, Replacements: []string{"P12345"}},
	}}), resource.Dependencies{})
	require.NoError(t, err)

	return reg
}

func quickRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2.0,
	}
}

func newEngine(t *testing.T, reg *resource.Registry, opts ...executor.Option) *executor.Executor {
	t.Helper()
	store := cachestore.NewMemoryStore(context.Background(), time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	opts = append([]executor.Option{
		executor.WithCache(store, cachestore.DefaultTTLPolicy()),
		executor.WithRetry(quickRetry()),
	}, opts...)
	e, err := executor.New(reg, pathfinder.New(reg), opts...)
	require.NoError(t, err)
	return e
}

func TestResolve_SingleDirectPath(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	records, err := e.Resolve(context.Background(), []string{"P12345"}, "UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, types.NewIdentifier("UNIPROT", "P12345"), rec.Input)
	assert.Equal(t, []types.Identifier{types.NewIdentifier("GENE_NAME", "TP53")}, rec.Targets)
	assert.Equal(t, 0.95, rec.Confidence)
	assert.Equal(t, types.CardinalityOneToOne, rec.Cardinality)
	require.NotEmpty(t, rec.Provenance)
	last := rec.Provenance[len(rec.Provenance)-1]
	assert.Equal(t, "r1", last.Resource)
	assert.Equal(t, []string{"TP53"}, last.Outputs)
	assert.False(t, last.CacheHit)
}

func TestResolve_OrderPreserved(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	ids := []string{"Q11111", "P12345", "ABSENT", "P00000"}
	records, err := e.Resolve(context.Background(), ids, "UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, len(ids))

	for i, id := range ids {
		assert.Equal(t, id, records[i].Input.Value, "record %d out of order", i)
	}
	assert.Equal(t, "GENE_B", records[0].Targets[0].Value)
	assert.Equal(t, types.CardinalityUnmapped, records[2].Cardinality)
	assert.False(t, records[2].Mapped())
}

func TestResolve_WarmCacheIdempotent(t *testing.T) {
	reg := newRegistry(t)
	counting := &testutil.MockAdapter{Rows: map[string]resource.Result{
		"E100": {Targets: []string{"BRCA2"}, Confidence: 0.85},
	}}
	testutil.Install(t, reg, counting, resource.Descriptor{
		Name:         "counting",
		Capabilities: []resource.Capability{{Source: "ENSEMBL_GENE", Target: "GENE_NAME"}},
		Priority:     1,
	})
	e := newEngine(t, reg)

	ctx := context.Background()
	first, err := e.Resolve(ctx, []string{"E100"}, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.EqualValues(t, 1, counting.Calls())

	second, err := e.Resolve(ctx, []string{"E100"}, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 1, counting.Calls(), "warm cache must avoid a second lookup")

	require.Len(t, second, 1)
	assert.Equal(t, first[0].Targets, second[0].Targets)
	assert.Equal(t, first[0].Confidence, second[0].Confidence)
	assert.Equal(t, first[0].Cardinality, second[0].Cardinality)
	require.Len(t, second[0].Provenance, len(first[0].Provenance))
	assert.True(t, second[0].Provenance[0].CacheHit)
}

func TestResolve_CompositeRoundTrip(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	records, err := e.Resolve(context.Background(),
		[]string{"P00000_Q11111", "P00000_ABSENT"},
		"UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	full := records[0]
	assert.Equal(t, "P00000_Q11111", full.Input.Value)
	require.Len(t, full.Targets, 2)
	assert.Equal(t, "GENE_A", full.Targets[0].Value)
	assert.Equal(t, "GENE_B", full.Targets[1].Value)
	assert.Equal(t, types.CardinalityOneToMany, full.Cardinality)
	assert.Equal(t, 0.8, full.Confidence, "composite confidence is the weakest component")
	assert.Empty(t, full.Metadata["partial"])

	partial := records[1]
	require.Len(t, partial.Targets, 1)
	assert.Equal(t, "GENE_A", partial.Targets[0].Value)
	assert.Equal(t, types.CardinalityOneToMany, partial.Cardinality)
	assert.Equal(t, "true", partial.Metadata["partial"])
	assert.Equal(t, 0.9, partial.Confidence)
}

func TestResolve_HistoricalNormalization(t *testing.T) {
	e := newEngine(t, newRegistry(t), executor.WithHistorical("hist"))

	records, err := e.Resolve(context.Background(),
		[]string{"Q99999", "P11111"},
		"UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	obsolete := records[0]
	assert.False(t, obsolete.Mapped(), "obsolete identifiers are never silently substituted")
	assert.Equal(t, types.CardinalityUnmapped, obsolete.Cardinality)
	assert.Equal(t, string(types.ResolutionObsolete), obsolete.Metadata[historical.MetaResolutionType])

	updated := records[1]
	require.Len(t, updated.Targets, 1)
	assert.Equal(t, "TP53", updated.Targets[0].Value)
	assert.Equal(t, string(types.ResolutionUpdated), updated.Metadata[historical.MetaResolutionType])
	require.Len(t, updated.Provenance, 2)
	assert.Equal(t, "hist", updated.Provenance[0].Resource)
	assert.Equal(t, "r1", updated.Provenance[1].Resource)
}

func TestResolve_CircuitBreakerFallsBack(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, statictable.Register(reg))

	flaky := &testutil.MockAdapter{
		Err: errors.WrapTransient(errors.ErrUnavailable, "MockAdapter", "Lookup", "primary"),
	}
	testutil.Install(t, reg, flaky, resource.Descriptor{
		Name:         "primary",
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "GENE_NAME"}},
		Priority:     1,
	})
	_, err := reg.Create(resource.Descriptor{
		Name:         "backup",
		Kind:         statictable.Kind,
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "GENE_NAME"}},
		Priority:     2,
	}, mustJSON(t, statictable.Config{Rows: []statictable.Row{
		{Source: "UNIPROT", Target: "GENE_NAME", ID: "P12345", Targets: []string{"TP53"}, Confidence: 0.7},
	}}), resource.Dependencies{})
	require.NoError(t, err)

	retryCfg := quickRetry()
	retryCfg.MaxAttempts = 2
	e := newEngine(t, reg,
		executor.WithRetry(retryCfg),
		executor.WithBreaker(breaker.Config{Threshold: 2, Window: time.Minute, CoolDown: time.Minute}),
	)
	opts := executor.DefaultOptions()
	opts.UseCache = false

	ctx := context.Background()
	records, err := e.Resolve(ctx, []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "TP53", records[0].Targets[0].Value)
	require.NotEmpty(t, records[0].Provenance)
	assert.Equal(t, "backup", records[0].Provenance[0].Resource)
	assert.EqualValues(t, 2, flaky.Calls(), "both retry attempts hit the wire")

	// The breaker is now open: the next call must short-circuit without
	// a network attempt and resolve via the fallback path.
	records, err = e.Resolve(ctx, []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	assert.Equal(t, "TP53", records[0].Targets[0].Value)
	assert.EqualValues(t, 2, flaky.Calls(), "open breaker must not reach the adapter")
}

func TestResolve_BreakerRecoversAfterInvalidProbe(t *testing.T) {
	reg := resource.NewRegistry()
	flaky := &testutil.MockAdapter{
		Rows: map[string]resource.Result{
			"P12345": {Targets: []string{"TP53"}, Confidence: 0.9},
		},
		Err: errors.WrapTransient(errors.ErrUnavailable, "MockAdapter", "Lookup", "primary"),
	}
	testutil.Install(t, reg, flaky, resource.Descriptor{
		Name:         "primary",
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "GENE_NAME"}},
		Priority:     1,
	})

	coolDown := 20 * time.Millisecond
	e := newEngine(t, reg,
		executor.WithBreaker(breaker.Config{Threshold: 1, Window: time.Minute, CoolDown: coolDown}),
	)
	opts := executor.DefaultOptions()
	opts.UseCache = false
	ctx := context.Background()

	// One transient failure opens the breaker.
	records, err := e.Resolve(ctx, []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	assert.Equal(t, types.CardinalityUnmapped, records[0].Cardinality)
	require.EqualValues(t, 1, flaky.Calls())

	// After the cool-down the half-open probe reaches the adapter but
	// gets an invalid-input response. The resource answered, so the
	// probe must settle the breaker rather than leave it half-open.
	time.Sleep(2 * coolDown)
	flaky.Err = errors.WrapInvalid(errors.ErrInvalidInput, "MockAdapter", "Lookup", "primary")
	_, err = e.Resolve(ctx, []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	require.EqualValues(t, 2, flaky.Calls(), "probe must reach the adapter")

	// A healthy adapter now serves the very next call: no further
	// cool-down, no short-circuit.
	flaky.Err = nil
	records, err = e.Resolve(ctx, []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	assert.EqualValues(t, 3, flaky.Calls(), "closed breaker must admit the call immediately")
	require.NotEmpty(t, records[0].Targets)
	assert.Equal(t, "TP53", records[0].Targets[0].Value)
}

func TestResolve_MultiHopMinConfidence(t *testing.T) {
	reg := resource.NewRegistry()
	require.NoError(t, statictable.Register(reg))

	_, err := reg.Create(resource.Descriptor{
		Name:         "u2e",
		Kind:         statictable.Kind,
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "ENSEMBL_GENE"}},
		Priority:     1,
	}, mustJSON(t, statictable.Config{Rows: []statictable.Row{
		{Source: "UNIPROT", Target: "ENSEMBL_GENE", ID: "P77777", Targets: []string{"ENSG01"}, Confidence: 0.9},
	}}), resource.Dependencies{})
	require.NoError(t, err)
	_, err = reg.Create(resource.Descriptor{
		Name:         "e2g",
		Kind:         statictable.Kind,
		Capabilities: []resource.Capability{{Source: "ENSEMBL_GENE", Target: "GENE_NAME"}},
		Priority:     1,
	}, mustJSON(t, statictable.Config{Rows: []statictable.Row{
		{Source: "ENSEMBL_GENE", Target: "GENE_NAME", ID: "ENSG01", Targets: []string{"GKX1"}, Confidence: 0.6},
	}}), resource.Dependencies{})
	require.NoError(t, err)

	e := newEngine(t, reg)
	records, err := e.Resolve(context.Background(), []string{"P77777"}, "UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "GKX1", rec.Targets[0].Value)
	assert.Equal(t, 0.6, rec.Confidence, "chain confidence is the weakest hop")
	require.Len(t, rec.Provenance, 2)
	assert.Equal(t, "u2e", rec.Provenance[0].Resource)
	assert.Equal(t, "e2g", rec.Provenance[1].Resource)
}

func TestResolve_ConfigErrors(t *testing.T) {
	e := newEngine(t, newRegistry(t))
	ctx := context.Background()

	_, err := e.Resolve(ctx, []string{"x"}, "NOPE", "GENE_NAME", executor.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.ErrorIs(t, err, errors.ErrUnknownOntology)

	// Both ontologies known, but nothing converts this direction.
	_, err = e.Resolve(ctx, []string{"TP53"}, "GENE_NAME", "UNIPROT", executor.DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoPath)
}

func TestResolve_EmptyInput(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	records, err := e.Resolve(context.Background(), nil, "UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResolve_ProvenanceOptOut(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	opts := executor.DefaultOptions()
	opts.IncludeProvenance = false
	records, err := e.Resolve(context.Background(), []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Mapped())
	assert.Empty(t, records[0].Provenance)
}

func TestResolve_Cancelled(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := e.Resolve(ctx, []string{"P12345", "P00000"}, "UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err, "cancellation yields best-effort records, not an error")
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, types.CardinalityUnmapped, rec.Cardinality)
		assert.Equal(t, "true", rec.Metadata[executor.MetaCancelled])
	}
}

func TestResolve_BatchScenario(t *testing.T) {
	e := newEngine(t, newRegistry(t))

	records, err := e.Resolve(context.Background(),
		[]string{"P12345", "P00000_Q11111"},
		"UNIPROT", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, types.CardinalityOneToOne, records[0].Cardinality)
	assert.Equal(t, "TP53", records[0].Targets[0].Value)

	assert.Equal(t, types.CardinalityOneToMany, records[1].Cardinality)
	assert.Len(t, records[1].Targets, 2)
}

func TestResolve_AsyncCacheWrites(t *testing.T) {
	reg := newRegistry(t)
	counting := &testutil.MockAdapter{Rows: map[string]resource.Result{
		"E200": {Targets: []string{"MYC"}, Confidence: 1.0},
	}}
	testutil.Install(t, reg, counting, resource.Descriptor{
		Name:         "counting",
		Capabilities: []resource.Capability{{Source: "ENSEMBL_GENE", Target: "GENE_NAME"}},
		Priority:     1,
	})
	e := newEngine(t, reg,
		executor.WithAsyncCacheWrites(2, 32),
		executor.WithCacheWriteMetrics(metric.NewRegistry()))

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))

	_, err := e.Resolve(ctx, []string{"E200"}, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, e.Close(), "close drains pending writes")

	_, err = e.Resolve(ctx, []string{"E200"}, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 1, counting.Calls(), "drained write must serve the second call")
}

func TestResolve_ChunkedHopCachesEveryValue(t *testing.T) {
	reg := resource.NewRegistry()
	counting := &testutil.MockAdapter{Rows: map[string]resource.Result{
		"E1": {Targets: []string{"G1"}, Confidence: 0.9},
		"E2": {Targets: []string{"G2"}, Confidence: 0.9},
		"E3": {Targets: []string{"G3"}, Confidence: 0.9},
	}}
	testutil.Install(t, reg, counting, resource.Descriptor{
		Name:         "chunky",
		Capabilities: []resource.Capability{{Source: "ENSEMBL_GENE", Target: "GENE_NAME"}},
		Priority:     1,
		BatchSize:    1,
	})
	e := newEngine(t, reg)

	ctx := context.Background()
	ids := []string{"E1", "E2", "E3"}
	records, err := e.Resolve(ctx, ids, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.EqualValues(t, 3, counting.Calls(), "batch size 1 forces one call per value")

	// Every concurrently dispatched chunk must have written its result
	// back, so a second run is answered entirely from the cache.
	records, err = e.Resolve(ctx, ids, "ENSEMBL_GENE", "GENE_NAME", executor.DefaultOptions())
	require.NoError(t, err)
	assert.EqualValues(t, 3, counting.Calls(), "second run must not reach the adapter")
	for _, rec := range records {
		require.NotEmpty(t, rec.Targets)
		require.NotEmpty(t, rec.Provenance)
		assert.True(t, rec.Provenance[0].CacheHit)
	}
}

func TestResolve_UnmappedRecordShowsAttemptedResources(t *testing.T) {
	reg := resource.NewRegistry()
	flaky := &testutil.MockAdapter{
		Err: errors.WrapTransient(errors.ErrUnavailable, "MockAdapter", "Lookup", "primary"),
	}
	testutil.Install(t, reg, flaky, resource.Descriptor{
		Name:         "primary",
		Capabilities: []resource.Capability{{Source: "UNIPROT", Target: "GENE_NAME"}},
		Priority:     1,
	})
	e := newEngine(t, reg)
	opts := executor.DefaultOptions()
	opts.UseCache = false

	records, err := e.Resolve(context.Background(), []string{"P12345"}, "UNIPROT", "GENE_NAME", opts)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.CardinalityUnmapped, records[0].Cardinality)

	// The failed attempt stays on the record so the caller can see
	// which resource was tried and with what input.
	require.NotEmpty(t, records[0].Provenance)
	step := records[0].Provenance[0]
	assert.Equal(t, "primary", step.Resource)
	assert.Equal(t, "P12345", step.Input.Value)
	assert.Empty(t, step.Outputs)
	assert.False(t, step.CacheHit)
}
