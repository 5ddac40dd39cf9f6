package statictable

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

func testDescriptor() resource.Descriptor {
	return resource.Descriptor{
		Name: "uniprot_table",
		Kind: Kind,
		Capabilities: []resource.Capability{
			{Source: "UNIPROT", Target: "GENE_NAME"},
		},
		Priority:  1,
		BatchSize: 100,
	}
}

func newTestTable(t *testing.T, cfg Config) resource.Adapter {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	adapter, err := New(testDescriptor(), raw, resource.Dependencies{})
	require.NoError(t, err)
	return adapter
}

func TestTable_Lookup(t *testing.T) {
	adapter := newTestTable(t, Config{
		Rows: []Row{
			{Source: "UNIPROT", Target: "GENE_NAME", ID: "P12345", Targets: []string{"BRCA2"}, Confidence: 0.95},
			{Source: "UNIPROT", Target: "GENE_NAME", ID: "P00000", Targets: []string{"TP53", "TP53B"}},
		},
	})

	batch := []types.Identifier{
		{Ontology: "UNIPROT", Value: "P12345"},
		{Ontology: "UNIPROT", Value: "P00000"},
		{Ontology: "UNIPROT", Value: "MISSING"},
	}
	results, err := adapter.Lookup(context.Background(), batch, "GENE_NAME")
	require.NoError(t, err)

	require.Len(t, results, 2, "no-match identifiers are absent, not errors")
	assert.Equal(t, []string{"BRCA2"}, results["P12345"].Targets)
	assert.Equal(t, 0.95, results["P12345"].Confidence)
	assert.Equal(t, 1.0, results["P00000"].Confidence, "default confidence applies")
}

func TestTable_LookupIdempotent(t *testing.T) {
	adapter := newTestTable(t, Config{
		Rows: []Row{{Source: "UNIPROT", Target: "GENE_NAME", ID: "P12345", Targets: []string{"BRCA2"}}},
	})

	batch := []types.Identifier{{Ontology: "UNIPROT", Value: "P12345"}}
	first, err := adapter.Lookup(context.Background(), batch, "GENE_NAME")
	require.NoError(t, err)
	second, err := adapter.Lookup(context.Background(), batch, "GENE_NAME")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTable_BatchLimit(t *testing.T) {
	desc := testDescriptor()
	desc.BatchSize = 1
	adapter, err := New(desc, nil, resource.Dependencies{})
	require.NoError(t, err)

	batch := []types.Identifier{
		{Ontology: "UNIPROT", Value: "P12345"},
		{Ontology: "UNIPROT", Value: "P00000"},
	}
	_, err = adapter.Lookup(context.Background(), batch, "GENE_NAME")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBatchTooLarge)
}

func TestNew_RejectsUncoveredRow(t *testing.T) {
	raw, err := json.Marshal(Config{
		Rows: []Row{{Source: "HMDB", Target: "KEGG", ID: "HMDB01", Targets: []string{"C0001"}}},
	})
	require.NoError(t, err)

	_, err = New(testDescriptor(), raw, resource.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNew_RejectsBadConfidence(t *testing.T) {
	raw, err := json.Marshal(Config{DefaultConfidence: 1.5})
	require.NoError(t, err)

	_, err = New(testDescriptor(), raw, resource.Dependencies{})
	assert.Error(t, err)
}

func TestTable_CancelledContext(t *testing.T) {
	adapter := newTestTable(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Lookup(ctx, []types.Identifier{{Ontology: "UNIPROT", Value: "P12345"}}, "GENE_NAME")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	registry := resource.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Contains(t, registry.Kinds(), Kind)
}
