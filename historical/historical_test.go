package historical

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

func testDescriptor() resource.Descriptor {
	return resource.Descriptor{
		Name: "uniprot_history",
		Kind: Kind,
		Capabilities: []resource.Capability{
			{Source: "UNIPROT", Target: "UNIPROT"},
		},
		Priority: 1,
	}
}

func testRecords() []Record {
	return []Record{
		{ID: "P0OLD1", Ontology: "UNIPROT", Type: types.ResolutionUpdated, Replacements: []string{"P1NEW1"}},
		{ID: "P0OLD2", Ontology: "UNIPROT", Type: types.ResolutionMerged, Replacements: []string{"P1NEW1"}},
		{ID: "P0OLD3", Ontology: "UNIPROT", Type: types.ResolutionSplit, Replacements: []string{"P1NEW2", "P1NEW3"}},
		{ID: "P0DEAD", Ontology: "UNIPROT", Type: types.ResolutionObsolete},
	}
}

func newTestResolver(t *testing.T) resource.Adapter {
	t.Helper()
	raw, err := json.Marshal(Config{Records: testRecords()})
	require.NoError(t, err)
	adapter, err := New(testDescriptor(), raw, resource.Dependencies{})
	require.NoError(t, err)
	return adapter
}

func TestResolver_Lookup(t *testing.T) {
	adapter := newTestResolver(t)

	batch := []types.Identifier{
		{Ontology: "UNIPROT", Value: "P12345"}, // not in records: unchanged
		{Ontology: "UNIPROT", Value: "P0OLD1"},
		{Ontology: "UNIPROT", Value: "P0OLD3"},
		{Ontology: "UNIPROT", Value: "P0DEAD"},
	}
	results, err := adapter.Lookup(context.Background(), batch, "UNIPROT")
	require.NoError(t, err)
	require.Len(t, results, 4, "every input is present in a normalization result")

	assert.Equal(t, []string{"P12345"}, results["P12345"].Targets)
	assert.Equal(t, "unchanged", results["P12345"].Metadata[MetaResolutionType])

	assert.Equal(t, []string{"P1NEW1"}, results["P0OLD1"].Targets)
	assert.Equal(t, "updated", results["P0OLD1"].Metadata[MetaResolutionType])

	assert.ElementsMatch(t, []string{"P1NEW2", "P1NEW3"}, results["P0OLD3"].Targets)
	assert.Equal(t, "split", results["P0OLD3"].Metadata[MetaResolutionType])

	assert.Empty(t, results["P0DEAD"].Targets, "obsolete is terminal")
	assert.Equal(t, "obsolete", results["P0DEAD"].Metadata[MetaResolutionType])
}

func TestResolver_MergedTag(t *testing.T) {
	adapter := newTestResolver(t)

	results, err := adapter.Lookup(context.Background(),
		[]types.Identifier{{Ontology: "UNIPROT", Value: "P0OLD2"}}, "UNIPROT")
	require.NoError(t, err)
	assert.Equal(t, "merged", results["P0OLD2"].Metadata[MetaResolutionType])
	assert.Equal(t, []string{"P1NEW1"}, results["P0OLD2"].Targets)
}

func TestNewStaticSource_Validation(t *testing.T) {
	tests := []struct {
		name   string
		record Record
	}{
		{"empty id", Record{Ontology: "UNIPROT", Type: types.ResolutionUpdated, Replacements: []string{"x"}}},
		{"updated with two replacements", Record{ID: "a", Ontology: "UNIPROT", Type: types.ResolutionUpdated, Replacements: []string{"x", "y"}}},
		{"split with one replacement", Record{ID: "a", Ontology: "UNIPROT", Type: types.ResolutionSplit, Replacements: []string{"x"}}},
		{"obsolete with replacements", Record{ID: "a", Ontology: "UNIPROT", Type: types.ResolutionObsolete, Replacements: []string{"x"}}},
		{"unknown type", Record{ID: "a", Ontology: "UNIPROT", Type: "bogus"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewStaticSource([]Record{test.record})
			assert.Error(t, err)
		})
	}
}

func TestResolver_EmptyBatch(t *testing.T) {
	adapter := newTestResolver(t)
	results, err := adapter.Lookup(context.Background(), nil, "UNIPROT")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolver_DifferentOntologyUntouched(t *testing.T) {
	// Records are scoped per ontology: an ENSEMBL id matching a UNIPROT
	// record's value stays unchanged.
	adapter := newTestResolver(t)
	results, err := adapter.Lookup(context.Background(),
		[]types.Identifier{{Ontology: "ENSEMBL_GENE", Value: "P0DEAD"}}, "ENSEMBL_GENE")
	require.NoError(t, err)
	assert.Equal(t, []string{"P0DEAD"}, results["P0DEAD"].Targets)
	assert.Equal(t, "unchanged", results["P0DEAD"].Metadata[MetaResolutionType])
}

func TestRegister(t *testing.T) {
	registry := resource.NewRegistry()
	require.NoError(t, Register(registry))
	assert.Contains(t, registry.Kinds(), Kind)
}
