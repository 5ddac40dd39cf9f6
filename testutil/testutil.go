// Package testutil provides shared test fixtures: a scriptable mock
// adapter and registry installation helpers.
package testutil

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// MockAdapter is a scriptable resource.Adapter. When Err is set every
// lookup fails with it; otherwise lookups answer from Rows, keyed by raw
// source value. Calls counts Lookup invocations.
type MockAdapter struct {
	Desc resource.Descriptor
	Rows map[string]resource.Result
	Err  error

	calls atomic.Int32
}

// Name returns the configured instance name.
func (m *MockAdapter) Name() string { return m.Desc.Name }

// Descriptor returns the adapter's static configuration.
func (m *MockAdapter) Descriptor() resource.Descriptor { return m.Desc }

// Lookup answers from the scripted rows or fails with the scripted error.
func (m *MockAdapter) Lookup(
	_ context.Context, batch []types.Identifier, _ types.Ontology,
) (map[string]resource.Result, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(map[string]resource.Result)
	for _, id := range batch {
		if res, ok := m.Rows[id.Value]; ok {
			out[id.Value] = res
		}
	}
	return out, nil
}

// Calls returns the number of Lookup invocations.
func (m *MockAdapter) Calls() int32 { return m.calls.Load() }

// Install registers the mock under its own kind and creates it in the
// registry with the given descriptor.
func Install(t testing.TB, reg *resource.Registry, m *MockAdapter, desc resource.Descriptor) {
	t.Helper()
	kind := "mock_" + desc.Name
	require.NoError(t, reg.RegisterKind(kind,
		func(d resource.Descriptor, _ json.RawMessage, _ resource.Dependencies) (resource.Adapter, error) {
			m.Desc = d
			return m, nil
		}))
	desc.Kind = kind
	_, err := reg.Create(desc, nil, resource.Dependencies{})
	require.NoError(t, err)
}
