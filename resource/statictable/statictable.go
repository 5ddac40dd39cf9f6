// Package statictable provides an adapter backed by a local reference
// table loaded at startup. Reference tables are typically extracted from
// provider dump files and carry per-row confidences reflecting the table's
// reliability; lookups are in-memory and never fail transiently.
package statictable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// Kind is the registry kind for this adapter.
const Kind = "statictable"

// Register registers the statictable factory with the registry.
func Register(registry *resource.Registry) error {
	return registry.RegisterKind(Kind, New)
}

// Row is one reference table row.
type Row struct {
	Source     types.Ontology `json:"source" yaml:"source"`
	Target     types.Ontology `json:"target" yaml:"target"`
	ID         string         `json:"id" yaml:"id"`
	Targets    []string       `json:"targets" yaml:"targets"`
	Confidence float64        `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Config holds the adapter's table.
type Config struct {
	Rows []Row `json:"rows" yaml:"rows"`
	// DefaultConfidence applies to rows without an explicit confidence
	// (default 1.0: a curated local table is authoritative).
	DefaultConfidence float64 `json:"default_confidence,omitempty" yaml:"default_confidence,omitempty"`
}

type tableKey struct {
	source types.Ontology
	target types.Ontology
	id     string
}

// Table is the statictable adapter.
type Table struct {
	desc resource.Descriptor
	rows map[tableKey]resource.Result
	mu   sync.RWMutex
}

// New creates a statictable adapter from raw configuration.
func New(desc resource.Descriptor, rawConfig json.RawMessage, _ resource.Dependencies) (resource.Adapter, error) {
	var cfg Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "StaticTable", "New", "config unmarshal")
		}
	}
	if cfg.DefaultConfidence == 0 {
		cfg.DefaultConfidence = 1.0
	}
	if cfg.DefaultConfidence < 0 || cfg.DefaultConfidence > 1 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticTable", "New",
			fmt.Sprintf("default confidence %v outside [0,1]", cfg.DefaultConfidence))
	}

	rows := make(map[tableKey]resource.Result, len(cfg.Rows))
	for _, row := range cfg.Rows {
		if row.ID == "" || row.Source == "" || row.Target == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticTable", "New",
				"row with empty id or ontology")
		}
		if !desc.Supports(row.Source, row.Target) {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticTable", "New",
				fmt.Sprintf("row %s->%s not covered by declared capabilities", row.Source, row.Target))
		}
		confidence := row.Confidence
		if confidence == 0 {
			confidence = cfg.DefaultConfidence
		}
		rows[tableKey{row.Source, row.Target, row.ID}] = resource.Result{
			Targets:    row.Targets,
			Confidence: confidence,
		}
	}

	return &Table{desc: desc, rows: rows}, nil
}

// Name returns the configured instance name.
func (t *Table) Name() string { return t.desc.Name }

// Descriptor returns the adapter's static configuration.
func (t *Table) Descriptor() resource.Descriptor { return t.desc }

// Lookup resolves a batch against the reference table. Identifiers absent
// from the table are simply absent from the result.
func (t *Table) Lookup(
	ctx context.Context, batch []types.Identifier, target types.Ontology,
) (map[string]resource.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "StaticTable", "Lookup", "context check")
	}
	if err := t.desc.CheckBatch(batch); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]resource.Result)
	for _, id := range batch {
		if result, ok := t.rows[tableKey{id.Ontology, target, id.Value}]; ok {
			out[id.Value] = result
		}
	}
	return out, nil
}
