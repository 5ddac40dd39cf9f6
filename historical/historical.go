// Package historical provides the adapter that normalizes obsolete,
// merged, or split identifiers to currently valid ones. When configured,
// the executor runs it before any conversion hop so downstream resources
// only ever see valid identifiers.
//
// Unlike conversion adapters, the historical resolver maps an ontology
// onto itself, and a present result with zero targets is meaningful: the
// identifier is terminally obsolete and must surface as unmapped with
// resolution type "obsolete", never as a silent substitution.
package historical

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// Kind is the registry kind for this adapter.
const Kind = "historical"

// MetaResolutionType is the Result metadata key carrying the resolution
// type, propagated into MappingRecord metadata by the executor.
const MetaResolutionType = "resolution_type"

// Register registers the historical factory with the registry.
func Register(registry *resource.Registry) error {
	return registry.RegisterKind(Kind, New)
}

// Record describes the current status of one possibly-historical
// identifier.
type Record struct {
	ID           string               `json:"id" yaml:"id"`
	Ontology     types.Ontology       `json:"ontology" yaml:"ontology"`
	Type         types.ResolutionType `json:"type" yaml:"type"`
	Replacements []string             `json:"replacements,omitempty" yaml:"replacements,omitempty"`
}

// RecordSource supplies historical records for a batch of identifiers.
// Identifiers absent from the returned map are currently valid.
type RecordSource interface {
	Records(ctx context.Context, ont types.Ontology, ids []string) (map[string]Record, error)
}

// StaticSource is a RecordSource backed by an in-memory table.
type StaticSource struct {
	records map[string]Record // keyed by ontology + "\x00" + id
}

// NewStaticSource builds a static source from records.
func NewStaticSource(records []Record) (*StaticSource, error) {
	m := make(map[string]Record, len(records))
	for _, r := range records {
		if r.ID == "" || r.Ontology == "" {
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticSource", "NewStaticSource",
				"record with empty id or ontology")
		}
		switch r.Type {
		case types.ResolutionUpdated, types.ResolutionMerged:
			if len(r.Replacements) != 1 {
				return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticSource", "NewStaticSource",
					fmt.Sprintf("record %s: %s requires exactly one replacement", r.ID, r.Type))
			}
		case types.ResolutionSplit:
			if len(r.Replacements) < 2 {
				return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticSource", "NewStaticSource",
					fmt.Sprintf("record %s: split requires at least two replacements", r.ID))
			}
		case types.ResolutionObsolete:
			if len(r.Replacements) != 0 {
				return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticSource", "NewStaticSource",
					fmt.Sprintf("record %s: obsolete must have no replacements", r.ID))
			}
		case types.ResolutionUnchanged:
			// Listing unchanged identifiers is allowed but redundant.
		default:
			return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "StaticSource", "NewStaticSource",
				fmt.Sprintf("record %s: unknown resolution type %q", r.ID, r.Type))
		}
		m[sourceKey(r.Ontology, r.ID)] = r
	}
	return &StaticSource{records: m}, nil
}

// Records returns historical records for the given identifiers.
func (s *StaticSource) Records(_ context.Context, ont types.Ontology, ids []string) (map[string]Record, error) {
	out := make(map[string]Record)
	for _, id := range ids {
		if r, ok := s.records[sourceKey(ont, id)]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func sourceKey(ont types.Ontology, id string) string {
	return string(ont) + "\x00" + id
}

// Config holds the adapter's record table.
type Config struct {
	Records []Record `json:"records" yaml:"records"`
}

// Resolver is the historical adapter.
type Resolver struct {
	desc   resource.Descriptor
	source RecordSource
}

// New creates a historical adapter with a static record source from raw
// configuration.
func New(desc resource.Descriptor, rawConfig json.RawMessage, _ resource.Dependencies) (resource.Adapter, error) {
	var cfg Config
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &cfg); err != nil {
			return nil, errors.WrapInvalid(err, "HistoricalResolver", "New", "config unmarshal")
		}
	}
	source, err := NewStaticSource(cfg.Records)
	if err != nil {
		return nil, err
	}
	return NewWithSource(desc, source), nil
}

// NewWithSource creates a historical adapter over a custom record source.
func NewWithSource(desc resource.Descriptor, source RecordSource) *Resolver {
	return &Resolver{desc: desc, source: source}
}

// Name returns the configured instance name.
func (r *Resolver) Name() string { return r.desc.Name }

// Descriptor returns the adapter's static configuration.
func (r *Resolver) Descriptor() resource.Descriptor { return r.desc }

// Lookup normalizes a batch. Every input identifier is present in the
// result: valid identifiers map to themselves tagged "unchanged",
// obsolete ones carry zero targets tagged "obsolete".
func (r *Resolver) Lookup(
	ctx context.Context, batch []types.Identifier, _ types.Ontology,
) (map[string]resource.Result, error) {
	if err := r.desc.CheckBatch(batch); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return map[string]resource.Result{}, nil
	}

	ids := make([]string, len(batch))
	for i, id := range batch {
		ids[i] = id.Value
	}
	records, err := r.source.Records(ctx, batch[0].Ontology, ids)
	if err != nil {
		return nil, errors.WrapTransient(err, "HistoricalResolver", "Lookup", "record source")
	}

	out := make(map[string]resource.Result, len(batch))
	for _, id := range batch {
		record, ok := records[id.Value]
		if !ok || record.Type == types.ResolutionUnchanged {
			out[id.Value] = resource.Result{
				Targets:    []string{id.Value},
				Confidence: 1.0,
				Metadata:   map[string]string{MetaResolutionType: string(types.ResolutionUnchanged)},
			}
			continue
		}
		out[id.Value] = resource.Result{
			Targets:    record.Replacements,
			Confidence: 1.0,
			Metadata:   map[string]string{MetaResolutionType: string(record.Type)},
		}
	}
	return out, nil
}
