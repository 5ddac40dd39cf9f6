// Package composite decomposes multi-value identifiers into atomic
// components and recombines their individually resolved results into one
// mapping record. A composite chain is as strong as its weakest link:
// recombined confidence is the minimum across resolved components.
package composite

import (
	"strings"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/types"
)

// DefaultSeparator is the conventional component separator.
const DefaultSeparator = "_"

// MetaPartial is the metadata flag set when only some components of a
// composite resolved.
const MetaPartial = "partial"

// Splitter splits composite identifiers and recombines their results.
type Splitter struct {
	sep string
}

// NewSplitter creates a splitter for the given separator.
func NewSplitter(sep string) (*Splitter, error) {
	if sep == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Splitter", "NewSplitter",
			"separator cannot be empty")
	}
	return &Splitter{sep: sep}, nil
}

// Separator returns the configured separator.
func (s *Splitter) Separator() string { return s.sep }

// Split decomposes an identifier into its atomic components. A
// non-composite identifier yields itself as the only component. Empty
// components (doubled or trailing separators) are dropped.
func (s *Splitter) Split(id types.Identifier) []types.Identifier {
	if !id.IsComposite(s.sep) {
		return []types.Identifier{id}
	}
	parts := strings.Split(id.Value, s.sep)
	out := make([]types.Identifier, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, types.Identifier{Ontology: id.Ontology, Value: p})
	}
	return out
}

// Recombine merges component records back into one record for the
// original composite. Targets are unioned in first-seen order,
// confidence is the minimum across resolved components, and provenance
// chains concatenate in component order. Zero resolved components yield
// unmapped; a partial resolution is tagged one-to-many with the partial
// flag.
func (s *Splitter) Recombine(original types.Identifier, components []types.MappingRecord) types.MappingRecord {
	record := types.MappingRecord{Input: original}

	var (
		seen     = make(map[string]bool)
		resolved int
		minConf  float64
	)
	for _, comp := range components {
		record.Provenance = append(record.Provenance, comp.Provenance...)
		if !comp.Mapped() {
			continue
		}
		resolved++
		if resolved == 1 || comp.Confidence < minConf {
			minConf = comp.Confidence
		}
		for _, target := range comp.Targets {
			if !seen[target.Value] {
				seen[target.Value] = true
				record.Targets = append(record.Targets, target)
			}
		}
	}

	if resolved == 0 {
		record.Cardinality = types.CardinalityUnmapped
		return record
	}

	record.Confidence = minConf
	if resolved < len(components) {
		record.Cardinality = types.CardinalityOneToMany
		record.SetMeta(MetaPartial, "true")
		return record
	}
	record.Cardinality = types.CardinalityFor(len(record.Targets))
	return record
}
