package types

import (
	"time"
)

// Cardinality describes the relationship shape of a resolved mapping.
type Cardinality string

const (
	// CardinalityUnmapped means no target identifier was found.
	CardinalityUnmapped Cardinality = "unmapped"
	// CardinalityOneToOne means exactly one target identifier.
	CardinalityOneToOne Cardinality = "one-to-one"
	// CardinalityOneToMany means multiple target identifiers.
	CardinalityOneToMany Cardinality = "one-to-many"
	// CardinalityManyToOne means multiple sources share one target.
	CardinalityManyToOne Cardinality = "many-to-one"
)

// ResolutionType tags how the historical resolver normalized an identifier.
type ResolutionType string

const (
	// ResolutionUnchanged means the identifier is currently valid as-is.
	ResolutionUnchanged ResolutionType = "unchanged"
	// ResolutionUpdated means a 1:1 replacement by a newer identifier.
	ResolutionUpdated ResolutionType = "updated"
	// ResolutionMerged means several obsolete identifiers merged into one.
	ResolutionMerged ResolutionType = "merged"
	// ResolutionSplit means one obsolete identifier split into several.
	ResolutionSplit ResolutionType = "split"
	// ResolutionObsolete means the identifier is terminal with no
	// current equivalent. Never silently substituted.
	ResolutionObsolete ResolutionType = "obsolete"
)

// ProvenanceStep records one resource-mediated step that contributed to a
// mapping result.
type ProvenanceStep struct {
	Resource  string     `json:"resource"`
	Input     Identifier `json:"input"`
	Outputs   []string   `json:"outputs"`
	Timestamp time.Time  `json:"timestamp"`
	CacheHit  bool       `json:"cache_hit"`
}

// MappingRecord is the result for one input identifier: zero or more
// resolved targets, a confidence in [0,1], the cardinality of the mapping,
// and the ordered provenance chain that produced it.
type MappingRecord struct {
	Input       Identifier       `json:"input"`
	Targets     []Identifier     `json:"targets"`
	Confidence  float64          `json:"confidence"`
	Cardinality Cardinality      `json:"cardinality"`
	Provenance  []ProvenanceStep `json:"provenance,omitempty"`

	// Metadata carries per-record flags such as "partial" for composites
	// resolved for only some components, "cancelled" for identifiers
	// abandoned on cancellation, and "resolution_type" from the
	// historical resolver.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Unmapped returns a terminal record for an input with no targets.
func Unmapped(input Identifier) MappingRecord {
	return MappingRecord{
		Input:       input,
		Cardinality: CardinalityUnmapped,
	}
}

// Mapped reports whether the record carries at least one target.
func (m MappingRecord) Mapped() bool {
	return len(m.Targets) > 0
}

// SetMeta sets a metadata flag, allocating the map on first use.
func (m *MappingRecord) SetMeta(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// CardinalityFor derives the cardinality of a record from its target count.
// Many-to-one is assigned by the reconciler, which is the only component
// with cross-identifier visibility.
func CardinalityFor(targetCount int) Cardinality {
	switch {
	case targetCount == 0:
		return CardinalityUnmapped
	case targetCount == 1:
		return CardinalityOneToOne
	default:
		return CardinalityOneToMany
	}
}
