// Package reconcile merges forward and reverse resolution runs into
// conflict-aware, cardinality-tagged mappings. A mapping confirmed from
// both directions is trustworthy; a reverse run that attributes a target
// to a different source exposes a conflict that is resolved by
// confidence, never silently dropped.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/c360/idresolve/executor"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// TieBreak selects how conflicts with equal combined confidence resolve.
type TieBreak int

const (
	// TieBreakPathThenPriority prefers the record with the shorter
	// provenance chain, then the higher-priority (lower value) resource.
	// This is the default.
	TieBreakPathThenPriority TieBreak = iota
	// TieBreakPriorityThenPath checks resource priority before chain
	// length.
	TieBreakPriorityThenPath
)

// Mapping is the merged forward+reverse result for one input identifier.
// Both directional records are retained for audit.
type Mapping struct {
	Input       types.Identifier    `json:"input"`
	Canonical   []types.Identifier  `json:"canonical"`
	Confidence  float64             `json:"confidence"`
	Cardinality types.Cardinality   `json:"cardinality"`
	Conflict    bool                `json:"conflict"`
	Forward     types.MappingRecord `json:"forward"`
	// Reverse holds the reverse-direction record for each forward
	// target, in forward target order.
	Reverse []types.MappingRecord `json:"reverse,omitempty"`
}

// Resolver is the directional resolution contract the reconciler drives.
// *executor.Executor satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ids []string, source, target types.Ontology, opts executor.Options) ([]types.MappingRecord, error)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTieBreak overrides the conflict tie-break order.
func WithTieBreak(tb TieBreak) Option {
	return func(r *Reconciler) { r.tieBreak = tb }
}

// WithLogger sets the reconciler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// Reconciler runs an executor in both directions and merges the results.
type Reconciler struct {
	exec     Resolver
	registry *resource.Registry
	tieBreak TieBreak
	logger   *slog.Logger
}

// New creates a reconciler. The registry supplies declared resource
// priorities for conflict tie-breaking.
func New(exec Resolver, registry *resource.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		exec:     exec,
		registry: registry,
		tieBreak: TieBreakPathThenPriority,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves ids forward (source to target), resolves every
// claimed target back (target to source), and merges both runs into one
// Mapping per input, in input order.
func (r *Reconciler) Reconcile(
	ctx context.Context,
	ids []string,
	source, target types.Ontology,
	opts executor.Options,
) ([]Mapping, error) {
	forward, err := r.exec.Resolve(ctx, ids, source, target, opts)
	if err != nil {
		return nil, err
	}

	// One reverse run covers every target any forward record claimed.
	var reverseIDs []string
	seen := make(map[string]bool)
	for _, rec := range forward {
		for _, t := range rec.Targets {
			if !seen[t.Value] {
				seen[t.Value] = true
				reverseIDs = append(reverseIDs, t.Value)
			}
		}
	}

	reverse := make(map[string]types.MappingRecord, len(reverseIDs))
	if len(reverseIDs) > 0 {
		revRecords, err := r.exec.Resolve(ctx, reverseIDs, target, source, opts)
		if err != nil {
			r.logger.Warn("reverse resolution failed, reconciling forward-only",
				"source", target.String(), "target", source.String(), "error", err)
		} else {
			for _, rec := range revRecords {
				reverse[rec.Input.Value] = rec
			}
		}
	}

	// Targets claimed by more than one input are many-to-one.
	claims := make(map[string]int)
	for _, rec := range forward {
		for _, t := range rec.Targets {
			claims[t.Value]++
		}
	}

	out := make([]Mapping, len(forward))
	for i, rec := range forward {
		out[i] = r.merge(rec, reverse, claims)
	}
	return out, nil
}

// merge reconciles one forward record against the reverse run.
func (r *Reconciler) merge(
	fwd types.MappingRecord,
	reverse map[string]types.MappingRecord,
	claims map[string]int,
) Mapping {
	m := Mapping{Input: fwd.Input, Forward: fwd}

	if !fwd.Mapped() {
		m.Cardinality = types.CardinalityUnmapped
		return m
	}

	manyToOne := false
	canonSeen := make(map[string]bool)
	addCanonical := func(id types.Identifier, confidence float64) {
		if canonSeen[id.Ontology.String()+":"+id.Value] {
			return
		}
		canonSeen[id.Ontology.String()+":"+id.Value] = true
		m.Canonical = append(m.Canonical, id)
		if confidence > m.Confidence {
			m.Confidence = confidence
		}
	}

	for _, t := range fwd.Targets {
		if claims[t.Value] > 1 {
			manyToOne = true
		}
		rev, ok := reverse[t.Value]
		if ok {
			m.Reverse = append(m.Reverse, rev)
		}
		if !ok || !rev.Mapped() || containsValue(rev.Targets, fwd.Input.Value) {
			// Confirmed by the reverse run, or no reverse evidence to
			// dispute the forward claim.
			addCanonical(t, fwd.Confidence)
			continue
		}

		// The reverse run attributes this target to a different source.
		m.Conflict = true
		if r.forwardWins(fwd, rev) {
			addCanonical(t, fwd.Confidence)
			continue
		}
		for _, c := range rev.Targets {
			addCanonical(c, rev.Confidence)
		}
	}

	switch {
	case len(m.Canonical) == 0:
		m.Cardinality = types.CardinalityUnmapped
	case manyToOne:
		m.Cardinality = types.CardinalityManyToOne
	default:
		m.Cardinality = types.CardinalityFor(len(m.Canonical))
	}
	return m
}

// forwardWins decides a conflict: highest confidence first, then the
// configured tie-break. A full tie keeps the forward claim.
func (r *Reconciler) forwardWins(fwd, rev types.MappingRecord) bool {
	if fwd.Confidence != rev.Confidence {
		return fwd.Confidence > rev.Confidence
	}

	pathCmp := len(fwd.Provenance) - len(rev.Provenance)
	prioCmp := r.bestPriority(fwd) - r.bestPriority(rev)

	checks := []int{pathCmp, prioCmp}
	if r.tieBreak == TieBreakPriorityThenPath {
		checks = []int{prioCmp, pathCmp}
	}
	for _, c := range checks {
		if c != 0 {
			return c < 0
		}
	}
	return true
}

// bestPriority returns the best (lowest) declared priority among the
// resources in the record's provenance chain.
func (r *Reconciler) bestPriority(rec types.MappingRecord) int {
	best := int(^uint(0) >> 1)
	for _, step := range rec.Provenance {
		if adapter, ok := r.registry.Adapter(step.Resource); ok {
			if p := adapter.Descriptor().Priority; p < best {
				best = p
			}
		}
	}
	return best
}

func containsValue(ids []types.Identifier, value string) bool {
	for _, id := range ids {
		if id.Value == value {
			return true
		}
	}
	return false
}
