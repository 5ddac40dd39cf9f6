// Package pathfinder discovers ranked conversion paths over the resource
// capability graph. Paths explicitly registered for a relationship context
// take precedence, ordered by declared priority; otherwise candidates come
// from a bounded search over the graph ranked by hop count, summed inverse
// historical success rate, then declared priority. The finder is stateless
// beyond the static registry and the shared success stats.
package pathfinder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// DefaultMaxHops bounds the graph search depth.
const DefaultMaxHops = 3

// Finder discovers candidate paths.
type Finder struct {
	registry *resource.Registry
	stats    *Stats
	maxHops  int

	mu     sync.RWMutex
	routes map[routeKey][]types.Path
}

type routeKey struct {
	context string
	source  types.Ontology
	target  types.Ontology
}

// Option configures a Finder.
type Option func(*Finder)

// WithMaxHops overrides the search depth bound.
func WithMaxHops(n int) Option {
	return func(f *Finder) {
		if n > 0 {
			f.maxHops = n
		}
	}
}

// WithStats wires a shared success stats sink.
func WithStats(stats *Stats) Option {
	return func(f *Finder) { f.stats = stats }
}

// New creates a Finder over the given registry.
func New(registry *resource.Registry, opts ...Option) *Finder {
	f := &Finder{
		registry: registry,
		stats:    NewStats(),
		maxHops:  DefaultMaxHops,
		routes:   make(map[routeKey][]types.Path),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Stats returns the finder's success stats sink.
func (f *Finder) Stats() *Stats { return f.stats }

// RegisterRoute registers an explicit path for a relationship context.
// Every step must name a registered adapter declaring the step's
// capability.
func (f *Finder) RegisterRoute(relContext string, path types.Path) error {
	if len(path.Steps) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Finder", "RegisterRoute", "empty path")
	}
	for i, step := range path.Steps {
		adapter, ok := f.registry.Adapter(step.Resource)
		if !ok {
			return errors.WrapInvalid(
				fmt.Errorf("step %d names unregistered resource %q", i, step.Resource),
				"Finder", "RegisterRoute", "step validation")
		}
		if !adapter.Descriptor().Supports(step.Source, step.Target) {
			return errors.WrapInvalid(
				fmt.Errorf("resource %q does not support %s->%s", step.Resource, step.Source, step.Target),
				"Finder", "RegisterRoute", "capability validation")
		}
		if i > 0 && path.Steps[i-1].Target != step.Source {
			return errors.WrapInvalid(
				fmt.Errorf("step %d source %s does not chain from previous target %s",
					i, step.Source, path.Steps[i-1].Target),
				"Finder", "RegisterRoute", "chain validation")
		}
	}

	key := routeKey{relContext, path.Source(), path.Target()}
	f.mu.Lock()
	f.routes[key] = append(f.routes[key], path)
	sort.SliceStable(f.routes[key], func(i, j int) bool {
		return f.routes[key][i].Priority < f.routes[key][j].Priority
	})
	f.mu.Unlock()
	return nil
}

// FindPaths returns ranked candidate paths from source to target. The
// relationship context selects explicitly registered routes when present;
// otherwise candidates come from the capability graph search. Unknown
// ontologies are configuration errors; a known pair with no connecting
// path returns ErrNoPath.
func (f *Finder) FindPaths(source, target types.Ontology, relContext string) ([]types.Path, error) {
	known := f.registry.Ontologies()
	if !known[source] {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnknownOntology, source),
			"Finder", "FindPaths", "source validation")
	}
	if !known[target] {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnknownOntology, target),
			"Finder", "FindPaths", "target validation")
	}

	if relContext != "" {
		f.mu.RLock()
		routes := f.routes[routeKey{relContext, source, target}]
		f.mu.RUnlock()
		if len(routes) > 0 {
			out := make([]types.Path, len(routes))
			copy(out, routes)
			return out, nil
		}
	}

	candidates := f.search(source, target)
	if len(candidates) == 0 {
		return nil, errors.Wrap(
			fmt.Errorf("%w: %s -> %s", errors.ErrNoPath, source, target),
			"Finder", "FindPaths", "graph search")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		// Shortest hop count first: a single-hop path always beats an
		// equal-priority multi-hop one.
		if candidates[i].Hops() != candidates[j].Hops() {
			return candidates[i].Hops() < candidates[j].Hops()
		}
		ri, rj := pathResources(candidates[i]), pathResources(candidates[j])
		si, sj := f.stats.InverseSum(ri), f.stats.InverseSum(rj)
		if si != sj {
			return si < sj
		}
		return candidates[i].Priority < candidates[j].Priority
	})
	return candidates, nil
}

// search enumerates simple paths up to maxHops via depth-first traversal
// of the capability graph. One candidate is produced per concrete
// resource choice at each hop, so alternatives over different adapters
// rank independently.
func (f *Finder) search(source, target types.Ontology) []types.Path {
	var (
		out     []types.Path
		steps   []types.Step
		visited = map[types.Ontology]bool{source: true}
	)

	var walk func(from types.Ontology)
	walk = func(from types.Ontology) {
		if len(steps) >= f.maxHops {
			return
		}
		for _, next := range f.neighbors(from) {
			if visited[next.ontology] && next.ontology != target {
				continue
			}
			step := types.Step{Resource: next.resource, Source: from, Target: next.ontology}
			steps = append(steps, step)
			if next.ontology == target {
				out = append(out, f.newPath(steps))
			} else {
				visited[next.ontology] = true
				walk(next.ontology)
				visited[next.ontology] = false
			}
			steps = steps[:len(steps)-1]
		}
	}
	walk(source)
	return out
}

type edge struct {
	resource string
	ontology types.Ontology
}

// neighbors returns outgoing edges from an ontology, one per adapter
// capability, in the registry's priority order.
func (f *Finder) neighbors(from types.Ontology) []edge {
	var out []edge
	for _, adapter := range f.registry.Adapters() {
		desc := adapter.Descriptor()
		for _, c := range desc.Capabilities {
			if c.Source == from && c.Target != from {
				out = append(out, edge{resource: desc.Name, ontology: c.Target})
			}
		}
	}
	return out
}

// newPath copies the step stack into a Path, stamping the best declared
// resource priority among its steps for ranking.
func (f *Finder) newPath(steps []types.Step) types.Path {
	copied := make([]types.Step, len(steps))
	copy(copied, steps)

	best := 0
	for i, step := range copied {
		adapter, ok := f.registry.Adapter(step.Resource)
		if !ok {
			continue
		}
		p := adapter.Descriptor().Priority
		if i == 0 || p < best {
			best = p
		}
	}
	return types.Path{Steps: copied, Priority: best}
}

func pathResources(p types.Path) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Resource
	}
	return out
}
