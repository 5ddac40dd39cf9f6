package resource

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/metric"
	"github.com/c360/idresolve/types"
)

// Dependencies are shared services handed to adapter factories. Factories
// must not perform I/O; connections are established lazily on first Lookup.
type Dependencies struct {
	Logger     *slog.Logger
	Metrics    *metric.Registry
	HTTPClient *http.Client
}

// Factory creates an adapter instance from its descriptor and raw
// kind-specific configuration.
type Factory func(desc Descriptor, rawConfig json.RawMessage, deps Dependencies) (Adapter, error)

// Registry maps adapter kinds to factories and holds created instances.
// Kind registration happens at startup; unknown kinds fail configuration
// validation early rather than at call time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	adapters  map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// RegisterKind registers a factory for an adapter kind.
func (r *Registry) RegisterKind(kind string, factory Factory) error {
	if kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterKind", "kind name validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterKind", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("kind %q is already registered", kind),
			"Registry", "RegisterKind", "duplicate kind check")
	}
	r.factories[kind] = factory
	return nil
}

// Kinds returns the registered kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Create instantiates and registers an adapter from its descriptor. The
// adapter is wrapped with a rate limiter when the descriptor declares one.
func (r *Registry) Create(desc Descriptor, rawConfig json.RawMessage, deps Dependencies) (Adapter, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, exists := r.factories[desc.Kind]
	r.mu.RUnlock()
	if !exists {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %q for resource %q", errors.ErrUnknownAdapterKind, desc.Kind, desc.Name),
			"Registry", "Create", "kind lookup")
	}

	adapter, err := factory(desc, rawConfig, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", fmt.Sprintf("factory %q", desc.Kind))
	}

	if desc.RateLimitPerSecond > 0 {
		adapter = RateLimited(adapter, desc.RateLimitPerSecond)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[desc.Name]; exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("resource %q is already registered", desc.Name),
			"Registry", "Create", "duplicate resource check")
	}
	r.adapters[desc.Name] = adapter
	return adapter, nil
}

// Adapter returns a registered adapter instance by name.
func (r *Registry) Adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Adapters returns all registered adapter instances.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ForHop returns adapters supporting the conversion, ordered by declared
// priority (lower first), name as tie-break for determinism.
func (r *Registry) ForHop(source, target types.Ontology) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Adapter
	for _, a := range r.adapters {
		if a.Descriptor().Supports(source, target) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := out[i].Descriptor(), out[j].Descriptor()
		if di.Priority != dj.Priority {
			return di.Priority < dj.Priority
		}
		return di.Name < dj.Name
	})
	return out
}

// Ontologies returns every ontology mentioned in a registered capability.
func (r *Registry) Ontologies() map[types.Ontology]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.Ontology]bool)
	for _, a := range r.adapters {
		for _, c := range a.Descriptor().Capabilities {
			out[c.Source] = true
			out[c.Target] = true
		}
	}
	return out
}
