// Package config loads and validates engine configuration: the resource
// list, cache backend, and resolution policy knobs. Validation runs
// eagerly at load time so an unknown adapter kind or a malformed resource
// fails startup rather than the first resolve call.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/idresolve/cachestore"
	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// Resource configures one adapter instance. Capabilities are the cross
// product of source and target ontologies; Options carries
// adapter-kind-specific configuration verbatim.
type Resource struct {
	Name               string         `json:"name" yaml:"name"`
	Kind               string         `json:"kind" yaml:"kind"`
	SourceOntologies   []string       `json:"source_ontologies" yaml:"source_ontologies"`
	TargetOntologies   []string       `json:"target_ontologies" yaml:"target_ontologies"`
	Priority           int            `json:"priority" yaml:"priority"`
	BatchSize          int            `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	RateLimitPerSecond float64        `json:"rate_limit_per_second,omitempty" yaml:"rate_limit_per_second,omitempty"`
	Options            map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Descriptor builds the registry descriptor for this resource.
func (r Resource) Descriptor() resource.Descriptor {
	caps := make([]resource.Capability, 0, len(r.SourceOntologies)*len(r.TargetOntologies))
	for _, s := range r.SourceOntologies {
		for _, t := range r.TargetOntologies {
			caps = append(caps, resource.Capability{
				Source: types.Ontology(s),
				Target: types.Ontology(t),
			})
		}
	}
	return resource.Descriptor{
		Name:               r.Name,
		Kind:               r.Kind,
		Capabilities:       caps,
		Priority:           r.Priority,
		BatchSize:          r.BatchSize,
		RateLimitPerSecond: r.RateLimitPerSecond,
	}
}

// Cache selects and tunes the cache backend.
type Cache struct {
	// Backend is "memory" (default) or "redis".
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`

	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`

	DefaultTTLSeconds  int            `json:"default_ttl_seconds,omitempty" yaml:"default_ttl_seconds,omitempty"`
	NegativeTTLSeconds int            `json:"negative_ttl_seconds,omitempty" yaml:"negative_ttl_seconds,omitempty"`
	ResourceTTLSeconds map[string]int `json:"resource_ttl_seconds,omitempty" yaml:"resource_ttl_seconds,omitempty"`
}

// TTLPolicy converts the cache section into a store TTL policy.
func (c Cache) TTLPolicy() cachestore.TTLPolicy {
	policy := cachestore.DefaultTTLPolicy()
	if c.DefaultTTLSeconds > 0 {
		policy.Default = time.Duration(c.DefaultTTLSeconds) * time.Second
	}
	if c.NegativeTTLSeconds > 0 {
		policy.Negative = time.Duration(c.NegativeTTLSeconds) * time.Second
	}
	if len(c.ResourceTTLSeconds) > 0 {
		policy.PerResource = make(map[string]time.Duration, len(c.ResourceTTLSeconds))
		for name, secs := range c.ResourceTTLSeconds {
			policy.PerResource[name] = time.Duration(secs) * time.Second
		}
	}
	return policy
}

// RouteStep is one hop of an explicitly registered route.
type RouteStep struct {
	Resource string `json:"resource" yaml:"resource"`
	Source   string `json:"source" yaml:"source"`
	Target   string `json:"target" yaml:"target"`
}

// Route registers a preferred path for a relationship context.
type Route struct {
	Context  string      `json:"context" yaml:"context"`
	Steps    []RouteStep `json:"steps" yaml:"steps"`
	Priority int         `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Path converts the route into a finder path.
func (r Route) Path() types.Path {
	steps := make([]types.Step, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = types.Step{
			Resource: s.Resource,
			Source:   types.Ontology(s.Source),
			Target:   types.Ontology(s.Target),
		}
	}
	return types.Path{Steps: steps, Priority: r.Priority}
}

// Config is the complete engine configuration.
type Config struct {
	Resources []Resource `json:"resources" yaml:"resources"`
	Routes    []Route    `json:"routes,omitempty" yaml:"routes,omitempty"`
	Cache     Cache      `json:"cache,omitempty" yaml:"cache,omitempty"`

	// Historical names the adapter that normalizes obsolete identifiers
	// before path execution. Empty disables normalization.
	Historical string `json:"historical,omitempty" yaml:"historical,omitempty"`
	// Separator is the composite identifier separator (default "_").
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
	// MaxHops bounds path search depth (default 3).
	MaxHops int `json:"max_hops,omitempty" yaml:"max_hops,omitempty"`
	// Concurrency bounds parallel adapter calls within a hop.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// Load reads a configuration file. The extension selects the decoder:
// .yaml/.yml use YAML, anything else JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "read file")
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "decode "+filepath.Base(path))
	}
	return &cfg, nil
}

// Validate checks the configuration against the registered adapter
// kinds. Resource-level shape errors (empty ontology lists, duplicate
// names) and unknown kinds fail here, before any adapter is built.
func (c *Config) Validate(kinds []string) error {
	if len(c.Resources) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "no resources configured")
	}

	known := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		known[k] = true
	}

	names := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		where := fmt.Sprintf("resource %d (%s)", i, r.Name)
		if r.Name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", where+": empty name")
		}
		if names[r.Name] {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", where+": duplicate name")
		}
		names[r.Name] = true
		if !known[r.Kind] {
			return errors.WrapFatal(
				fmt.Errorf("%w: %q", errors.ErrUnknownAdapterKind, r.Kind),
				"Config", "Validate", where)
		}
		if len(r.SourceOntologies) == 0 || len(r.TargetOntologies) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				where+": empty ontology list")
		}
		if r.RateLimitPerSecond < 0 || r.BatchSize < 0 || r.Priority < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				where+": negative priority, batch size, or rate limit")
		}
	}

	for i, route := range c.Routes {
		where := fmt.Sprintf("route %d (%s)", i, route.Context)
		if route.Context == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", where+": empty context")
		}
		if len(route.Steps) == 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", where+": no steps")
		}
		for _, s := range route.Steps {
			if !names[s.Resource] {
				return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
					fmt.Sprintf("%s: step names unconfigured resource %q", where, s.Resource))
			}
		}
	}
	return nil
}

// Populate validates the configuration and creates every configured
// adapter in the registry. Adapter-specific options pass through as JSON
// regardless of the source format.
func (c *Config) Populate(registry *resource.Registry, deps resource.Dependencies) error {
	if err := c.Validate(registry.Kinds()); err != nil {
		return err
	}
	for _, r := range c.Resources {
		var raw json.RawMessage
		if len(r.Options) > 0 {
			data, err := json.Marshal(r.Options)
			if err != nil {
				return errors.WrapInvalid(err, "Config", "Populate", r.Name+" options")
			}
			raw = data
		}
		if _, err := registry.Create(r.Descriptor(), raw, deps); err != nil {
			return err
		}
	}
	return nil
}
