// Package resource defines the uniform adapter contract wrapping one
// concrete data source, the static descriptor describing its capabilities,
// and the kind registry that creates adapter instances from configuration.
// Each adapter owns its own wire protocol behind the Lookup contract;
// adapters never write to the shared cache, only the executor does.
package resource

import (
	"context"
	"fmt"

	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/types"
)

// Result is one adapter's answer for a single input identifier.
type Result struct {
	// Targets are the resolved identifier values in the target ontology.
	Targets []string `json:"targets"`
	// Confidence is the adapter's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Metadata carries raw provider-specific annotations.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Adapter is the uniform lookup contract. Implementations must be
// idempotent and safe for concurrent use. A batch must not exceed the
// descriptor's BatchSize. Identifiers with no match are simply absent from
// the result map; NoMatch is not an error. Transient failures
// (unavailable, rate limited) and permanent ones (invalid input) are
// distinguished via the errors package classification.
type Adapter interface {
	// Name returns the configured instance name (unique per engine).
	Name() string

	// Descriptor returns the adapter's static configuration.
	Descriptor() Descriptor

	// Lookup resolves a batch of identifiers into the target ontology.
	// The result map is keyed by the raw source identifier value.
	Lookup(ctx context.Context, batch []types.Identifier, target types.Ontology) (map[string]Result, error)
}

// Capability is one (source ontology, target ontology) conversion an
// adapter supports.
type Capability struct {
	Source types.Ontology `json:"source" yaml:"source"`
	Target types.Ontology `json:"target" yaml:"target"`
}

// Descriptor is the static configuration for one adapter instance.
// Descriptors load once at startup and are immutable afterwards.
type Descriptor struct {
	// Name uniquely identifies this adapter instance.
	Name string `json:"name" yaml:"name"`
	// Kind selects the registered factory ("statictable", "httplookup",
	// "historical", ...).
	Kind string `json:"kind" yaml:"kind"`
	// Capabilities lists supported conversions.
	Capabilities []Capability `json:"capabilities" yaml:"capabilities"`
	// Priority ranks the adapter among alternatives; lower wins.
	Priority int `json:"priority" yaml:"priority"`
	// BatchSize is the maximum identifiers per Lookup call (0 = unlimited).
	BatchSize int `json:"batch_size" yaml:"batch_size"`
	// RateLimitPerSecond caps lookup calls per second (0 = unlimited).
	RateLimitPerSecond float64 `json:"rate_limit_per_second" yaml:"rate_limit_per_second"`
}

// Supports reports whether the descriptor declares the given conversion.
func (d Descriptor) Supports(source, target types.Ontology) bool {
	for _, c := range d.Capabilities {
		if c.Source == source && c.Target == target {
			return true
		}
	}
	return false
}

// Validate checks structural requirements of a descriptor.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate", "name is required")
	}
	if d.Kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			fmt.Sprintf("resource %q: kind is required", d.Name))
	}
	if len(d.Capabilities) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			fmt.Sprintf("resource %q: at least one capability is required", d.Name))
	}
	for _, c := range d.Capabilities {
		// Source == Target is allowed: normalization adapters (the
		// historical resolver) map an ontology onto itself.
		if c.Source == "" || c.Target == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
				fmt.Sprintf("resource %q: capability with empty ontology", d.Name))
		}
	}
	if d.BatchSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			fmt.Sprintf("resource %q: negative batch size", d.Name))
	}
	if d.RateLimitPerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Descriptor", "Validate",
			fmt.Sprintf("resource %q: negative rate limit", d.Name))
	}
	return nil
}

// CheckBatch verifies a batch respects the descriptor's size limit.
func (d Descriptor) CheckBatch(batch []types.Identifier) error {
	if d.BatchSize > 0 && len(batch) > d.BatchSize {
		return errors.WrapInvalid(errors.ErrBatchTooLarge, "Adapter", "Lookup",
			fmt.Sprintf("resource %q: batch of %d exceeds limit %d", d.Name, len(batch), d.BatchSize))
	}
	return nil
}

// Chunk splits a batch into sub-batches that respect the size limit.
// The input slice is reused; callers must not mutate the chunks.
func (d Descriptor) Chunk(batch []types.Identifier) [][]types.Identifier {
	if d.BatchSize <= 0 || len(batch) <= d.BatchSize {
		return [][]types.Identifier{batch}
	}
	var chunks [][]types.Identifier
	for start := 0; start < len(batch); start += d.BatchSize {
		end := min(start+d.BatchSize, len(batch))
		chunks = append(chunks, batch[start:end])
	}
	return chunks
}
