package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/idresolve/cachestore"
	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/historical"
	"github.com/c360/idresolve/pkg/breaker"
	"github.com/c360/idresolve/pkg/retry"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// hopResult is one hop's answer for a single queried value. A present
// result with zero targets is an authoritative no-match (including
// terminal obsolete identifiers from the historical resolver); an absent
// result means the value could not be queried at all.
type hopResult struct {
	targets    []string
	confidence float64
	meta       map[string]string
	cacheHit   bool
}

// resolutionType returns the historical resolution tag. Fresh adapter
// results carry it in metadata; cache hits reconstruct it from shape,
// since the persisted entry format has no metadata slot. A merged
// identifier is indistinguishable from an updated one after a cache
// round-trip; both read back as "updated".
func (r hopResult) resolutionType(input string) types.ResolutionType {
	if tag, ok := r.meta[historical.MetaResolutionType]; ok {
		return types.ResolutionType(tag)
	}
	switch {
	case len(r.targets) == 0:
		return types.ResolutionObsolete
	case len(r.targets) == 1 && r.targets[0] == input:
		return types.ResolutionUnchanged
	case len(r.targets) == 1:
		return types.ResolutionUpdated
	default:
		return types.ResolutionSplit
	}
}

// executeHop resolves a set of values through one path step: cached
// values answer from the store, the rest go to the adapter in
// batch-size chunks under retry and circuit breaking, and fresh results
// (positive and negative) are written back. Failures never propagate;
// values that could not be queried are simply absent from the result.
func (e *Executor) executeHop(
	ctx context.Context,
	logger *slog.Logger,
	step types.Step,
	values []string,
	opts Options,
) map[string]hopResult {
	results := make(map[string]hopResult)

	var needs []types.Identifier
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		if entry, ok := e.readCache(ctx, step, v, opts); ok {
			results[v] = hopResult{
				targets:    entry.TargetIDs,
				confidence: entry.Confidence,
				cacheHit:   true,
			}
			continue
		}
		needs = append(needs, types.NewIdentifier(step.Source, v))
	}
	if len(needs) == 0 {
		return results
	}

	adapter, ok := e.registry.Adapter(step.Resource)
	if !ok {
		logger.Error("path step names unregistered resource",
			"resource", step.Resource,
			"error", errors.ErrNoAdaptersForHop)
		return results
	}
	br := e.breakers.Get(step.Resource)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, chunk := range adapter.Descriptor().Chunk(needs) {
		chunk := chunk
		g.Go(func() error {
			fresh, err := e.callAdapter(gctx, adapter, br, chunk, step.Target)
			if err != nil {
				logger.Warn("adapter lookup failed",
					"resource", step.Resource,
					"hop", step.Source.String()+"->"+step.Target.String(),
					"ids", len(chunk),
					"error", err)
				return nil
			}
			now := time.Now().UTC()
			mu.Lock()
			for _, id := range chunk {
				if res, found := fresh[id.Value]; found {
					results[id.Value] = hopResult{
						targets:    res.Targets,
						confidence: res.Confidence,
						meta:       res.Metadata,
					}
				}
			}
			mu.Unlock()
			// Cache writes happen outside the lock so a slow store
			// never serializes the other chunks of this hop. Absent
			// from the adapter result means no match; the negative
			// entry is cached with its own short TTL.
			for _, id := range chunk {
				res := fresh[id.Value]
				e.writeCache(ctx, logger, step, id.Value, cachestore.Entry{
					TargetIDs:  res.Targets,
					Confidence: res.Confidence,
					ResolvedAt: now,
				}, opts)
			}
			return nil
		})
	}
	_ = g.Wait()

	e.observeCircuit(step.Resource, br)
	return results
}

// callAdapter performs one chunked lookup under the retry policy and the
// resource's circuit breaker. Transient failures count toward the
// breaker and retry; invalid input is not retried and settles the
// breaker as a success, since the resource itself responded. An open
// breaker short-circuits without a network attempt.
func (e *Executor) callAdapter(
	ctx context.Context,
	adapter resource.Adapter,
	br *breaker.Breaker,
	chunk []types.Identifier,
	target types.Ontology,
) (map[string]resource.Result, error) {
	name := adapter.Name()
	res, err := retry.DoWithResult(ctx, e.retryCfg, func() (map[string]resource.Result, error) {
		if !br.Allow() {
			e.observeCall(name, "short_circuited", 0)
			return nil, retry.NonRetryable(errors.WrapTransient(
				errors.ErrCircuitOpen, "Executor", "callAdapter", name))
		}

		start := time.Now()
		res, err := adapter.Lookup(ctx, chunk, target)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			br.Success()
			e.observeCall(name, "ok", elapsed)
			return res, nil
		case errors.IsTransient(err):
			br.Failure()
			e.observeCall(name, "transient", elapsed)
			return nil, err
		default:
			// Invalid input or fatal config problems are not the
			// resource's fault; the resource answered, so the call
			// counts as a success for the breaker. A half-open probe
			// must settle the breaker either way or it stays stuck.
			br.Success()
			e.observeCall(name, "invalid", elapsed)
			return nil, retry.NonRetryable(err)
		}
	})
	if err != nil && errors.IsTransient(err) && !retry.IsNonRetryable(err) {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrMaxRetriesExceeded, err),
			"Executor", "callAdapter", name)
	}
	return res, err
}

func (e *Executor) readCache(
	ctx context.Context, step types.Step, value string, opts Options,
) (cachestore.Entry, bool) {
	if !opts.UseCache || e.store == nil {
		return cachestore.Entry{}, false
	}
	key := cachestore.Key{
		Resource: step.Resource,
		Source:   step.Source,
		Target:   step.Target,
		SourceID: value,
	}
	entry, ok, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("cache read failed", "key", key.String(), "error", err)
		return cachestore.Entry{}, false
	}
	if ok && e.metrics != nil {
		e.metrics.CacheHitsTotal.WithLabelValues(step.Resource).Inc()
	}
	if !ok && e.metrics != nil {
		e.metrics.CacheMissesTotal.WithLabelValues(step.Resource).Inc()
	}
	return entry, ok
}

func (e *Executor) writeCache(
	ctx context.Context,
	logger *slog.Logger,
	step types.Step,
	value string,
	entry cachestore.Entry,
	opts Options,
) {
	if !opts.UseCache || e.store == nil {
		return
	}
	key := cachestore.Key{
		Resource: step.Resource,
		Source:   step.Source,
		Target:   step.Target,
		SourceID: value,
	}
	ttl := e.ttl.For(step.Resource, entry)
	if opts.CacheTTL > 0 && !entry.Negative() {
		ttl = opts.CacheTTL
	}
	if e.metrics != nil {
		e.metrics.CacheWritesTotal.WithLabelValues(step.Resource).Inc()
	}
	if e.writes != nil {
		if err := e.writes.Submit(cacheWrite{key: key, entry: entry, ttl: ttl}); err != nil {
			logger.Warn("cache write dropped", "key", key.String(), "error", err)
		}
		return
	}
	if err := e.store.Put(ctx, key, entry, ttl); err != nil {
		logger.Warn("cache write failed", "key", key.String(), "error", err)
	}
}

// processCacheWrite is the async writer pool's processor.
func (e *Executor) processCacheWrite(ctx context.Context, w cacheWrite) error {
	if err := e.store.Put(ctx, w.key, w.entry, w.ttl); err != nil {
		e.logger.Warn("async cache write failed", "key", w.key.String(), "error", err)
		return err
	}
	return nil
}

func (e *Executor) observeCall(resource, status string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.AdapterCallsTotal.WithLabelValues(resource, status).Inc()
	if elapsed > 0 {
		e.metrics.AdapterCallSeconds.WithLabelValues(resource).Observe(elapsed.Seconds())
	}
}

func (e *Executor) observeCircuit(resource string, br *breaker.Breaker) {
	if e.metrics == nil {
		return
	}
	e.metrics.CircuitState.WithLabelValues(resource).Set(float64(br.State()))
}
