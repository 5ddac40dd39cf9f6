// Package executor drives batch identifier resolution: composite
// splitting, historical normalization, ranked path execution with cache
// partitioning, retry and per-resource circuit breaking, and provenance
// assembly. It is the only component that writes to the shared cache.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/idresolve/cachestore"
	"github.com/c360/idresolve/composite"
	"github.com/c360/idresolve/errors"
	"github.com/c360/idresolve/historical"
	"github.com/c360/idresolve/metric"
	"github.com/c360/idresolve/pathfinder"
	"github.com/c360/idresolve/pkg/breaker"
	"github.com/c360/idresolve/pkg/retry"
	"github.com/c360/idresolve/pkg/worker"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/types"
)

// MetaCancelled marks records abandoned because the caller's context was
// cancelled before their identifiers could be attempted.
const MetaCancelled = "cancelled"

// Options are per-call resolution options.
type Options struct {
	// MaxPathAttempts bounds how many candidate paths are tried for
	// identifiers the preceding paths left unresolved.
	MaxPathAttempts int
	// UseCache enables cache reads and writes for this call.
	UseCache bool
	// CacheTTL overrides the engine TTL policy when positive.
	CacheTTL time.Duration
	// IncludeProvenance retains per-record provenance chains.
	IncludeProvenance bool
	// Bidirectional is consumed by reconcile.Reconciler, which wraps
	// forward and reverse executor runs. The executor itself resolves
	// one direction per call.
	Bidirectional bool
	// RelationshipContext selects explicitly registered routes in the
	// path finder when non-empty.
	RelationshipContext string
}

// DefaultOptions returns the engine defaults: two path attempts, caching
// and provenance on, single direction.
func DefaultOptions() Options {
	return Options{
		MaxPathAttempts:   2,
		UseCache:          true,
		IncludeProvenance: true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxPathAttempts <= 0 {
		o.MaxPathAttempts = 2
	}
	return o
}

// Option configures an Executor.
type Option func(*Executor) error

// WithCache wires a cache store and TTL policy into the executor.
func WithCache(store cachestore.Store, policy cachestore.TTLPolicy) Option {
	return func(e *Executor) error {
		e.store = store
		e.ttl = policy
		return nil
	}
}

// WithRetry overrides the adapter-call retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(e *Executor) error {
		e.retryCfg = cfg
		return nil
	}
}

// WithBreaker overrides the per-resource circuit breaker configuration.
func WithBreaker(cfg breaker.Config) Option {
	return func(e *Executor) error {
		e.breakers = breaker.NewGroup(cfg)
		return nil
	}
}

// WithHistorical names the registered adapter that normalizes obsolete,
// merged, and split identifiers before path execution.
func WithHistorical(adapterName string) Option {
	return func(e *Executor) error {
		e.historicalName = adapterName
		return nil
	}
}

// WithSeparator sets the composite identifier separator.
func WithSeparator(sep string) Option {
	return func(e *Executor) error {
		s, err := composite.NewSplitter(sep)
		if err != nil {
			return err
		}
		e.splitter = s
		return nil
	}
}

// WithMetrics wires engine metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Executor) error {
		e.metrics = m
		return nil
	}
}

// WithLogger sets the executor's base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) error {
		e.logger = logger
		return nil
	}
}

// WithConcurrency bounds parallel adapter calls within a hop.
func WithConcurrency(n int) Option {
	return func(e *Executor) error {
		if n <= 0 {
			return fmt.Errorf("%w: concurrency must be positive, got %d", errors.ErrInvalidConfig, n)
		}
		e.concurrency = n
		return nil
	}
}

// WithAsyncCacheWrites moves cache writes off the resolution path onto a
// bounded worker pool. Start must be called before Resolve and Close
// when done.
func WithAsyncCacheWrites(workers, queueSize int) Option {
	return func(e *Executor) error {
		e.asyncWorkers = workers
		e.asyncQueue = queueSize
		return nil
	}
}

// WithCacheWriteMetrics exports the async cache writer's queue depth and
// throughput through the given registrar. Has no effect without
// WithAsyncCacheWrites.
func WithCacheWriteMetrics(reg worker.Registrar) Option {
	return func(e *Executor) error {
		e.poolRegistrar = reg
		return nil
	}
}

// Executor resolves identifier batches over the configured resource graph.
type Executor struct {
	registry *resource.Registry
	finder   *pathfinder.Finder

	store cachestore.Store
	ttl   cachestore.TTLPolicy

	breakers *breaker.Group
	retryCfg retry.Config
	splitter *composite.Splitter

	historicalName string
	metrics        *metric.Metrics
	logger         *slog.Logger
	concurrency    int

	asyncWorkers, asyncQueue int
	poolRegistrar            worker.Registrar
	writes                   *worker.Pool[cacheWrite]
}

type cacheWrite struct {
	key   cachestore.Key
	entry cachestore.Entry
	ttl   time.Duration
}

// New creates an executor over the given registry and path finder.
func New(registry *resource.Registry, finder *pathfinder.Finder, opts ...Option) (*Executor, error) {
	splitter, err := composite.NewSplitter(composite.DefaultSeparator)
	if err != nil {
		return nil, err
	}
	e := &Executor{
		registry:    registry,
		finder:      finder,
		ttl:         cachestore.DefaultTTLPolicy(),
		breakers:    breaker.NewGroup(breaker.DefaultConfig()),
		retryCfg:    retry.DefaultConfig(),
		splitter:    splitter,
		logger:      slog.Default(),
		concurrency: 8,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.historicalName != "" {
		if _, ok := registry.Adapter(e.historicalName); !ok {
			return nil, errors.WrapFatal(
				fmt.Errorf("historical adapter %q is not registered", e.historicalName),
				"Executor", "New", "historical validation")
		}
	}
	if e.asyncWorkers > 0 {
		var poolOpts []worker.Option[cacheWrite]
		if e.poolRegistrar != nil {
			poolOpts = append(poolOpts, worker.WithMetrics[cacheWrite](e.poolRegistrar, "cache_writer"))
		}
		pool, err := worker.NewPool(e.asyncWorkers, e.asyncQueue, e.processCacheWrite, poolOpts...)
		if err != nil {
			return nil, err
		}
		e.writes = pool
	}
	return e, nil
}

// Start launches background machinery (the async cache writer, when
// configured). Safe to skip for synchronous-write executors.
func (e *Executor) Start(ctx context.Context) error {
	if e.writes != nil {
		return e.writes.Start(ctx)
	}
	return nil
}

// Breakers exposes the per-resource circuit breaker group, e.g. for
// health reporting.
func (e *Executor) Breakers() *breaker.Group {
	return e.breakers
}

// Close drains and stops background machinery.
func (e *Executor) Close() error {
	if e.writes != nil {
		return e.writes.Stop(10 * time.Second)
	}
	return nil
}

// task tracks one atomic (post-split) component of one input through the
// pipeline. The frontier holds the component's current identifier values;
// it starts as the raw value, may be rewritten by the historical
// resolver, and ends as target-ontology values on success.
type task struct {
	inputIndex int
	component  types.Identifier

	values     []string
	confidence float64
	provenance []types.ProvenanceStep
	meta       map[string]string

	// failed collects provenance from path attempts that did not
	// resolve this task, so an unmapped record still shows which
	// resources were tried.
	failed []types.ProvenanceStep

	resolved bool
	terminal bool
}

func (t *task) setMeta(key, value string) {
	if t.meta == nil {
		t.meta = make(map[string]string)
	}
	t.meta[key] = value
}

// Resolve maps a batch of identifiers from the source ontology into the
// target ontology. The result slice always has one record per input, in
// input order. Only configuration-level failures (unknown ontology, no
// connecting path) return an error; per-identifier failures surface as
// unmapped records.
func (e *Executor) Resolve(
	ctx context.Context,
	ids []string,
	source, target types.Ontology,
	opts Options,
) ([]types.MappingRecord, error) {
	opts = opts.withDefaults()
	start := time.Now()

	known := e.registry.Ontologies()
	if !known[source] {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnknownOntology, source),
			"Executor", "Resolve", "source validation")
	}
	if !known[target] {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrUnknownOntology, target),
			"Executor", "Resolve", "target validation")
	}
	if len(ids) == 0 {
		return []types.MappingRecord{}, nil
	}

	logger := e.logger.With(
		"request_id", uuid.NewString(),
		"source", source.String(),
		"target", target.String(),
		"ids", len(ids),
	)
	logger.Debug("resolve started")

	// Split composites. Each input owns one or more tasks; tasks resolve
	// independently and recombine at assembly.
	inputs := make([][]int, len(ids))
	var tasks []*task
	for i, raw := range ids {
		original := types.NewIdentifier(source, raw)
		for _, comp := range e.splitter.Split(original) {
			inputs[i] = append(inputs[i], len(tasks))
			tasks = append(tasks, &task{
				inputIndex: i,
				component:  comp,
				values:     []string{comp.Value},
				confidence: 1.0,
			})
		}
	}

	if e.historicalName != "" {
		e.normalizeHistorical(ctx, logger, tasks, source, opts)
	}

	if err := e.executePaths(ctx, logger, tasks, source, target, opts); err != nil {
		e.observeResolution(source, target, "error", start)
		return nil, err
	}

	records := e.assemble(ids, inputs, tasks, target, opts)
	e.observeResolution(source, target, "success", start)
	logger.Debug("resolve finished", "duration", time.Since(start))
	return records, nil
}

// executePaths runs ranked candidate paths until every task is resolved,
// terminal, or the attempt budget is spent.
func (e *Executor) executePaths(
	ctx context.Context,
	logger *slog.Logger,
	tasks []*task,
	source, target types.Ontology,
	opts Options,
) error {
	if len(pendingTasks(tasks)) == 0 {
		return nil
	}

	paths, err := e.finder.FindPaths(source, target, opts.RelationshipContext)
	if err != nil {
		return err
	}
	attempts := opts.MaxPathAttempts
	if attempts > len(paths) {
		attempts = len(paths)
	}

	for i := 0; i < attempts; i++ {
		pending := pendingTasks(tasks)
		if len(pending) == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}
		resolved := e.runPath(ctx, logger, paths[i], pending, target, opts)
		e.observePathAttempt(resolved, len(pending))
	}

	if ctx.Err() != nil {
		for _, t := range pendingTasks(tasks) {
			t.setMeta(MetaCancelled, "true")
		}
		return nil
	}
	if pending := pendingTasks(tasks); len(pending) > 0 {
		logger.Debug("candidate paths exhausted",
			"unresolved", len(pending),
			"attempted", attempts,
			"error", errors.ErrAllPathsExhausted)
	}
	return nil
}

func pendingTasks(tasks []*task) []*task {
	var out []*task
	for _, t := range tasks {
		if !t.resolved && !t.terminal {
			out = append(out, t)
		}
	}
	return out
}

// runPath executes one candidate path hop-by-hop for the pending tasks.
// Frontiers advance on local copies so a mid-path failure leaves the
// task's values and confidence untouched for the next candidate; the
// failed attempt's provenance is kept aside for unmapped diagnostics.
// Returns the number of tasks resolved by this path.
func (e *Executor) runPath(
	ctx context.Context,
	logger *slog.Logger,
	path types.Path,
	pending []*task,
	target types.Ontology,
	opts Options,
) int {
	type attempt struct {
		task       *task
		values     []string
		confidence float64
		provenance []types.ProvenanceStep
	}
	attempts := make([]*attempt, len(pending))
	for i, t := range pending {
		attempts[i] = &attempt{task: t, values: t.values, confidence: t.confidence}
	}

	for _, step := range path.Steps {
		if ctx.Err() != nil {
			return 0
		}

		var values []string
		for _, a := range attempts {
			values = append(values, a.values...)
		}
		results := e.executeHop(ctx, logger, step, values, opts)

		var attempted, hit int
		for _, a := range attempts {
			if len(a.values) == 0 {
				continue
			}
			next := make([]string, 0, len(a.values))
			seen := make(map[string]bool)
			now := time.Now().UTC()
			for _, v := range a.values {
				res, ok := results[v]
				attempted++
				if ok && len(res.targets) > 0 {
					hit++
					if res.confidence < a.confidence {
						a.confidence = res.confidence
					}
					for _, tv := range res.targets {
						if !seen[tv] {
							seen[tv] = true
							next = append(next, tv)
						}
					}
				}
				a.provenance = append(a.provenance, types.ProvenanceStep{
					Resource:  step.Resource,
					Input:     types.NewIdentifier(step.Source, v),
					Outputs:   res.targets,
					Timestamp: now,
					CacheHit:  res.cacheHit,
				})
			}
			a.values = next
		}
		e.finder.Stats().Record(step.Resource, hit, attempted)
	}

	resolved := 0
	for _, a := range attempts {
		if len(a.values) == 0 {
			a.task.failed = append(a.task.failed, a.provenance...)
			continue
		}
		t := a.task
		t.values = a.values
		t.confidence = a.confidence
		t.provenance = append(t.provenance, a.provenance...)
		t.resolved = true
		resolved++
	}
	return resolved
}

// assemble builds one MappingRecord per original input, recombining
// composite components.
func (e *Executor) assemble(
	ids []string,
	inputs [][]int,
	tasks []*task,
	target types.Ontology,
	opts Options,
) []types.MappingRecord {
	records := make([]types.MappingRecord, len(ids))
	for i, taskIdxs := range inputs {
		original := types.NewIdentifier(tasks[taskIdxs[0]].component.Ontology, ids[i])

		components := make([]types.MappingRecord, 0, len(taskIdxs))
		for _, ti := range taskIdxs {
			components = append(components, e.taskRecord(tasks[ti], target))
		}

		var rec types.MappingRecord
		if len(components) == 1 {
			rec = components[0]
			rec.Input = original
		} else {
			rec = e.splitter.Recombine(original, components)
		}
		if !opts.IncludeProvenance {
			rec.Provenance = nil
		}
		records[i] = rec
		if e.metrics != nil {
			e.metrics.RecordsTotal.WithLabelValues(string(rec.Cardinality)).Inc()
		}
	}
	return records
}

// taskRecord materializes one component's record.
func (e *Executor) taskRecord(t *task, target types.Ontology) types.MappingRecord {
	rec := types.MappingRecord{
		Input:      t.component,
		Provenance: t.provenance,
		Metadata:   t.meta,
	}
	if !t.resolved {
		if len(t.failed) > 0 {
			rec.Provenance = append(append([]types.ProvenanceStep{}, t.provenance...), t.failed...)
		}
		rec.Cardinality = types.CardinalityUnmapped
		return rec
	}
	rec.Targets = make([]types.Identifier, len(t.values))
	for i, v := range t.values {
		rec.Targets[i] = types.NewIdentifier(target, v)
	}
	rec.Confidence = t.confidence
	rec.Cardinality = types.CardinalityFor(len(rec.Targets))
	return rec
}

func (e *Executor) observeResolution(source, target types.Ontology, status string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.ResolutionsTotal.WithLabelValues(source.String(), target.String(), status).Inc()
	e.metrics.ResolutionDuration.WithLabelValues(source.String(), target.String()).
		Observe(time.Since(start).Seconds())
}

func (e *Executor) observePathAttempt(resolved, pending int) {
	if e.metrics == nil {
		return
	}
	outcome := "failed"
	switch {
	case resolved == pending:
		outcome = "resolved"
	case resolved > 0:
		outcome = "partial"
	}
	e.metrics.PathAttemptsTotal.WithLabelValues(outcome).Inc()
}

// normalizeHistorical rewrites task frontiers to currently valid
// identifiers before path execution. Obsolete identifiers become
// terminal, tagged, never silently substituted.
func (e *Executor) normalizeHistorical(
	ctx context.Context,
	logger *slog.Logger,
	tasks []*task,
	source types.Ontology,
	opts Options,
) {
	adapter, ok := e.registry.Adapter(e.historicalName)
	if !ok || !adapter.Descriptor().Supports(source, source) {
		return
	}
	step := types.Step{Resource: e.historicalName, Source: source, Target: source}

	var values []string
	for _, t := range tasks {
		values = append(values, t.values...)
	}
	results := e.executeHop(ctx, logger, step, values, opts)

	now := time.Now().UTC()
	for _, t := range tasks {
		// Tasks enter normalization with a single raw value.
		v := t.values[0]
		res, ok := results[v]
		if !ok {
			// Lookup failed for this value; leave it as-is so path
			// execution can still try it.
			continue
		}
		rtype := res.resolutionType(v)
		t.setMeta(historical.MetaResolutionType, string(rtype))
		t.provenance = append(t.provenance, types.ProvenanceStep{
			Resource:  step.Resource,
			Input:     types.NewIdentifier(source, v),
			Outputs:   res.targets,
			Timestamp: now,
			CacheHit:  res.cacheHit,
		})
		if len(res.targets) == 0 {
			t.terminal = true
			t.values = nil
			continue
		}
		t.values = res.targets
		if res.confidence < t.confidence {
			t.confidence = res.confidence
		}
	}
}
