// Package idresolve is a biological identifier resolution engine. It
// maps protein, gene, metabolite, and compound identifiers between
// heterogeneous namespaces ("ontologies") maintained by different data
// providers, discovering direct or multi-hop conversion paths over a
// configurable resource graph and reconciling results that may be
// one-to-one, one-to-many, many-to-one, or unresolved.
//
// # Architecture
//
// The engine is assembled from small packages, leaves first:
//
//	┌─────────────────────────────────────┐
//	│            reconcile                │  Forward+reverse merge,
//	│   (conflict-aware reconciliation)   │  cardinality tagging
//	└─────────────────────────────────────┘
//	            ↓ drives
//	┌─────────────────────────────────────┐
//	│             executor                │  Batch pipeline, caching,
//	│  (split → normalize → path → hops)  │  retry, circuit breaking
//	└─────────────────────────────────────┘
//	            ↓ consults
//	┌─────────────────────────────────────┐
//	│      pathfinder  +  resource        │  Ranked candidate paths over
//	│   (capability graph, adapters)      │  the adapter registry
//	└─────────────────────────────────────┘
//
// Supporting packages: types (identifiers, mapping records, paths),
// cachestore (memory and Redis result caches), historical (obsolete
// identifier normalization), composite (multi-value identifier
// splitting), config (resource configuration loading), metric
// (Prometheus registry), health (breaker-derived availability), errors
// (transient/invalid/fatal taxonomy), and pkg/retry, pkg/breaker,
// pkg/worker (reusable policies).
//
// # Usage
//
// Build a registry, register adapter kinds, and resolve:
//
//	registry := resource.NewRegistry()
//	_ = statictable.Register(registry)
//	_ = cfg.Populate(registry, resource.Dependencies{Logger: logger})
//
//	engine, _ := executor.New(registry, pathfinder.New(registry),
//	    executor.WithCache(store, cachestore.DefaultTTLPolicy()),
//	    executor.WithHistorical("uniprot_history"),
//	)
//	records, err := engine.Resolve(ctx,
//	    []string{"P12345", "P00000_Q11111"},
//	    "UNIPROT", "GENE_NAME", executor.DefaultOptions())
//
// Every input yields exactly one MappingRecord, in input order, carrying
// resolved targets, confidence, cardinality, and the provenance chain
// that produced it. Per-identifier failures surface as unmapped records;
// only configuration errors abort a call.
//
// For bidirectional verification, wrap the executor in a reconciler:
//
//	reconciler := reconcile.New(engine, registry)
//	mappings, err := reconciler.Reconcile(ctx, ids, "UNIPROT", "GENE_NAME", opts)
//
// Reconciled mappings expose conflicts between the forward and reverse
// runs instead of silently dropping either side.
package idresolve
