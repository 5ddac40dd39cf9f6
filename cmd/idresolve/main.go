// Package main implements the idresolve command line entry point: it
// loads an engine configuration, resolves the identifiers given as
// arguments, and prints the mapping records as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c360/idresolve/cachestore"
	"github.com/c360/idresolve/config"
	"github.com/c360/idresolve/executor"
	"github.com/c360/idresolve/historical"
	"github.com/c360/idresolve/metric"
	"github.com/c360/idresolve/pathfinder"
	"github.com/c360/idresolve/reconcile"
	"github.com/c360/idresolve/resource"
	"github.com/c360/idresolve/resource/httplookup"
	"github.com/c360/idresolve/resource/statictable"
	"github.com/c360/idresolve/types"
)

const version = "0.1.0"

type cliConfig struct {
	configPath    string
	source        string
	target        string
	relContext    string
	bidirectional bool
	noCache       bool
	logLevel      string
	showVersion   bool
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}
	flag.StringVar(&cfg.configPath, "config",
		getEnv("IDRESOLVE_CONFIG", "configs/engine.yaml"),
		"Path to engine configuration (env: IDRESOLVE_CONFIG)")
	flag.StringVar(&cfg.source, "source", "", "Source ontology")
	flag.StringVar(&cfg.target, "target", "", "Target ontology")
	flag.StringVar(&cfg.relContext, "context", "", "Relationship context for route selection")
	flag.BoolVar(&cfg.bidirectional, "bidirectional", false, "Reconcile forward and reverse runs")
	flag.BoolVar(&cfg.noCache, "no-cache", false, "Bypass the result cache")
	flag.StringVar(&cfg.logLevel, "log-level",
		getEnv("IDRESOLVE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: IDRESOLVE_LOG_LEVEL)")
	flag.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")
	flag.Parse()
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := run(); err != nil {
		slog.Error("idresolve failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.showVersion {
		fmt.Println("idresolve " + version)
		return nil
	}
	if cli.source == "" || cli.target == "" || flag.NArg() == 0 {
		return fmt.Errorf("usage: idresolve -source ONT -target ONT [flags] ID...")
	}

	logger := newLogger(cli.logLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return err
	}

	metricsRegistry := metric.NewRegistry()
	registry := resource.NewRegistry()
	for _, register := range []func(*resource.Registry) error{
		statictable.Register,
		httplookup.Register,
		historical.Register,
	} {
		if err := register(registry); err != nil {
			return err
		}
	}
	if err := cfg.Populate(registry, resource.Dependencies{
		Logger:  logger,
		Metrics: metricsRegistry,
	}); err != nil {
		return err
	}

	store, err := newStore(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var finderOpts []pathfinder.Option
	if cfg.MaxHops > 0 {
		finderOpts = append(finderOpts, pathfinder.WithMaxHops(cfg.MaxHops))
	}
	finder := pathfinder.New(registry, finderOpts...)
	for _, route := range cfg.Routes {
		if err := finder.RegisterRoute(route.Context, route.Path()); err != nil {
			return err
		}
	}

	execOpts := []executor.Option{
		executor.WithCache(store, cfg.Cache.TTLPolicy()),
		executor.WithLogger(logger),
		executor.WithMetrics(metricsRegistry.CoreMetrics()),
	}
	if cfg.Historical != "" {
		execOpts = append(execOpts, executor.WithHistorical(cfg.Historical))
	}
	if cfg.Separator != "" {
		execOpts = append(execOpts, executor.WithSeparator(cfg.Separator))
	}
	if cfg.Concurrency > 0 {
		execOpts = append(execOpts, executor.WithConcurrency(cfg.Concurrency))
	}
	engine, err := executor.New(registry, finder, execOpts...)
	if err != nil {
		return err
	}
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	opts := executor.DefaultOptions()
	opts.UseCache = !cli.noCache
	opts.Bidirectional = cli.bidirectional
	opts.RelationshipContext = cli.relContext

	source := types.Ontology(cli.source)
	target := types.Ontology(cli.target)
	start := time.Now()

	var out any
	if cli.bidirectional {
		reconciler := reconcile.New(engine, registry, reconcile.WithLogger(logger))
		out, err = reconciler.Reconcile(ctx, flag.Args(), source, target, opts)
	} else {
		out, err = engine.Resolve(ctx, flag.Args(), source, target, opts)
	}
	if err != nil {
		return err
	}
	logger.Info("resolution complete", "ids", flag.NArg(), "duration", time.Since(start))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newStore(ctx context.Context, cfg config.Cache) (cachestore.Store, error) {
	if cfg.Backend == "redis" {
		return cachestore.NewRedisStore(ctx, cachestore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	return cachestore.NewMemoryStore(ctx, time.Minute), nil
}
