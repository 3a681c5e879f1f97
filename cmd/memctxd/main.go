// Memctxd is the context orchestration daemon for AI coding assistants.
//
// It registers the configured context sources, tracks their health, and
// serves context queries over HTTP and (optionally) MCP stdio.
//
// Usage:
//
//	# Start daemon with defaults
//	memctxd
//
//	# Explicit config file
//	memctxd -config ~/.config/memctxd/config.yaml
//
//	# Serve MCP on stdio instead of detaching
//	memctxd -mcp
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Big0290/memory-context-manager-v2/internal/cache"
	"github.com/Big0290/memory-context-manager-v2/internal/config"
	"github.com/Big0290/memory-context-manager-v2/internal/logging"
	"github.com/Big0290/memory-context-manager-v2/internal/mcp"
	"github.com/Big0290/memory-context-manager-v2/internal/orchestrator"
	"github.com/Big0290/memory-context-manager-v2/internal/registry"
	"github.com/Big0290/memory-context-manager-v2/internal/source"
	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
	"github.com/Big0290/memory-context-manager-v2/internal/telemetry"
	"github.com/Big0290/memory-context-manager-v2/pkg/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: ~/.config/memctxd/config.yaml)")
	mcpStdio := flag.Bool("mcp", false, "also serve MCP on stdio")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("memctxd %s (%s, %s)\n", version, gitCommit, buildDate)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		cancel()
	}()

	if err := run(ctx, *configPath, *mcpStdio); err != nil && err != http.ErrServerClosed {
		log.Fatalf("memctxd: %v", err)
	}
}

// run wires the daemon and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string, mcpStdio bool) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting memctxd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("mcp_stdio", mcpStdio))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Observability.Enabled,
		Endpoint:       cfg.Observability.Endpoint,
		Protocol:       cfg.Observability.Protocol,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Insecure:       cfg.Observability.Insecure,
		SampleRate:     telemetry.DefaultConfig().SampleRate,
		ExportInterval: telemetry.DefaultConfig().ExportInterval,
		ShutdownWait:   telemetry.DefaultConfig().ShutdownWait,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	strategies, err := cfg.Strategies()
	if err != nil {
		return err
	}
	selector, err := strategy.NewSelector(strategies)
	if err != nil {
		return err
	}

	reg, err := registry.New(registry.Config{
		Alpha:                   cfg.Health.Alpha,
		WarnThreshold:           cfg.Health.WarnThreshold,
		FailThreshold:           cfg.Health.FailThreshold,
		ConsecutiveFailureLimit: cfg.Health.ConsecutiveFailureLimit,
		RecoveryCooldown:        cfg.Health.RecoveryCooldown.Duration(),
		ReevalInterval:          cfg.Health.ReevalInterval.Duration(),
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing registry: %w", err)
	}
	reg.SetMetrics(registry.NewMetrics())

	memory := registerSources(cfg, reg, logger)

	respCache := cache.New[orchestrator.Response](cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval.Duration(),
	})
	respCache.SetMetrics(cache.NewMetrics())

	engine, err := orchestrator.NewEngine(engineConfig(cfg), selector, reg, respCache, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	engine.SetMetrics(orchestrator.NewMetrics())

	srv := server.NewServer(server.Config{
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		ServiceName:     cfg.Observability.ServiceName,
	}, engine, reg, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return reg.Run(gctx) })
	g.Go(func() error { return respCache.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })

	if mcpStdio {
		mcpSrv, err := mcp.NewServer(&mcp.Config{
			Name:    "memctxd",
			Version: version,
			Logger:  logger,
		}, engine, reg, respCache, memory)
		if err != nil {
			return fmt.Errorf("initializing mcp server: %w", err)
		}
		g.Go(func() error { return mcpSrv.Run(gctx) })
	}

	// Hot-reload strategy overrides on config file changes. Invalid files
	// are logged and skipped inside Watch. A broken watcher is not fatal.
	g.Go(func() error {
		werr := config.Watch(gctx, configPath, logger, func(next *config.Config) {
			strategies, err := next.Strategies()
			if err != nil {
				logger.Warn("ignoring reloaded strategies", zap.Error(err))
				return
			}
			if err := selector.Update(strategies); err != nil {
				logger.Warn("ignoring reloaded strategies", zap.Error(err))
				return
			}
			logger.Info("strategies reloaded")
		})
		if werr != nil && !errors.Is(werr, context.Canceled) {
			logger.Warn("config watch stopped", zap.Error(werr))
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("memctxd stopped")
	return err
}

func engineConfig(cfg *config.Config) orchestrator.Config {
	ec := orchestrator.DefaultConfig()
	ec.Weights = orchestrator.Weights{
		Relevance:  cfg.Integration.Weights.Relevance,
		Confidence: cfg.Integration.Weights.Confidence,
		Freshness:  cfg.Integration.Weights.Freshness,
	}
	ec.FreshnessHalfLife = cfg.Integration.FreshnessHalfLife.Duration()
	ec.DefaultConfidence = cfg.Integration.DefaultConfidence
	ec.CacheBucket = cfg.Cache.Bucket.Duration()
	ec.DegradedTTL = cfg.Cache.DegradedTTL.Duration()
	for name, ttl := range cfg.Cache.TTL {
		ec.CacheTTL[name] = ttl.Duration()
	}
	return ec
}

// registerSources builds the configured source adapters and registers them.
// A source that fails to initialize is skipped with a warning; the daemon
// still starts with whatever sources are available.
func registerSources(cfg *config.Config, reg *registry.Registry, logger *zap.Logger) *source.MemoryStore {
	if cfg.Sources.Project.Enabled {
		gitlog, err := source.NewGitLog(source.GitLogConfig{
			Path:       cfg.Sources.Project.Path,
			MaxCommits: cfg.Sources.Project.MaxCommits,
			Priority:   cfg.Sources.Project.Priority,
		}, logger)
		if err != nil {
			logger.Warn("project source unavailable", zap.Error(err))
		} else {
			reg.Register(gitlog)
		}
	}

	var memory *source.MemoryStore
	if cfg.Sources.Memory.Enabled {
		var err error
		memory, err = source.NewMemoryStore(source.MemoryStoreConfig{
			Path:       cfg.Sources.Memory.Path,
			Collection: cfg.Sources.Memory.Collection,
			MaxResults: cfg.Sources.Memory.MaxResults,
			Priority:   cfg.Sources.Memory.Priority,
		}, logger)
		if err != nil {
			logger.Warn("memory source unavailable", zap.Error(err))
		} else {
			reg.Register(memory)
		}
	}

	if cfg.Sources.Knowledge.Enabled {
		kb, err := source.NewKnowledge(source.KnowledgeConfig{
			Path:     cfg.Sources.Knowledge.Path,
			Priority: cfg.Sources.Knowledge.Priority,
		}, logger)
		if err != nil {
			logger.Warn("knowledge source unavailable", zap.Error(err))
		} else {
			reg.Register(kb)
		}
	}

	return memory
}
