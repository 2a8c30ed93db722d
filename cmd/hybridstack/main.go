// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main starts the hybridstack server: provider registry, health
// prober, cost ledger, router, offline cache, optimizer and the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/adapter"
	"github.com/aiverse/hybridstack/internal/api"
	"github.com/aiverse/hybridstack/internal/cache"
	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/embedding"
	"github.com/aiverse/hybridstack/internal/health"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/logging"
	"github.com/aiverse/hybridstack/internal/optimizer"
	"github.com/aiverse/hybridstack/internal/orchestrator"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/util"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hybridstack %s (%s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("startup failed: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(cfg.Debug)
	if err := logging.ConfigureOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log.Infof("hybridstack %s starting with %d provider(s)", Version, len(cfg.Providers))

	providers, err := provider.BuildRegistry(cfg.Providers)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	clock := util.RealClock{}
	healths := health.NewRegistry(cfg.Health.WindowSize, clock)
	prober := health.NewProber(healths, providers, cfg.Health.ProbeInterval, cfg.Health.ProbeTimeout)

	var store ledger.Store
	var sqlStore *ledger.SQLStore
	if cfg.LedgerPath != "" {
		sqlStore, err = ledger.NewSQLStore(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("open cost ledger store: %w", err)
		}
		store = sqlStore
	}
	costs := ledger.NewLedger(cfg.Budgets, store, clock)

	rt := router.New(cfg.Routing, cfg.Providers, providers, healths, costs)

	respCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries, cfg.Cache.SweepInterval, clock)
	fallback := cache.NewExecutor(respCache, rt, providers, cfg.Cache)

	optCfg := cfg.Optimizer
	if len(optCfg.Rules) == 0 {
		optCfg.Rules = optimizer.DefaultRules()
	}
	opt := optimizer.New(optCfg, rt, costs)

	adapters := adapter.NewChain()
	if cfg.Adapters.Enabled {
		loaded, err := adapter.LoadLuaAdapters(cfg.Adapters.ScriptDir)
		if err != nil {
			return fmt.Errorf("load prompt adapters: %w", err)
		}
		allow := make(map[string]bool, len(cfg.Adapters.Scripts))
		for _, name := range cfg.Adapters.Scripts {
			allow[strings.TrimSuffix(name, ".lua")] = true
		}
		for _, a := range loaded {
			if len(allow) > 0 && !allow[a.Name()] {
				continue
			}
			adapters.Register(a)
		}
		log.Infof("loaded %d prompt adapter(s)", adapters.Len())
	}

	var embedder *embedding.Engine
	if cfg.Embedding.Enabled {
		embCfg := embedding.Config{
			ModelPath:         cfg.Embedding.ModelPath,
			VocabPath:         cfg.Embedding.VocabPath,
			SharedLibraryPath: cfg.Embedding.LibraryPath,
		}
		embedder, err = embedding.NewEngine(embCfg)
		if err != nil {
			return fmt.Errorf("create embedding engine: %w", err)
		}
		if err := embedder.Initialize(embCfg); err != nil {
			log.Warnf("local embedding engine unavailable: %v", err)
			embedder = nil
		}
	}

	orch := orchestrator.New(rt, fallback, respCache, adapters, providers, healths, costs, embedder, cfg.Ensemble)
	server := api.NewServer(orch, cfg.Server, cfg.Debug)

	watcher := config.NewWatcher(configPath, func(updated *config.Config) {
		rt.UpdateConfig(updated.Routing, updated.Providers)
		log.Info("routing configuration reloaded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := prober.Start(ctx); err != nil {
		return fmt.Errorf("start health prober: %w", err)
	}
	if err := respCache.Start(); err != nil {
		return fmt.Errorf("start cache sweeper: %w", err)
	}
	if optCfg.Enabled {
		if err := opt.Start(); err != nil {
			return fmt.Errorf("start optimizer: %w", err)
		}
	}
	if err := watcher.Start(); err != nil {
		log.Warnf("config hot reload unavailable: %v", err)
	}
	server.Start()

	if cfg.Archive.Enabled && sqlStore != nil {
		archiver, err := ledger.NewArchiver(cfg.Archive, sqlStore)
		if err != nil {
			log.Warnf("cost archival unavailable: %v", err)
		} else {
			go archiveLoop(ctx, archiver)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infof("received %s, shutting down", s)

	cancel()
	watcher.Stop()
	if optCfg.Enabled {
		opt.Stop()
	}
	respCache.Stop()
	prober.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("api shutdown: %v", err)
	}

	if embedder != nil {
		if err := embedder.Shutdown(); err != nil {
			log.Warnf("embedding shutdown: %v", err)
		}
	}
	if err := costs.Close(); err != nil {
		log.Warnf("ledger close: %v", err)
	}

	log.Info("shutdown complete")
	return nil
}

// archiveLoop exports aged cost records once a day.
func archiveLoop(ctx context.Context, archiver *ledger.Archiver) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := archiver.Run(ctx)
			if err != nil {
				log.Warnf("cost archival failed: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("archived %d cost record(s)", n)
			}
		}
	}
}
