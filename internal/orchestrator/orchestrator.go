// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package orchestrator is the single entry point for task execution. It
// validates the request, runs prompt adapters, chooses between the
// single-provider and ensemble paths, and escalates to the offline fallback
// executor when the primary path fails. Every result carries provenance.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/adapter"
	"github.com/aiverse/hybridstack/internal/cache"
	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/embedding"
	"github.com/aiverse/hybridstack/internal/health"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/task"
	"github.com/aiverse/hybridstack/internal/util"
)

// ErrInvalidTask wraps any descriptor validation failure. Invalid tasks are
// rejected before any provider or cache is touched and are never retried.
var ErrInvalidTask = errors.New("invalid task")

// ErrNoEmbedder indicates no configured provider or local engine can embed.
var ErrNoEmbedder = errors.New("no embedding backend available")

// Orchestrator coordinates routing, caching, adaptation and fallback.
type Orchestrator struct {
	router    *router.Router
	fallback  *cache.Executor
	cache     *cache.Cache
	adapters  *adapter.Chain
	providers *provider.Registry
	healths   *health.Registry
	costs     *ledger.Ledger
	embedder  *embedding.Engine
	cfg       config.EnsembleConfig
	clock     util.Clock
}

// New wires an orchestrator. The embedding engine may be nil when no local
// ONNX model is configured.
func New(rt *router.Router, fb *cache.Executor, c *cache.Cache, adapters *adapter.Chain,
	providers *provider.Registry, healths *health.Registry, costs *ledger.Ledger,
	embedder *embedding.Engine, cfg config.EnsembleConfig) *Orchestrator {
	if adapters == nil {
		adapters = adapter.NewChain()
	}
	return &Orchestrator{
		router:    rt,
		fallback:  fb,
		cache:     c,
		adapters:  adapters,
		providers: providers,
		healths:   healths,
		costs:     costs,
		embedder:  embedder,
		cfg:       cfg,
		clock:     util.RealClock{},
	}
}

// ExecuteTask runs one task end to end. The primary path is cache, then
// cloud routing (ensemble for complex tasks other than personality ones).
// If the primary path fails for any reason except an invalid descriptor,
// the offline fallback executor gets one chance; if it also fails the
// primary error is re-raised so the caller sees the real cause.
func (o *Orchestrator) ExecuteTask(ctx context.Context, t *task.Descriptor) (*task.Result, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = task.PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	t.Content = o.adapters.Apply(t.Content, t.Context, func(name string, err error) {
		log.WithField("task_id", t.ID).Warnf("prompt adapter %s failed, keeping original prompt: %v", name, err)
	})

	start := o.clock.Now()
	key := cache.Key(t.SystemPrompt, t.Content, t.Type)
	if entry, ok := o.cache.Get(key); ok {
		return &task.Result{
			TaskID:     t.ID,
			Response:   entry.Response,
			Source:     task.SourceCache,
			Model:      entry.Model,
			Cost:       0,
			Latency:    o.clock.Now().Sub(start),
			Confidence: 1,
		}, nil
	}

	result, primaryErr := o.executePrimary(ctx, t)
	if primaryErr == nil {
		o.cache.Put(key, result.Response, result.Model, t.Type)
		return result, nil
	}
	if errors.Is(primaryErr, ErrInvalidTask) {
		return nil, primaryErr
	}

	log.WithField("task_id", t.ID).Warnf("primary execution failed, attempting offline fallback: %v", primaryErr)

	fb, fbErr := o.fallback.ExecuteWithFallback(ctx, t.Content, t.SystemPrompt, t.Type, cache.Options{
		MaxTokens: t.MaxTokens,
		Priority:  t.Priority,
	})
	if fbErr != nil {
		log.WithField("task_id", t.ID).Errorf("offline fallback exhausted: %v", fbErr)
		return nil, primaryErr
	}

	return &task.Result{
		TaskID:     t.ID,
		Response:   fb.Response,
		Source:     fb.Source,
		Provider:   fb.Provider,
		Model:      fb.Model,
		Cost:       fb.Cost,
		Latency:    o.clock.Now().Sub(start),
		Confidence: 0.5,
	}, nil
}

// executePrimary picks the single-provider or ensemble path. Personality
// tasks always run on a single provider for a consistent voice.
func (o *Orchestrator) executePrimary(ctx context.Context, t *task.Descriptor) (*task.Result, error) {
	if t.Complex && t.Type != task.TypePersonality && o.cfg.Size > 1 {
		return o.executeEnsemble(ctx, t)
	}

	res, err := o.router.ExecuteTask(ctx, t)
	if err != nil {
		return nil, err
	}
	return &task.Result{
		TaskID:     t.ID,
		Response:   res.Response,
		Source:     task.SourceSingle,
		Provider:   res.Provider,
		Model:      res.Model,
		Cost:       res.Cost,
		Latency:    res.Latency,
		Confidence: res.Decision.Confidence,
	}, nil
}

// Embed produces an embedding vector for text. Cloud providers with an
// embeddings endpoint are tried in registry order; the local ONNX engine is
// the last resort.
func (o *Orchestrator) Embed(ctx context.Context, text string) ([]float32, error) {
	for _, name := range o.providers.Embedders() {
		client, err := o.providers.Get(name)
		if err != nil {
			continue
		}
		embedder, ok := client.(provider.Embedder)
		if !ok {
			continue
		}
		vec, err := embedder.Embed(ctx, text)
		if err != nil {
			log.Debugf("embedder %s failed: %v", name, err)
			continue
		}
		return vec, nil
	}

	if o.embedder != nil && o.embedder.Ready() {
		return o.embedder.Embed(text)
	}
	return nil, ErrNoEmbedder
}

// ProviderStatus is one provider's slice of the system status view.
type ProviderStatus struct {
	Name   string              `json:"name"`
	Local  bool                `json:"local"`
	Health health.Record       `json:"health"`
	Weight float64             `json:"weight"`
	Budget ledger.BudgetStatus `json:"budget"`
}

// CacheStats summarizes offline cache state.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Status is the read-only system snapshot served by the status API.
type Status struct {
	Timestamp time.Time        `json:"timestamp"`
	Providers []ProviderStatus `json:"providers"`
	Cache     CacheStats       `json:"cache"`
}

// SystemStatus assembles the current snapshot. It takes no locks beyond each
// component's own and is safe to call concurrently with task execution.
func (o *Orchestrator) SystemStatus() Status {
	hits, misses := o.cache.Stats()
	st := Status{
		Timestamp: o.clock.Now(),
		Cache: CacheStats{
			Entries: o.cache.Len(),
			Hits:    hits,
			Misses:  misses,
		},
	}

	for _, name := range o.providers.Names() {
		client, err := o.providers.Get(name)
		if err != nil {
			continue
		}
		st.Providers = append(st.Providers, ProviderStatus{
			Name:   name,
			Local:  client.Local(),
			Health: o.healths.Status(name, client.DefaultModel()),
			Weight: o.router.Weight(name),
			Budget: o.costs.BudgetStatus(name),
		})
	}
	return st
}

// PerformanceMetrics reports per-provider efficiency over the trailing window.
func (o *Orchestrator) PerformanceMetrics(window time.Duration) []ledger.Efficiency {
	end := o.clock.Now()
	start := end.Add(-window)

	local := make(map[string]bool)
	for _, name := range o.providers.Names() {
		if client, err := o.providers.Get(name); err == nil {
			local[name] = client.Local()
		}
	}
	return o.costs.EfficiencyReport(start, end, local)
}
