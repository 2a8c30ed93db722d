// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/task"
)

// ErrExhausted indicates both the cloud path and every local model failed.
// There is no further fallback tier; the caller must handle this.
var ErrExhausted = errors.New("offline fallback exhausted")

// Result is the outcome of an ExecuteWithFallback call with provenance.
type Result struct {
	Response string        `json:"response"`
	Source   task.Source   `json:"source"`
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model"`
	Latency  time.Duration `json:"latency"`
	Cost     float64       `json:"cost"`
}

// CloudExecutor is the remote execution path, satisfied by the router.
type CloudExecutor interface {
	ExecuteTask(ctx context.Context, t *task.Descriptor) (*router.ExecResult, error)
}

// Options tunes one ExecuteWithFallback call.
type Options struct {
	// MaxTokens bounds output length. Zero means provider default.
	MaxTokens int

	// Priority is forwarded to routing. Empty means medium.
	Priority task.Priority
}

// Executor runs the cache-first, cloud-second, local-last execution path.
type Executor struct {
	cache     *Cache
	cloud     CloudExecutor
	providers *provider.Registry
	cfg       config.CacheConfig

	// sleep is replaceable so tests do not wait out real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates the fallback executor.
func NewExecutor(cache *Cache, cloud CloudExecutor, providers *provider.Registry, cfg config.CacheConfig) *Executor {
	return &Executor{
		cache:     cache,
		cloud:     cloud,
		providers: providers,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// ExecuteWithFallback resolves a prompt through, in priority order: the
// offline cache, the cloud routing path with bounded retries, and the ordered
// local model list. Whichever branch succeeds is written back into the cache.
// If every branch fails the error wraps ErrExhausted.
func (e *Executor) ExecuteWithFallback(ctx context.Context, prompt, systemPrompt string, taskType task.Type, opts Options) (*Result, error) {
	start := time.Now()
	key := Key(systemPrompt, prompt, taskType)

	// Cache hit is the highest-priority path: zero cost, no provider touched.
	if entry, ok := e.cache.Get(key); ok {
		return &Result{
			Response: entry.Response,
			Source:   task.SourceCache,
			Model:    entry.Model,
			Latency:  time.Since(start),
			Cost:     0,
		}, nil
	}

	cloudErr := e.tryCloud(ctx, prompt, systemPrompt, taskType, opts, key, start)
	if cloudErr.result != nil {
		return cloudErr.result, nil
	}

	result, localErr := e.tryLocal(ctx, prompt, systemPrompt, taskType, opts, key, start)
	if result != nil {
		return result, nil
	}

	return nil, fmt.Errorf("%w: cloud: %v; local: %v", ErrExhausted, cloudErr.err, localErr)
}

type cloudOutcome struct {
	result *Result
	err    error
}

// tryCloud attempts the remote path with exponential backoff. Attempt n
// waits 2^n seconds before retrying. Budget admission is re-checked inside
// the router on every attempt; a budget refusal stops retrying immediately
// since waiting seconds will not refill the budget.
func (e *Executor) tryCloud(ctx context.Context, prompt, systemPrompt string, taskType task.Type, opts Options, key string, start time.Time) cloudOutcome {
	retries := e.cfg.CloudRetries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := e.sleep(ctx, backoff); err != nil {
				lastErr = err
				break
			}
		}

		t := task.New(taskType, prompt)
		t.SystemPrompt = systemPrompt
		t.MaxTokens = opts.MaxTokens
		if opts.Priority != "" {
			t.Priority = opts.Priority
		}

		res, err := e.cloud.ExecuteTask(ctx, t)
		if err == nil {
			e.cache.Put(key, res.Response, res.Model, taskType)
			return cloudOutcome{result: &Result{
				Response: res.Response,
				Source:   task.SourceSingle,
				Provider: res.Provider,
				Model:    res.Model,
				Latency:  time.Since(start),
				Cost:     res.Cost,
			}}
		}
		lastErr = err
		if errors.Is(err, router.ErrBudgetExceeded) {
			log.Warnf("cloud path refused by budget, falling back to local models: %v", err)
			break
		}
		log.Debugf("cloud attempt %d failed: %v", attempt+1, err)
	}
	return cloudOutcome{err: lastErr}
}

// tryLocal walks the configured local model list in order and returns the
// first response passing the quality floor. Local results cost nothing.
func (e *Executor) tryLocal(ctx context.Context, prompt, systemPrompt string, taskType task.Type, opts Options, key string, start time.Time) (*Result, error) {
	if len(e.cfg.LocalModels) == 0 {
		return nil, errors.New("no local models configured")
	}

	var lastErr error
	for _, spec := range e.cfg.LocalModels {
		providerName, model := splitModelSpec(spec)
		client, err := e.providers.Get(providerName)
		if err != nil {
			lastErr = err
			continue
		}

		res, err := client.Call(ctx, provider.CallRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   prompt,
			Temperature:  0.7,
			Model:        model,
			MaxTokens:    opts.MaxTokens,
		})
		if err != nil {
			lastErr = err
			log.Debugf("local model %s failed: %v", spec, err)
			continue
		}
		if !e.acceptable(res.Text) {
			lastErr = fmt.Errorf("local model %s output below quality floor (%d chars)", spec, len(res.Text))
			log.Debugf("%v", lastErr)
			continue
		}

		resolved := res.Model
		if resolved == "" {
			resolved = model
		}
		e.cache.Put(key, res.Text, resolved, taskType)
		return &Result{
			Response: res.Text,
			Source:   task.SourceLocal,
			Provider: providerName,
			Model:    resolved,
			Latency:  time.Since(start),
			Cost:     0,
		}, nil
	}
	return nil, lastErr
}

// acceptable applies the minimal output-quality heuristics: non-empty and
// above the configured length floor.
func (e *Executor) acceptable(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	min := e.cfg.MinResponseLength
	if min <= 0 {
		min = 10
	}
	return len(trimmed) >= min
}

// splitModelSpec splits "provider:model" into its parts. A bare name is a
// provider using its default model.
func splitModelSpec(spec string) (providerName, model string) {
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		return spec[:i], spec[i+1:]
	}
	return spec, ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
