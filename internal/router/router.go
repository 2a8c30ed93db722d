// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/health"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/task"
)

// Scoring constants. Candidates below minScore are discarded; the score is
// normalized by confidenceScale to produce the decision confidence.
const (
	scoreHealthy      = 2.0
	scoreDegraded     = 1.0
	scoreCritical     = 1.0
	scoreLocalBonus   = 1.0
	errorRatePenalty  = 2.0
	confidenceScale   = 10.0
	defaultOutputToks = 500
	localLatencyExtra = 2 * time.Second
)

// Router is the provider selection and execution engine.
type Router struct {
	providers *provider.Registry
	healths   *health.Registry
	costs     *ledger.Ledger
	estimator *provider.TokenEstimator
	history   *History

	mu       sync.RWMutex
	cfg      config.RoutingConfig
	byName   map[string]config.ProviderConfig
	// weights are optimizer-applied multipliers on candidate scores.
	// 1.0 is neutral; the optimizer nudges them, never the scoring table.
	weights map[string]float64
}

// New creates a router over the given services.
func New(cfg config.RoutingConfig, providerCfgs []config.ProviderConfig, providers *provider.Registry, healths *health.Registry, costs *ledger.Ledger) *Router {
	byName := make(map[string]config.ProviderConfig, len(providerCfgs))
	for _, pc := range providerCfgs {
		byName[pc.Name] = pc
	}
	return &Router{
		providers: providers,
		healths:   healths,
		costs:     costs,
		estimator: provider.NewTokenEstimator(),
		history:   NewHistory(cfg.HistorySize),
		cfg:       cfg,
		byName:    byName,
		weights:   make(map[string]float64),
	}
}

// History exposes the attempt ring buffer for the optimizer.
func (r *Router) History() *History { return r.history }

// SetWeight applies an advisory score multiplier for a provider. Used by the
// performance optimizer; 1.0 restores neutral weighting.
func (r *Router) SetWeight(providerName string, weight float64) {
	if weight <= 0 {
		weight = 1.0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weights[providerName] = weight
}

// Weight returns the current advisory multiplier for a provider.
func (r *Router) Weight(providerName string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.weights[providerName]; ok && w > 0 {
		return w
	}
	return 1.0
}

// UpdateConfig swaps the routing configuration. Called on config hot-reload.
func (r *Router) UpdateConfig(cfg config.RoutingConfig, providerCfgs []config.ProviderConfig) {
	byName := make(map[string]config.ProviderConfig, len(providerCfgs))
	for _, pc := range providerCfgs {
		byName[pc.Name] = pc
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.byName = byName
}

// candidate is one scored (provider, model) pair.
type candidate struct {
	name       string
	model      string
	score      float64
	estCost    float64
	estLatency time.Duration
	reason     string
}

// RouteTask scores every registered provider for the task and returns the
// winner plus ranked fallbacks.
func (r *Router) RouteTask(t *task.Descriptor) (*Decision, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	cfg := r.cfg
	byName := r.byName
	r.mu.RUnlock()

	inputTokens := r.estimator.Estimate(t.SystemPrompt + t.Content)
	outputTokens := t.MaxTokens
	if outputTokens <= 0 {
		outputTokens = defaultOutputToks
	}

	candidates := make([]candidate, 0)
	for _, name := range r.providers.Names() {
		pc, ok := byName[name]
		if !ok {
			continue
		}
		c := r.score(t, pc, cfg, inputTokens, outputTokens)
		if c.score < cfg.MinScore {
			continue
		}
		if t.MaxCost > 0 && c.estCost > t.MaxCost {
			continue
		}
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, ErrNoProvidersAvailable
	}

	// Deterministic ranking: score descending, name ascending on ties.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	winner := candidates[0]
	fallbacks := make([]string, 0, cfg.FallbackCount)
	for _, c := range candidates[1:] {
		if len(fallbacks) == cfg.FallbackCount {
			break
		}
		fallbacks = append(fallbacks, c.name)
	}

	confidence := winner.score / confidenceScale
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	return &Decision{
		Provider:         winner.name,
		Model:            winner.model,
		Reason:           winner.reason,
		EstimatedCost:    winner.estCost,
		EstimatedLatency: winner.estLatency,
		Fallbacks:        fallbacks,
		Confidence:       confidence,
	}, nil
}

// score computes one candidate's points for the task.
func (r *Router) score(t *task.Descriptor, pc config.ProviderConfig, cfg config.RoutingConfig, inputTokens, outputTokens int) candidate {
	model := pc.DefaultModel
	rec := r.healths.Status(pc.Name, model)

	var points float64
	var why string

	switch rec.Status {
	case health.StatusHealthy:
		points += scoreHealthy
		why = "healthy"
	case health.StatusDegraded:
		points += scoreDegraded
		why = "degraded"
	default:
		why = string(rec.Status)
	}

	if byProvider, ok := cfg.Affinity[string(t.Type)]; ok {
		if bonus := byProvider[pc.Name]; bonus > 0 {
			points += float64(bonus)
			why += fmt.Sprintf(", specialization +%d for %s", bonus, t.Type)
		}
	}

	estLatency := rec.AvgLatency
	if estLatency == 0 {
		estLatency = pc.LatencyHint
	}

	var estCost float64
	if pc.IsLocal() {
		if t.Priority != task.PriorityCritical {
			points += scoreLocalBonus
			why += ", local cost-saving bonus"
		}
		// Free but slower: zero cost, latency penalty on the estimate.
		estLatency += localLatencyExtra
	} else {
		if t.Priority == task.PriorityCritical {
			points += scoreCritical
			why += ", cloud bonus for critical priority"
		}
		estCost = r.estimator.EstimateCost(inputTokens, outputTokens, pc.CostPer1KInput, pc.CostPer1KOutput)
	}

	points -= rec.ErrorRate * errorRatePenalty
	points *= r.Weight(pc.Name)

	return candidate{
		name:       pc.Name,
		model:      model,
		score:      points,
		estCost:    estCost,
		estLatency: estLatency,
		reason:     fmt.Sprintf("%s: %s (score %.1f)", pc.Name, why, points),
	}
}

// ExecuteTask routes the task and executes the winner, retrying sequentially
// against the precomputed fallback chain on failure. The chain is not
// re-scored between attempts. A budget refusal aborts immediately with
// ErrBudgetExceeded so the caller learns why; it is never silently absorbed
// by routing to a cheaper provider.
func (r *Router) ExecuteTask(ctx context.Context, t *task.Descriptor) (*ExecResult, error) {
	decision, err := r.RouteTask(t)
	if err != nil {
		return nil, err
	}

	chain := append([]string{decision.Provider}, decision.Fallbacks...)
	var lastErr error

	for i, name := range chain {
		admission := r.costs.ShouldAllowRequest(name, decision.EstimatedCost)
		if !admission.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrBudgetExceeded, admission.Reason)
		}

		result, err := r.executeOn(ctx, t, name)
		if err == nil {
			result.Decision = decision
			if i > 0 {
				log.WithField("task_id", t.ID).Infof("fallback provider %s succeeded after %d failed attempt(s)", name, i)
			}
			return result, nil
		}
		lastErr = err
		log.WithField("task_id", t.ID).Warnf("provider %s failed: %v", name, err)
	}

	return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
}

// ExecuteOn runs the task against one named provider, bypassing scoring.
// The outcome is still recorded in health, history and the cost ledger.
// Budget admission is the caller's responsibility.
func (r *Router) ExecuteOn(ctx context.Context, t *task.Descriptor, name string) (*ExecResult, error) {
	return r.executeOn(ctx, t, name)
}

// executeOn runs the task against one named provider and records the outcome
// in health, history and the cost ledger.
func (r *Router) executeOn(ctx context.Context, t *task.Descriptor, name string) (*ExecResult, error) {
	client, err := r.providers.Get(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	pc := r.byName[name]
	r.mu.RUnlock()

	callCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := client.Call(callCtx, provider.CallRequest{
		SystemPrompt: t.SystemPrompt,
		UserPrompt:   t.Content,
		Temperature:  temperatureFor(t.Type),
		MaxTokens:    t.MaxTokens,
	})
	latency := time.Since(start)

	model := client.DefaultModel()
	if res != nil && res.Model != "" {
		model = res.Model
	}

	attempt := Attempt{
		TaskID:    t.ID,
		TaskType:  t.Type,
		Provider:  name,
		Model:     model,
		Latency:   latency,
		Timestamp: time.Now(),
	}

	r.healths.RecordOutcome(name, client.DefaultModel(), latency, err == nil)

	if err != nil {
		attempt.Error = err.Error()
		r.history.Add(attempt)
		r.costs.RecordCost(ledger.CostRecord{
			Provider: name,
			Model:    model,
			TaskType: t.Type,
			Latency:  latency,
			Success:  false,
		})
		return nil, err
	}

	inputTokens := res.InputTokens
	outputTokens := res.OutputTokens
	if inputTokens == 0 {
		inputTokens = r.estimator.Estimate(t.SystemPrompt + t.Content)
	}
	if outputTokens == 0 {
		outputTokens = r.estimator.Estimate(res.Text)
	}
	var cost float64
	if !client.Local() {
		cost = r.estimator.EstimateCost(inputTokens, outputTokens, pc.CostPer1KInput, pc.CostPer1KOutput)
	}

	attempt.Success = true
	attempt.CostUSD = cost
	r.history.Add(attempt)
	r.costs.RecordCost(ledger.CostRecord{
		Provider:     name,
		Model:        model,
		TaskType:     t.Type,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Latency:      latency,
		Success:      true,
	})

	return &ExecResult{
		Response: res.Text,
		Provider: name,
		Model:    model,
		Cost:     cost,
		Latency:  latency,
	}, nil
}

// temperatureFor picks a sampling temperature by task type. Creative work
// gets more randomness, factual analysis less.
func temperatureFor(taskType task.Type) float64 {
	switch taskType {
	case task.TypeCreative, task.TypePersonality:
		return 0.9
	case task.TypeAnalysis, task.TypeCoding:
		return 0.2
	default:
		return 0.7
	}
}
