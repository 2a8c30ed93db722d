// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/health"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/task"
)

type fakeClient struct {
	name   string
	local  bool
	model  string
	callFn func(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error)
}

func (f *fakeClient) Name() string         { return f.name }
func (f *fakeClient) Local() bool          { return f.local }
func (f *fakeClient) DefaultModel() string { return f.model }

func (f *fakeClient) Call(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error) {
	if f.callFn != nil {
		return f.callFn(ctx, req)
	}
	return &provider.CallResult{Text: "ok from " + f.name, Model: f.model}, nil
}

func (f *fakeClient) HealthProbe(ctx context.Context) error { return nil }

type fixture struct {
	router  *Router
	healths *health.Registry
	costs   *ledger.Ledger
}

func newFixture(t *testing.T, cfg config.RoutingConfig, budgets map[string]config.BudgetConfig, clients ...*fakeClient) *fixture {
	t.Helper()

	registry := provider.NewRegistry()
	providerCfgs := make([]config.ProviderConfig, 0, len(clients))
	for _, c := range clients {
		require.NoError(t, registry.Register(c))
		kind := config.KindCloud
		if c.local {
			kind = config.KindLocal
		}
		providerCfgs = append(providerCfgs, config.ProviderConfig{
			Name:            c.name,
			Kind:            kind,
			DefaultModel:    c.model,
			CostPer1KInput:  0.005,
			CostPer1KOutput: 0.015,
		})
	}

	healths := health.NewRegistry(100, nil)
	costs := ledger.NewLedger(budgets, nil, nil)
	return &fixture{
		router:  New(cfg, providerCfgs, registry, healths, costs),
		healths: healths,
		costs:   costs,
	}
}

func markHealthy(h *health.Registry, name, model string) {
	for i := 0; i < 20; i++ {
		h.RecordOutcome(name, model, 200*time.Millisecond, true)
	}
}

func markDegraded(h *health.Registry, name, model string) {
	for i := 0; i < 20; i++ {
		h.RecordOutcome(name, model, 3*time.Second, true)
	}
}

func creativeAffinity() config.RoutingConfig {
	return config.RoutingConfig{
		Affinity: map[string]map[string]int{
			string(task.TypeCreative): {"alpha": 3, "bravo": 1},
		},
		MinScore:      2,
		FallbackCount: 3,
		HistorySize:   50,
	}
}

func TestRouteTask_HealthyAffinityWins(t *testing.T) {
	// Equal specialization bonuses leave health as the only separator.
	cfg := config.RoutingConfig{
		Affinity: map[string]map[string]int{
			string(task.TypeCreative): {"alpha": 3, "bravo": 3},
		},
		MinScore:      2,
		FallbackCount: 3,
		HistorySize:   50,
	}
	f := newFixture(t, cfg, nil,
		&fakeClient{name: "alpha", model: "a-large"},
		&fakeClient{name: "bravo", model: "b-large"},
	)
	markHealthy(f.healths, "alpha", "a-large")
	markDegraded(f.healths, "bravo", "b-large")

	d, err := f.router.RouteTask(task.New(task.TypeCreative, "write a short story about tides"))
	require.NoError(t, err)

	assert.Equal(t, "alpha", d.Provider)
	assert.Equal(t, "a-large", d.Model)
	assert.Equal(t, []string{"bravo"}, d.Fallbacks)
	assert.Contains(t, d.Reason, "healthy")
	assert.Contains(t, d.Reason, "specialization +3")
	assert.InDelta(t, 0.5, d.Confidence, 0.0001)
	assert.Greater(t, d.EstimatedCost, 0.0)
}

func TestRouteTask_DiscardsBelowMinScore(t *testing.T) {
	f := newFixture(t, creativeAffinity(), nil,
		&fakeClient{name: "alpha", model: "a-large"},
	)
	// Unknown health plus no affinity for analysis leaves alpha under the cutoff.
	_, err := f.router.RouteTask(task.New(task.TypeAnalysis, "crunch the numbers"))
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestRouteTask_MaxCostFiltersCandidates(t *testing.T) {
	f := newFixture(t, creativeAffinity(), nil,
		&fakeClient{name: "alpha", model: "a-large"},
	)
	markHealthy(f.healths, "alpha", "a-large")

	d := task.New(task.TypeCreative, "a very cheap request")
	d.MaxCost = 0.0000001
	_, err := f.router.RouteTask(d)
	assert.ErrorIs(t, err, ErrNoProvidersAvailable)
}

func TestRouteTask_LocalBonusSkippedOnCritical(t *testing.T) {
	cfg := config.RoutingConfig{
		Affinity:      map[string]map[string]int{},
		MinScore:      1,
		FallbackCount: 3,
		HistorySize:   50,
	}
	f := newFixture(t, cfg, nil,
		&fakeClient{name: "cloudy", model: "c-1"},
		&fakeClient{name: "homelab", local: true, model: "h-1"},
	)
	markHealthy(f.healths, "cloudy", "c-1")
	markHealthy(f.healths, "homelab", "h-1")

	// Medium priority: local bonus puts homelab ahead (3 vs 2).
	d, err := f.router.RouteTask(task.New(task.TypeConversational, "chat with me"))
	require.NoError(t, err)
	assert.Equal(t, "homelab", d.Provider)
	assert.Zero(t, d.EstimatedCost)

	// Critical priority: the cloud bonus flips the ranking (3 vs 2).
	crit := task.New(task.TypeConversational, "chat with me")
	crit.Priority = task.PriorityCritical
	d, err = f.router.RouteTask(crit)
	require.NoError(t, err)
	assert.Equal(t, "cloudy", d.Provider)
}

func TestExecuteTask_BudgetRefusalAborts(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"alpha": {DailyLimitUSD: 1},
	}
	f := newFixture(t, creativeAffinity(), budgets,
		&fakeClient{name: "alpha", model: "a-large"},
	)
	markHealthy(f.healths, "alpha", "a-large")
	f.costs.RecordCost(ledger.CostRecord{Provider: "alpha", CostUSD: 1, Success: true})

	_, err := f.router.ExecuteTask(context.Background(), task.New(task.TypeCreative, "one more story"))
	require.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "already exhausted")
}

func TestExecuteTask_FallbackChain(t *testing.T) {
	alpha := &fakeClient{name: "alpha", model: "a-large",
		callFn: func(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error) {
			return nil, &provider.StatusError{Code: 503, Message: "overloaded"}
		}}
	bravo := &fakeClient{name: "bravo", model: "b-large"}

	f := newFixture(t, creativeAffinity(), nil, alpha, bravo)
	markHealthy(f.healths, "alpha", "a-large")
	markHealthy(f.healths, "bravo", "b-large")

	res, err := f.router.ExecuteTask(context.Background(), task.New(task.TypeCreative, "tell me a story"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", res.Provider)
	assert.Equal(t, "ok from bravo", res.Response)

	// Both the failure and the success are in history, newest first.
	attempts := f.router.History().Recent(2)
	require.Len(t, attempts, 2)
	assert.Equal(t, "bravo", attempts[0].Provider)
	assert.True(t, attempts[0].Success)
	assert.Equal(t, "alpha", attempts[1].Provider)
	assert.False(t, attempts[1].Success)
}

func TestExecuteTask_AllProvidersFailed(t *testing.T) {
	boom := func(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error) {
		return nil, errors.New("connection reset")
	}
	f := newFixture(t, creativeAffinity(), nil,
		&fakeClient{name: "alpha", model: "a-large", callFn: boom},
		&fakeClient{name: "bravo", model: "b-large", callFn: boom},
	)
	markHealthy(f.healths, "alpha", "a-large")
	markHealthy(f.healths, "bravo", "b-large")

	_, err := f.router.ExecuteTask(context.Background(), task.New(task.TypeCreative, "anything"))
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestSetWeight_ReordersCandidates(t *testing.T) {
	f := newFixture(t, creativeAffinity(), nil,
		&fakeClient{name: "alpha", model: "a-large"},
		&fakeClient{name: "bravo", model: "b-large"},
	)
	markHealthy(f.healths, "alpha", "a-large")
	markHealthy(f.healths, "bravo", "b-large")

	d, err := f.router.RouteTask(task.New(task.TypeCreative, "weighted story"))
	require.NoError(t, err)
	require.Equal(t, "alpha", d.Provider)

	// Deprioritizing alpha drops its score (5*0.5=2.5) below bravo (3).
	f.router.SetWeight("alpha", 0.5)
	d, err = f.router.RouteTask(task.New(task.TypeCreative, "weighted story"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", d.Provider)

	f.router.SetWeight("alpha", 1.0)
	d, err = f.router.RouteTask(task.New(task.TypeCreative, "weighted story"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", d.Provider)
}

// Routing is a pure function of health state, task and configuration:
// identical inputs always yield identical decisions.
func TestProperty_RoutingDeterminism(t *testing.T) {
	properties := gopter.NewProperties(nil)

	outcomeGen := gen.SliceOfN(30, gen.Struct(reflect.TypeOf(outcome{}), map[string]gopter.Gen{
		"Success":   gen.Bool(),
		"LatencyMs": gen.IntRange(10, 6000),
	}))

	properties.Property("identical state yields identical decisions", prop.ForAll(
		func(alphaOutcomes, bravoOutcomes []outcome, taskIdx int) bool {
			taskType := task.KnownTypes[taskIdx%len(task.KnownTypes)]

			build := func() *Router {
				f := newFixture(t, creativeAffinity(), nil,
					&fakeClient{name: "alpha", model: "a-large"},
					&fakeClient{name: "bravo", model: "b-large"},
				)
				replay(f.healths, "alpha", "a-large", alphaOutcomes)
				replay(f.healths, "bravo", "b-large", bravoOutcomes)
				return f.router
			}

			d := task.New(taskType, "deterministic routing probe")
			first, err1 := build().RouteTask(d)
			second, err2 := build().RouteTask(d)

			if err1 != nil || err2 != nil {
				return errors.Is(err1, ErrNoProvidersAvailable) && errors.Is(err2, ErrNoProvidersAvailable)
			}
			return first.Provider == second.Provider &&
				first.Model == second.Model &&
				first.Confidence == second.Confidence &&
				fmt.Sprint(first.Fallbacks) == fmt.Sprint(second.Fallbacks)
		},
		outcomeGen,
		outcomeGen,
		gen.IntRange(0, 100),
	))

	properties.Property("repeated scoring does not mutate the router", prop.ForAll(
		func(outcomes []outcome) bool {
			f := newFixture(t, creativeAffinity(), nil,
				&fakeClient{name: "alpha", model: "a-large"},
				&fakeClient{name: "bravo", model: "b-large"},
			)
			replay(f.healths, "alpha", "a-large", outcomes)
			markHealthy(f.healths, "bravo", "b-large")

			d := task.New(task.TypeCreative, "stability probe")
			first, err := f.router.RouteTask(d)
			if err != nil {
				return true
			}
			for i := 0; i < 5; i++ {
				again, err := f.router.RouteTask(d)
				if err != nil || again.Provider != first.Provider || again.Confidence != first.Confidence {
					return false
				}
			}
			return true
		},
		outcomeGen,
	))

	properties.TestingRun(t)
}

type outcome struct {
	Success   bool
	LatencyMs int
}

func replay(h *health.Registry, name, model string, outcomes []outcome) {
	for _, o := range outcomes {
		h.RecordOutcome(name, model, time.Duration(o.LatencyMs)*time.Millisecond, o.Success)
	}
}
