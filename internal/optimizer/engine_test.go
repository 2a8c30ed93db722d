// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/health"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/provider"
	"github.com/aiverse/hybridstack/internal/router"
	"github.com/aiverse/hybridstack/internal/task"
)

func newOptimizer(t *testing.T, rules []config.OptimizerRule) (*Optimizer, *router.Router, *ledger.Ledger) {
	t.Helper()

	costs := ledger.NewLedger(nil, nil, nil)
	rt := router.New(config.RoutingConfig{MinScore: 1, FallbackCount: 3, HistorySize: 100},
		nil, provider.NewRegistry(), health.NewRegistry(50, nil), costs)

	o := New(config.OptimizerConfig{
		Enabled:       true,
		CycleInterval: time.Minute,
		Rules:         rules,
	}, rt, costs)
	return o, rt, costs
}

func recordFailures(costs *ledger.Ledger, provider string, failures, successes int) {
	for i := 0; i < failures; i++ {
		costs.RecordCost(ledger.CostRecord{Provider: provider, TaskType: task.TypeAnalysis,
			Latency: 300 * time.Millisecond, Timestamp: time.Now()})
	}
	for i := 0; i < successes; i++ {
		costs.RecordCost(ledger.CostRecord{Provider: provider, TaskType: task.TypeAnalysis,
			Latency: 300 * time.Millisecond, Success: true, Timestamp: time.Now()})
	}
}

func TestEvaluateScalingNeeds_FailingProviderMatches(t *testing.T) {
	o, _, costs := newOptimizer(t, DefaultRules())
	recordFailures(costs, "openai", 4, 6)

	recs := o.EvaluateScalingNeeds()
	require.Len(t, recs, 1)
	assert.Equal(t, "openai", recs[0].Provider)
	assert.Equal(t, "deprioritize-failing", recs[0].Rule)
	assert.Equal(t, "deprioritize", recs[0].Action)
}

func TestEvaluateScalingNeeds_FirstMatchPerProviderWins(t *testing.T) {
	// A provider that is both failing and slow trips only the
	// higher-priority rule.
	o, _, costs := newOptimizer(t, DefaultRules())
	for i := 0; i < 10; i++ {
		costs.RecordCost(ledger.CostRecord{Provider: "openai", TaskType: task.TypeAnalysis,
			Latency: 8 * time.Second, Success: i%2 == 0, Timestamp: time.Now()})
	}

	recs := o.EvaluateScalingNeeds()
	require.Len(t, recs, 1)
	assert.Equal(t, "deprioritize-failing", recs[0].Rule)
}

func TestEvaluateScalingNeeds_CooldownSuppressesRefiring(t *testing.T) {
	o, _, costs := newOptimizer(t, DefaultRules())
	recordFailures(costs, "openai", 5, 5)

	first := o.EvaluateScalingNeeds()
	require.Len(t, first, 1)

	// Same conditions immediately afterwards: rule is cooling down.
	second := o.EvaluateScalingNeeds()
	assert.Empty(t, second)
}

func TestEvaluateScalingNeeds_HealthyProviderSilent(t *testing.T) {
	o, _, costs := newOptimizer(t, DefaultRules())
	recordFailures(costs, "openai", 0, 20)

	recs := o.EvaluateScalingNeeds()
	// restore-recovered fires on a healthy provider; weight goes to neutral.
	require.Len(t, recs, 1)
	assert.Equal(t, "rebalance", recs[0].Action)
}

func TestEvaluateScalingNeeds_InvalidConditionSkipped(t *testing.T) {
	rules := []config.OptimizerRule{
		{Name: "broken", Condition: "NoSuchField > 1", Action: "deprioritize", Priority: 1},
	}
	o, _, costs := newOptimizer(t, rules)
	recordFailures(costs, "openai", 10, 0)

	assert.Empty(t, o.EvaluateScalingNeeds())
}

func TestExecuteScalingAction_AdjustsWeights(t *testing.T) {
	o, rt, _ := newOptimizer(t, DefaultRules())

	require.True(t, o.ExecuteScalingAction(Recommendation{Provider: "openai", Action: "deprioritize"}))
	assert.InDelta(t, 0.7, rt.Weight("openai"), 0.0001)

	require.True(t, o.ExecuteScalingAction(Recommendation{Provider: "openai", Action: "prioritize"}))
	assert.InDelta(t, 1.2, rt.Weight("openai"), 0.0001)

	require.True(t, o.ExecuteScalingAction(Recommendation{Provider: "openai", Action: "rebalance"}))
	assert.InDelta(t, 1.0, rt.Weight("openai"), 0.0001)

	assert.False(t, o.ExecuteScalingAction(Recommendation{Provider: "openai", Action: "clone"}))
}

func TestDetectDegradation(t *testing.T) {
	newest := func(recentMs, previousMs int) []router.Attempt {
		// Most recent first, matching History.RecentByProvider.
		attempts := make([]router.Attempt, 0, 20)
		for i := 0; i < 10; i++ {
			attempts = append(attempts, router.Attempt{Latency: time.Duration(recentMs) * time.Millisecond})
		}
		for i := 0; i < 10; i++ {
			attempts = append(attempts, router.Attempt{Latency: time.Duration(previousMs) * time.Millisecond})
		}
		return attempts
	}

	assert.True(t, detectDegradation(newest(1600, 1000)))
	assert.False(t, detectDegradation(newest(1400, 1000)))
	assert.False(t, detectDegradation(newest(1600, 1000)[:19]), "needs twenty samples")
	assert.False(t, detectDegradation(newest(1600, 0)), "zero baseline is not degradation")
}

func TestOptimizer_StartStop(t *testing.T) {
	o, _, _ := newOptimizer(t, DefaultRules())

	require.NoError(t, o.Start())
	assert.Error(t, o.Start())
	o.Stop()
	o.Stop()

	disabled := New(config.OptimizerConfig{Enabled: false, CycleInterval: time.Minute}, nil, nil)
	assert.Error(t, disabled.Start())
}
