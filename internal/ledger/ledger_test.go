// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ledger

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/task"
	"github.com/aiverse/hybridstack/internal/util"
)

func testClock() *util.FakeClock {
	return util.NewFakeClock(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC))
}

func spend(l *Ledger, provider string, amount float64) {
	l.RecordCost(CostRecord{
		Provider: provider,
		Model:    "gpt-4o",
		TaskType: task.TypeTextGeneration,
		CostUSD:  amount,
		Success:  true,
	})
}

func TestShouldAllowRequest_DailyBudget(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"openai": {DailyLimitUSD: 10},
	}
	l := NewLedger(budgets, nil, testClock())
	spend(l, "openai", 9.50)

	// Under the remaining headroom: allowed.
	assert.True(t, l.ShouldAllowRequest("openai", 0.25).Allowed)

	// Would push past the limit: refused with the projected-overrun reason.
	adm := l.ShouldAllowRequest("openai", 0.75)
	require.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "would exceed daily budget")
	assert.Contains(t, adm.Reason, "openai")
}

func TestShouldAllowRequest_ExhaustedReason(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"openai": {DailyLimitUSD: 10},
	}
	l := NewLedger(budgets, nil, testClock())
	spend(l, "openai", 10)

	adm := l.ShouldAllowRequest("openai", 0.01)
	require.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "already exhausted")
}

func TestShouldAllowRequest_MonthlyBudget(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"anthropic": {MonthlyLimitUSD: 100},
	}
	clock := testClock()
	l := NewLedger(budgets, nil, clock)
	spend(l, "anthropic", 99)

	adm := l.ShouldAllowRequest("anthropic", 2)
	require.False(t, adm.Allowed)
	assert.Contains(t, adm.Reason, "would exceed monthly budget")
}

func TestShouldAllowRequest_UntrackedProvider(t *testing.T) {
	l := NewLedger(nil, nil, testClock())
	spend(l, "ollama", 0)

	// Zero limits mean no tracking at all, regardless of estimated cost.
	assert.True(t, l.ShouldAllowRequest("ollama", 1e6).Allowed)
}

func TestBudgetStatus_WarningThreshold(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"openai": {DailyLimitUSD: 10, WarningThreshold: 0.8},
	}
	l := NewLedger(budgets, nil, testClock())

	spend(l, "openai", 7.99)
	assert.Empty(t, l.BudgetStatus("openai").Warnings)

	spend(l, "openai", 0.02)
	status := l.BudgetStatus("openai")
	require.NotEmpty(t, status.Warnings)
	assert.Contains(t, status.Warnings[0], "daily spend")
	assert.InDelta(t, 0.801, status.DailyPercent, 0.0001)
}

func TestSpendWindows_ResetAtDayBoundary(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"openai": {DailyLimitUSD: 10, MonthlyLimitUSD: 100},
	}
	clock := testClock()
	l := NewLedger(budgets, nil, clock)
	spend(l, "openai", 9.50)

	require.False(t, l.ShouldAllowRequest("openai", 1).Allowed)

	// Next day the daily window is empty but the monthly spend remains.
	clock.Advance(24 * time.Hour)
	assert.True(t, l.ShouldAllowRequest("openai", 1).Allowed)

	status := l.BudgetStatus("openai")
	assert.Zero(t, status.CurrentDaily)
	assert.InDelta(t, 9.50, status.CurrentMonthly, 0.0001)
}

func TestSpendWindows_ResetAtMonthBoundary(t *testing.T) {
	budgets := map[string]config.BudgetConfig{
		"openai": {MonthlyLimitUSD: 100},
	}
	clock := testClock()
	l := NewLedger(budgets, nil, clock)
	spend(l, "openai", 100)

	require.False(t, l.ShouldAllowRequest("openai", 1).Allowed)

	// August 15th noon plus 17 days lands on September 1st: a fresh month.
	clock.Advance(17 * 24 * time.Hour)
	assert.True(t, l.ShouldAllowRequest("openai", 1).Allowed)
	assert.Zero(t, l.BudgetStatus("openai").CurrentMonthly)
}

func TestCostMetrics_Filtering(t *testing.T) {
	clock := testClock()
	l := NewLedger(nil, nil, clock)

	spend(l, "openai", 1)
	clock.Advance(time.Hour)
	spend(l, "anthropic", 2)
	clock.Advance(time.Hour)
	spend(l, "openai", 3)

	all := l.CostMetrics("", time.Time{}, time.Time{})
	assert.Len(t, all, 3)

	openai := l.CostMetrics("openai", time.Time{}, time.Time{})
	assert.Len(t, openai, 2)

	cutoff := time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC)
	late := l.CostMetrics("", cutoff, time.Time{})
	assert.Len(t, late, 2)
}

// Budget admission is monotonic: once a request is refused, recording more
// spend can never turn a refusal of the same request into an admission.
func TestProperty_AdmissionMonotonicity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("spend never re-admits a refused request", prop.ForAll(
		func(limit float64, spends []float64, estimate float64) bool {
			budgets := map[string]config.BudgetConfig{
				"p": {DailyLimitUSD: limit},
			}
			l := NewLedger(budgets, nil, testClock())

			refused := false
			for _, s := range spends {
				if !l.ShouldAllowRequest("p", estimate).Allowed {
					refused = true
				}
				spend(l, "p", s)
				if refused && l.ShouldAllowRequest("p", estimate).Allowed {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.01, 50),
		gen.SliceOf(gen.Float64Range(0, 5)),
		gen.Float64Range(0, 10),
	))

	properties.Property("admission depends only on recorded spend and estimate", prop.ForAll(
		func(limit float64, spent float64, estimate float64) bool {
			budgets := map[string]config.BudgetConfig{
				"p": {DailyLimitUSD: limit},
			}
			l := NewLedger(budgets, nil, testClock())
			spend(l, "p", spent)

			first := l.ShouldAllowRequest("p", estimate)
			second := l.ShouldAllowRequest("p", estimate)
			return first.Allowed == second.Allowed && first.Reason == second.Reason
		},
		gen.Float64Range(0.01, 50),
		gen.Float64Range(0, 60),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}
