// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ledger records per-request cost metrics and enforces provider spend
// budgets. The in-memory ledger answers budget and spend-summary queries; a
// SQLite store keeps the durable append-only log. A persistence failure is
// logged and swallowed so a billing hiccup cannot break a user-facing request.
package ledger

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/task"
	"github.com/aiverse/hybridstack/internal/util"
)

// CostRecord is one completed request's metrics. Append-only.
type CostRecord struct {
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	TaskType     task.Type     `json:"task_type"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	CostUSD      float64       `json:"cost_usd"`
	Latency      time.Duration `json:"latency"`
	Success      bool          `json:"success"`
	Timestamp    time.Time     `json:"timestamp"`
}

// BudgetStatus summarizes a provider's spend against its limits.
type BudgetStatus struct {
	Provider       string   `json:"provider"`
	CurrentDaily   float64  `json:"current_daily"`
	CurrentMonthly float64  `json:"current_monthly"`
	DailyLimit     float64  `json:"daily_limit"`
	MonthlyLimit   float64  `json:"monthly_limit"`
	DailyPercent   float64  `json:"daily_percent"`
	MonthlyPercent float64  `json:"monthly_percent"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Admission is the result of a budget admission check.
type Admission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Store is the durable sink for cost records. Implementations must not block
// the caller; persistence is best-effort.
type Store interface {
	Append(rec CostRecord)
	Close() error
}

// Ledger is the process-wide cost accounting service.
//
// The admission check and the later cost recording are two separate critical
// sections with no reservation between them: concurrent in-flight requests
// admitted just under a limit can jointly overshoot it. That relaxed
// semantics is deliberate; a check-and-reserve queue would change the latency
// characteristics of the request path.
type Ledger struct {
	mu      sync.RWMutex
	records []CostRecord
	budgets map[string]config.BudgetConfig
	warned  map[string]time.Time
	store   Store
	clock   util.Clock
}

// NewLedger creates a ledger with the given per-provider budgets. store may
// be nil for in-memory-only operation.
func NewLedger(budgets map[string]config.BudgetConfig, store Store, clock util.Clock) *Ledger {
	if clock == nil {
		clock = util.RealClock{}
	}
	if budgets == nil {
		budgets = make(map[string]config.BudgetConfig)
	}
	return &Ledger{
		budgets: budgets,
		warned:  make(map[string]time.Time),
		store:   store,
		clock:   clock,
	}
}

// SetBudget replaces the budget limits for one provider. Admin action only.
func (l *Ledger) SetBudget(provider string, budget config.BudgetConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.budgets[provider] = budget
}

// RecordCost appends a completed request's metrics. It never fails on
// logically-valid input; durable persistence errors are the store's problem.
func (l *Ledger) RecordCost(rec CostRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.clock.Now()
	}
	if rec.TotalTokens == 0 {
		rec.TotalTokens = rec.InputTokens + rec.OutputTokens
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.store != nil {
		l.store.Append(rec)
	}

	l.checkWarning(rec.Provider)
}

// CostMetrics returns records matching the filter. Empty provider matches
// all; zero times leave that bound open.
func (l *Ledger) CostMetrics(provider string, start, end time.Time) []CostRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]CostRecord, 0)
	for _, rec := range l.records {
		if provider != "" && rec.Provider != provider {
			continue
		}
		if !start.IsZero() && rec.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && rec.Timestamp.After(end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// BudgetStatus reports the provider's spend over the current day and month.
func (l *Ledger) BudgetStatus(provider string) BudgetStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.budgetStatusLocked(provider)
}

func (l *Ledger) budgetStatusLocked(provider string) BudgetStatus {
	budget := l.budgets[provider]
	daily, monthly := l.spendLocked(provider)

	status := BudgetStatus{
		Provider:       provider,
		CurrentDaily:   daily,
		CurrentMonthly: monthly,
		DailyLimit:     budget.DailyLimitUSD,
		MonthlyLimit:   budget.MonthlyLimitUSD,
	}
	if budget.DailyLimitUSD > 0 {
		status.DailyPercent = daily / budget.DailyLimitUSD
	}
	if budget.MonthlyLimitUSD > 0 {
		status.MonthlyPercent = monthly / budget.MonthlyLimitUSD
	}

	threshold := budget.WarningThreshold
	if threshold == 0 {
		threshold = 0.8
	}
	if budget.DailyLimitUSD > 0 && status.DailyPercent >= threshold {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("daily spend at %.0f%% of $%.2f limit", status.DailyPercent*100, budget.DailyLimitUSD))
	}
	if budget.MonthlyLimitUSD > 0 && status.MonthlyPercent >= threshold {
		status.Warnings = append(status.Warnings,
			fmt.Sprintf("monthly spend at %.0f%% of $%.2f limit", status.MonthlyPercent*100, budget.MonthlyLimitUSD))
	}
	return status
}

// spendLocked sums successful-and-failed request costs for the current day
// and month windows. Read lock must be held.
func (l *Ledger) spendLocked(provider string) (daily, monthly float64) {
	now := l.clock.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, rec := range l.records {
		if rec.Provider != provider {
			continue
		}
		if !rec.Timestamp.Before(monthStart) {
			monthly += rec.CostUSD
			if !rec.Timestamp.Before(dayStart) {
				daily += rec.CostUSD
			}
		}
	}
	return daily, monthly
}

// ShouldAllowRequest checks whether a request with the estimated cost may
// proceed. A provider with zero limits is untracked and always allowed.
func (l *Ledger) ShouldAllowRequest(provider string, estimatedCost float64) Admission {
	l.mu.RLock()
	defer l.mu.RUnlock()

	budget := l.budgets[provider]
	if budget.DailyLimitUSD == 0 && budget.MonthlyLimitUSD == 0 {
		return Admission{Allowed: true}
	}

	daily, monthly := l.spendLocked(provider)

	if budget.DailyLimitUSD > 0 && daily >= budget.DailyLimitUSD {
		return Admission{Allowed: false, Reason: fmt.Sprintf(
			"daily budget of $%.2f for %s already exhausted ($%.2f spent)", budget.DailyLimitUSD, provider, daily)}
	}
	if budget.MonthlyLimitUSD > 0 && monthly >= budget.MonthlyLimitUSD {
		return Admission{Allowed: false, Reason: fmt.Sprintf(
			"monthly budget of $%.2f for %s already exhausted ($%.2f spent)", budget.MonthlyLimitUSD, provider, monthly)}
	}
	if budget.DailyLimitUSD > 0 && daily+estimatedCost > budget.DailyLimitUSD {
		return Admission{Allowed: false, Reason: fmt.Sprintf(
			"estimated cost $%.2f would exceed daily budget of $%.2f for %s ($%.2f spent)",
			estimatedCost, budget.DailyLimitUSD, provider, daily)}
	}
	if budget.MonthlyLimitUSD > 0 && monthly+estimatedCost > budget.MonthlyLimitUSD {
		return Admission{Allowed: false, Reason: fmt.Sprintf(
			"estimated cost $%.2f would exceed monthly budget of $%.2f for %s ($%.2f spent)",
			estimatedCost, budget.MonthlyLimitUSD, provider, monthly)}
	}
	return Admission{Allowed: true}
}

// checkWarning logs a budget warning at most once per hour per provider.
func (l *Ledger) checkWarning(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	status := l.budgetStatusLocked(provider)
	if len(status.Warnings) == 0 {
		return
	}
	if last, ok := l.warned[provider]; ok && l.clock.Now().Sub(last) < time.Hour {
		return
	}
	l.warned[provider] = l.clock.Now()
	for _, w := range status.Warnings {
		log.Warnf("budget warning for %s: %s", provider, w)
	}
}

// Close flushes and closes the durable store, if any.
func (l *Ledger) Close() error {
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}
