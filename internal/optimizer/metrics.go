// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package optimizer watches provider performance and proposes advisory
// routing adjustments. Its actions nudge routing weights and log intent;
// they never hard-fail the request path.
package optimizer

import (
	"time"

	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/router"
)

// Metrics is the per-provider snapshot a rule condition is evaluated
// against. Field names are the rule-expression vocabulary.
type Metrics struct {
	Provider     string
	AvgLatencyMs float64
	ErrorRate    float64
	SuccessRate  float64
	CostPerToken float64
	TaskCount    int
	Degrading    bool
}

// computeMetrics aggregates ledger records from the trailing window into a
// per-provider snapshot.
func computeMetrics(records []ledger.CostRecord, history *router.History) map[string]*Metrics {
	out := make(map[string]*Metrics)
	type agg struct {
		latency time.Duration
		tokens  int
		cost    float64
		errors  int
	}
	aggs := make(map[string]*agg)

	for _, rec := range records {
		m := out[rec.Provider]
		if m == nil {
			m = &Metrics{Provider: rec.Provider}
			out[rec.Provider] = m
			aggs[rec.Provider] = &agg{}
		}
		a := aggs[rec.Provider]
		m.TaskCount++
		a.latency += rec.Latency
		a.tokens += rec.TotalTokens
		a.cost += rec.CostUSD
		if !rec.Success {
			a.errors++
		}
	}

	for name, m := range out {
		a := aggs[name]
		m.AvgLatencyMs = float64(a.latency.Milliseconds()) / float64(m.TaskCount)
		m.ErrorRate = float64(a.errors) / float64(m.TaskCount)
		m.SuccessRate = 1 - m.ErrorRate
		if a.tokens > 0 {
			m.CostPerToken = a.cost / float64(a.tokens)
		}
		m.Degrading = detectDegradation(history.RecentByProvider(name, 20))
	}
	return out
}

// detectDegradation compares the trailing 10-sample average latency against
// the preceding 10-sample window. A provider is degrading when the recent
// average exceeds 1.5x the older one. This is a windowed trend comparison,
// not a changepoint test.
func detectDegradation(attempts []router.Attempt) bool {
	if len(attempts) < 20 {
		return false
	}
	// attempts are most recent first.
	recent := windowAvg(attempts[:10])
	previous := windowAvg(attempts[10:20])
	if previous == 0 {
		return false
	}
	return recent > previous*1.5
}

func windowAvg(attempts []router.Attempt) float64 {
	var total time.Duration
	for _, a := range attempts {
		total += a.Latency
	}
	return float64(total.Milliseconds()) / float64(len(attempts))
}
