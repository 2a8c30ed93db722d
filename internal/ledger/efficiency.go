// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ledger

import (
	"sort"
	"time"
)

// Recommendation is the advisory verdict for a (provider, model) pair.
type Recommendation string

const (
	RecommendKeep     Recommendation = "keep"
	RecommendReduce   Recommendation = "reduce"
	RecommendIncrease Recommendation = "increase"
	RecommendReplace  Recommendation = "replace"
)

// Efficiency summarizes value-for-money for one (provider, model) pair.
type Efficiency struct {
	Provider        string         `json:"provider"`
	Model           string         `json:"model"`
	Requests        int            `json:"requests"`
	TokensPerDollar float64        `json:"tokens_per_dollar"`
	SuccessRate     float64        `json:"success_rate"`
	AvgLatency      time.Duration  `json:"avg_latency"`
	TotalCostUSD    float64        `json:"total_cost_usd"`
	Recommendation  Recommendation `json:"recommendation"`
}

// EfficiencyReport scores every (provider, model) pair seen in the window.
// localProviders marks providers whose usage is free; they are always
// recommended "increase" since shifting load to them costs nothing.
func (l *Ledger) EfficiencyReport(start, end time.Time, localProviders map[string]bool) []Efficiency {
	records := l.CostMetrics("", start, end)

	type agg struct {
		requests  int
		successes int
		tokens    int
		cost      float64
		latency   time.Duration
	}
	byPair := make(map[[2]string]*agg)
	for _, rec := range records {
		k := [2]string{rec.Provider, rec.Model}
		a := byPair[k]
		if a == nil {
			a = &agg{}
			byPair[k] = a
		}
		a.requests++
		if rec.Success {
			a.successes++
		}
		a.tokens += rec.TotalTokens
		a.cost += rec.CostUSD
		a.latency += rec.Latency
	}

	out := make([]Efficiency, 0, len(byPair))
	for k, a := range byPair {
		eff := Efficiency{
			Provider:     k[0],
			Model:        k[1],
			Requests:     a.requests,
			SuccessRate:  float64(a.successes) / float64(a.requests),
			AvgLatency:   a.latency / time.Duration(a.requests),
			TotalCostUSD: a.cost,
		}
		if a.cost > 0 {
			eff.TokensPerDollar = float64(a.tokens) / a.cost
		}
		eff.Recommendation = recommend(eff, localProviders[eff.Provider])
		out = append(out, eff)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// recommend applies the advisory verdict table.
func recommend(eff Efficiency, local bool) Recommendation {
	if local {
		// Zero marginal cost: more local traffic is always worth trying.
		return RecommendIncrease
	}
	switch {
	case eff.SuccessRate < 0.5:
		return RecommendReplace
	case eff.SuccessRate < 0.8 || eff.AvgLatency > 10*time.Second:
		return RecommendReduce
	case eff.TokensPerDollar > 100000 && eff.SuccessRate >= 0.95:
		return RecommendIncrease
	default:
		return RecommendKeep
	}
}
