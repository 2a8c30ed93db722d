// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package optimizer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/config"
	"github.com/aiverse/hybridstack/internal/ledger"
	"github.com/aiverse/hybridstack/internal/router"
)

// Advisory weight multipliers applied by scaling actions.
const (
	deprioritizeWeight = 0.7
	prioritizeWeight   = 1.2
)

// Recommendation is one proposed routing adjustment.
type Recommendation struct {
	Provider  string    `json:"provider"`
	Rule      string    `json:"rule"`
	Action    string    `json:"action"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Optimizer evaluates advisory scaling rules on a fixed cycle.
type Optimizer struct {
	cfg     config.OptimizerConfig
	router  *router.Router
	costs   *ledger.Ledger
	window  time.Duration

	mu        sync.Mutex
	programs  map[string]*vm.Program
	lastFired map[string]time.Time

	running bool
	ticker  *time.Ticker
	stop    chan struct{}
	done    chan struct{}
}

// New creates an optimizer. An empty rule list gets the shipped defaults.
func New(cfg config.OptimizerConfig, rt *router.Router, costs *ledger.Ledger) *Optimizer {
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	return &Optimizer{
		cfg:       cfg,
		router:    rt,
		costs:     costs,
		window:    time.Hour,
		programs:  make(map[string]*vm.Program),
		lastFired: make(map[string]time.Time),
	}
}

// DefaultRules returns the shipped advisory rule set.
func DefaultRules() []config.OptimizerRule {
	return []config.OptimizerRule{
		{
			Name:            "deprioritize-failing",
			Condition:       "ErrorRate > 0.3 && TaskCount >= 5",
			Action:          "deprioritize",
			CooldownMinutes: 10,
			Priority:        1,
		},
		{
			Name:            "deprioritize-slow",
			Condition:       "AvgLatencyMs > 5000 && TaskCount >= 5",
			Action:          "deprioritize",
			CooldownMinutes: 10,
			Priority:        2,
		},
		{
			Name:            "deprioritize-degrading",
			Condition:       "Degrading",
			Action:          "deprioritize",
			CooldownMinutes: 15,
			Priority:        3,
		},
		{
			Name:            "restore-recovered",
			Condition:       "SuccessRate >= 0.95 && AvgLatencyMs < 2000 && TaskCount >= 10",
			Action:          "rebalance",
			CooldownMinutes: 30,
			Priority:        4,
		},
	}
}

// Start begins the background evaluation cycle.
func (o *Optimizer) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.cfg.Enabled {
		return fmt.Errorf("optimizer is disabled")
	}
	if o.running {
		return fmt.Errorf("optimizer is already running")
	}

	o.ticker = time.NewTicker(o.cfg.CycleInterval)
	o.stop = make(chan struct{})
	o.done = make(chan struct{})
	o.running = true

	go func() {
		defer close(o.done)
		for {
			select {
			case <-o.stop:
				return
			case <-o.ticker.C:
				o.cycle()
			}
		}
	}()

	log.Infof("Performance optimizer started (cycle %s, %d rules)", o.cfg.CycleInterval, len(o.cfg.Rules))
	return nil
}

// Stop terminates the evaluation cycle. Safe to call when not running.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.ticker.Stop()
	close(o.stop)
	o.running = false
	done := o.done
	o.mu.Unlock()
	<-done
	log.Info("Performance optimizer stopped")
}

func (o *Optimizer) cycle() {
	recs := o.EvaluateScalingNeeds()
	for _, rec := range recs {
		if o.cfg.AutoApply {
			o.ExecuteScalingAction(rec)
		} else {
			log.Infof("scaling recommendation (not applied): %s %s: %s", rec.Action, rec.Provider, rec.Reason)
		}
	}
}

// EvaluateScalingNeeds computes fresh per-provider metrics and evaluates the
// rule list in priority order. At most one rule fires per provider per
// cycle: the first match wins. A rule inside its cooldown window is skipped.
func (o *Optimizer) EvaluateScalingNeeds() []Recommendation {
	end := time.Now()
	records := o.costs.CostMetrics("", end.Add(-o.window), end)
	metrics := computeMetrics(records, o.router.History())

	rules := append([]config.OptimizerRule(nil), o.cfg.Rules...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	providers := make([]string, 0, len(metrics))
	for name := range metrics {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	var recs []Recommendation
	for _, name := range providers {
		m := metrics[name]
		for _, rule := range rules {
			if !o.cooldownElapsed(rule) {
				continue
			}
			matched, err := o.evaluate(rule.Condition, m)
			if err != nil {
				log.Errorf("rule %q condition error: %v", rule.Name, err)
				continue
			}
			if !matched {
				continue
			}
			o.markFired(rule)
			recs = append(recs, Recommendation{
				Provider:  name,
				Rule:      rule.Name,
				Action:    rule.Action,
				Reason:    fmt.Sprintf("rule %q matched: latency=%.0fms errors=%.0f%% tasks=%d", rule.Name, m.AvgLatencyMs, m.ErrorRate*100, m.TaskCount),
				CreatedAt: time.Now(),
			})
			break
		}
	}
	return recs
}

// ExecuteScalingAction applies one recommendation by nudging the router's
// advisory weight for the provider. It reports success and never panics or
// propagates errors into the request path.
func (o *Optimizer) ExecuteScalingAction(rec Recommendation) bool {
	switch rec.Action {
	case "deprioritize":
		o.router.SetWeight(rec.Provider, deprioritizeWeight)
	case "prioritize":
		o.router.SetWeight(rec.Provider, prioritizeWeight)
	case "rebalance":
		o.router.SetWeight(rec.Provider, 1.0)
	default:
		log.Warnf("unknown scaling action %q for %s", rec.Action, rec.Provider)
		return false
	}
	log.Infof("applied scaling action %s to %s: %s", rec.Action, rec.Provider, rec.Reason)
	return true
}

// evaluate runs a compiled rule condition against the metrics snapshot.
// Programs are compiled once and cached; rules change only via config reload.
func (o *Optimizer) evaluate(condition string, m *Metrics) (bool, error) {
	if condition == "" || condition == "true" {
		return true, nil
	}

	o.mu.Lock()
	program, ok := o.programs[condition]
	if !ok {
		var err error
		program, err = expr.Compile(condition, expr.Env(Metrics{}))
		if err != nil {
			o.mu.Unlock()
			return false, fmt.Errorf("failed to compile condition %q: %w", condition, err)
		}
		o.programs[condition] = program
	}
	o.mu.Unlock()

	output, err := expr.Run(program, *m)
	if err != nil {
		return false, fmt.Errorf("failed to run condition %q: %w", condition, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return a boolean", condition)
	}
	return result, nil
}

func (o *Optimizer) cooldownElapsed(rule config.OptimizerRule) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	last, ok := o.lastFired[rule.Name]
	if !ok {
		return true
	}
	return time.Since(last) >= time.Duration(rule.CooldownMinutes)*time.Minute
}

func (o *Optimizer) markFired(rule config.OptimizerRule) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastFired[rule.Name] = time.Now()
}
