// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package health tracks per-(provider, model) reliability and latency, and
// classifies each pair as healthy, degraded, unhealthy or unknown. Records
// are updated by live request outcomes and by the background prober.
package health

import (
	"sync"
	"time"

	"github.com/aiverse/hybridstack/internal/util"
)

// Status classifies a provider's recent reliability.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Classification thresholds. Healthy requires both the success-rate and
// latency bound; degraded relaxes both; anything worse is unhealthy.
const (
	healthySuccessRate  = 0.95
	healthyLatencyMs    = 2000
	degradedSuccessRate = 0.8
	degradedLatencyMs   = 5000
)

// Record is the read view of one (provider, model) pair.
type Record struct {
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	Status      Status        `json:"status"`
	AvgLatency  time.Duration `json:"avg_latency"`
	ErrorRate   float64       `json:"error_rate"`
	SampleCount int           `json:"sample_count"`
	LastChecked time.Time     `json:"last_checked"`
}

// sample is one observed request outcome.
type sample struct {
	latency time.Duration
	success bool
}

// entry is the mutable state for one (provider, model) pair.
type entry struct {
	provider    string
	model       string
	samples     []sample
	lastChecked time.Time
	forcedDown  bool
}

// Registry holds rolling outcome windows for every (provider, model) pair.
// It is shared by the router, prober, optimizer and orchestrator, so all
// access is mutex-guarded. Stale pairs age out of relevance by overwrite;
// there is no hard deletion.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	windowSize int
	clock      util.Clock
}

// NewRegistry creates a registry with the given rolling window size.
func NewRegistry(windowSize int, clock util.Clock) *Registry {
	if windowSize <= 0 {
		windowSize = 50
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Registry{
		entries:    make(map[string]*entry),
		windowSize: windowSize,
		clock:      clock,
	}
}

func key(provider, model string) string { return provider + "/" + model }

// RecordOutcome appends one observed request outcome for the pair.
func (r *Registry) RecordOutcome(provider, model string, latency time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entries[key(provider, model)]
	if e == nil {
		e = &entry{provider: provider, model: model}
		r.entries[key(provider, model)] = e
	}
	e.samples = append(e.samples, sample{latency: latency, success: success})
	if len(e.samples) > r.windowSize {
		e.samples = e.samples[len(e.samples)-r.windowSize:]
	}
	e.lastChecked = r.clock.Now()
}

// MarkUnavailable forces the pair to classify unhealthy until MarkAvailable
// is called. Used for manual override during failover handling.
func (r *Registry) MarkUnavailable(provider, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[key(provider, model)]
	if e == nil {
		e = &entry{provider: provider, model: model}
		r.entries[key(provider, model)] = e
	}
	e.forcedDown = true
	e.lastChecked = r.clock.Now()
}

// MarkAvailable clears a manual unavailability override. Classification
// returns to being sample-driven.
func (r *Registry) MarkAvailable(provider, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entries[key(provider, model)]; e != nil {
		e.forcedDown = false
		e.lastChecked = r.clock.Now()
	}
}

// Status returns the current record for the pair. A pair with no samples
// reports StatusUnknown.
func (r *Registry) Status(provider, model string) Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.entries[key(provider, model)]
	if e == nil {
		return Record{Provider: provider, Model: model, Status: StatusUnknown}
	}
	return e.record()
}

// All returns records for every tracked pair.
func (r *Registry) All() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		records = append(records, e.record())
	}
	return records
}

// record computes the read view. Registry lock must be held.
func (e *entry) record() Record {
	rec := Record{
		Provider:    e.provider,
		Model:       e.model,
		SampleCount: len(e.samples),
		LastChecked: e.lastChecked,
	}

	if len(e.samples) == 0 {
		if e.forcedDown {
			rec.Status = StatusUnhealthy
		} else {
			rec.Status = StatusUnknown
		}
		return rec
	}

	var totalLatency time.Duration
	failures := 0
	for _, s := range e.samples {
		totalLatency += s.latency
		if !s.success {
			failures++
		}
	}
	rec.AvgLatency = totalLatency / time.Duration(len(e.samples))
	rec.ErrorRate = float64(failures) / float64(len(e.samples))

	if e.forcedDown {
		rec.Status = StatusUnhealthy
		return rec
	}
	rec.Status = classify(1-rec.ErrorRate, rec.AvgLatency)
	return rec
}

// classify applies the threshold table to a success rate and average latency.
func classify(successRate float64, avgLatency time.Duration) Status {
	latencyMs := float64(avgLatency.Milliseconds())
	switch {
	case successRate >= healthySuccessRate && latencyMs < healthyLatencyMs:
		return StatusHealthy
	case successRate >= degradedSuccessRate && latencyMs < degradedLatencyMs:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
