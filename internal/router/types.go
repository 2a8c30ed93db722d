// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router scores provider candidates for a task and executes the
// winning provider with automatic fallback retry. Scoring is deterministic:
// identical health records, task type and priority always produce the same
// winner and fallback ordering.
package router

import (
	"errors"
	"time"

	"github.com/aiverse/hybridstack/internal/task"
)

var (
	// ErrNoProvidersAvailable indicates no candidate scored above the cutoff.
	ErrNoProvidersAvailable = errors.New("no suitable provider available")

	// ErrBudgetExceeded indicates the budget admission check refused the
	// request. It is a distinct refusal, not a generic failure: the caller
	// decides whether to wait, downgrade or abort.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrAllProvidersFailed indicates the winner and every fallback failed.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Decision is the outcome of scoring one task. Computed per task, not
// persisted; task history retains a denormalized copy of the attempts.
type Decision struct {
	// Provider and Model identify the winning candidate.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Reason is a human-readable justification for the choice.
	Reason string `json:"reason"`

	// EstimatedCost is the projected spend in USD.
	EstimatedCost float64 `json:"estimated_cost"`

	// EstimatedLatency is the projected response time.
	EstimatedLatency time.Duration `json:"estimated_latency"`

	// Fallbacks is the ranked list of alternate providers to try on failure.
	Fallbacks []string `json:"fallbacks"`

	// Confidence is the winning score normalized to [0, 1].
	Confidence float64 `json:"confidence"`
}

// ExecResult is a completed execution with full provenance.
type ExecResult struct {
	Response string
	Provider string
	Model    string
	Cost     float64
	Latency  time.Duration
	Decision *Decision
}

// Attempt is one denormalized execution attempt kept in task history.
type Attempt struct {
	TaskID    string        `json:"task_id"`
	TaskType  task.Type     `json:"task_type"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Success   bool          `json:"success"`
	Latency   time.Duration `json:"latency"`
	CostUSD   float64       `json:"cost_usd"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
