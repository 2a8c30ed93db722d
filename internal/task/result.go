// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import "time"

// Source identifies the execution path that produced a result.
type Source string

const (
	// SourceSingle means one cloud provider produced the response.
	SourceSingle Source = "single"

	// SourceEnsemble means multiple providers were consulted and an answer aggregated.
	SourceEnsemble Source = "ensemble"

	// SourceCache means the response was served from the offline cache.
	SourceCache Source = "cache"

	// SourceLocal means a locally-hosted model produced the response.
	SourceLocal Source = "local"
)

// Result is what a caller receives for a completed task.
// It always carries full provenance; there is no partial-success state.
type Result struct {
	// TaskID echoes the descriptor ID.
	TaskID string `json:"task_id"`

	// Response is the generated text.
	Response string `json:"response"`

	// Source is the execution path that produced the response.
	Source Source `json:"source"`

	// Provider is the provider that produced the response. Empty for cache hits.
	Provider string `json:"provider,omitempty"`

	// Model is the model that produced the response.
	Model string `json:"model"`

	// Cost is the spend attributed to this task in USD.
	Cost float64 `json:"cost"`

	// Latency is the wall time spent producing the response.
	Latency time.Duration `json:"latency"`

	// Confidence is the routing or ensemble confidence in [0, 1].
	Confidence float64 `json:"confidence"`
}
