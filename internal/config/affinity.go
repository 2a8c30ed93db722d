// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// DefaultAffinity returns the shipped task-type specialization table.
// Bonuses are additive scoring points in the 0-3 range: 3 means the provider
// is a first choice for that task type, 0 means no particular aptitude.
// Operators override this table per deployment via routing.affinity.
func DefaultAffinity() map[string]map[string]int {
	return map[string]map[string]int{
		"text-generation": {
			"openai":    2,
			"anthropic": 2,
			"ollama":    1,
		},
		"embedding": {
			"openai": 3,
			"ollama": 2,
		},
		"analysis": {
			"anthropic": 3,
			"openai":    2,
		},
		"creative": {
			"anthropic": 3,
			"openai":    2,
			"ollama":    1,
		},
		"conversational": {
			"openai":    3,
			"anthropic": 2,
			"ollama":    1,
		},
		"coding": {
			"anthropic": 3,
			"openai":    3,
			"ollama":    1,
		},
		"summarization": {
			"openai":    2,
			"anthropic": 2,
			"ollama":    2,
		},
		"recommendation": {
			"openai":    2,
			"anthropic": 1,
		},
		"personality": {
			"anthropic": 3,
			"openai":    2,
		},
	}
}
