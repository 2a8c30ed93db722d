// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"fmt"

	"github.com/aiverse/hybridstack/internal/config"
)

// BuildRegistry constructs a registry from configuration. Unknown drivers are
// a configuration error, not a runtime fallback.
func BuildRegistry(cfgs []config.ProviderConfig) (*Registry, error) {
	registry := NewRegistry()
	for _, cfg := range cfgs {
		var client Client
		switch cfg.Driver {
		case "openai", "":
			client = NewOpenAIClient(cfg)
		case "anthropic":
			client = NewAnthropicClient(cfg)
		case "ollama":
			client = NewOllamaClient(cfg)
		default:
			return nil, fmt.Errorf("provider %q: unknown driver %q", cfg.Name, cfg.Driver)
		}
		if err := registry.Register(client); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
