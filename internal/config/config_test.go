// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiverse/hybridstack/internal/task"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_FullFile(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: openai
    kind: cloud
    driver: openai
    base-url: https://api.openai.com/v1
    api-key-env: OPENAI_API_KEY
    default-model: gpt-4o
    cost-per-1k-input: 0.005
    cost-per-1k-output: 0.015
  - name: ollama
    kind: local
    driver: ollama
    base-url: http://localhost:11434
    models:
      - llama3
      - mistral
budgets:
  openai:
    daily-limit-usd: 10
    monthly-limit-usd: 200
routing:
  min-score: 2
  fallback-count: 2
cache:
  ttl: 30m
  local-models:
    - ollama:llama3
server:
  port: 9000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "openai", cfg.Providers[0].Name)
	assert.Equal(t, KindCloud, cfg.Providers[0].Kind)
	assert.False(t, cfg.Providers[0].IsLocal())
	assert.True(t, cfg.Providers[1].IsLocal())

	// Validate backfills the default model from the model list.
	assert.Equal(t, "llama3", cfg.Providers[1].DefaultModel)

	assert.Equal(t, 10.0, cfg.Budgets["openai"].DailyLimitUSD)
	assert.Equal(t, 0.8, cfg.Budgets["openai"].WarningThreshold)

	assert.Equal(t, 2.0, cfg.Routing.MinScore)
	assert.Equal(t, 2, cfg.Routing.FallbackCount)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"ollama:llama3"}, cfg.Cache.LocalModels)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoadConfig_DefaultsForAbsentKeys(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `providers: []`))
	require.NoError(t, err)

	assert.Equal(t, 2.0, cfg.Routing.MinScore)
	assert.Equal(t, 3, cfg.Routing.FallbackCount)
	assert.Equal(t, 200, cfg.Routing.HistorySize)
	assert.Equal(t, 60*time.Second, cfg.Health.ProbeInterval)
	assert.Equal(t, 60*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, 3, cfg.Cache.CloudRetries)
	assert.Equal(t, 10, cfg.Cache.MinResponseLength)
	assert.Equal(t, 3, cfg.Ensemble.Size)
	assert.Equal(t, 8317, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Routing.Affinity)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantSub string
	}{
		{
			name: "duplicate provider",
			yaml: `
providers:
  - name: openai
  - name: openai
`,
			wantSub: "duplicate provider",
		},
		{
			name: "budget for unknown provider",
			yaml: `
providers:
  - name: openai
budgets:
  anthropic:
    daily-limit-usd: 5
`,
			wantSub: "unknown provider",
		},
		{
			name: "negative budget",
			yaml: `
providers:
  - name: openai
budgets:
  openai:
    daily-limit-usd: -1
`,
			wantSub: "negative limit",
		},
		{
			name: "unknown kind",
			yaml: `
providers:
  - name: openai
    kind: hybrid
`,
			wantSub: "unknown kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProviderConfig_APIKey(t *testing.T) {
	t.Setenv("HYBRIDSTACK_TEST_KEY", "sk-test-123")

	p := ProviderConfig{APIKeyEnv: "HYBRIDSTACK_TEST_KEY"}
	assert.Equal(t, "sk-test-123", p.APIKey())

	assert.Empty(t, (&ProviderConfig{}).APIKey())
}

func TestDefaultAffinity_CoversEveryTaskType(t *testing.T) {
	affinity := DefaultAffinity()

	for _, typ := range task.KnownTypes {
		byProvider, ok := affinity[string(typ)]
		require.True(t, ok, "no affinity row for %s", typ)
		require.NotEmpty(t, byProvider)
		for provider, bonus := range byProvider {
			assert.GreaterOrEqual(t, bonus, 0, "%s/%s", typ, provider)
			assert.LessOrEqual(t, bonus, 3, "%s/%s", typ, provider)
		}
	}
}
