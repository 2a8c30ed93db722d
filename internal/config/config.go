// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config defines the YAML configuration for the hybrid AI stack and
// the loader that applies defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderKind distinguishes remote APIs from locally-hosted models.
type ProviderKind string

const (
	// KindCloud is a remote, metered provider.
	KindCloud ProviderKind = "cloud"

	// KindLocal is a self-hosted provider with zero marginal cost.
	KindLocal ProviderKind = "local"
)

// ProviderConfig describes one configured provider backend.
type ProviderConfig struct {
	// Name is the provider identifier used throughout routing and metrics.
	Name string `yaml:"name" json:"name"`

	// Kind is "cloud" or "local". Local providers have an unlimited budget
	// and receive the cost-saving routing bonus.
	Kind ProviderKind `yaml:"kind" json:"kind"`

	// Driver selects the client implementation: "openai", "anthropic" or "ollama".
	Driver string `yaml:"driver" json:"driver"`

	// BaseURL is the API endpoint. Defaults depend on the driver.
	BaseURL string `yaml:"base-url" json:"base-url"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself never appears in the config file.
	APIKeyEnv string `yaml:"api-key-env" json:"-"`

	// DefaultModel is used when a task does not pin a model.
	DefaultModel string `yaml:"default-model" json:"default-model"`

	// Models lists the model identifiers this provider may serve.
	Models []string `yaml:"models" json:"models"`

	// CostPer1KInput is the USD price per 1000 input tokens. Zero for local.
	CostPer1KInput float64 `yaml:"cost-per-1k-input" json:"cost-per-1k-input"`

	// CostPer1KOutput is the USD price per 1000 output tokens. Zero for local.
	CostPer1KOutput float64 `yaml:"cost-per-1k-output" json:"cost-per-1k-output"`

	// LatencyHint is the expected response latency used for routing estimates
	// before any live samples exist.
	LatencyHint time.Duration `yaml:"latency-hint" json:"latency-hint"`

	// Embeddings marks the provider as embedding-capable.
	Embeddings bool `yaml:"embeddings" json:"embeddings"`
}

// BudgetConfig caps spend for one provider. Zero limits mean the provider's
// cost is not tracked against a cap (local providers), not "always blocked".
type BudgetConfig struct {
	// DailyLimitUSD is the hard daily spending cap.
	DailyLimitUSD float64 `yaml:"daily-limit-usd" json:"daily-limit-usd"`

	// MonthlyLimitUSD is the hard monthly spending cap.
	MonthlyLimitUSD float64 `yaml:"monthly-limit-usd" json:"monthly-limit-usd"`

	// WarningThreshold is the fraction of a limit at which a warning fires.
	WarningThreshold float64 `yaml:"warning-threshold" json:"warning-threshold"`
}

// RoutingConfig tunes the provider scoring engine.
type RoutingConfig struct {
	// Affinity maps task type -> provider -> specialization bonus (0-3).
	Affinity map[string]map[string]int `yaml:"affinity" json:"affinity"`

	// MinScore is the score below which a candidate is discarded.
	MinScore float64 `yaml:"min-score" json:"min-score"`

	// FallbackCount is how many ranked alternates follow the winner.
	FallbackCount int `yaml:"fallback-count" json:"fallback-count"`

	// HistorySize bounds the in-memory task history ring buffer.
	HistorySize int `yaml:"history-size" json:"history-size"`
}

// HealthConfig tunes the provider health registry and prober.
type HealthConfig struct {
	// ProbeInterval is the time between background probe cycles.
	ProbeInterval time.Duration `yaml:"probe-interval" json:"probe-interval"`

	// WindowSize bounds the rolling sample window per (provider, model).
	WindowSize int `yaml:"window-size" json:"window-size"`

	// ProbeTimeout bounds a single probe call.
	ProbeTimeout time.Duration `yaml:"probe-timeout" json:"probe-timeout"`
}

// CacheConfig tunes the offline cache and local fallback path.
type CacheConfig struct {
	// TTL is how long a cached response stays servable.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// MaxEntries caps the cache size; oldest-inserted entries are evicted first.
	MaxEntries int `yaml:"max-entries" json:"max-entries"`

	// SweepInterval is the time between TTL eviction sweeps.
	SweepInterval time.Duration `yaml:"sweep-interval" json:"sweep-interval"`

	// CloudRetries is the number of cloud attempts before the local path.
	CloudRetries int `yaml:"cloud-retries" json:"cloud-retries"`

	// LocalModels is the ordered list of local model identifiers tried after
	// every cloud attempt has failed. Format: "provider:model".
	LocalModels []string `yaml:"local-models" json:"local-models"`

	// MinResponseLength is the quality floor for local model output.
	MinResponseLength int `yaml:"min-response-length" json:"min-response-length"`
}

// OptimizerRule is one advisory scaling rule. Conditions are expr-lang
// expressions evaluated against per-provider metrics.
type OptimizerRule struct {
	// Name identifies the rule in logs and recommendations.
	Name string `yaml:"name" json:"name"`

	// Condition is an expression over Metrics fields, e.g.
	// "AvgLatencyMs > 5000 && TaskCount >= 5".
	Condition string `yaml:"condition" json:"condition"`

	// Action is the advisory action: "deprioritize", "prioritize" or "rebalance".
	Action string `yaml:"action" json:"action"`

	// CooldownMinutes is the minimum gap between firings of this rule.
	CooldownMinutes int `yaml:"cooldown-minutes" json:"cooldown-minutes"`

	// Priority orders rule evaluation; lower fires first.
	Priority int `yaml:"priority" json:"priority"`
}

// OptimizerConfig tunes the performance optimizer cycle.
type OptimizerConfig struct {
	// Enabled toggles the background optimizer loop.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CycleInterval is the time between evaluation cycles.
	CycleInterval time.Duration `yaml:"cycle-interval" json:"cycle-interval"`

	// AutoApply lets the optimizer nudge routing weights without operator action.
	AutoApply bool `yaml:"auto-apply" json:"auto-apply"`

	// Rules is the prioritized advisory rule list.
	Rules []OptimizerRule `yaml:"rules" json:"rules"`
}

// ArchiveConfig controls export of aged cost records to object storage.
type ArchiveConfig struct {
	// Enabled toggles cost record archival.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the S3-compatible endpoint host:port.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Bucket receives the gzip-compressed JSONL exports.
	Bucket string `yaml:"bucket" json:"bucket"`

	// AccessKeyEnv and SecretKeyEnv name the credential environment variables.
	AccessKeyEnv string `yaml:"access-key-env" json:"-"`
	SecretKeyEnv string `yaml:"secret-key-env" json:"-"`

	// UseSSL toggles TLS for the endpoint.
	UseSSL bool `yaml:"use-ssl" json:"use-ssl"`

	// RetentionDays is the age past which records are exported.
	RetentionDays int `yaml:"retention-days" json:"retention-days"`
}

// AdapterConfig controls the Lua prompt adapter engine.
type AdapterConfig struct {
	// Enabled toggles prompt adaptation before routing.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ScriptDir is the directory scanned for *.lua adapter scripts.
	ScriptDir string `yaml:"script-dir" json:"script-dir"`

	// Scripts restricts loading to the named scripts. Empty loads all.
	Scripts []string `yaml:"scripts" json:"scripts"`
}

// EnsembleConfig tunes multi-model ensemble execution.
type EnsembleConfig struct {
	// Size is how many providers an ensemble consults.
	Size int `yaml:"size" json:"size"`
}

// EmbeddingConfig configures the local ONNX embedding engine. It is the
// last-resort embedder behind the cloud providers' embeddings endpoints.
type EmbeddingConfig struct {
	// Enabled toggles loading of the local model at startup.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ModelPath locates the ONNX model file.
	ModelPath string `yaml:"model-path" json:"model-path"`

	// VocabPath locates the WordPiece vocabulary file.
	VocabPath string `yaml:"vocab-path" json:"vocab-path"`

	// LibraryPath locates the ONNX runtime shared library.
	LibraryPath string `yaml:"library-path" json:"library-path"`
}

// ServerConfig configures the status/metrics HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string `yaml:"host" json:"-"`

	// Port is the listen port.
	Port int `yaml:"port" json:"port"`
}

// Config is the root configuration object.
type Config struct {
	// Providers lists every configured provider backend.
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// Budgets maps provider name to its spend limits.
	Budgets map[string]BudgetConfig `yaml:"budgets" json:"budgets"`

	Routing   RoutingConfig   `yaml:"routing" json:"routing"`
	Health    HealthConfig    `yaml:"health" json:"health"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Optimizer OptimizerConfig `yaml:"optimizer" json:"optimizer"`
	Archive   ArchiveConfig   `yaml:"archive" json:"archive"`
	Adapters  AdapterConfig   `yaml:"adapters" json:"adapters"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Ensemble  EnsembleConfig  `yaml:"ensemble" json:"ensemble"`
	Server    ServerConfig    `yaml:"server" json:"server"`

	// LedgerPath is the SQLite file holding the durable cost log.
	// Empty disables durable persistence (in-memory only).
	LedgerPath string `yaml:"ledger-path" json:"ledger-path"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile switches log output from stdout to rotating files.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// LogDir is the directory for rotating log files.
	LogDir string `yaml:"log-dir" json:"log-dir"`
}

// applyDefaults fills zero values with working defaults. Called before
// unmarshalling so absent keys keep defaults, and again after to repair
// invalid zero values.
func (cfg *Config) applyDefaults() {
	if cfg.Routing.MinScore == 0 {
		cfg.Routing.MinScore = 2
	}
	if cfg.Routing.FallbackCount == 0 {
		cfg.Routing.FallbackCount = 3
	}
	if cfg.Routing.HistorySize == 0 {
		cfg.Routing.HistorySize = 200
	}
	if cfg.Health.ProbeInterval == 0 {
		cfg.Health.ProbeInterval = 60 * time.Second
	}
	if cfg.Health.WindowSize == 0 {
		cfg.Health.WindowSize = 50
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = 10 * time.Second
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 60 * time.Minute
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 1000
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = 5 * time.Minute
	}
	if cfg.Cache.CloudRetries == 0 {
		cfg.Cache.CloudRetries = 3
	}
	if cfg.Cache.MinResponseLength == 0 {
		cfg.Cache.MinResponseLength = 10
	}
	if cfg.Optimizer.CycleInterval == 0 {
		cfg.Optimizer.CycleInterval = 60 * time.Second
	}
	if cfg.Ensemble.Size == 0 {
		cfg.Ensemble.Size = 3
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8317
	}
	if cfg.Archive.RetentionDays == 0 {
		cfg.Archive.RetentionDays = 90
	}
	for name, b := range cfg.Budgets {
		if b.WarningThreshold == 0 {
			b.WarningThreshold = 0.8
			cfg.Budgets[name] = b
		}
	}
	if cfg.Routing.Affinity == nil {
		cfg.Routing.Affinity = DefaultAffinity()
	}
}

// LoadConfig reads YAML from configFile, applies defaults and resolves
// environment overrides. A .env file next to the working directory is loaded
// first if present, so API keys can live outside the shell profile.
func LoadConfig(configFile string) (*Config, error) {
	// Missing .env is fine; it is a convenience, not a requirement.
	_ = godotenv.Load()

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	cfg.applyDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the stack cannot run with.
func (cfg *Config) Validate() error {
	seen := make(map[string]bool, len(cfg.Providers))
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("provider %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
		if p.Kind == "" {
			p.Kind = KindCloud
		}
		if p.Kind != KindCloud && p.Kind != KindLocal {
			return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
		}
		if p.DefaultModel == "" && len(p.Models) > 0 {
			p.DefaultModel = p.Models[0]
		}
	}
	for name, b := range cfg.Budgets {
		if !seen[name] {
			return fmt.Errorf("budget configured for unknown provider %q", name)
		}
		if b.DailyLimitUSD < 0 || b.MonthlyLimitUSD < 0 {
			return fmt.Errorf("budget for %q has negative limit", name)
		}
		if b.WarningThreshold < 0 || b.WarningThreshold > 1 {
			return fmt.Errorf("budget for %q: warning threshold must be in [0,1]", name)
		}
	}
	return nil
}

// APIKey resolves the provider's API key from the environment.
func (p *ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// IsLocal reports whether the provider is self-hosted.
func (p *ProviderConfig) IsLocal() bool { return p.Kind == KindLocal }
