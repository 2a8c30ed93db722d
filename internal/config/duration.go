// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// parseDuration parses "90s" style values. Empty means unset (zero).
func parseDuration(raw, field string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration %q: %w", field, raw, err)
	}
	return d, nil
}

// UnmarshalYAML accepts duration fields as strings like "60s" or "5m".
func (c *HealthConfig) UnmarshalYAML(node *yaml.Node) error {
	type alias struct {
		ProbeInterval string `yaml:"probe-interval"`
		WindowSize    int    `yaml:"window-size"`
		ProbeTimeout  string `yaml:"probe-timeout"`
	}
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}

	interval, err := parseDuration(a.ProbeInterval, "health.probe-interval")
	if err != nil {
		return err
	}
	timeout, err := parseDuration(a.ProbeTimeout, "health.probe-timeout")
	if err != nil {
		return err
	}

	c.ProbeInterval = interval
	c.WindowSize = a.WindowSize
	c.ProbeTimeout = timeout
	return nil
}

// UnmarshalYAML accepts duration fields as strings like "60m".
func (c *CacheConfig) UnmarshalYAML(node *yaml.Node) error {
	type alias struct {
		TTL               string   `yaml:"ttl"`
		MaxEntries        int      `yaml:"max-entries"`
		SweepInterval     string   `yaml:"sweep-interval"`
		CloudRetries      int      `yaml:"cloud-retries"`
		LocalModels       []string `yaml:"local-models"`
		MinResponseLength int      `yaml:"min-response-length"`
	}
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}

	ttl, err := parseDuration(a.TTL, "cache.ttl")
	if err != nil {
		return err
	}
	sweep, err := parseDuration(a.SweepInterval, "cache.sweep-interval")
	if err != nil {
		return err
	}

	c.TTL = ttl
	c.MaxEntries = a.MaxEntries
	c.SweepInterval = sweep
	c.CloudRetries = a.CloudRetries
	c.LocalModels = a.LocalModels
	c.MinResponseLength = a.MinResponseLength
	return nil
}

// UnmarshalYAML accepts the cycle interval as a string like "60s".
func (c *OptimizerConfig) UnmarshalYAML(node *yaml.Node) error {
	type alias struct {
		Enabled       bool            `yaml:"enabled"`
		CycleInterval string          `yaml:"cycle-interval"`
		AutoApply     bool            `yaml:"auto-apply"`
		Rules         []OptimizerRule `yaml:"rules"`
	}
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}

	cycle, err := parseDuration(a.CycleInterval, "optimizer.cycle-interval")
	if err != nil {
		return err
	}

	c.Enabled = a.Enabled
	c.CycleInterval = cycle
	c.AutoApply = a.AutoApply
	c.Rules = a.Rules
	return nil
}

// UnmarshalYAML accepts the latency hint as a string like "800ms".
func (p *ProviderConfig) UnmarshalYAML(node *yaml.Node) error {
	type alias struct {
		Name            string       `yaml:"name"`
		Kind            ProviderKind `yaml:"kind"`
		Driver          string       `yaml:"driver"`
		BaseURL         string       `yaml:"base-url"`
		APIKeyEnv       string       `yaml:"api-key-env"`
		DefaultModel    string       `yaml:"default-model"`
		Models          []string     `yaml:"models"`
		CostPer1KInput  float64      `yaml:"cost-per-1k-input"`
		CostPer1KOutput float64      `yaml:"cost-per-1k-output"`
		LatencyHint     string       `yaml:"latency-hint"`
		Embeddings      bool         `yaml:"embeddings"`
	}
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}

	hint, err := parseDuration(a.LatencyHint, "provider.latency-hint")
	if err != nil {
		return err
	}

	p.Name = a.Name
	p.Kind = a.Kind
	p.Driver = a.Driver
	p.BaseURL = a.BaseURL
	p.APIKeyEnv = a.APIKeyEnv
	p.DefaultModel = a.DefaultModel
	p.Models = a.Models
	p.CostPer1KInput = a.CostPer1KInput
	p.CostPer1KOutput = a.CostPer1KOutput
	p.LatencyHint = hint
	p.Embeddings = a.Embeddings
	return nil
}
