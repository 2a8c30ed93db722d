// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiverse/hybridstack/internal/provider"
)

type probeClient struct {
	name   string
	probes atomic.Int64
	fail   bool
	delay  time.Duration
}

func (p *probeClient) Name() string         { return p.name }
func (p *probeClient) Local() bool          { return false }
func (p *probeClient) DefaultModel() string { return "m-1" }

func (p *probeClient) Call(ctx context.Context, req provider.CallRequest) (*provider.CallResult, error) {
	return &provider.CallResult{Text: "ok"}, nil
}

func (p *probeClient) HealthProbe(ctx context.Context) error {
	p.probes.Add(1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.fail {
		return errors.New("probe refused")
	}
	return nil
}

func TestProbeRecordsOutcomes(t *testing.T) {
	healths := NewRegistry(10, nil)
	providers := provider.NewRegistry()

	up := &probeClient{name: "up"}
	down := &probeClient{name: "down", fail: true}
	require.NoError(t, providers.Register(up))
	require.NoError(t, providers.Register(down))

	p := NewProber(healths, providers, time.Minute, time.Second)
	p.ProbeAll(context.Background())

	rec := healths.Status("up", "m-1")
	assert.Equal(t, 1, rec.SampleCount)
	assert.Zero(t, rec.ErrorRate)

	rec = healths.Status("down", "m-1")
	assert.Equal(t, 1, rec.SampleCount)
	assert.Equal(t, 1.0, rec.ErrorRate)
}

func TestProbeTimeoutCountsAsFailure(t *testing.T) {
	healths := NewRegistry(10, nil)
	providers := provider.NewRegistry()

	slow := &probeClient{name: "slow", delay: time.Second}
	require.NoError(t, providers.Register(slow))

	p := NewProber(healths, providers, time.Minute, 10*time.Millisecond)
	p.Probe(context.Background(), "slow")

	rec := healths.Status("slow", "m-1")
	assert.Equal(t, 1, rec.SampleCount)
	assert.Equal(t, 1.0, rec.ErrorRate)
}

func TestProbeUnknownProviderIsNoop(t *testing.T) {
	healths := NewRegistry(10, nil)
	providers := provider.NewRegistry()

	p := NewProber(healths, providers, time.Minute, time.Second)
	p.Probe(context.Background(), "ghost")

	assert.Empty(t, healths.All())
}

func TestProberStartStop(t *testing.T) {
	healths := NewRegistry(10, nil)
	providers := provider.NewRegistry()

	c := &probeClient{name: "up"}
	require.NoError(t, providers.Register(c))

	p := NewProber(healths, providers, time.Hour, time.Second)
	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	// The initial probe cycle runs without waiting for the ticker.
	assert.Eventually(t, func() bool {
		return c.probes.Load() >= 1
	}, time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()
}
