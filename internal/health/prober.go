// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/provider"
)

// Prober periodically issues lightweight probe calls against every registered
// provider so a pair can be classified even with no production traffic.
// Probe failures are recorded as failed samples, never propagated.
type Prober struct {
	registry  *Registry
	providers *provider.Registry
	interval  time.Duration
	timeout   time.Duration

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	ticker  *time.Ticker
	done    chan struct{}
}

// NewProber creates a prober over the given registries.
func NewProber(registry *Registry, providers *provider.Registry, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{
		registry:  registry,
		providers: providers,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start begins the background probe loop. An initial probe cycle runs
// immediately so routing has health data without waiting a full interval.
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("health prober is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.interval)
	p.done = make(chan struct{})
	p.running = true

	go p.loop()
	go p.ProbeAll(p.ctx)

	log.Infof("Health prober started (interval %s, %d providers)", p.interval, len(p.providers.Names()))
	return nil
}

// Stop terminates the probe loop. Safe to call when not running.
func (p *Prober) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cancel()
	p.ticker.Stop()
	<-p.done
	p.running = false
	log.Info("Health prober stopped")
}

func (p *Prober) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.ticker.C:
			p.ProbeAll(p.ctx)
		}
	}
}

// ProbeAll probes every registered provider once.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, name := range p.providers.Names() {
		p.Probe(ctx, name)
	}
}

// Probe issues one probe call against the named provider and records the
// outcome. A probe exception counts as a failed probe, not a crash.
func (p *Prober) Probe(ctx context.Context, name string) {
	client, err := p.providers.Get(name)
	if err != nil {
		log.Debugf("probe skipped: %v", err)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err = client.HealthProbe(probeCtx)
	latency := time.Since(start)

	p.registry.RecordOutcome(name, client.DefaultModel(), latency, err == nil)
	if err != nil {
		log.Debugf("health probe failed for %s: %v", name, err)
	}
}
