// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to clients. It replaces per-call-site provider
// switches: components look clients up by name and treat them uniformly.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register adds a client under its own name. Registering the same name twice
// is an error; provider identity is load-bearing for budgets and health.
func (r *Registry) Register(c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("provider client has empty name")
	}
	if _, exists := r.clients[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.clients[name] = c
	return nil
}

// Get returns the client for name, or an error if unknown.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return c, nil
}

// Names returns all registered provider names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Embedders returns the names of embedding-capable providers in stable order.
func (r *Registry) Embedders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0)
	for name, c := range r.clients {
		if _, ok := c.(Embedder); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
