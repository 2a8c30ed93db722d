// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adapter provides prompt adaptation hooks invoked before routing.
// Adapters are opaque text transformations (personalization, domain data
// injection) supplied by collaborator services; a failing adapter degrades
// to the unmodified prompt and never aborts the task.
package adapter

import (
	"sync"
)

// PromptAdapter transforms a prompt using optional structured context.
type PromptAdapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Adapt returns the transformed prompt. On error the caller keeps the
	// input prompt.
	Adapt(prompt string, context map[string]interface{}) (string, error)
}

// Chain applies registered adapters in registration order. Each adapter
// receives the previous adapter's output; a failure skips that adapter only.
type Chain struct {
	mu       sync.RWMutex
	adapters []PromptAdapter
}

// NewChain creates an empty adapter chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends an adapter to the chain.
func (c *Chain) Register(a PromptAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, a)
}

// Len returns the number of registered adapters.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.adapters)
}

// Apply runs the chain. It always returns a usable prompt; per-adapter
// failures are reported through onError and otherwise ignored.
func (c *Chain) Apply(prompt string, context map[string]interface{}, onError func(name string, err error)) string {
	c.mu.RLock()
	adapters := append([]PromptAdapter(nil), c.adapters...)
	c.mu.RUnlock()

	current := prompt
	for _, a := range adapters {
		next, err := a.Adapt(current, context)
		if err != nil {
			if onError != nil {
				onError(a.Name(), err)
			}
			continue
		}
		if next != "" {
			current = next
		}
	}
	return current
}
