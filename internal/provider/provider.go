// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider defines the uniform client interface every model backend
// implements, and the registry that maps provider names to clients. Adding a
// provider means registering one client plus one affinity table entry; the
// router never dispatches on provider names.
package provider

import (
	"context"
	"fmt"
)

// CallRequest is the uniform call signature every provider accepts.
type CallRequest struct {
	// SystemPrompt is the optional system instruction.
	SystemPrompt string

	// UserPrompt is the user content.
	UserPrompt string

	// Temperature controls sampling randomness.
	Temperature float64

	// Model overrides the provider's default model when non-empty.
	Model string

	// MaxTokens bounds the output length when positive.
	MaxTokens int
}

// CallResult is the uniform provider response.
type CallResult struct {
	// Text is the generated content.
	Text string

	// Model is the model that actually served the request.
	Model string

	// InputTokens and OutputTokens are provider-reported counts.
	// Zero when the provider reports no usage; callers estimate instead.
	InputTokens  int
	OutputTokens int
}

// Client is the interface every provider backend implements.
type Client interface {
	// Name returns the provider identifier.
	Name() string

	// Local reports whether the provider is self-hosted (zero marginal cost).
	Local() bool

	// DefaultModel returns the model used when a call does not pin one.
	DefaultModel() string

	// Call executes a text request against the provider.
	Call(ctx context.Context, req CallRequest) (*CallResult, error)

	// HealthProbe issues a minimal real request to verify the provider is
	// reachable. It must be cheap; it is called on a fixed interval.
	HealthProbe(ctx context.Context) error
}

// Embedder is implemented by embedding-capable providers.
type Embedder interface {
	// Embed computes an embedding vector for the text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// StatusError carries an upstream HTTP status for provider failures.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Message)
}
