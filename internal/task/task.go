// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package task defines the task descriptor routed through the hybrid AI stack.
// A descriptor is immutable once created and consumed exactly once by the router.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies the kind of work a task requests from a provider.
type Type string

const (
	TypeTextGeneration Type = "text-generation"
	TypeEmbedding      Type = "embedding"
	TypeAnalysis       Type = "analysis"
	TypeCreative       Type = "creative"
	TypeConversational Type = "conversational"
	TypeCoding         Type = "coding"
	TypeSummarization  Type = "summarization"
	TypeRecommendation Type = "recommendation"
	TypePersonality    Type = "personality"
)

// KnownTypes lists every recognized task type.
var KnownTypes = []Type{
	TypeTextGeneration,
	TypeEmbedding,
	TypeAnalysis,
	TypeCreative,
	TypeConversational,
	TypeCoding,
	TypeSummarization,
	TypeRecommendation,
	TypePersonality,
}

// IsValid reports whether t is a recognized task type.
func (t Type) IsValid() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Priority expresses how important a task is to the caller.
// It influences provider scoring, not queue ordering.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid reports whether p is a recognized priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Validation errors returned by Descriptor.Validate.
var (
	ErrEmptyContent    = errors.New("task content must not be empty")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrNegativeMaxCost = errors.New("max cost must not be negative")
)

// Descriptor is the input request object routed through the system.
type Descriptor struct {
	// ID uniquely identifies the task.
	ID string `json:"id"`

	// Type is the kind of work requested.
	Type Type `json:"type"`

	// Content is the free-text prompt.
	Content string `json:"content"`

	// SystemPrompt is an optional system instruction.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Context carries optional structured data used by prompt adapters.
	Context map[string]interface{} `json:"context,omitempty"`

	// Priority is the caller-declared importance.
	Priority Priority `json:"priority"`

	// MaxCost is an optional per-task spending ceiling in USD. Zero means no ceiling.
	MaxCost float64 `json:"max_cost,omitempty"`

	// MaxTokens is an optional output token budget. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Timeout bounds a single provider call. Zero means no explicit deadline.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Complex marks the task as a candidate for multi-model ensemble execution.
	Complex bool `json:"complex,omitempty"`
}

// New creates a descriptor with a generated ID and medium priority.
func New(taskType Type, content string) *Descriptor {
	return &Descriptor{
		ID:       uuid.NewString(),
		Type:     taskType,
		Content:  content,
		Priority: PriorityMedium,
	}
}

// Validate checks the descriptor before any provider is contacted.
// Validation failures are never retried.
func (d *Descriptor) Validate() error {
	if d.Content == "" {
		return ErrEmptyContent
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownTaskType, d.Type)
	}
	if d.MaxCost < 0 {
		return ErrNegativeMaxCost
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	} else if !d.Priority.IsValid() {
		return fmt.Errorf("unknown priority %q", d.Priority)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
