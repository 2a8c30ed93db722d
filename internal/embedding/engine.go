// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package embedding provides a locally-hosted ONNX embedding engine. It is
// the last-resort embedder when no remote embedding-capable provider is
// available, mirroring the local-model fallback used for text tasks.
package embedding

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// Dimension is the output dimension of the MiniLM-class models we ship.
	Dimension = 384

	// MaxSequenceLength caps tokenized input length.
	MaxSequenceLength = 256
)

// Engine runs embedding inference through the ONNX runtime.
type Engine struct {
	session   *ort.DynamicAdvancedSession
	modelPath string
	wordPiece *WordPiece
	dimension int
	ready     bool
	mu        sync.RWMutex
}

// Config holds paths needed to initialize the engine.
type Config struct {
	// ModelPath locates the ONNX model file.
	ModelPath string

	// VocabPath locates the WordPiece vocabulary. Empty uses a built-in
	// minimal vocabulary.
	VocabPath string

	// SharedLibraryPath locates the ONNX runtime shared library.
	SharedLibraryPath string
}

// NewEngine creates an uninitialized engine. Call Initialize before Embed.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("embedding model path is required")
	}
	return &Engine{
		modelPath: cfg.ModelPath,
		dimension: Dimension,
	}, nil
}

// Initialize loads the ONNX model and vocabulary.
func (e *Engine) Initialize(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := os.Stat(e.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("embedding model not found: %s", e.modelPath)
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to load ONNX model: %w", err)
	}
	e.session = session

	wp, err := NewWordPiece(cfg.VocabPath)
	if err != nil {
		e.session.Destroy()
		return fmt.Errorf("failed to load vocabulary: %w", err)
	}
	e.wordPiece = wp

	e.ready = true
	log.Infof("Local embedding engine ready (model %s)", filepath.Base(e.modelPath))
	return nil
}

// Ready reports whether the engine can serve inference.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Embed computes a normalized embedding vector for text.
func (e *Engine) Embed(text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready {
		return nil, fmt.Errorf("embedding engine not initialized")
	}

	encoded := e.wordPiece.Encode(text, MaxSequenceLength)
	return e.runInference(encoded)
}

// runInference executes the model. Read lock must be held.
func (e *Engine) runInference(in *Encoded) ([]float32, error) {
	seqLen := int64(len(in.InputIDs))

	inputIDs, err := ort.NewTensor(ort.NewShape(1, seqLen), in.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()

	attentionMask, err := ort.NewTensor(ort.NewShape(1, seqLen), in.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()

	tokenTypeIDs, err := ort.NewTensor(ort.NewShape(1, seqLen), in.TokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDs.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(e.dimension)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{inputIDs, attentionMask, tokenTypeIDs},
		[]ort.ArbitraryTensor{output},
	)
	if err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}

	vec := meanPool(output.GetData(), in.AttentionMask, int(seqLen), e.dimension)
	return normalize(vec), nil
}

// meanPool averages token embeddings weighted by the attention mask.
func meanPool(output []float32, mask []int64, seqLen, dim int) []float32 {
	vec := make([]float32, dim)
	var weight float32
	for i := 0; i < seqLen; i++ {
		if mask[i] != 1 {
			continue
		}
		for j := 0; j < dim; j++ {
			vec[j] += output[i*dim+j]
		}
		weight++
	}
	if weight > 0 {
		for j := range vec {
			vec[j] /= weight
		}
	}
	return vec
}

// normalize applies L2 normalization in place.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Shutdown releases ONNX runtime resources.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return nil
	}
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.ready = false
	log.Info("Local embedding engine shut down")
	return nil
}
