// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tiktoken-go/tokenizer"
)

// TokenEstimator estimates token counts for cost calculation before and after
// provider calls. It prefers tiktoken's cl100k encoding and falls back to a
// words*1.3 approximation when the codec is unavailable.
type TokenEstimator struct {
	once  sync.Once
	codec tokenizer.Codec
}

// NewTokenEstimator creates an estimator. The codec loads lazily on first use.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// Estimate returns the token count for content.
func (te *TokenEstimator) Estimate(content string) int {
	if len(content) == 0 {
		return 0
	}

	te.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warnf("tiktoken codec unavailable, using simple estimation: %v", err)
			return
		}
		te.codec = codec
	})

	if te.codec != nil {
		if ids, _, err := te.codec.Encode(content); err == nil {
			return len(ids)
		}
	}
	return te.simpleEstimate(content)
}

// simpleEstimate approximates with word count * 1.3, the average subword
// expansion for English text.
func (te *TokenEstimator) simpleEstimate(content string) int {
	words := 0
	inWord := false
	for _, r := range content {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
		} else if !inWord {
			words++
			inWord = true
		}
	}
	return int(float64(words) * 1.3)
}

// EstimateCost computes the USD cost for a prompt/completion pair given
// per-1k-token prices. Local providers pass zero prices and always cost zero.
func (te *TokenEstimator) EstimateCost(inputTokens, outputTokens int, per1KInput, per1KOutput float64) float64 {
	return float64(inputTokens)/1000*per1KInput + float64(outputTokens)/1000*per1KOutput
}
