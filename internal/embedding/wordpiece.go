// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embedding

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Encoded is tokenizer output shaped for BERT-style model input.
type Encoded struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// WordPiece is a minimal WordPiece tokenizer for BERT-style embedding models.
type WordPiece struct {
	vocab map[string]int64

	clsID int64
	sepID int64
	unkID int64
}

// NewWordPiece loads a vocabulary file with one token per line. An empty or
// missing path falls back to a built-in minimal vocabulary so the engine can
// operate without model assets during development.
func NewWordPiece(vocabPath string) (*WordPiece, error) {
	wp := &WordPiece{vocab: make(map[string]int64)}

	if vocabPath == "" {
		wp.loadMinimalVocab()
		return wp, nil
	}

	file, err := os.Open(vocabPath)
	if err != nil {
		wp.loadMinimalVocab()
		return wp, nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		wp.vocab[scanner.Text()] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading vocabulary: %w", err)
	}

	wp.bindSpecialTokens()
	return wp, nil
}

func (wp *WordPiece) loadMinimalVocab() {
	minimal := []string{
		"[PAD]", "[UNK]", "[CLS]", "[SEP]", "[MASK]",
		"the", "a", "an", "is", "are", "to", "of", "in", "for", "on", "with",
		"and", "or", "not", "this", "that", "it", "be", "have",
		"what", "which", "who", "where", "when", "why", "how",
		"product", "store", "shop", "price", "review", "buy", "sell",
		"write", "create", "build", "make", "help", "explain", "describe",
		"##s", "##ed", "##ing", "##er", "##ly", "##tion", "##ment",
	}
	for i, token := range minimal {
		wp.vocab[token] = int64(i)
	}
	wp.bindSpecialTokens()
}

func (wp *WordPiece) bindSpecialTokens() {
	wp.clsID = wp.vocab["[CLS]"]
	wp.sepID = wp.vocab["[SEP]"]
	wp.unkID = wp.vocab["[UNK]"]
}

// Encode lowercases, normalizes and tokenizes text, bracketing it with the
// [CLS] and [SEP] markers and truncating to maxLength.
func (wp *WordPiece) Encode(text string, maxLength int) *Encoded {
	words := strings.Fields(separatePunct(strings.ToLower(text)))

	ids := []int64{wp.clsID}
	for _, word := range words {
		ids = append(ids, wp.encodeWord(word)...)
		if len(ids) >= maxLength-1 {
			break
		}
	}
	if len(ids) > maxLength-1 {
		ids = ids[:maxLength-1]
	}
	ids = append(ids, wp.sepID)

	seqLen := len(ids)
	mask := make([]int64, seqLen)
	types := make([]int64, seqLen)
	for i := range mask {
		mask[i] = 1
	}

	return &Encoded{InputIDs: ids, AttentionMask: mask, TokenTypeIDs: types}
}

// encodeWord finds the longest-matching subwords, emitting [UNK] per
// unmatched leading character.
func (wp *WordPiece) encodeWord(word string) []int64 {
	if id, ok := wp.vocab[word]; ok {
		return []int64{id}
	}

	var ids []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := wp.vocab[sub]; ok {
				ids = append(ids, id)
				start = end
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, wp.unkID)
			start++
		}
	}
	if len(ids) == 0 {
		return []int64{wp.unkID}
	}
	return ids
}

func separatePunct(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsPunct(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
