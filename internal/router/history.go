// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package router

import "sync"

// History is a bounded ring buffer of recent execution attempts. It feeds
// the optimizer's trend analysis; the cost ledger is the system of record.
type History struct {
	mu    sync.RWMutex
	ring  []Attempt
	next  int
	count int
}

// NewHistory creates a history holding the most recent size attempts.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 200
	}
	return &History{ring: make([]Attempt, size)}
}

// Add appends an attempt, overwriting the oldest when full.
func (h *History) Add(a Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = a
	h.next = (h.next + 1) % len(h.ring)
	if h.count < len(h.ring) {
		h.count++
	}
}

// Recent returns up to n attempts, most recent first.
func (h *History) Recent(n int) []Attempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > h.count {
		n = h.count
	}
	out := make([]Attempt, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		out = append(out, h.ring[idx])
	}
	return out
}

// RecentByProvider returns up to n attempts for one provider, most recent first.
func (h *History) RecentByProvider(provider string, n int) []Attempt {
	all := h.Recent(0)
	out := make([]Attempt, 0, n)
	for _, a := range all {
		if a.Provider != provider {
			continue
		}
		out = append(out, a)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Len returns the number of attempts currently retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
