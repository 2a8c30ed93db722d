// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cache provides the content-addressed offline response cache and
// the last-resort execution path that falls back to locally-hosted models
// when every remote provider fails.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aiverse/hybridstack/internal/task"
	"github.com/aiverse/hybridstack/internal/util"
)

// Entry is one cached response.
type Entry struct {
	// Response is the cached text.
	Response string

	// TaskType is the task type that produced the response.
	TaskType task.Type

	// Model is the model that produced the response.
	Model string

	// CreatedAt is the insertion time; entries expire CreatedAt+TTL.
	CreatedAt time.Time

	// element is the insertion-order list element used for eviction.
	element *list.Element
}

// Cache is a TTL-bounded, size-capped response cache keyed by a hash of the
// normalized (system prompt, prompt, task type) triple. Eviction removes the
// oldest-inserted entries first once the cap is exceeded; an entry past its
// TTL is never served regardless of the sweep schedule.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	insertions *list.List
	ttl        time.Duration
	maxEntries int
	clock      util.Clock

	hits   int64
	misses int64

	sweepInterval time.Duration
	running       bool
	ticker        *time.Ticker
	stop          chan struct{}
	done          chan struct{}
}

// New creates a cache with the given TTL, size cap and sweep interval.
func New(ttl time.Duration, maxEntries int, sweepInterval time.Duration, clock util.Clock) *Cache {
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Cache{
		entries:       make(map[string]*Entry),
		insertions:    list.New(),
		ttl:           ttl,
		maxEntries:    maxEntries,
		sweepInterval: sweepInterval,
		clock:         clock,
	}
}

// Key computes the deterministic cache key for the normalized inputs.
func Key(systemPrompt, prompt string, taskType task.Type) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(systemPrompt)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(prompt)))
	h.Write([]byte{0})
	h.Write([]byte(taskType))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for key if present and not expired. Expired entries
// are treated as misses and removed eagerly.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.clock.Now().Sub(e.CreatedAt) >= c.ttl {
		c.removeLocked(key, e)
		c.misses++
		return nil, false
	}
	c.hits++
	return e, true
}

// Put stores a response under key, evicting the oldest-inserted entries if
// the cap is exceeded. Storing an existing key refreshes its timestamp and
// insertion position.
func (c *Cache) Put(key, response, model string, taskType task.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}

	for len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}

	e := &Entry{
		Response:  response,
		TaskType:  taskType,
		Model:     model,
		CreatedAt: c.clock.Now(),
	}
	e.element = c.insertions.PushBack(key)
	c.entries[key] = e
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Sweep removes every expired entry now. Called by the background loop and
// exposed for deterministic tests.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.CreatedAt) >= c.ttl {
			c.removeLocked(key, e)
			removed++
		}
	}
	return removed
}

// Start begins the background TTL sweep loop.
func (c *Cache) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("cache sweeper is already running")
	}
	c.ticker = time.NewTicker(c.sweepInterval)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true

	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.stop:
				return
			case <-c.ticker.C:
				if n := c.Sweep(); n > 0 {
					log.Debugf("cache sweep evicted %d expired entries", n)
				}
			}
		}
	}()
	return nil
}

// Stop terminates the sweep loop. Safe to call when not running.
func (c *Cache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.ticker.Stop()
	close(c.stop)
	c.running = false
	done := c.done
	c.mu.Unlock()
	<-done
}

// removeLocked deletes an entry. Lock must be held.
func (c *Cache) removeLocked(key string, e *Entry) {
	c.insertions.Remove(e.element)
	delete(c.entries, key)
}

// evictOldestLocked drops the oldest-inserted entry. Lock must be held.
func (c *Cache) evictOldestLocked() {
	front := c.insertions.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	if e, ok := c.entries[key]; ok {
		c.removeLocked(key, e)
	}
}
