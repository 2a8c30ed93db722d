// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package util provides small helpers shared across the hybrid stack.
package util

import "time"

// Clock abstracts time-telling so components with TTL or windowing behavior
// can be tested with a deterministic clock instead of wall time.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall-clock implementation used outside tests.
type RealClock struct{}

// Now returns the current wall time.
func (RealClock) Now() time.Time { return time.Now() }

// FakeClock is a manually advanced clock for deterministic tests.
type FakeClock struct {
	current time.Time
}

// NewFakeClock creates a fake clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time { return c.current }

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }
