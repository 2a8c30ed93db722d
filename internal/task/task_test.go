// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	d := New(TypeCreative, "write a poem")

	require.NotEmpty(t, d.ID)
	assert.Equal(t, TypeCreative, d.Type)
	assert.Equal(t, PriorityMedium, d.Priority)
	assert.NoError(t, d.Validate())
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Descriptor)
		wantErr error
	}{
		{
			name:   "valid descriptor",
			mutate: func(d *Descriptor) {},
		},
		{
			name:    "empty content",
			mutate:  func(d *Descriptor) { d.Content = "" },
			wantErr: ErrEmptyContent,
		},
		{
			name:    "unknown task type",
			mutate:  func(d *Descriptor) { d.Type = "mind-reading" },
			wantErr: ErrUnknownTaskType,
		},
		{
			name:    "negative max cost",
			mutate:  func(d *Descriptor) { d.MaxCost = -0.01 },
			wantErr: ErrNegativeMaxCost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(TypeAnalysis, "summarize quarterly numbers")
			tt.mutate(d)

			err := d.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestType_IsValid(t *testing.T) {
	for _, typ := range KnownTypes {
		assert.True(t, typ.IsValid(), "expected %q to be valid", typ)
	}
	assert.False(t, Type("").IsValid())
	assert.False(t, Type("telepathy").IsValid())
}

func TestPriority_IsValid(t *testing.T) {
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		assert.True(t, p.IsValid())
	}
	assert.False(t, Priority("urgent-ish").IsValid())
}
