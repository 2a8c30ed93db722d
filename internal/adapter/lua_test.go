// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLuaAdapter_RewritesPrompt(t *testing.T) {
	a, err := NewLuaAdapterFromSource("suffix", `
		function adapt(prompt, context)
			return prompt .. " [labeled]"
		end
	`)
	require.NoError(t, err)

	out, err := a.Adapt("original prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "original prompt [labeled]", out)
}

func TestLuaAdapter_ReadsContext(t *testing.T) {
	a, err := NewLuaAdapterFromSource("personalize", `
		function adapt(prompt, context)
			if context.tone then
				return prompt .. " (tone: " .. context.tone .. ")"
			end
			return prompt
		end
	`)
	require.NoError(t, err)

	out, err := a.Adapt("greet the user", map[string]interface{}{"tone": "playful"})
	require.NoError(t, err)
	assert.Equal(t, "greet the user (tone: playful)", out)

	out, err = a.Adapt("greet the user", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "greet the user", out)
}

func TestLuaAdapter_MissingAdaptFunctionIsNoop(t *testing.T) {
	a, err := NewLuaAdapterFromSource("empty", `local x = 1`)
	require.NoError(t, err)

	out, err := a.Adapt("untouched", nil)
	require.NoError(t, err)
	assert.Equal(t, "untouched", out)
}

func TestLuaAdapter_CompileErrorRejected(t *testing.T) {
	_, err := NewLuaAdapterFromSource("broken", `function adapt(prompt context) end`)
	assert.Error(t, err)
}

func TestLuaAdapter_RuntimeErrorPropagates(t *testing.T) {
	a, err := NewLuaAdapterFromSource("boom", `
		function adapt(prompt, context)
			error("script failure")
		end
	`)
	require.NoError(t, err)

	_, err = a.Adapt("anything", nil)
	assert.Error(t, err)
}

func TestLuaAdapter_NonStringResultRejected(t *testing.T) {
	a, err := NewLuaAdapterFromSource("numbers", `
		function adapt(prompt, context)
			return 42
		end
	`)
	require.NoError(t, err)

	_, err = a.Adapt("anything", nil)
	assert.Error(t, err)
}

func TestLoadLuaAdapters_FromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_second.lua"),
		[]byte(`function adapt(p, c) return p .. " b" end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_first.lua"),
		[]byte(`function adapt(p, c) return p .. " a" end`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("not a script"), 0o644))

	adapters, err := LoadLuaAdapters(dir)
	require.NoError(t, err)
	require.Len(t, adapters, 2)

	// Filename order decides chain order.
	assert.Equal(t, "a_first", adapters[0].Name())
	assert.Equal(t, "b_second", adapters[1].Name())
}

func TestLoadLuaAdapters_MissingDirectory(t *testing.T) {
	adapters, err := LoadLuaAdapters("/does/not/exist")
	assert.NoError(t, err)
	assert.Empty(t, adapters)
}

func TestChain_AppliesInOrderAndDegrades(t *testing.T) {
	chain := NewChain()

	first, err := NewLuaAdapterFromSource("first", `function adapt(p, c) return p .. " one" end`)
	require.NoError(t, err)
	failing, err := NewLuaAdapterFromSource("failing", `function adapt(p, c) error("nope") end`)
	require.NoError(t, err)
	second, err := NewLuaAdapterFromSource("second", `function adapt(p, c) return p .. " two" end`)
	require.NoError(t, err)

	chain.Register(first)
	chain.Register(failing)
	chain.Register(second)

	var failed []string
	out := chain.Apply("start", nil, func(name string, err error) {
		failed = append(failed, name)
	})

	assert.Equal(t, "start one two", out)
	assert.Equal(t, []string{"failing"}, failed)
}
