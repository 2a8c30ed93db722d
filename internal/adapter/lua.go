// Copyright 2026 The Aiverse Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// LuaAdapter runs a compiled Lua script that defines a global
// adapt(prompt, context) function returning the rewritten prompt.
// States are pooled and sandboxed to the safe standard libraries.
type LuaAdapter struct {
	name  string
	proto *lua.FunctionProto
	pool  sync.Pool
}

// LoadLuaAdapters compiles every *.lua file under dir into an adapter,
// sorted by filename so registration order is stable. A missing directory
// yields no adapters and no error.
func LoadLuaAdapters(dir string) ([]*LuaAdapter, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read adapter dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".lua") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	adapters := make([]*LuaAdapter, 0, len(names))
	for _, name := range names {
		a, err := NewLuaAdapter(filepath.Join(dir, name))
		if err != nil {
			log.Warnf("skipping adapter script %s: %v", name, err)
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}

// NewLuaAdapter compiles the script at path.
func NewLuaAdapter(path string) (*LuaAdapter, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return NewLuaAdapterFromSource(strings.TrimSuffix(filepath.Base(path), ".lua"), string(src))
}

// NewLuaAdapterFromSource compiles an in-memory script.
func NewLuaAdapterFromSource(name, source string) (*LuaAdapter, error) {
	probe := newSandboxedState()
	defer probe.Close()

	fn, err := probe.LoadString(source)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	a := &LuaAdapter{name: name, proto: fn.Proto}
	a.pool = sync.Pool{
		New: func() interface{} {
			return newSandboxedState()
		},
	}
	return a, nil
}

// newSandboxedState builds a state with only the safe standard libraries.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	return L
}

// Name returns the script name without extension.
func (a *LuaAdapter) Name() string { return a.name }

// Adapt invokes the script's adapt function. A script without an adapt
// function is a no-op.
func (a *LuaAdapter) Adapt(prompt string, context map[string]interface{}) (string, error) {
	L := a.pool.Get().(*lua.LState)
	defer a.pool.Put(L)

	L.Push(L.NewFunctionFromProto(a.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		return "", fmt.Errorf("load %s: %w", a.name, err)
	}

	fn := L.GetGlobal("adapt")
	if fn == lua.LNil || fn.Type() != lua.LTFunction {
		return prompt, nil
	}

	L.Push(fn)
	L.Push(lua.LString(prompt))
	L.Push(mapToTable(L, context))
	if err := L.PCall(2, 1, nil); err != nil {
		return "", fmt.Errorf("adapt %s: %w", a.name, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	if s, ok := ret.(lua.LString); ok {
		return string(s), nil
	}
	if ret == lua.LNil {
		return prompt, nil
	}
	return "", fmt.Errorf("adapt %s: expected string result, got %s", a.name, ret.Type())
}

func mapToTable(L *lua.LState, m map[string]interface{}) *lua.LTable {
	tbl := L.NewTable()
	for k, v := range m {
		L.SetField(tbl, k, goValue(L, v))
	}
	return tbl
}

func goValue(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case map[string]interface{}:
		return mapToTable(L, val)
	case []interface{}:
		tbl := L.NewTable()
		for i, item := range val {
			L.RawSetInt(tbl, i+1, goValue(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
