// Package luahost loads loader modules written as Lua files.
//
// A loader file is executed once when first loaded. It is deferred-capable
// when it defines a global `deferred(compilation, options)` function; an
// optional global `configure(options)` receives the coordinator's options
// at registration time. The compilation is exposed to Lua as a table with
// an `id` string, an `emit(name, content)` function, and an `assets()`
// function returning the emitted names. `deferred` signals failure by
// returning an error string; returning nothing (or nil) means success.
package luahost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/vk/deferloader/internal/build"
	"github.com/vk/deferloader/internal/ctxlog"
	"github.com/vk/deferloader/internal/loader"
)

// Host loads Lua loader modules from disk. Each module owns a dedicated
// Lua state kept alive until Close, since its deferred entry point runs
// long after loading. States are independent, so concurrently-emitting
// loaders never share a VM.
type Host struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex // serializes all calls into the state
	state  *lua.LState
	module *loader.Module
}

// New creates an empty Host.
func New() *Host {
	return &Host{
		entries: make(map[string]*entry),
	}
}

// Load executes the Lua file at path (once; repeat loads return the same
// module) and inspects its globals for the deferred and configure entry
// points.
func (h *Host) Load(ctx context.Context, path string) (*loader.Module, error) {
	logger := ctxlog.FromContext(ctx)

	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.entries[path]; ok {
		return e.module, nil
	}

	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("executing lua loader %q: %w", path, err)
	}

	e := &entry{state: L}
	m := &loader.Module{Path: path}

	if fn, ok := L.GetGlobal("deferred").(*lua.LFunction); ok {
		m.Deferred = e.deferred(fn)
	}
	if fn, ok := L.GetGlobal("configure").(*lua.LFunction); ok {
		m.Configure = e.configure(fn)
	}

	e.module = m
	h.entries[path] = e
	logger.Debug("Loaded lua loader module.", "path", path, "deferred_capable", m.Deferred != nil)
	return m, nil
}

// Close releases every Lua state owned by the host.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		e.mu.Lock()
		e.state.Close()
		e.mu.Unlock()
	}
	h.entries = make(map[string]*entry)
}

func (e *entry) configure(fn *lua.LFunction) func(options any) {
	return func(options any) {
		e.mu.Lock()
		defer e.mu.Unlock()

		L := e.state
		err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, goToLua(L, options))
		if err != nil {
			// Configuration acceptance is a side effect with no error
			// channel in the loader contract; surface it in the logs.
			slog.Warn("Lua configure call failed.", "path", e.module.Path, "error", err)
		}
	}
}

func (e *entry) deferred(fn *lua.LFunction) loader.DeferredFunc {
	return func(ctx context.Context, c *build.Compilation, options any) error {
		e.mu.Lock()
		defer e.mu.Unlock()

		L := e.state
		err := L.CallByParam(
			lua.P{Fn: fn, NRet: 1, Protect: true},
			compilationTable(L, c),
			goToLua(L, options),
		)
		if err != nil {
			return fmt.Errorf("lua deferred call in %q: %w", e.module.Path, err)
		}

		ret := L.Get(-1)
		L.Pop(1)
		if msg, ok := ret.(lua.LString); ok && string(msg) != "" {
			return errors.New(string(msg))
		}
		return nil
	}
}

// compilationTable builds the Lua-facing view of the compilation object.
func compilationTable(L *lua.LState, c *build.Compilation) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(c.ID.String()))
	t.RawSetString("emit", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		content := L.CheckString(2)
		c.EmitAsset(name, []byte(content))
		return 0
	}))
	t.RawSetString("assets", L.NewFunction(func(L *lua.LState) int {
		names := L.NewTable()
		for i, name := range c.AssetNames() {
			names.RawSetInt(i+1, lua.LString(name))
		}
		L.Push(names)
		return 1
	}))
	return t
}

// goToLua converts a native Go value into its Lua counterpart. Option
// values come from generic configuration, so only JSON-shaped types occur.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []any:
		t := L.NewTable()
		for i, item := range val {
			t.RawSetInt(i+1, goToLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for key, item := range val {
			t.RawSetString(key, goToLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
