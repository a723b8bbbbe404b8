// Package scenario plays back small Lua scripts against a live
// aspeedi2c/aspeedsmc controller pair. The teacher embeds gopher-lua for
// replayable scripted sequences tied to its player engines (deterministic
// register pokes replayed from a script instead of hand-written Go); this
// package reuses the same interpreter for the same purpose against these
// two controllers, so the testable properties in spec.md §8 can be
// checked into scenario/testdata/ as short, reviewable scripts rather
// than Go test functions.
package scenario

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// device is the subset of (*aspeedi2c.Controller) / (*aspeedsmc.Controller)
// a scenario script can drive.
type device interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
	Reset()
}

// Runner exposes a named set of devices to Lua scenario scripts as global
// tables (e.g. "i2c", "smc"), each with read32/write32/reset methods.
type Runner struct {
	L       *lua.LState
	devices map[string]device
}

// NewRunner creates a Runner with its own Lua state. Call Close when done.
func NewRunner() *Runner {
	r := &Runner{L: lua.NewState(), devices: map[string]device{}}
	r.L.SetGlobal("assert_eq", r.L.NewFunction(assertEq))
	return r
}

// Close releases the underlying Lua state.
func (r *Runner) Close() { r.L.Close() }

// Attach registers d under name, exposing name.read32(offset),
// name.write32(offset, value) and name.reset() to scenario scripts.
func (r *Runner) Attach(name string, d device) {
	r.devices[name] = d

	tbl := r.L.NewTable()
	r.L.SetField(tbl, "read32", r.L.NewFunction(func(L *lua.LState) int {
		off := uint32(L.CheckNumber(1))
		L.Push(lua.LNumber(d.Read32(off)))
		return 1
	}))
	r.L.SetField(tbl, "write32", r.L.NewFunction(func(L *lua.LState) int {
		off := uint32(L.CheckNumber(1))
		val := uint32(L.CheckNumber(2))
		d.Write32(off, val)
		return 0
	}))
	r.L.SetField(tbl, "reset", r.L.NewFunction(func(L *lua.LState) int {
		d.Reset()
		return 0
	}))
	r.L.SetGlobal(name, tbl)
}

// Run executes the scenario script at path. A failed assert_eq call, or
// any other Lua runtime error, surfaces as a Go error.
func (r *Runner) Run(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("scenario %s: %w", path, err)
	}
	return nil
}

// assertEq is the scripting-side assertion primitive: assert_eq(got,
// want[, message]).
func assertEq(L *lua.LState) int {
	got := L.CheckNumber(1)
	want := L.CheckNumber(2)
	if got != want {
		msg := "assert_eq failed"
		if L.GetTop() >= 3 {
			msg = L.CheckString(3)
		}
		L.RaiseError("%s: got %v, want %v", msg, got, want)
	}
	return 0
}
