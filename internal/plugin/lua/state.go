// Package lua provides the sandboxed guest runtime for plugin code.
//
// Plugin entry code executes inside a gopher-lua state that opens only safe
// standard libraries. The capability API injected by the host is the entire
// surface a plugin can see; there is no ambient access to the filesystem,
// the network, or host internals.
package lua

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// State wraps gopher-lua for one plugin instance.
//
// gopher-lua's LState is not goroutine-safe. The runtime executes plugin
// code sequentially, and the mutex here protects against concurrent access
// from host callbacks (timers, command handlers).
type State struct {
	L *lua.LState

	mu     sync.Mutex
	closed bool
}

// NewState creates a new sandboxed Lua state.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // opened selectively below
	})

	openSafeLibraries(L)

	s := &State{L: L}
	installSandbox(L)
	return s
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	// package first so require and package.preload exist; the sandbox
	// clears its disk search paths and whitelists what require may load.
	lua.OpenPackage(L)
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// Intentionally NOT opened:
	// - io, os (filesystem and system access go through the capability API)
	// - debug (can bypass the sandbox)
}

// DoString executes Lua code and returns the values it produced.
func (s *State) DoString(code, chunkName string) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	fn, err := s.L.LoadString(code)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", chunkName, err)
	}

	return s.pcall(fn)
}

// CallFunction invokes a Lua function value with the given arguments.
func (s *State) CallFunction(fn *lua.LFunction, args ...lua.LValue) ([]lua.LValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	return s.pcall(fn, args...)
}

// pcall runs fn with panic recovery and collects every returned value.
// Must be called with mu held.
func (s *State) pcall(fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()

	top := s.L.GetTop()
	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}

	if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}

	nRet := s.L.GetTop() - top
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results = make([]lua.LValue, nRet)
	for i := 0; i < nRet; i++ {
		results[i] = s.L.Get(top + i + 1)
	}
	s.L.Pop(nRet)
	return results, nil
}

// LuaState returns the underlying gopher-lua state.
//
// Direct access bypasses the mutex; callers must hold no expectations of
// concurrent safety.
func (s *State) LuaState() *lua.LState {
	return s.L
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases all resources associated with the Lua state.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}
