package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/plugin/security"
)

// timerSet tracks the live timers of one plugin so they can all be
// stopped on unload.
type timerSet struct {
	mu    sync.Mutex
	stops map[string]func()
}

func newTimerSet() *timerSet {
	return &timerSet{stops: make(map[string]func())}
}

func (t *timerSet) add(id string, stop func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops[id] = stop
}

// clear stops and forgets the timer with the given id. Unknown ids are a
// no-op, so fired timeouts and double clears are safe.
func (t *timerSet) clear(id string) bool {
	t.mu.Lock()
	stop, ok := t.stops[id]
	delete(t.stops, id)
	t.mu.Unlock()

	if ok {
		stop()
	}
	return ok
}

func (t *timerSet) clearAll() {
	t.mu.Lock()
	stops := t.stops
	t.stops = make(map[string]func())
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}

func (t *timerSet) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stops)
}

func (b *binding) runtimeModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "setTimeout", L.NewFunction(b.setTimeout))
	L.SetField(mod, "setInterval", L.NewFunction(b.setInterval))
	L.SetField(mod, "clearTimeout", L.NewFunction(b.clearTimer))
	L.SetField(mod, "clearInterval", L.NewFunction(b.clearTimer))
	return mod
}

// setTimeout(fn, ms) -> id
func (b *binding) setTimeout(L *lua.LState) int {
	b.require(L, security.CapabilityRuntimeTimers, "runtime.setTimeout")
	fn := L.CheckFunction(1)
	ms := int(L.CheckNumber(2))
	if ms < 0 {
		L.ArgError(2, "delay must not be negative")
	}

	id := uuid.NewString()
	call := b.luaCallback(fn)
	timer := time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		b.timers.clear(id)
		call()
	})
	b.timers.add(id, func() { timer.Stop() })

	L.Push(lua.LString(id))
	return 1
}

// setInterval(fn, ms) -> id
func (b *binding) setInterval(L *lua.LState) int {
	b.require(L, security.CapabilityRuntimeTimers, "runtime.setInterval")
	fn := L.CheckFunction(1)
	ms := int(L.CheckNumber(2))
	if ms <= 0 {
		L.ArgError(2, "interval must be positive")
	}

	id := uuid.NewString()
	call := b.luaCallback(fn)
	ticker := time.NewTicker(time.Duration(ms) * time.Millisecond)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				call()
			}
		}
	}()

	b.timers.add(id, func() {
		ticker.Stop()
		close(done)
	})

	L.Push(lua.LString(id))
	return 1
}

// clearTimeout(id) / clearInterval(id)
func (b *binding) clearTimer(L *lua.LState) int {
	b.require(L, security.CapabilityRuntimeTimers, "runtime.clearTimer")
	b.timers.clear(L.CheckString(1))
	return 0
}
