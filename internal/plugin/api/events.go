package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/event"
	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

func (b *binding) eventsModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "on", L.NewFunction(b.eventsOn))
	return mod
}

// on(topic, handler) -> off
func (b *binding) eventsOn(L *lua.LState) int {
	b.require(L, security.CapabilityEventsSubscribe, "events.on")
	topic := L.CheckString(1)
	fn := L.CheckFunction(2)

	off, err := b.ctx.Events.Subscribe(b.meta.ID, topic, func(payload event.Payload) {
		arg := luavm.ToLuaValue(b.state.LuaState(), map[string]any(payload))
		if _, err := b.state.CallFunction(fn, arg); err != nil {
			b.log.Error("event handler failed", "topic", topic, "error", err)
		}
	})
	if err != nil {
		L.RaiseError("%v", err)
	}

	L.Push(b.disposer(L, func() error {
		off()
		return nil
	}))
	return 1
}
