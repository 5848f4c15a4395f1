package api

import (
	"log/slog"
	"sync"

	lua "github.com/yuin/gopher-lua"

	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

// Factory builds per-plugin API surfaces bound to the host collaborators.
type Factory struct {
	ctx *Context
}

// NewFactory creates an API factory over the given collaborator context.
func NewFactory(ctx *Context) *Factory {
	if ctx.Logger == nil {
		ctx.Logger = slog.Default()
	}
	return &Factory{ctx: ctx}
}

// Build assembles the API table for one plugin and preloads it into the
// plugin's state as the "lumina" module, so guest code can either use the
// table passed to setup or require("lumina"). Every namespace function
// checks the plugin's capabilities at call time.
func (f *Factory) Build(s *luavm.State, meta Meta, perms *security.PermissionSet, tracker Tracker) lua.LValue {
	L := s.LuaState()

	b := &binding{
		ctx:     f.ctx,
		state:   s,
		meta:    meta,
		perms:   perms,
		tracker: tracker,
		log:     f.ctx.Logger.With("plugin", meta.ID),
		timers:  newTimerSet(),
	}
	tracker.Add(func() error {
		b.timers.clearAll()
		return nil
	})

	root := L.NewTable()
	L.SetField(root, "vault", b.vaultModule(L))
	L.SetField(root, "workspace", b.workspaceModule(L))
	L.SetField(root, "commands", b.commandsModule(L))
	L.SetField(root, "events", b.eventsModule(L))
	L.SetField(root, "ui", b.uiModule(L))
	L.SetField(root, "storage", b.storageModule(L))
	L.SetField(root, "runtime", b.runtimeModule(L))
	L.SetField(root, "network", b.networkModule(L))
	L.SetField(root, "interop", b.interopModule(L))
	L.SetField(root, "logger", b.loggerModule(L))

	L.PreloadModule("lumina", func(L *lua.LState) int {
		L.Push(root)
		return 1
	})

	return root
}

// InfoValue builds the info table passed as the second argument to the
// plugin's setup function.
func (f *Factory) InfoValue(s *luavm.State, meta Meta) lua.LValue {
	return luavm.ToLuaValue(s.LuaState(), map[string]any{
		"id":          meta.ID,
		"name":        meta.Name,
		"version":     meta.Version,
		"description": meta.Description,
		"author":      meta.Author,
	})
}

// binding is the per-plugin state shared by all namespace modules.
type binding struct {
	ctx     *Context
	state   *luavm.State
	meta    Meta
	perms   *security.PermissionSet
	tracker Tracker
	log     *slog.Logger
	timers  *timerSet
}

// require raises a Lua error when the plugin lacks cap. Called before any
// side effect of the operation.
func (b *binding) require(L *lua.LState, cap security.Capability, op string) {
	if err := b.perms.Require(cap, op); err != nil {
		L.RaiseError("%v", err)
	}
}

// disposer wraps release as a Lua function and mirrors it into the
// tracker. Both paths share one sync.Once, so the release runs at most
// once no matter whether the plugin or the unload path triggers it.
func (b *binding) disposer(L *lua.LState, release func() error) *lua.LFunction {
	var once sync.Once
	run := func() error {
		var err error
		once.Do(func() {
			err = release()
		})
		return err
	}

	b.tracker.Add(run)

	return L.NewFunction(func(L *lua.LState) int {
		if err := run(); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	})
}

// luaCallback adapts a Lua function into a Go callback that logs failures
// instead of propagating them to the host.
func (b *binding) luaCallback(fn *lua.LFunction, args ...lua.LValue) func() {
	return func() {
		if _, err := b.state.CallFunction(fn, args...); err != nil {
			b.log.Error("plugin callback failed", "error", err)
		}
	}
}

func getTableString(L *lua.LState, t *lua.LTable, key string) string {
	if v, ok := L.GetField(t, key).(lua.LString); ok {
		return string(v)
	}
	return ""
}
