package api

import (
	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/contrib"
	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

func (b *binding) workspaceModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "registerPanel", L.NewFunction(b.registerPanel))
	L.SetField(mod, "registerTabType", L.NewFunction(b.registerTabType))
	L.SetField(mod, "openRegisteredTab", L.NewFunction(b.openRegisteredTab))
	L.SetField(mod, "rootPath", L.NewFunction(b.workspaceRootPath))
	return mod
}

// addContribution registers opts under the given kind and returns the
// dispose function. The resource id comes from opts.id when present so a
// re-register replaces the earlier contribution.
func (b *binding) addContribution(L *lua.LState, kind contrib.Kind, resourceID string, opts *lua.LTable) *lua.LFunction {
	if resourceID == "" {
		resourceID = uuid.NewString()
	}

	var payload map[string]any
	if opts != nil {
		payload, _ = luavm.ToGoValue(opts).(map[string]any)
	}

	h := b.ctx.Contrib.Add(b.meta.ID, resourceID, kind, payload)
	return b.disposer(L, func() error {
		b.ctx.Contrib.Remove(h)
		return nil
	})
}

// registerPanel(opts) -> dispose
func (b *binding) registerPanel(L *lua.LState) int {
	b.require(L, security.CapabilityWorkspacePanels, "workspace.registerPanel")
	opts := L.CheckTable(1)

	L.Push(b.addContribution(L, contrib.KindPanel, getTableString(L, opts, "id"), opts))
	return 1
}

// registerTabType(opts) -> dispose
//
// Tab types are keyed by opts.type (the name openRegisteredTab resolves),
// falling back to opts.id.
func (b *binding) registerTabType(L *lua.LState) int {
	b.require(L, security.CapabilityWorkspaceTabs, "workspace.registerTabType")
	opts := L.CheckTable(1)

	key := getTableString(L, opts, "type")
	if key == "" {
		key = getTableString(L, opts, "id")
	}
	L.Push(b.addContribution(L, contrib.KindTabType, key, opts))
	return 1
}

// openRegisteredTab(tabType, state?)
func (b *binding) openRegisteredTab(L *lua.LState) int {
	b.require(L, security.CapabilityWorkspaceTabs, "workspace.openRegisteredTab")
	tabType := L.CheckString(1)

	var state map[string]any
	if L.GetTop() >= 2 {
		state, _ = luavm.ToGoValue(L.CheckTable(2)).(map[string]any)
	}

	if _, ok := b.ctx.Contrib.Lookup(b.meta.ID, contrib.KindTabType, tabType); !ok {
		L.RaiseError("openRegisteredTab: unknown tab type %q", tabType)
	}
	if b.ctx.Tabs == nil {
		L.RaiseError("openRegisteredTab: no tab host available")
	}
	if err := b.ctx.Tabs.OpenTab(b.meta.ID, tabType, state); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// rootPath() -> string
func (b *binding) workspaceRootPath(L *lua.LState) int {
	L.Push(lua.LString(b.ctx.WorkspaceRoot))
	return 1
}
