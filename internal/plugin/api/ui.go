package api

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/contrib"
	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

func (b *binding) uiModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "notify", L.NewFunction(b.uiNotify))
	L.SetField(mod, "injectStyle", L.NewFunction(b.injectStyle))
	L.SetField(mod, "setThemeVariables", L.NewFunction(b.setThemeVariables))
	L.SetField(mod, "addRibbonItem", L.NewFunction(b.addRibbonItem))
	L.SetField(mod, "addStatusBarItem", L.NewFunction(b.addStatusBarItem))
	L.SetField(mod, "registerSettingsSection", L.NewFunction(b.registerSettingsSection))
	return mod
}

// notify(message, level?)
func (b *binding) uiNotify(L *lua.LState) int {
	b.require(L, security.CapabilityUINotify, "ui.notify")
	message := L.CheckString(1)

	level := "info"
	if L.GetTop() >= 2 {
		level = L.CheckString(2)
	}

	if b.ctx.Notifier == nil {
		b.log.Info("notification", "level", level, "message", message)
		return 0
	}
	b.ctx.Notifier.Notify(b.meta.ID, level, message)
	return 0
}

// injectStyle(css, id?) -> dispose
//
// With an id, re-injecting replaces the plugin's earlier style under the
// same handle instead of stacking a new one.
func (b *binding) injectStyle(L *lua.LState) int {
	b.require(L, security.CapabilityUIStyles, "ui.injectStyle")
	css := L.CheckString(1)

	resourceID := uuid.NewString()
	if L.GetTop() >= 2 {
		resourceID = L.CheckString(2)
	}

	h := b.ctx.Contrib.Add(b.meta.ID, resourceID, contrib.KindStyle, map[string]any{"css": css})
	L.Push(b.disposer(L, func() error {
		b.ctx.Contrib.Remove(h)
		return nil
	}))
	return 1
}

// setThemeVariables(vars) -> dispose
// A second call replaces the plugin's earlier variables.
func (b *binding) setThemeVariables(L *lua.LState) int {
	b.require(L, security.CapabilityUITheme, "ui.setThemeVariables")
	vars := L.CheckTable(1)

	payload, _ := luavm.ToGoValue(vars).(map[string]any)
	h := b.ctx.Contrib.Add(b.meta.ID, "theme-variables", contrib.KindThemeVar, payload)
	L.Push(b.disposer(L, func() error {
		b.ctx.Contrib.Remove(h)
		return nil
	}))
	return 1
}

// addRibbonItem(opts) -> dispose
// opts: title, icon, and optionally id, onClick.
func (b *binding) addRibbonItem(L *lua.LState) int {
	b.require(L, security.CapabilityUIRibbon, "ui.addRibbonItem")
	opts := L.CheckTable(1)

	L.Push(b.addClickable(L, contrib.KindRibbonItem, opts))
	return 1
}

// addStatusBarItem(opts) -> dispose
// opts: text, and optionally id, onClick.
func (b *binding) addStatusBarItem(L *lua.LState) int {
	b.require(L, security.CapabilityUIStatusBar, "ui.addStatusBarItem")
	opts := L.CheckTable(1)

	L.Push(b.addClickable(L, contrib.KindStatusBar, opts))
	return 1
}

// registerSettingsSection(opts) -> dispose
func (b *binding) registerSettingsSection(L *lua.LState) int {
	b.require(L, security.CapabilityUISettings, "ui.registerSettingsSection")
	opts := L.CheckTable(1)

	L.Push(b.addContribution(L, contrib.KindSettings, getTableString(L, opts, "id"), opts))
	return 1
}

// addClickable stores a contribution whose payload carries the onClick
// handler as a Go callback so the host shell can invoke it.
func (b *binding) addClickable(L *lua.LState, kind contrib.Kind, opts *lua.LTable) *lua.LFunction {
	resourceID := getTableString(L, opts, "id")
	if resourceID == "" {
		resourceID = uuid.NewString()
	}

	payload, _ := luavm.ToGoValue(opts).(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	if fn, ok := L.GetField(opts, "onClick").(*lua.LFunction); ok {
		payload["onClick"] = b.luaCallback(fn)
	}

	h := b.ctx.Contrib.Add(b.meta.ID, resourceID, kind, payload)
	return b.disposer(L, func() error {
		b.ctx.Contrib.Remove(h)
		return nil
	})
}

func (b *binding) loggerModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(b.logFn(slog.LevelDebug)))
	L.SetField(mod, "info", L.NewFunction(b.logFn(slog.LevelInfo)))
	L.SetField(mod, "warn", L.NewFunction(b.logFn(slog.LevelWarn)))
	L.SetField(mod, "error", L.NewFunction(b.logFn(slog.LevelError)))
	return mod
}

// logFn builds debug/info/warn/error(message, fields?). Ungated; every
// record carries the plugin id.
func (b *binding) logFn(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		message := L.CheckString(1)

		var attrs []any
		if L.GetTop() >= 2 {
			if fields, ok := luavm.ToGoValue(L.CheckTable(2)).(map[string]any); ok {
				keys := make([]string, 0, len(fields))
				for k := range fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					attrs = append(attrs, k, fields[k])
				}
			}
		}

		b.log.Log(context.Background(), level, message, attrs...)
		return 0
	}
}
