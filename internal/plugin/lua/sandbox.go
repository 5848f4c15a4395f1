package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// safeModules are the built-in modules a plugin may require.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// installSandbox removes escape hatches from the Lua state and replaces
// require with a whitelist-based version. Only safe built-in modules load;
// everything else a plugin needs arrives through the injected API table.
func installSandbox(L *lua.LState) {
	// Remove functions that could be used to bypass the sandbox.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}

	// Clear package.path/cpath so nothing loads from disk.
	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	originalRequire := L.GetGlobal("require")

	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		modName := L.CheckString(1)

		if safeModules[modName] || hostPreloaded(L, modName) {
			L.Push(originalRequire)
			L.Push(lua.LString(modName))
			L.Call(1, 1)
			return 1
		}

		// L.RaiseError does a longjmp; the return is unreachable.
		L.RaiseError("module %q is not available to plugins", modName)
		return 0
	}))
}

// hostPreloaded reports whether the host registered modName via
// package.preload (the injected API module).
func hostPreloaded(L *lua.LState, modName string) bool {
	pkg, ok := L.GetGlobal("package").(*lua.LTable)
	if !ok {
		return false
	}
	preload, ok := L.GetField(pkg, "preload").(*lua.LTable)
	if !ok {
		return false
	}
	return L.GetField(preload, modName) != lua.LNil
}
