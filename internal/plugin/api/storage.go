package api

import (
	lua "github.com/yuin/gopher-lua"

	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

func (b *binding) storageModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(b.storageGet))
	L.SetField(mod, "set", L.NewFunction(b.storageSet))
	L.SetField(mod, "delete", L.NewFunction(b.storageDelete))
	L.SetField(mod, "keys", L.NewFunction(b.storageKeys))
	return mod
}

// get(key) -> value|nil
func (b *binding) storageGet(L *lua.LState) int {
	b.require(L, security.CapabilityStorageRead, "storage.get")
	key := L.CheckString(1)

	L.Push(luavm.ToLuaValue(L, b.ctx.Storage.Get(b.meta.ID, key)))
	return 1
}

// set(key, value)
func (b *binding) storageSet(L *lua.LState) int {
	b.require(L, security.CapabilityStorageWrite, "storage.set")
	key := L.CheckString(1)
	value := luavm.ToGoValue(L.CheckAny(2))

	if err := b.ctx.Storage.Set(b.meta.ID, key, value); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// delete(key)
func (b *binding) storageDelete(L *lua.LState) int {
	b.require(L, security.CapabilityStorageWrite, "storage.delete")
	key := L.CheckString(1)

	if err := b.ctx.Storage.Delete(b.meta.ID, key); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// keys() -> { key, ... }
func (b *binding) storageKeys(L *lua.LState) int {
	b.require(L, security.CapabilityStorageRead, "storage.keys")

	result := L.NewTable()
	for i, k := range b.ctx.Storage.Keys(b.meta.ID) {
		result.RawSetInt(i+1, lua.LString(k))
	}
	L.Push(result)
	return 1
}
