package api

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/plugin/security"
	"github.com/lumina-notes/lumina/internal/vault"
)

func (b *binding) vaultModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "read", L.NewFunction(b.vaultRead))
	L.SetField(mod, "write", L.NewFunction(b.vaultWrite))
	L.SetField(mod, "delete", L.NewFunction(b.vaultDelete))
	L.SetField(mod, "rename", L.NewFunction(b.vaultRename))
	L.SetField(mod, "move", L.NewFunction(b.vaultMove))
	L.SetField(mod, "list", L.NewFunction(b.vaultList))
	return mod
}

// resolvePath validates p against the workspace root and returns the
// absolute path. A path outside the root raises, never clamps.
func (b *binding) resolvePath(L *lua.LState, p string) string {
	abs, err := vault.Resolve(b.ctx.WorkspaceRoot, p)
	if err != nil {
		L.RaiseError("%v", err)
	}
	return abs
}

// read(path) -> content
func (b *binding) vaultRead(L *lua.LState) int {
	b.require(L, security.CapabilityVaultRead, "vault.read")
	path := b.resolvePath(L, L.CheckString(1))

	content, err := b.ctx.Vault.ReadFile(context.Background(), path)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LString(content))
	return 1
}

// write(path, content)
func (b *binding) vaultWrite(L *lua.LState) int {
	b.require(L, security.CapabilityVaultWrite, "vault.write")
	path := b.resolvePath(L, L.CheckString(1))
	content := L.CheckString(2)

	if err := b.ctx.Vault.SaveFile(context.Background(), path, content); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// delete(path)
func (b *binding) vaultDelete(L *lua.LState) int {
	b.require(L, security.CapabilityVaultWrite, "vault.delete")
	path := b.resolvePath(L, L.CheckString(1))

	if err := b.ctx.Vault.DeleteFile(context.Background(), path); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// rename(oldPath, newPath)
func (b *binding) vaultRename(L *lua.LState) int {
	b.require(L, security.CapabilityVaultWrite, "vault.rename")
	oldPath := b.resolvePath(L, L.CheckString(1))
	newPath := b.resolvePath(L, L.CheckString(2))

	if err := b.ctx.Vault.RenameFile(context.Background(), oldPath, newPath); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// move(oldPath, newPath)
func (b *binding) vaultMove(L *lua.LState) int {
	b.require(L, security.CapabilityVaultWrite, "vault.move")
	oldPath := b.resolvePath(L, L.CheckString(1))
	newPath := b.resolvePath(L, L.CheckString(2))

	if err := b.ctx.Vault.MoveFile(context.Background(), oldPath, newPath); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// list(path) -> { {name=..., isDir=...}, ... }
func (b *binding) vaultList(L *lua.LState) int {
	b.require(L, security.CapabilityVaultRead, "vault.list")
	path := b.resolvePath(L, L.CheckString(1))

	entries, err := b.ctx.Vault.ListDirectory(context.Background(), path)
	if err != nil {
		L.RaiseError("%v", err)
	}

	result := L.NewTable()
	for i, e := range entries {
		tbl := L.NewTable()
		L.SetField(tbl, "name", lua.LString(e.Name))
		L.SetField(tbl, "isDir", lua.LBool(e.IsDir))
		result.RawSetInt(i+1, tbl)
	}
	L.Push(result)
	return 1
}
