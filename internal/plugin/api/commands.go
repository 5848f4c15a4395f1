package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lumina-notes/lumina/internal/command"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

func (b *binding) commandsModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "registerCommand", L.NewFunction(b.registerCommand))
	L.SetField(mod, "registerSlashCommand", L.NewFunction(b.registerSlashCommand))
	return mod
}

// registerCommand(opts) -> dispose
// opts: id, title, run, and optionally description, hotkey.
func (b *binding) registerCommand(L *lua.LState) int {
	b.require(L, security.CapabilityCommandsRegister, "commands.registerCommand")
	opts := L.CheckTable(1)

	id := getTableString(L, opts, "id")
	run, ok := L.GetField(opts, "run").(*lua.LFunction)
	if !ok {
		L.ArgError(1, "run must be a function")
	}

	cmd := command.Command{
		ID:          id,
		Title:       getTableString(L, opts, "title"),
		Description: getTableString(L, opts, "description"),
		Hotkey:      getTableString(L, opts, "hotkey"),
		Run:         b.luaCallback(run),
	}

	if err := b.ctx.Commands.RegisterCommand(b.meta.ID, cmd); err != nil {
		L.RaiseError("%v", err)
	}

	L.Push(b.disposer(L, func() error {
		b.ctx.Commands.UnregisterCommand(b.meta.ID, id)
		return nil
	}))
	return 1
}

// registerSlashCommand(opts) -> dispose
// opts: key, and optionally description, prompt, run.
func (b *binding) registerSlashCommand(L *lua.LState) int {
	b.require(L, security.CapabilityCommandsRegister, "commands.registerSlashCommand")
	opts := L.CheckTable(1)

	key := getTableString(L, opts, "key")
	cmd := command.SlashCommand{
		Key:         key,
		Description: getTableString(L, opts, "description"),
		Prompt:      getTableString(L, opts, "prompt"),
	}
	if run, ok := L.GetField(opts, "run").(*lua.LFunction); ok {
		cmd.Run = b.luaCallback(run)
	}

	if err := b.ctx.Commands.RegisterSlashCommand(b.meta.ID, cmd); err != nil {
		L.RaiseError("%v", err)
	}

	L.Push(b.disposer(L, func() error {
		b.ctx.Commands.UnregisterSlashCommand(b.meta.ID, key)
		return nil
	}))
	return 1
}
