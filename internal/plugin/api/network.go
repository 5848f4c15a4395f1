package api

import (
	"io"
	"net/http"
	"net/url"
	"time"

	lua "github.com/yuin/gopher-lua"

	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

// maxFetchBody caps response bodies handed to plugins.
const maxFetchBody = 10 << 20

var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

func (b *binding) networkModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "fetch", L.NewFunction(b.networkFetch))
	return mod
}

// fetch(url) -> {status=..., ok=..., body=...}
func (b *binding) networkFetch(L *lua.LState) int {
	b.require(L, security.CapabilityNetworkFetch, "network.fetch")
	rawURL := L.CheckString(1)

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		L.ArgError(1, "url must be http or https")
	}
	if b.ctx.Network != nil && !b.ctx.Network.Allowed(u.Hostname()) {
		L.RaiseError("fetch: host %q is not allowed", u.Hostname())
	}

	client := b.ctx.HTTPClient
	if client == nil {
		client = defaultHTTPClient
	}

	resp, err := client.Get(rawURL)
	if err != nil {
		L.RaiseError("fetch: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		L.RaiseError("fetch: %v", err)
	}

	result := L.NewTable()
	L.SetField(result, "status", lua.LNumber(resp.StatusCode))
	L.SetField(result, "ok", lua.LBool(resp.StatusCode >= 200 && resp.StatusCode < 300))
	L.SetField(result, "body", lua.LString(body))
	L.Push(result)
	return 1
}

func (b *binding) interopModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "invoke", L.NewFunction(b.interopInvoke))
	return mod
}

// invoke(name, payload?) -> result
func (b *binding) interopInvoke(L *lua.LState) int {
	b.require(L, security.CapabilityInteropInvoke, "interop.invoke")
	name := L.CheckString(1)

	var payload map[string]any
	if L.GetTop() >= 2 {
		payload, _ = luavm.ToGoValue(L.CheckTable(2)).(map[string]any)
	}

	if b.ctx.Interop == nil {
		L.RaiseError("invoke: no host functions registered")
	}

	result, err := b.ctx.Interop.Invoke(b.meta.ID, name, payload)
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(luavm.ToLuaValue(L, result))
	return 1
}
