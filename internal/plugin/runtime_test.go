package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lumina-notes/lumina/internal/command"
	"github.com/lumina-notes/lumina/internal/contrib"
	"github.com/lumina-notes/lumina/internal/event"
	"github.com/lumina-notes/lumina/internal/plugin/api"
	"github.com/lumina-notes/lumina/internal/storage"
	"github.com/lumina-notes/lumina/internal/vault"
)

type fakeSource struct {
	mu      sync.Mutex
	entries map[string]string
	errs    map[string]error
	panics  map[string]bool
	reads   map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		entries: make(map[string]string),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		reads:   make(map[string]int),
	}
}

func (s *fakeSource) ReadEntry(_ context.Context, id, _ string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads[id]++
	if s.panics[id] {
		panic("source exploded: " + id)
	}
	if err := s.errs[id]; err != nil {
		return nil, err
	}
	code, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("plugin %s: not found", id)
	}
	return &Entry{Code: code}, nil
}

func (s *fakeSource) readCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads[id]
}

type recordingInterop struct {
	mu    sync.Mutex
	calls []string
}

func (i *recordingInterop) Invoke(pluginID, name string, _ map[string]any) (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, pluginID+":"+name)
	return nil, nil
}

type runtimeHarness struct {
	runtime   *Runtime
	source    *fakeSource
	arena     *contrib.Arena
	registry  *command.Registry
	bus       *event.Bus
	store     *storage.Store
	interop   *recordingInterop
	workspace string
}

func newRuntimeHarness(t *testing.T) *runtimeHarness {
	t.Helper()

	logger := discardLogger()
	h := &runtimeHarness{
		source:    newFakeSource(),
		arena:     contrib.NewArena(),
		registry:  command.NewRegistry(logger),
		bus:       event.NewBus(logger),
		interop:   &recordingInterop{},
		workspace: t.TempDir(),
	}
	h.store = storage.NewStore(h.workspace)

	h.runtime = NewRuntime(RuntimeConfig{
		Compat: NewCompat("1.5.0"),
		Source: h.source,
		API: &api.Context{
			WorkspaceRoot: h.workspace,
			Vault:         vault.NewDirFS(),
			Contrib:       h.arena,
			Commands:      h.registry,
			Events:        h.bus,
			Storage:       h.store,
			Interop:       h.interop,
			Logger:        logger,
		},
		Logger: logger,
	})
	t.Cleanup(h.runtime.UnloadAll)
	return h
}

func (h *runtimeHarness) sync(infos ...*Info) map[string]Status {
	return h.runtime.Sync(context.Background(), SyncRequest{
		Plugins:       infos,
		WorkspacePath: h.workspace,
	})
}

func (h *runtimeHarness) syncEnabled(enabled map[string]bool, infos ...*Info) map[string]Status {
	return h.runtime.Sync(context.Background(), SyncRequest{
		Plugins:       infos,
		WorkspacePath: h.workspace,
		EnabledByID:   enabled,
	})
}

func testInfo(id, version string, perms ...string) *Info {
	return &Info{
		ID:               id,
		Name:             id,
		Version:          version,
		Source:           "workspace",
		APIVersion:       "1",
		EntryPath:        "init.lua",
		EnabledByDefault: true,
		Permissions:      perms,
	}
}

const commandPluginCode = `
	return function(api, info)
		api.commands.registerCommand({
			id = "hello",
			title = "Hello",
			run = function() end,
		})
	end
`

func TestSyncLoadsDeclaredPlugin(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode

	statuses := h.sync(testInfo("alpha", "1.0.0", "commands:register"))

	st := statuses["alpha"]
	if !st.Enabled || !st.Loaded || st.Err != "" {
		t.Fatalf("status = %+v", st)
	}
	if got := h.registry.CountOwner("alpha"); got != 1 {
		t.Errorf("commands = %d, want 1", got)
	}
	if !h.runtime.IsLoaded("alpha") {
		t.Error("runtime does not report alpha loaded")
	}
}

func TestLoadPanicIsolatedAsError(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode
	h.source.panics["boom"] = true

	statuses := h.sync(
		testInfo("boom", "1.0.0"),
		testInfo("alpha", "1.0.0", "commands:register"),
	)

	st := statuses["boom"]
	if st.Loaded || !strings.Contains(st.Err, "panic") {
		t.Fatalf("status = %+v", st)
	}
	if !statuses["alpha"].Loaded {
		t.Error("later plugin did not load after the panic")
	}

	// The runtime must stay fully operational afterwards.
	if !h.runtime.IsLoaded("alpha") {
		t.Error("alpha not running after an unrelated load panic")
	}
	if err := h.runtime.Unload("alpha"); err != nil {
		t.Errorf("Unload after panic: %v", err)
	}
}

func TestSyncIdempotentNoOp(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode
	info := testInfo("alpha", "1.0.0", "commands:register")

	h.sync(info)
	statuses := h.sync(info)

	if got := h.source.readCount("alpha"); got != 1 {
		t.Errorf("entry read %d times, want 1", got)
	}
	if st := statuses["alpha"]; !st.Loaded {
		t.Errorf("status = %+v", st)
	}
}

func TestSignatureChangeReloadsOnlyThatPlugin(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode
	h.source.entries["beta"] = `return function(api, info) end`

	h.sync(
		testInfo("alpha", "1.0.0", "commands:register"),
		testInfo("beta", "1.0.0"),
	)
	statuses := h.sync(
		testInfo("alpha", "1.0.0", "commands:register"),
		testInfo("beta", "1.0.1"),
	)

	if got := h.source.readCount("alpha"); got != 1 {
		t.Errorf("alpha read %d times, want 1", got)
	}
	if got := h.source.readCount("beta"); got != 2 {
		t.Errorf("beta read %d times, want 2", got)
	}
	if st := statuses["beta"]; !st.Loaded {
		t.Errorf("beta status = %+v", st)
	}
}

func TestDisableUnloads(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode
	info := testInfo("alpha", "1.0.0", "commands:register")

	h.sync(info)
	statuses := h.syncEnabled(map[string]bool{"alpha": false}, info)

	st := statuses["alpha"]
	if st.Enabled || st.Loaded {
		t.Errorf("status = %+v", st)
	}
	if h.runtime.IsLoaded("alpha") {
		t.Error("alpha still loaded")
	}
	if got := h.registry.CountOwner("alpha"); got != 0 {
		t.Errorf("commands left = %d", got)
	}
	if got := h.source.readCount("alpha"); got != 1 {
		t.Errorf("disable re-read the entry (%d reads)", got)
	}
}

func TestRemovalUnloads(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode

	h.sync(testInfo("alpha", "1.0.0", "commands:register"))
	statuses := h.sync()

	if len(statuses) != 0 {
		t.Errorf("statuses = %v", statuses)
	}
	if h.runtime.IsLoaded("alpha") {
		t.Error("alpha still loaded")
	}
	if got := h.registry.CountOwner("alpha"); got != 0 {
		t.Errorf("commands left = %d", got)
	}
}

func TestIncompatibleNeverExecutes(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["future"] = `return function(api, info) end`

	info := testInfo("future", "1.0.0")
	info.APIVersion = "2"
	statuses := h.sync(info)

	st := statuses["future"]
	if !st.Incompatible || st.Loaded || st.Reason == "" {
		t.Fatalf("status = %+v", st)
	}
	if got := h.source.readCount("future"); got != 0 {
		t.Errorf("entry read %d times for an incompatible plugin", got)
	}
}

func TestValidationErrorReportedAsIncompatible(t *testing.T) {
	h := newRuntimeHarness(t)

	info := testInfo("broken", "1.0.0")
	info.ValidationError = &ValidationError{Code: "invalid_version", Message: "version must be semver"}
	statuses := h.sync(info)

	st := statuses["broken"]
	if !st.Incompatible || st.ErrDetail == nil || st.ErrDetail.Code != "invalid_version" {
		t.Fatalf("status = %+v", st)
	}
	if got := h.source.readCount("broken"); got != 0 {
		t.Errorf("entry read %d times", got)
	}
}

func TestIncompatibleManifestUnloadsRunningInstance(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = commandPluginCode

	h.sync(testInfo("alpha", "1.0.0", "commands:register"))

	update := testInfo("alpha", "2.0.0", "commands:register")
	update.APIVersion = "2"
	statuses := h.sync(update)

	if st := statuses["alpha"]; !st.Incompatible {
		t.Fatalf("status = %+v", st)
	}
	if h.runtime.IsLoaded("alpha") {
		t.Error("incompatible plugin still loaded")
	}
	if got := h.registry.CountOwner("alpha"); got != 0 {
		t.Errorf("commands left = %d", got)
	}
}

func TestMinAppVersionGate(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = `return function(api, info) end`

	tooNew := testInfo("alpha", "1.0.0")
	tooNew.MinAppVersion = "9.0.0"
	if st := h.sync(tooNew)["alpha"]; !st.Incompatible {
		t.Errorf("status = %+v, want incompatible", st)
	}

	satisfied := testInfo("alpha", "1.0.1")
	satisfied.MinAppVersion = "1.0.0"
	if st := h.sync(satisfied)["alpha"]; !st.Loaded {
		t.Errorf("status = %+v, want loaded", st)
	}

	unparsable := testInfo("alpha", "1.0.2")
	unparsable.MinAppVersion = "whenever"
	if st := h.sync(unparsable)["alpha"]; !st.Loaded {
		t.Errorf("status = %+v, want loaded (fail-open)", st)
	}
}

func TestLoadErrorWithSentinel(t *testing.T) {
	h := newRuntimeHarness(t)
	ve := &ValidationError{Code: "invalid_entry", Field: "entry", Message: "entry must be relative"}
	h.source.errs["broken"] = errors.New(ve.Sentinel())

	st := h.sync(testInfo("broken", "1.0.0"))["broken"]
	if st.Loaded || st.ErrDetail == nil {
		t.Fatalf("status = %+v", st)
	}
	if st.ErrDetail.Code != "invalid_entry" || st.Err != ve.Message {
		t.Errorf("status = %+v", st)
	}
}

func TestSetupErrorPurgesPartialRegistrations(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["half"] = `
		return function(api, info)
			api.commands.registerCommand({ id = "c", title = "C", run = function() end })
			error("setup exploded")
		end
	`

	st := h.sync(testInfo("half", "1.0.0", "commands:register"))["half"]
	if st.Loaded || !strings.Contains(st.Err, "setup exploded") {
		t.Fatalf("status = %+v", st)
	}
	if got := h.registry.CountOwner("half"); got != 0 {
		t.Errorf("partial registrations left = %d", got)
	}
	if h.runtime.IsLoaded("half") {
		t.Error("failed plugin recorded as loaded")
	}
}

func TestPermissionDenialFailsSetupBeforeFilesystem(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["grabby"] = `
		return function(api, info)
			api.vault.write("stolen.md", "x")
		end
	`

	st := h.sync(testInfo("grabby", "1.0.0"))["grabby"]
	if st.Loaded || !strings.Contains(st.Err, "vault:write") {
		t.Fatalf("status = %+v", st)
	}
	if _, err := os.Stat(filepath.Join(h.workspace, "stolen.md")); !os.IsNotExist(err) {
		t.Error("denied write reached the filesystem")
	}
}

func TestTotalCleanupDespiteThrowingDispose(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["greedy"] = `
		return function(api, info)
			api.ui.injectStyle(".greedy { display: none }")
			api.commands.registerCommand({ id = "c", title = "C", run = function() end })
			api.ui.addRibbonItem({ title = "G" })
			api.events.on("workspace:changed", function() end)
			api.runtime.setInterval(function() end, 60000)
			return function() error("dispose exploded") end
		end
	`

	h.sync(testInfo("greedy", "1.0.0", "*"))
	if got := h.arena.CountOwner("greedy"); got != 2 {
		t.Fatalf("contributions = %d, want 2", got)
	}

	h.sync()

	if got := h.arena.CountOwner("greedy"); got != 0 {
		t.Errorf("contributions left = %d", got)
	}
	if got := h.registry.CountOwner("greedy"); got != 0 {
		t.Errorf("commands left = %d", got)
	}
	if got := h.bus.CountOwner("greedy"); got != 0 {
		t.Errorf("subscriptions left = %d", got)
	}
	if h.runtime.IsLoaded("greedy") {
		t.Error("greedy still loaded")
	}
}

func TestUnloadAllReverseOrder(t *testing.T) {
	h := newRuntimeHarness(t)
	code := `
		return function(api, info)
			return function() api.interop.invoke("bye") end
		end
	`
	h.source.entries["first"] = code
	h.source.entries["second"] = code

	h.sync(
		testInfo("first", "1.0.0", "interop:invoke"),
		testInfo("second", "1.0.0", "interop:invoke"),
	)
	h.runtime.UnloadAll()

	h.interop.mu.Lock()
	defer h.interop.mu.Unlock()
	if len(h.interop.calls) != 2 || h.interop.calls[0] != "second:bye" || h.interop.calls[1] != "first:bye" {
		t.Errorf("dispose order = %v, want second before first", h.interop.calls)
	}
	if h.runtime.Count() != 0 {
		t.Errorf("Count = %d after UnloadAll", h.runtime.Count())
	}
}

func TestStoragePersistsAcrossReload(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["counter"] = `
		return function(api, info)
			local n = api.storage.get("loads")
			if n == nil then n = 0 end
			api.storage.set("loads", n + 1)
		end
	`

	h.sync(testInfo("counter", "1.0.0", "storage:read", "storage:write"))
	h.sync(testInfo("counter", "1.0.1", "storage:read", "storage:write"))

	fresh := storage.NewStore(h.workspace)
	if got := fresh.Get("counter", "loads"); got != float64(2) {
		t.Errorf("loads = %v (%T), want 2", got, got)
	}
}

func TestManifestThemeAutoApplied(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["themed"] = `return function(api, info) end`

	info := testInfo("themed", "1.0.0", "ui:theme")
	info.Theme = map[string]string{"--accent": "#c4b5fd"}
	h.sync(info)

	entry, ok := h.arena.Lookup("themed", contrib.KindThemeVar, "manifest-theme")
	if !ok {
		t.Fatal("manifest theme not applied")
	}
	if entry.Payload["--accent"] != "#c4b5fd" {
		t.Errorf("payload = %#v", entry.Payload)
	}

	h.sync()
	if _, ok := h.arena.Lookup("themed", contrib.KindThemeVar, "manifest-theme"); ok {
		t.Error("manifest theme survived unload")
	}
}

func TestManifestThemeRequiresCapability(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["sneaky"] = `return function(api, info) end`

	info := testInfo("sneaky", "1.0.0")
	info.Theme = map[string]string{"--accent": "red"}
	h.sync(info)

	if got := h.arena.CountOwner("sneaky"); got != 0 {
		t.Errorf("theme applied without ui:theme (%d contributions)", got)
	}
}

func TestRuntimeEvents(t *testing.T) {
	h := newRuntimeHarness(t)
	h.source.entries["alpha"] = `return function(api, info) end`
	h.source.errs["broken"] = errors.New("no such plugin")

	var mu sync.Mutex
	var seen []string
	h.runtime.Subscribe(func(ev Event) {
		panic("bad handler")
	})
	off := h.runtime.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Plugin+":"+ev.Type.String())
	})

	h.sync(testInfo("alpha", "1.0.0"))
	h.sync(testInfo("alpha", "1.0.1"))
	h.sync(testInfo("broken", "1.0.0"))
	h.sync()

	mu.Lock()
	got := strings.Join(seen, " ")
	mu.Unlock()

	want := "alpha:loaded alpha:unloaded alpha:reloaded alpha:unloaded broken:error"
	if got != want {
		t.Errorf("events = %q, want %q", got, want)
	}

	off()
	h.source.entries["late"] = `return function(api, info) end`
	h.sync(testInfo("late", "1.0.0"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 5 {
		t.Errorf("unsubscribed handler still called: %v", seen)
	}
}
