package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lumina-notes/lumina/internal/contrib"
	"github.com/lumina-notes/lumina/internal/plugin/api"
	luavm "github.com/lumina-notes/lumina/internal/plugin/lua"
	"github.com/lumina-notes/lumina/internal/plugin/security"
)

// ErrNotLoaded is returned when an operation targets a plugin that is
// not currently running.
var ErrNotLoaded = errors.New("plugin is not loaded")

// SyncRequest is the declared world the runtime reconciles against.
type SyncRequest struct {
	// Plugins is the declared plugin list, in order.
	Plugins []*Info

	// WorkspacePath is the absolute workspace root.
	WorkspacePath string

	// EnabledByID overrides each plugin's enabled_by_default.
	EnabledByID map[string]bool
}

// Status is the per-plugin outcome of the last sync. It is recomputed
// fully on every Sync call, never partially mutated.
type Status struct {
	Enabled      bool             `json:"enabled"`
	Loaded       bool             `json:"loaded"`
	Incompatible bool             `json:"incompatible,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Err          string           `json:"error,omitempty"`
	ErrDetail    *ValidationError `json:"error_detail,omitempty"`
}

// loadedPlugin is the runtime record of one executing plugin instance.
type loadedPlugin struct {
	info      *Info
	signature string
	state     *luavm.State
	dispose   luavm.Dispose
	tracker   *Tracker
}

// RuntimeConfig wires the runtime to its collaborators.
type RuntimeConfig struct {
	// Compat gates plugins before any code runs.
	Compat Compat

	// Source fetches manifests and entry code.
	Source EntrySource

	// API holds the collaborators the capability API is built over. The
	// runtime also purges them on unload.
	API *api.Context

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Runtime is the lifecycle synchronizer. It diffs the declared plugin
// set against running instances and drives load, reload and unload,
// keeping per-plugin failures isolated.
type Runtime struct {
	mu      sync.Mutex // serializes Sync, Unload and UnloadAll
	compat  Compat
	source  EntrySource
	apictx  *api.Context
	factory *api.Factory
	logger  *slog.Logger

	plugins   map[string]*loadedPlugin
	loadOrder []string
	pending   []Event

	handlersMu sync.RWMutex
	handlers   []EventHandler
}

// NewRuntime creates a plugin runtime.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		compat:  cfg.Compat,
		source:  cfg.Source,
		apictx:  cfg.API,
		factory: api.NewFactory(cfg.API),
		logger:  logger,
		plugins: make(map[string]*loadedPlugin),
	}
}

// Sync reconciles running instances against the declared set. Stale and
// newly disabled instances unload first, then declared plugins are
// processed sequentially in list order so registry-wide invariants are
// enforced deterministically. Concurrent calls are serialized.
func (r *Runtime) Sync(ctx context.Context, req SyncRequest) map[string]Status {
	statuses := make(map[string]Status, len(req.Plugins))
	events := r.reconcile(ctx, req, statuses)
	r.dispatch(events)
	return statuses
}

// reconcile holds the runtime mutex for the whole reconciliation. The
// deferred unlock keeps the runtime usable even if host-side code panics
// mid-sync.
func (r *Runtime) reconcile(ctx context.Context, req SyncRequest, statuses map[string]Status) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	declared := make(map[string]*Info, len(req.Plugins))
	for _, info := range req.Plugins {
		declared[info.ID] = info
	}

	// Unloads precede loads so a reloading plugin never races its
	// being-replaced predecessor.
	for _, id := range append([]string(nil), r.loadOrder...) {
		info, ok := declared[id]
		if !ok || !info.EnabledIn(req.EnabledByID) {
			r.unloadLocked(id)
		}
	}

	for _, info := range req.Plugins {
		statuses[info.ID] = r.syncOne(ctx, info, req)
	}

	return r.takePending()
}

func (r *Runtime) syncOne(ctx context.Context, info *Info, req SyncRequest) Status {
	if !info.EnabledIn(req.EnabledByID) {
		return Status{Enabled: false, Loaded: false}
	}

	if ve := info.ValidationError; ve != nil {
		r.unloadLocked(info.ID)
		r.purgeLocked(info.ID)
		return Status{Enabled: true, Incompatible: true, Reason: ve.Message, ErrDetail: ve}
	}
	if issue := r.compat.Check(info); issue != nil {
		// An instance loaded from an earlier, compatible manifest must
		// not keep influencing the registries.
		r.unloadLocked(info.ID)
		r.purgeLocked(info.ID)
		return Status{Enabled: true, Incompatible: true, Reason: issue.Reason}
	}

	signature := info.Signature()
	if current, ok := r.plugins[info.ID]; ok && current.signature == signature {
		// No-op fast path: the running build already matches.
		return Status{Enabled: true, Loaded: true}
	}

	_, reloading := r.plugins[info.ID]
	if reloading {
		r.unloadLocked(info.ID)
	}

	if err := r.safeLoad(ctx, info, req.WorkspacePath); err != nil {
		r.purgeLocked(info.ID)
		r.logger.Error("plugin load failed", "plugin", info.ID, "error", err)
		r.emitLocked(Event{Type: EventError, Plugin: info.ID, Err: err})

		st := Status{Enabled: true, Loaded: false, Err: err.Error()}
		if ve, ok := ParseValidationSentinel(err.Error()); ok {
			st.Err = ve.Message
			st.ErrDetail = ve
		} else {
			var ve *ValidationError
			if errors.As(err, &ve) {
				st.Err = ve.Message
				st.ErrDetail = ve
			}
		}
		return st
	}

	if reloading {
		r.emitLocked(Event{Type: EventReloaded, Plugin: info.ID})
	} else {
		r.emitLocked(Event{Type: EventLoaded, Plugin: info.ID})
	}
	return Status{Enabled: true, Loaded: true}
}

// safeLoad converts a panic anywhere on the load path into a load error,
// so one misbehaving plugin or provider cannot take the host down.
func (r *Runtime) safeLoad(ctx context.Context, info *Info, workspacePath string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("load panic: %v", rec)
		}
	}()
	return r.loadLocked(ctx, info, workspacePath)
}

// loadLocked fetches, sandboxes and executes one plugin. Must be called
// with mu held and no instance of the plugin running.
func (r *Runtime) loadLocked(ctx context.Context, info *Info, workspacePath string) error {
	entry, err := r.source.ReadEntry(ctx, info.ID, workspacePath)
	if err != nil {
		return err
	}

	perms := security.NewPermissionSet(info.ID, info.Permissions)
	tracker := NewTracker(info.ID, r.logger)
	state := luavm.NewState()

	fail := func(err error) error {
		tracker.ReleaseAll()
		state.Close()
		return err
	}

	meta := api.Meta{
		ID:          info.ID,
		Name:        info.Name,
		Version:     info.Version,
		Description: info.Description,
		Author:      info.Author,
	}
	apiValue := r.factory.Build(state, meta, perms, tracker)

	setup, err := luavm.LoadEntry(state, entry.Code, info.ID+"/"+info.EntryPath)
	if err != nil {
		return fail(err)
	}

	dispose, err := luavm.RunSetup(state, setup, apiValue, r.factory.InfoValue(state, meta))
	if err != nil {
		return fail(fmt.Errorf("setup: %w", err))
	}

	r.applyManifestTheme(info, perms, tracker)

	r.plugins[info.ID] = &loadedPlugin{
		info:      info,
		signature: info.Signature(),
		state:     state,
		dispose:   dispose,
		tracker:   tracker,
	}
	r.loadOrder = append(r.loadOrder, info.ID)
	return nil
}

// applyManifestTheme installs the manifest's theme token block as a
// contribution, cleared on unload like any plugin-made one.
func (r *Runtime) applyManifestTheme(info *Info, perms *security.PermissionSet, tracker *Tracker) {
	if len(info.Theme) == 0 || r.apictx.Contrib == nil {
		return
	}
	if !perms.Has(security.CapabilityUITheme) {
		r.logger.Warn("manifest theme ignored", "plugin", info.ID, "missing", string(security.CapabilityUITheme))
		return
	}

	payload := make(map[string]any, len(info.Theme))
	for k, v := range info.Theme {
		payload[k] = v
	}
	h := r.apictx.Contrib.Add(info.ID, "manifest-theme", contrib.KindThemeVar, payload)
	tracker.Add(func() error {
		r.apictx.Contrib.Remove(h)
		return nil
	})
}

// unloadLocked is the single cleanup path for a running instance:
// dispose, then every tracked closure in order, then a total purge of
// every shared registry, then the record itself. Each step is fault
// tolerant. Must be called with mu held.
func (r *Runtime) unloadLocked(id string) {
	lp, ok := r.plugins[id]
	if !ok {
		return
	}

	if lp.dispose != nil {
		if err := safeDispose(lp.dispose); err != nil {
			r.logger.Error("plugin dispose failed", "plugin", id, "error", err)
		}
	}

	lp.tracker.ReleaseAll()
	r.purgeLocked(id)
	lp.state.Close()

	delete(r.plugins, id)
	r.removeFromLoadOrder(id)
	r.emitLocked(Event{Type: EventUnloaded, Plugin: id})
}

// purgeLocked removes every registry entry owned by id. Each registry
// purge is a total scan-and-filter, so nothing attributable to the
// plugin can survive it.
func (r *Runtime) purgeLocked(id string) {
	if r.apictx.Contrib != nil {
		r.apictx.Contrib.PurgeOwner(id)
	}
	if r.apictx.Commands != nil {
		r.apictx.Commands.PurgeOwner(id)
	}
	if r.apictx.Events != nil {
		r.apictx.Events.PurgeOwner(id)
	}
	if r.apictx.Storage != nil {
		// Drops the in-memory handle only; persisted data survives.
		r.apictx.Storage.Evict(id)
	}
}

func safeDispose(dispose luavm.Dispose) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return dispose()
}

// Unload tears down one running plugin.
func (r *Runtime) Unload(id string) error {
	events, err := r.unloadOne(id)
	r.dispatch(events)
	return err
}

func (r *Runtime) unloadOne(id string) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[id]; !ok {
		return nil, fmt.Errorf("plugin %q: %w", id, ErrNotLoaded)
	}
	r.unloadLocked(id)
	return r.takePending(), nil
}

// UnloadAll tears down every running plugin in reverse load order.
func (r *Runtime) UnloadAll() {
	r.dispatch(r.teardownAll())
}

func (r *Runtime) teardownAll() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := append([]string(nil), r.loadOrder...)
	for i := len(order) - 1; i >= 0; i-- {
		r.unloadLocked(order[i])
	}
	return r.takePending()
}

// IsLoaded reports whether the plugin is currently running.
func (r *Runtime) IsLoaded(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.plugins[id]
	return ok
}

// Count returns the number of running plugins.
func (r *Runtime) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plugins)
}

// LoadedIDs returns the running plugin ids in load order.
func (r *Runtime) LoadedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.loadOrder...)
}

func (r *Runtime) removeFromLoadOrder(id string) {
	for i, n := range r.loadOrder {
		if n == id {
			r.loadOrder = append(r.loadOrder[:i], r.loadOrder[i+1:]...)
			return
		}
	}
}
