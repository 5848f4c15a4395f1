// Package app wires the plugin host together: configuration, the
// capability API collaborators and the plugin runtime.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lumina-notes/lumina/internal/command"
	"github.com/lumina-notes/lumina/internal/config"
	"github.com/lumina-notes/lumina/internal/contrib"
	"github.com/lumina-notes/lumina/internal/event"
	"github.com/lumina-notes/lumina/internal/plugin"
	"github.com/lumina-notes/lumina/internal/plugin/api"
	"github.com/lumina-notes/lumina/internal/storage"
	"github.com/lumina-notes/lumina/internal/vault"
)

// Options configures the host.
type Options struct {
	// WorkspacePath is the workspace root. Required.
	WorkspacePath string

	// ConfigPath is the plugins.toml location. Defaults to
	// <workspace>/.lumina/plugins.toml.
	ConfigPath string

	// AppVersion gates plugins declaring min_app_version.
	AppVersion string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// App is the running plugin host.
type App struct {
	opts    Options
	logger  *slog.Logger
	runtime *plugin.Runtime
	source  *plugin.DirSource
	events  *event.Bus

	mu      sync.Mutex
	cfg     *config.Config
	watcher *config.Watcher

	shutdownOnce sync.Once
}

// New builds the host from options. Run starts it.
func New(opts Options) (*App, error) {
	if opts.WorkspacePath == "" {
		return nil, fmt.Errorf("workspace path is required")
	}
	absWorkspace, err := filepath.Abs(opts.WorkspacePath)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace path: %w", err)
	}
	if info, err := os.Stat(absWorkspace); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", absWorkspace)
	}
	opts.WorkspacePath = absWorkspace
	if opts.ConfigPath == "" {
		opts.ConfigPath = filepath.Join(absWorkspace, ".lumina", "plugins.toml")
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(firstNonEmpty(opts.LogLevel, cfg.Logging.Level))
	events := event.NewBus(logger)

	apictx := &api.Context{
		WorkspaceRoot: absWorkspace,
		Vault:         vault.NewDirFS(),
		Contrib:       contrib.NewArena(),
		Commands:      command.NewRegistry(logger),
		Events:        events,
		Storage:       storage.NewStore(absWorkspace),
		Notifier:      logNotifier{logger},
		Network:       cfg.Network,
		Logger:        logger,
	}

	source := &plugin.DirSource{}
	runtime := plugin.NewRuntime(plugin.RuntimeConfig{
		Compat: plugin.NewCompat(opts.AppVersion),
		Source: source,
		API:    apictx,
		Logger: logger,
	})

	return &App{
		opts:    opts,
		logger:  logger,
		runtime: runtime,
		source:  source,
		events:  events,
		cfg:     cfg,
	}, nil
}

// Runtime exposes the plugin runtime for embedding hosts.
func (a *App) Runtime() *plugin.Runtime { return a.runtime }

// Run performs the initial sync, announces app readiness and starts the
// config watcher. It returns once the host is up; Shutdown tears it down.
func (a *App) Run(ctx context.Context) error {
	a.syncFromConfig(ctx)
	a.events.Emit(event.TopicAppReady, event.Payload{"workspace": a.opts.WorkspacePath})

	if err := os.MkdirAll(filepath.Dir(a.opts.ConfigPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	w, err := config.Watch(a.opts.ConfigPath, func() {
		a.reloadConfig(context.Background())
	}, a.logger)
	if err != nil {
		return fmt.Errorf("starting config watcher: %w", err)
	}
	a.mu.Lock()
	a.watcher = w
	a.mu.Unlock()

	a.logger.Info("plugin host running",
		"workspace", a.opts.WorkspacePath,
		"plugins", a.runtime.Count())
	return nil
}

// Shutdown stops the watcher and unloads every plugin. Safe to call more
// than once and from signal handlers.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		a.mu.Lock()
		w := a.watcher
		a.mu.Unlock()
		if w != nil {
			if err := w.Close(); err != nil {
				a.logger.Warn("closing config watcher", "error", err)
			}
		}
		a.runtime.UnloadAll()
		a.logger.Info("plugin host stopped")
	})
}

// reloadConfig re-reads plugins.toml and re-syncs the runtime. A broken
// file keeps the previous configuration running.
func (a *App) reloadConfig(ctx context.Context) {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		a.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.logger.Info("config reloaded", "path", a.opts.ConfigPath)
	a.syncFromConfig(ctx)
}

// syncFromConfig resolves the declared plugin list through the entry
// source and hands it to the runtime. Plugins whose manifest cannot be
// read at all are skipped with a log line; manifest validation defects
// travel inside the Info and surface per-plugin in the sync result.
func (a *App) syncFromConfig(ctx context.Context) map[string]plugin.Status {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	var declared []*plugin.Info
	for _, id := range cfg.Plugins.Declared {
		entry, err := a.source.ReadEntry(ctx, id, a.opts.WorkspacePath)
		if err != nil {
			if ve, ok := plugin.ParseValidationSentinel(err.Error()); ok {
				declared = append(declared, &plugin.Info{
					ID:               id,
					EnabledByDefault: true,
					ValidationError:  ve,
				})
				continue
			}
			// Keep the plugin declared so the sync result carries its
			// failure instead of silently dropping it.
			a.logger.Warn("plugin manifest unreadable", "plugin", id, "error", err)
			declared = append(declared, &plugin.Info{ID: id, EnabledByDefault: true})
			continue
		}
		declared = append(declared, entry.Info)
	}

	statuses := a.runtime.Sync(ctx, plugin.SyncRequest{
		Plugins:       declared,
		WorkspacePath: a.opts.WorkspacePath,
		EnabledByID:   cfg.Plugins.Enabled,
	})
	for id, st := range statuses {
		if st.Err != "" || st.Incompatible {
			a.logger.Warn("plugin not running",
				"plugin", id, "reason", st.Reason, "error", st.Err)
		}
	}
	return statuses
}

// logNotifier surfaces plugin notifications on the host log until a UI
// shell registers a real notifier.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(pluginID, level, message string) {
	n.logger.Info("plugin notification",
		"plugin", pluginID, "level", level, "message", message)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
