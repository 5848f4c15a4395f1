package api

import (
	"log/slog"
	"net/http"

	"github.com/lumina-notes/lumina/internal/command"
	"github.com/lumina-notes/lumina/internal/contrib"
	"github.com/lumina-notes/lumina/internal/event"
	"github.com/lumina-notes/lumina/internal/storage"
	"github.com/lumina-notes/lumina/internal/vault"
)

// Tracker collects cleanup closures for everything a plugin acquires
// through the API. The runtime releases them on unload, so every
// registration call mirrors its unregister closure into the tracker.
type Tracker interface {
	Add(release func() error)
}

// Notifier shows user-facing notifications.
type Notifier interface {
	Notify(pluginID, level, message string)
}

// TabOpener opens a registered tab type in the host shell.
type TabOpener interface {
	OpenTab(pluginID, tabType string, state map[string]any) error
}

// InteropProvider dispatches plugin calls to host-registered functions.
type InteropProvider interface {
	Invoke(pluginID, name string, payload map[string]any) (any, error)
}

// NetworkPolicy decides whether a plugin may reach a host.
type NetworkPolicy interface {
	Allowed(host string) bool
}

// Meta is the plugin identity handed to API modules and to the plugin's
// setup function.
type Meta struct {
	ID          string
	Name        string
	Version     string
	Description string
	Author      string
}

// Context provides access to host collaborators for API modules. Fields
// marked optional may be nil; the corresponding API calls then fail or
// degrade gracefully.
type Context struct {
	// WorkspaceRoot is the absolute path of the open workspace. All
	// vault paths resolve against it.
	WorkspaceRoot string

	// Vault performs note and file I/O.
	Vault vault.FS

	// Contrib holds UI contributions (styles, panels, ribbon items...).
	Contrib *contrib.Arena

	// Commands is the command and slash-command registry.
	Commands *command.Registry

	// Events is the host lifecycle event bus.
	Events *event.Bus

	// Storage is the per-plugin persistent key-value store.
	Storage *storage.Store

	// Notifier shows notifications. Optional; falls back to logging.
	Notifier Notifier

	// Tabs opens registered tabs. Optional.
	Tabs TabOpener

	// Interop exposes host functions to plugins. Optional.
	Interop InteropProvider

	// Network filters outbound fetch targets. Optional; nil allows all.
	Network NetworkPolicy

	// HTTPClient performs fetch requests. Optional; a default client
	// with a timeout is used when nil.
	HTTPClient *http.Client

	// Logger is the host logger. Optional; defaults to slog.Default.
	Logger *slog.Logger
}
