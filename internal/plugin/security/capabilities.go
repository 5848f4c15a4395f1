// Package security provides the capability model for the plugin system.
package security

import (
	"fmt"
	"strings"
)

// Capability is a namespaced permission token of the form "ns:action".
// The wildcard token "*" grants every capability and "ns:*" grants every
// capability under the namespace.
type Capability string

// Capabilities plugins can request in their manifest.
const (
	// CapabilityVaultRead allows reading notes and files from the vault.
	CapabilityVaultRead Capability = "vault:read"

	// CapabilityVaultWrite allows writing, deleting, renaming and moving
	// vault files.
	CapabilityVaultWrite Capability = "vault:write"

	// CapabilityCommandsRegister allows registering commands and slash
	// commands.
	CapabilityCommandsRegister Capability = "commands:register"

	// CapabilityEventsSubscribe allows subscribing to host lifecycle events.
	CapabilityEventsSubscribe Capability = "events:subscribe"

	// CapabilityWorkspacePanels allows registering panels.
	CapabilityWorkspacePanels Capability = "workspace:panels"

	// CapabilityWorkspaceTabs allows registering tab types and opening
	// registered tabs.
	CapabilityWorkspaceTabs Capability = "workspace:tabs"

	// CapabilityUINotify allows showing notifications.
	CapabilityUINotify Capability = "ui:notify"

	// CapabilityUIStyles allows injecting stylesheets.
	CapabilityUIStyles Capability = "ui:styles"

	// CapabilityUITheme allows setting theme variables.
	CapabilityUITheme Capability = "ui:theme"

	// CapabilityUIRibbon allows adding ribbon items.
	CapabilityUIRibbon Capability = "ui:ribbon"

	// CapabilityUIStatusBar allows adding status bar items.
	CapabilityUIStatusBar Capability = "ui:statusbar"

	// CapabilityUISettings allows registering settings sections.
	CapabilityUISettings Capability = "ui:settings"

	// CapabilityStorageRead allows reading the plugin's key-value store.
	CapabilityStorageRead Capability = "storage:read"

	// CapabilityStorageWrite allows writing the plugin's key-value store.
	CapabilityStorageWrite Capability = "storage:write"

	// CapabilityRuntimeTimers allows scheduling timers.
	CapabilityRuntimeTimers Capability = "runtime:timers"

	// CapabilityNetworkFetch allows outbound network requests.
	CapabilityNetworkFetch Capability = "network:fetch"

	// CapabilityInteropInvoke allows invoking registered host functions.
	CapabilityInteropInvoke Capability = "interop:invoke"
)

// Namespace returns the portion of the capability before the colon.
func (c Capability) Namespace() string {
	if i := strings.IndexByte(string(c), ':'); i >= 0 {
		return string(c)[:i]
	}
	return string(c)
}

// Action returns the portion of the capability after the colon, or "" when
// the token has no action part.
func (c Capability) Action() string {
	if i := strings.IndexByte(string(c), ':'); i >= 0 {
		return string(c)[i+1:]
	}
	return ""
}

// RiskLevel indicates the security risk of a capability.
type RiskLevel int

const (
	// RiskLow indicates minimal security risk.
	RiskLow RiskLevel = iota

	// RiskMedium indicates moderate security risk.
	RiskMedium

	// RiskHigh indicates significant security risk.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// CapabilityInfo provides display metadata about a capability for host
// consent surfaces.
type CapabilityInfo struct {
	Name        Capability
	DisplayName string
	Description string
	RiskLevel   RiskLevel
}

// capabilityRegistry holds metadata about all known capabilities.
var capabilityRegistry = map[Capability]CapabilityInfo{
	CapabilityVaultRead: {
		Name:        CapabilityVaultRead,
		DisplayName: "Vault Read",
		Description: "Read notes and attachments in the workspace",
		RiskLevel:   RiskMedium,
	},
	CapabilityVaultWrite: {
		Name:        CapabilityVaultWrite,
		DisplayName: "Vault Write",
		Description: "Create, modify, move and delete workspace files",
		RiskLevel:   RiskHigh,
	},
	CapabilityCommandsRegister: {
		Name:        CapabilityCommandsRegister,
		DisplayName: "Commands",
		Description: "Register commands, hotkeys and slash commands",
		RiskLevel:   RiskLow,
	},
	CapabilityEventsSubscribe: {
		Name:        CapabilityEventsSubscribe,
		DisplayName: "Events",
		Description: "Subscribe to application lifecycle events",
		RiskLevel:   RiskLow,
	},
	CapabilityWorkspacePanels: {
		Name:        CapabilityWorkspacePanels,
		DisplayName: "Panels",
		Description: "Register workspace panels",
		RiskLevel:   RiskLow,
	},
	CapabilityWorkspaceTabs: {
		Name:        CapabilityWorkspaceTabs,
		DisplayName: "Tabs",
		Description: "Register and open custom tab views",
		RiskLevel:   RiskLow,
	},
	CapabilityUINotify: {
		Name:        CapabilityUINotify,
		DisplayName: "Notifications",
		Description: "Show notifications",
		RiskLevel:   RiskLow,
	},
	CapabilityUIStyles: {
		Name:        CapabilityUIStyles,
		DisplayName: "Styles",
		Description: "Inject stylesheets into the application shell",
		RiskLevel:   RiskMedium,
	},
	CapabilityUITheme: {
		Name:        CapabilityUITheme,
		DisplayName: "Theme",
		Description: "Override theme variables",
		RiskLevel:   RiskLow,
	},
	CapabilityUIRibbon: {
		Name:        CapabilityUIRibbon,
		DisplayName: "Ribbon",
		Description: "Add ribbon items",
		RiskLevel:   RiskLow,
	},
	CapabilityUIStatusBar: {
		Name:        CapabilityUIStatusBar,
		DisplayName: "Status Bar",
		Description: "Add status bar items",
		RiskLevel:   RiskLow,
	},
	CapabilityUISettings: {
		Name:        CapabilityUISettings,
		DisplayName: "Settings",
		Description: "Register settings sections",
		RiskLevel:   RiskLow,
	},
	CapabilityStorageRead: {
		Name:        CapabilityStorageRead,
		DisplayName: "Storage Read",
		Description: "Read plugin-scoped persistent storage",
		RiskLevel:   RiskLow,
	},
	CapabilityStorageWrite: {
		Name:        CapabilityStorageWrite,
		DisplayName: "Storage Write",
		Description: "Write plugin-scoped persistent storage",
		RiskLevel:   RiskLow,
	},
	CapabilityRuntimeTimers: {
		Name:        CapabilityRuntimeTimers,
		DisplayName: "Timers",
		Description: "Schedule periodic and delayed callbacks",
		RiskLevel:   RiskLow,
	},
	CapabilityNetworkFetch: {
		Name:        CapabilityNetworkFetch,
		DisplayName: "Network",
		Description: "Make outbound network requests",
		RiskLevel:   RiskHigh,
	},
	CapabilityInteropInvoke: {
		Name:        CapabilityInteropInvoke,
		DisplayName: "Interop",
		Description: "Invoke host-registered functions",
		RiskLevel:   RiskMedium,
	},
}

// GetCapabilityInfo returns display metadata for a capability.
func GetCapabilityInfo(cap Capability) (CapabilityInfo, bool) {
	info, ok := capabilityRegistry[cap]
	return info, ok
}

// IsKnownCapability returns true if the capability is in the catalog.
func IsKnownCapability(cap Capability) bool {
	_, ok := capabilityRegistry[cap]
	return ok
}

// AllCapabilities returns every capability in the catalog.
func AllCapabilities() []Capability {
	caps := make([]Capability, 0, len(capabilityRegistry))
	for cap := range capabilityRegistry {
		caps = append(caps, cap)
	}
	return caps
}

// HighRiskCapabilities returns capabilities the host should surface for
// explicit user consent.
func HighRiskCapabilities() []Capability {
	var caps []Capability
	for cap, info := range capabilityRegistry {
		if info.RiskLevel == RiskHigh {
			caps = append(caps, cap)
		}
	}
	return caps
}

// CapabilityError is returned when a plugin calls a privileged API without
// the required capability.
type CapabilityError struct {
	PluginID   string
	Capability Capability
	Operation  string
}

// Error implements the error interface.
func (e *CapabilityError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("plugin %q: capability %q required for %s", e.PluginID, e.Capability, e.Operation)
	}
	return fmt.Sprintf("plugin %q: capability %q not granted", e.PluginID, e.Capability)
}

// NewCapabilityError creates a new capability error.
func NewCapabilityError(pluginID string, cap Capability, operation string) *CapabilityError {
	return &CapabilityError{PluginID: pluginID, Capability: cap, Operation: operation}
}
