package security

import (
	"sort"
	"strings"
)

// legacyAliases maps permission spellings accepted from older manifests to
// their modern capability names. An alias expands in addition to, not
// instead of, the literal token.
var legacyAliases = map[string][]Capability{
	"workspace:read":  {CapabilityVaultRead},
	"workspace:write": {CapabilityVaultWrite},
	"theme":           {CapabilityUITheme},
	"net":             {CapabilityNetworkFetch},
	"kv":              {CapabilityStorageRead, CapabilityStorageWrite},
}

// PermissionSet is the normalized, expanded capability set of one loaded
// plugin instance. It is derived once from the manifest at load time and is
// read-only afterwards.
type PermissionSet struct {
	pluginID string
	all      bool
	caps     map[Capability]bool
	prefixes map[string]bool // namespaces granted via "ns:*"
}

// NewPermissionSet normalizes the declared permission strings of a plugin
// into an expanded capability set. Unknown tokens are kept verbatim so a
// future host version can honor them; they simply never match a check
// performed by this host.
func NewPermissionSet(pluginID string, declared []string) *PermissionSet {
	ps := &PermissionSet{
		pluginID: pluginID,
		caps:     make(map[Capability]bool),
		prefixes: make(map[string]bool),
	}

	for _, raw := range declared {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		if token == "*" {
			ps.all = true
			continue
		}

		if ns, ok := strings.CutSuffix(token, ":*"); ok && ns != "" {
			ps.prefixes[ns] = true
			continue
		}

		ps.caps[Capability(token)] = true
		for _, alias := range legacyAliases[token] {
			ps.caps[alias] = true
		}
	}

	return ps
}

// PluginID returns the id of the plugin owning this set.
func (ps *PermissionSet) PluginID() string {
	return ps.pluginID
}

// Has returns true if the capability is granted, either directly, through a
// namespace wildcard, or through the global wildcard.
func (ps *PermissionSet) Has(cap Capability) bool {
	if ps.all {
		return true
	}
	if ps.caps[cap] {
		return true
	}
	return ps.prefixes[cap.Namespace()]
}

// Require returns a CapabilityError identifying the plugin and the missing
// capability when cap is not granted. The operation string names the API
// call that performed the check.
func (ps *PermissionSet) Require(cap Capability, operation string) error {
	if ps.Has(cap) {
		return nil
	}
	return NewCapabilityError(ps.pluginID, cap, operation)
}

// Granted returns the sorted list of directly granted capability tokens,
// including namespace wildcards. Used by host UI to display what a plugin
// may do.
func (ps *PermissionSet) Granted() []string {
	if ps.all {
		return []string{"*"}
	}

	out := make([]string, 0, len(ps.caps)+len(ps.prefixes))
	for cap := range ps.caps {
		out = append(out, string(cap))
	}
	for ns := range ps.prefixes {
		out = append(out, ns+":*")
	}
	sort.Strings(out)
	return out
}

// IsEmpty returns true when the set grants nothing.
func (ps *PermissionSet) IsEmpty() bool {
	return !ps.all && len(ps.caps) == 0 && len(ps.prefixes) == 0
}
