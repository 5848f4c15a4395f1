package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// HostAPIVersion is the plugin API generation this host implements.
// Manifests must match it exactly; there is no range matching.
const HostAPIVersion = "1"

// Issue describes why a plugin cannot run on this host.
type Issue struct {
	Reason string
}

// Compat gates plugins on version and platform requirements before any
// of their code executes.
type Compat struct {
	// APIVersion is the host's plugin API generation.
	APIVersion string

	// AppVersion is the host application version, major.minor.patch.
	AppVersion string

	// Desktop reports whether this host is a desktop build.
	Desktop bool
}

// NewCompat creates a checker for a desktop host running appVersion.
func NewCompat(appVersion string) Compat {
	return Compat{APIVersion: HostAPIVersion, AppVersion: appVersion, Desktop: true}
}

// Check returns nil when the plugin may run, or the issue preventing it.
func (c Compat) Check(info *Info) *Issue {
	apiVersion := info.APIVersion
	if apiVersion == "" {
		apiVersion = "1"
	}
	if apiVersion != c.APIVersion {
		return &Issue{Reason: fmt.Sprintf(
			"requires plugin API version %s, host provides %s", apiVersion, c.APIVersion)}
	}

	if info.IsDesktopOnly && !c.Desktop {
		return &Issue{Reason: "desktop-only plugin on a non-desktop host"}
	}

	if info.MinAppVersion != "" && appVersionLess(c.AppVersion, info.MinAppVersion) {
		return &Issue{Reason: fmt.Sprintf(
			"requires app version %s or newer, host is %s", info.MinAppVersion, c.AppVersion)}
	}

	return nil
}

var strictSemver = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// appVersionLess reports whether host is older than min, comparing
// major.minor.patch numerically. Unparsable versions on either side
// never trigger the check; malformed metadata must not brick a plugin.
func appVersionLess(host, min string) bool {
	h, ok := canonicalVersion(host)
	if !ok {
		return false
	}
	m, ok := canonicalVersion(min)
	if !ok {
		return false
	}
	return semver.Compare(h, m) < 0
}

func canonicalVersion(v string) (string, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if !strictSemver.MatchString(v) {
		return "", false
	}
	return "v" + v, true
}
