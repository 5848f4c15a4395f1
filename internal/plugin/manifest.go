// Package plugin implements the plugin runtime: manifest validation,
// compatibility gating, the lifecycle synchronizer, and per-plugin
// resource tracking.
package plugin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Info is the manifest data of one declared plugin. Produced by the
// manifest source; immutable once produced and superseded by re-reading
// the manifest on the next sync.
type Info struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description,omitempty"`
	Author           string            `json:"author,omitempty"`
	Homepage         string            `json:"homepage,omitempty"`
	Source           string            `json:"source"` // workspace, user or builtin
	Permissions      []string          `json:"permissions,omitempty"`
	APIVersion       string            `json:"api_version"`
	MinAppVersion    string            `json:"min_app_version,omitempty"`
	EntryPath        string            `json:"entry_path"`
	EnabledByDefault bool              `json:"enabled_by_default"`
	IsDesktopOnly    bool              `json:"is_desktop_only,omitempty"`
	RootPath         string            `json:"root_path,omitempty"`
	Theme            map[string]string `json:"theme,omitempty"`
	ValidationError  *ValidationError  `json:"validation_error,omitempty"`
}

// Signature identifies this exact build of the plugin. Signature equality
// is the sole criterion for skipping a reload.
func (i *Info) Signature() string {
	return i.Source + ":" + i.Version + ":" + i.EntryPath
}

// EnabledIn resolves the plugin's effective enabled flag: an explicit
// override wins, otherwise the manifest default applies.
func (i *Info) EnabledIn(overrides map[string]bool) bool {
	if v, ok := overrides[i.ID]; ok {
		return v
	}
	return i.EnabledByDefault
}

// ValidationError is a structured manifest defect.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest %s: %s (%s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest %s: %s", e.Code, e.Message)
}

// ValidationSentinel prefixes structured validation errors embedded in
// error strings crossing the manifest-source boundary.
const ValidationSentinel = "PLUGIN_MANIFEST_VALIDATION_JSON:"

// Sentinel returns the wire form of the error: the sentinel prefix
// followed by the JSON encoding.
func (e *ValidationError) Sentinel() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ValidationSentinel + `{"code":"unknown","message":"unencodable validation error"}`
	}
	return ValidationSentinel + string(data)
}

// ParseValidationSentinel recovers a structured validation error from an
// error string. The sentinel may appear anywhere in the message since
// transports tend to wrap errors.
func ParseValidationSentinel(msg string) (*ValidationError, bool) {
	idx := strings.Index(msg, ValidationSentinel)
	if idx < 0 {
		return nil, false
	}

	var ve ValidationError
	if err := json.Unmarshal([]byte(msg[idx+len(ValidationSentinel):]), &ve); err != nil {
		return nil, false
	}
	if ve.Code == "" && ve.Message == "" {
		return nil, false
	}
	return &ve, true
}

// manifestFile is the on-disk plugin.json shape. Pointer fields
// distinguish absent from zero for defaulted values.
type manifestFile struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Description      string            `json:"description"`
	Author           string            `json:"author"`
	Homepage         string            `json:"homepage"`
	Permissions      []string          `json:"permissions"`
	APIVersion       string            `json:"api_version"`
	MinAppVersion    string            `json:"min_app_version"`
	Entry            string            `json:"entry"`
	EnabledByDefault *bool             `json:"enabled_by_default"`
	IsDesktopOnly    bool              `json:"is_desktop_only"`
	Theme            map[string]string `json:"theme"`
}

var (
	idPattern      = regexp.MustCompile(`^[a-z0-9._-]+$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// validVersion checks the x.y.z core of a version, ignoring any
// pre-release or build suffix ("1.2.3-beta.1" is valid).
func validVersion(v string) bool {
	core, _, _ := strings.Cut(v, "-")
	core, _, _ = strings.Cut(core, "+")
	return versionPattern.MatchString(core)
}

// ParseManifest parses and validates plugin.json data. A structural
// defect is returned as a *ValidationError.
func ParseManifest(data []byte) (*Info, error) {
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, &ValidationError{Code: "invalid_json", Message: err.Error()}
	}

	if mf.ID == "" {
		return nil, &ValidationError{Code: "missing_id", Field: "id", Message: "plugin id is required"}
	}
	if !idPattern.MatchString(mf.ID) {
		return nil, &ValidationError{
			Code: "invalid_id", Field: "id",
			Message: fmt.Sprintf("plugin id %q may only contain lowercase letters, digits, '.', '_' and '-'", mf.ID),
		}
	}
	if mf.Name == "" {
		return nil, &ValidationError{Code: "missing_name", Field: "name", Message: "plugin name is required"}
	}
	if !validVersion(mf.Version) {
		return nil, &ValidationError{
			Code: "invalid_version", Field: "version",
			Message: fmt.Sprintf("version %q must be of the form major.minor.patch", mf.Version),
		}
	}

	entry := mf.Entry
	if entry == "" {
		entry = "init.lua"
	}
	if err := validateEntryPath(entry); err != nil {
		return nil, err
	}

	apiVersion := mf.APIVersion
	if apiVersion == "" {
		apiVersion = "1"
	}
	enabled := true
	if mf.EnabledByDefault != nil {
		enabled = *mf.EnabledByDefault
	}

	return &Info{
		ID:               mf.ID,
		Name:             mf.Name,
		Version:          mf.Version,
		Description:      mf.Description,
		Author:           mf.Author,
		Homepage:         mf.Homepage,
		Permissions:      mf.Permissions,
		APIVersion:       apiVersion,
		MinAppVersion:    mf.MinAppVersion,
		EntryPath:        entry,
		EnabledByDefault: enabled,
		IsDesktopOnly:    mf.IsDesktopOnly,
		Theme:            mf.Theme,
	}, nil
}

// validateEntryPath rejects absolute entry paths and any path that could
// step out of the plugin directory.
func validateEntryPath(entry string) *ValidationError {
	if strings.HasPrefix(entry, "/") || strings.HasPrefix(entry, "\\") {
		return &ValidationError{
			Code: "invalid_entry", Field: "entry",
			Message: fmt.Sprintf("entry %q must be relative to the plugin directory", entry),
		}
	}
	for _, seg := range strings.FieldsFunc(entry, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return &ValidationError{
				Code: "invalid_entry", Field: "entry",
				Message: fmt.Sprintf("entry %q must not contain '..' segments", entry),
			}
		}
	}
	return nil
}
