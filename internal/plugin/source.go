package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Entry is the manifest and entry code of one plugin build.
type Entry struct {
	Info *Info
	Code string
}

// EntrySource fetches a plugin's manifest and entry code by id. A
// structured manifest defect is reported via an error whose text carries
// the validation sentinel; the runtime parses it back into a
// ValidationError instead of surfacing a raw message.
type EntrySource interface {
	ReadEntry(ctx context.Context, id, workspacePath string) (*Entry, error)
}

// pluginsDirName is the workspace-relative plugins directory.
const pluginsDirName = ".lumina/plugins"

// DirSource reads plugins from <workspace>/.lumina/plugins/<id>/. It
// looks up plugins by id only; it never scans for manifests.
type DirSource struct {
	// Dir overrides the workspace-relative plugins directory.
	Dir string

	// Origin is the source tag stamped on manifests, default "workspace".
	Origin string
}

// ReadEntry loads and validates <id>/plugin.json, then reads the entry
// file it names.
func (s *DirSource) ReadEntry(_ context.Context, id, workspacePath string) (*Entry, error) {
	dirName := s.Dir
	if dirName == "" {
		dirName = pluginsDirName
	}
	dir := filepath.Join(workspacePath, dirName, id)

	data, err := os.ReadFile(filepath.Join(dir, "plugin.json"))
	if err != nil {
		return nil, fmt.Errorf("plugin %s: read manifest: %w", id, err)
	}

	info, err := ParseManifest(data)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, errors.New(ve.Sentinel())
		}
		return nil, err
	}

	if info.ID != id {
		ve := &ValidationError{
			Code: "id_mismatch", Field: "id",
			Message: fmt.Sprintf("manifest declares id %q but lives in directory %q", info.ID, id),
		}
		return nil, errors.New(ve.Sentinel())
	}

	origin := s.Origin
	if origin == "" {
		origin = "workspace"
	}
	info.Source = origin
	info.RootPath = dir

	code, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(info.EntryPath)))
	if err != nil {
		return nil, fmt.Errorf("plugin %s: read entry: %w", id, err)
	}

	return &Entry{Info: info, Code: string(code)}, nil
}
