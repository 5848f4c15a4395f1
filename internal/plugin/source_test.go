package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writePluginDir(t *testing.T, workspace, id, manifest, code string) {
	t.Helper()
	dir := filepath.Join(workspace, pluginsDirName, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if code != "" {
		if err := os.WriteFile(filepath.Join(dir, "init.lua"), []byte(code), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestDirSourceReadEntry(t *testing.T) {
	workspace := t.TempDir()
	writePluginDir(t, workspace, "daily-notes", `{
		"id": "daily-notes",
		"name": "Daily Notes",
		"version": "1.0.0",
		"permissions": ["vault:read"]
	}`, `return function(api, info) end`)

	src := &DirSource{}
	entry, err := src.ReadEntry(context.Background(), "daily-notes", workspace)
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}

	if entry.Info.ID != "daily-notes" || entry.Info.Source != "workspace" {
		t.Errorf("info = %+v", entry.Info)
	}
	if entry.Info.RootPath == "" {
		t.Error("root path not set")
	}
	if entry.Code == "" {
		t.Error("entry code not read")
	}
}

func TestDirSourceInvalidManifestSentinel(t *testing.T) {
	workspace := t.TempDir()
	writePluginDir(t, workspace, "broken", `{"id": "broken", "name": "Broken", "version": "nope"}`, "")

	src := &DirSource{}
	_, err := src.ReadEntry(context.Background(), "broken", workspace)
	if err == nil {
		t.Fatal("invalid manifest accepted")
	}

	ve, ok := ParseValidationSentinel(err.Error())
	if !ok {
		t.Fatalf("error %q carries no sentinel", err)
	}
	if ve.Code != "invalid_version" {
		t.Errorf("code = %q", ve.Code)
	}
}

func TestDirSourceIDMismatch(t *testing.T) {
	workspace := t.TempDir()
	writePluginDir(t, workspace, "dir-name", `{"id": "other-name", "name": "X", "version": "1.0.0"}`, "")

	src := &DirSource{}
	_, err := src.ReadEntry(context.Background(), "dir-name", workspace)
	if err == nil {
		t.Fatal("id mismatch accepted")
	}
	if ve, ok := ParseValidationSentinel(err.Error()); !ok || ve.Code != "id_mismatch" {
		t.Errorf("err = %v", err)
	}
}

func TestDirSourceMissingPlugin(t *testing.T) {
	src := &DirSource{}
	_, err := src.ReadEntry(context.Background(), "ghost", t.TempDir())
	if err == nil {
		t.Fatal("missing plugin accepted")
	}
	if _, ok := ParseValidationSentinel(err.Error()); ok {
		t.Error("I/O failure should not look like a validation defect")
	}
}

func TestDirSourceMissingEntryFile(t *testing.T) {
	workspace := t.TempDir()
	writePluginDir(t, workspace, "no-entry", `{"id": "no-entry", "name": "X", "version": "1.0.0"}`, "")

	src := &DirSource{}
	if _, err := src.ReadEntry(context.Background(), "no-entry", workspace); err == nil {
		t.Fatal("missing entry file accepted")
	}
}
