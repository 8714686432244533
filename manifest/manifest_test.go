package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	return path
}

const validManifest = `
[project]
name = "demo"
version = "0.1.0"
entry = "main.lark"

[source]
paths = ["src", "lib"]

[cache]
enabled = true
dir = ".lark-cache"
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if m.Project.Name != "demo" {
		t.Errorf("name = %q, want demo", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("version = %q", m.Project.Version)
	}
	if m.Dir != dir {
		t.Errorf("dir = %q, want %q", m.Dir, dir)
	}
	if got := m.EntryPath(); got != filepath.Join(dir, "main.lark") {
		t.Errorf("entry = %q", got)
	}
	if paths := m.SourcePaths(); len(paths) != 2 || paths[0] != filepath.Join(dir, "src") {
		t.Errorf("source paths = %v", paths)
	}
	if got := m.CachePath(); got != filepath.Join(dir, ".lark-cache", "compile.db") {
		t.Errorf("cache path = %q", got)
	}
}

func TestLoadRequiresName(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "[project]\nversion = \"1.0\"\n")

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a manifest without project.name")
	}
}

func TestLoadRequiresCacheDirWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "[project]\nname = \"x\"\n[cache]\nenabled = true\n")

	if _, err := Load(path); err == nil {
		t.Error("expected an error for cache.enabled without cache.dir")
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "[project\nname =")

	if _, err := Load(path); err == nil {
		t.Error("expected a parse error")
	}
}

func TestFindWalksUp(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, validManifest)

	nested := filepath.Join(dir, "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	m, err := Find(nested)
	if err != nil {
		t.Fatalf("find error: %v", err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("name = %q, want demo", m.Project.Name)
	}
}

func TestFindNotFound(t *testing.T) {
	// A bare temp dir has no manifest anywhere up the chain... unless the
	// test environment does; restrict to the temp subtree by checking the
	// error type only when nothing was found.
	dir := t.TempDir()
	if m, err := Find(dir); err == nil {
		// A manifest above the temp dir is possible but not ours.
		if m.Dir == dir {
			t.Error("found a manifest in an empty directory")
		}
	} else if !os.IsNotExist(err) {
		t.Errorf("error = %v, want not-exist", err)
	}
}

func TestCachePathDisabled(t *testing.T) {
	m := &Manifest{}
	if got := m.CachePath(); got != "" {
		t.Errorf("cache path = %q, want empty", got)
	}
}

func TestEntryPathEmpty(t *testing.T) {
	m := &Manifest{}
	if got := m.EntryPath(); got != "" {
		t.Errorf("entry path = %q, want empty", got)
	}
}
