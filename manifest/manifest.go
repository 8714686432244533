// Package manifest loads lark.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file name looked up by Find.
const FileName = "lark.toml"

// Manifest represents a lark.toml project configuration.
type Manifest struct {
	Project Project     `toml:"project"`
	Source  Source      `toml:"source"`
	Cache   CacheConfig `toml:"cache"`

	// Dir is the directory containing the lark.toml file, set at load
	// time.
	Dir string `toml:"-"`
}

// Project holds project identity and the entry point.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`

	// Entry is the source file run by `lark` with no arguments, relative
	// to the manifest directory.
	Entry string `toml:"entry"`
}

// Source configures where sources are found.
type Source struct {
	// Paths are directories or files to compile, relative to the manifest
	// directory.
	Paths []string `toml:"paths"`
}

// CacheConfig configures the compile cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Load reads and validates a manifest from path.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	m.Dir = filepath.Dir(abs)

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Find walks up from dir looking for a lark.toml. Returns os.ErrNotExist
// if no manifest is found.
func Find(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	for {
		candidate := filepath.Join(abs, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return Load(candidate)
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return nil, os.ErrNotExist
		}
		abs = parent
	}
}

// Validate checks required fields.
func (m *Manifest) Validate() error {
	if m.Project.Name == "" {
		return fmt.Errorf("project.name is required")
	}
	if m.Cache.Enabled && m.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required when cache.enabled is true")
	}
	return nil
}

// EntryPath returns the absolute path of the entry file, or "" if no entry
// is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// SourcePaths returns the absolute source paths.
func (m *Manifest) SourcePaths() []string {
	paths := make([]string, 0, len(m.Source.Paths))
	for _, p := range m.Source.Paths {
		paths = append(paths, filepath.Join(m.Dir, p))
	}
	return paths
}

// CachePath returns the absolute path of the cache database, or "" when
// the cache is disabled.
func (m *Manifest) CachePath() string {
	if !m.Cache.Enabled {
		return ""
	}
	return filepath.Join(m.Dir, m.Cache.Dir, "compile.db")
}
