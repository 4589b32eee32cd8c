// Package manifest handles garnet.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "garnet.toml"

// Sink kinds.
const (
	SinkDir    = "dir"
	SinkSQLite = "sqlite"
)

// Manifest represents a garnet.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Build   Build   `toml:"build"`
	Typer   Typer   `toml:"typer"`

	// Dir is the directory containing the garnet.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures where tree documents are found.
type Source struct {
	Dirs []string `toml:"dirs"`
	// Main names the unit whose main method -run executes.
	Main string `toml:"main"`
}

// Build configures unit output.
type Build struct {
	Dest     string `toml:"dest"`
	Verbose  int    `toml:"verbose"`
	Sink     string `toml:"sink"`
	Database string `toml:"database"`
}

// Typer tunes inference.
type Typer struct {
	MaxCycles int `toml:"max-cycles"`
}

// Load parses a garnet.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Build.Dest == "" {
		m.Build.Dest = "build"
	}
	switch m.Build.Sink {
	case "":
		m.Build.Sink = SinkDir
	case SinkDir, SinkSQLite:
	default:
		return nil, fmt.Errorf("%s: unknown sink %q (want %q or %q)", path, m.Build.Sink, SinkDir, SinkSQLite)
	}
	if m.Build.Database == "" {
		m.Build.Database = filepath.Join(m.Build.Dest, "units.db")
	}
	if m.Typer.MaxCycles < 0 {
		return nil, fmt.Errorf("%s: typer max-cycles must not be negative", path)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a garnet.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.path(d))
	}
	return paths
}

// DestPath returns the absolute output directory.
func (m *Manifest) DestPath() string { return m.path(m.Build.Dest) }

// DatabasePath returns the absolute path of the SQLite artifact store.
func (m *Manifest) DatabasePath() string { return m.path(m.Build.Database) }

func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
