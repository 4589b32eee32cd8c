// Package store holds the destinations generated units are written to: a
// directory of unit files or a SQLite artifact database.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/garnet/pkg/bytecode"
)

// Extension is the file extension of an encoded unit.
const Extension = ".gbc"

var log = commonlog.GetLogger("garnet.store")

// DirSink returns a sink that writes each unit to dest under the file name
// the compiler proposes. dest is created if missing.
func DirSink(dest string) func(filename string, unit *bytecode.ClassBuilder) error {
	return func(filename string, unit *bytecode.ClassBuilder) error {
		data, err := unit.Bytes()
		if err != nil {
			return fmt.Errorf("encoding %s: %w", unit.Name(), err)
		}
		path := filepath.Join(dest, filename)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Debugf("wrote %s (%d bytes)", path, len(data))
		return nil
	}
}

// ReadDir decodes every unit file directly in dir, sorted by file name.
func ReadDir(dir string) ([]*bytecode.Unit, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	units := make([]*bytecode.Unit, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		u, err := bytecode.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		units = append(units, u)
	}
	return units, nil
}
