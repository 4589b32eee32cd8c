package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/garnet/pkg/bytecode"
)

func classes(names ...string) []*bytecode.ClassBuilder {
	f := bytecode.NewFileBuilder("test.gt")
	for _, n := range names {
		f.Class(n, "object")
	}
	return f.Classes()
}

func TestDirSink(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")
	sink := DirSink(dest)
	for _, cb := range classes("B", "A") {
		if err := sink(cb.Filename(), cb); err != nil {
			t.Fatalf("sink: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dest, "A.gbc")); err != nil {
		t.Errorf("A.gbc not written: %v", err)
	}

	units, err := ReadDir(dest)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(units) != 2 {
		t.Fatalf("ReadDir returned %d units, want 2", len(units))
	}
	if units[0].Name != "A" || units[1].Name != "B" {
		t.Errorf("units = %s, %s, want A, B", units[0].Name, units[1].Name)
	}
	if units[0].Source != "test.gt" || units[0].ID != bytecode.UnitID("A") {
		t.Errorf("unit A = %+v", units[0])
	}
}

func TestReadDirIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	units, err := ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Errorf("ReadDir returned %d units, want 0", len(units))
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "units.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	for _, cb := range classes("Main", "Helper") {
		if err := s.Sink(cb.Filename(), cb); err != nil {
			t.Fatalf("Sink: %v", err)
		}
	}
	// Storing again replaces the row.
	again := classes("Main")[0]
	if err := s.Sink(again.Filename(), again); err != nil {
		t.Fatalf("Sink: %v", err)
	}

	units, err := s.Units(ctx)
	if err != nil {
		t.Fatalf("Units: %v", err)
	}
	if len(units) != 2 || units[0].Name != "Helper" || units[1].Name != "Main" {
		t.Fatalf("Units = %v", units)
	}

	u, err := s.Get(ctx, "Main")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.Super != "object" {
		t.Errorf("Main super = %q, want object", u.Super)
	}

	if err := s.Delete(ctx, "Main"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "Main"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("Get after Delete = %v, want %v", err, ErrUnitNotFound)
	}
	if err := s.Delete(ctx, "Main"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("second Delete = %v, want %v", err, ErrUnitNotFound)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	cb := classes("Kept")[0]
	if err := s.Sink(cb.Filename(), cb); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "Kept"); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
