package integration_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/garnet/compiler"
	"github.com/chazu/garnet/pkg/ast"
	"github.com/chazu/garnet/pkg/bytecode"
	"github.com/chazu/garnet/store"
	"github.com/chazu/garnet/typer"
	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// Integration test helpers
// ---------------------------------------------------------------------------

// compileExample decodes and compiles one document from examples/.
func compileExample(t *testing.T, name string) *compiler.Compiler {
	t.Helper()
	path := filepath.Join("..", "..", "examples", name)
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tree, err := ast.Decode(src, path)
	if err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	ty := typer.New(tree, nil, typer.WithUnitName(typer.UnitName(path)))
	ty.Infer(tree.Root())
	if err := ty.Resolve(true); err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	c, err := compiler.New(path, tree, ty)
	if err != nil {
		t.Fatalf("compiler for %s: %v", name, err)
	}
	if err := c.Compile(tree.Root(), false); err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return c
}

// runUnits loads units into a fresh VM and runs main of the named unit.
func runUnits(t *testing.T, units []*bytecode.Unit, main string) string {
	t.Helper()
	var out bytes.Buffer
	machine := vm.New(vm.WithOutput(&out))
	if err := machine.Load(units...); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := machine.Run(context.Background(), main, nil); err != nil {
		t.Fatalf("Run %s: %v", main, err)
	}
	return out.String()
}

const (
	helloOutput  = "0 1 1 2 3 5 8 13 21 34 \ncleanup\noops\n"
	shapesOutput = "(1, 2)\n(3, 4)\n"
)

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestExamplesThroughDirectory(t *testing.T) {
	dest := t.TempDir()
	for _, name := range []string{"hello.cue", "shapes.cue"} {
		if err := compileExample(t, name).Generate(store.DirSink(dest)); err != nil {
			t.Fatalf("Generate %s: %v", name, err)
		}
	}
	units, err := store.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 3 {
		t.Fatalf("wrote %d units, want 3 (hello, shapes, Point)", len(units))
	}

	if got := runUnits(t, units, "hello"); got != helloOutput {
		t.Errorf("hello output = %q, want %q", got, helloOutput)
	}
	if got := runUnits(t, units, "shapes"); got != shapesOutput {
		t.Errorf("shapes output = %q, want %q", got, shapesOutput)
	}
}

func TestExamplesThroughSQLite(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "units.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := compileExample(t, "shapes.cue").Generate(s.Sink); err != nil {
		t.Fatal(err)
	}
	units, err := s.Units(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := runUnits(t, units, "shapes"); got != shapesOutput {
		t.Errorf("shapes output = %q, want %q", got, shapesOutput)
	}
}

func TestRecompileIsByteIdentical(t *testing.T) {
	images := func() map[string][]byte {
		out := make(map[string][]byte)
		err := compileExample(t, "shapes.cue").Generate(func(filename string, cb *bytecode.ClassBuilder) error {
			data, err := cb.Bytes()
			out[filename] = data
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	first, second := images(), images()
	for name, data := range first {
		if !bytes.Equal(data, second[name]) {
			t.Errorf("%s differs between compilations", name)
		}
	}
}
