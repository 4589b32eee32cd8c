package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const hello = `{kind: "script", body: {kind: "body", children: [
	{kind: "print", newline: true, values: [{kind: "string", value: "hi"}]},
]}}`

func TestLoadSourcesPutsInlineFirst(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "other.cue")
	if err := os.WriteFile(file, []byte(hello), 0o644); err != nil {
		t.Fatal(err)
	}
	sources, err := loadSources(hello, []string{file})
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 2 || sources[0].name != inlineName || sources[1].name != file {
		t.Errorf("sources = %+v", sources)
	}
	if _, err := loadSources("", []string{filepath.Join(dir, "missing.cue")}); err == nil {
		t.Error("loadSources should fail for a missing file")
	}
}

func TestCompileInline(t *testing.T) {
	sources, err := loadSources(hello, nil)
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := compileAndRun(context.Background(), sources, nil, options{dest: dest}); err != nil {
		t.Fatalf("compileAndRun: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "DashE.gbc")); err != nil {
		t.Errorf("DashE unit was not written: %v", err)
	}
}

func TestCompileFailureWritesNothing(t *testing.T) {
	bad := source{name: "bad.cue", data: []byte(`{kind: "script", body: {kind: "local", name: "nope"}}`)}
	good, err := loadSources(hello, nil)
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	if err := compileAndRun(context.Background(), append(good, bad), nil, options{dest: dest}); err == nil {
		t.Fatal("compileAndRun should fail")
	}
	if entries, _ := os.ReadDir(dest); len(entries) != 0 {
		t.Errorf("dest has %d entries, want none", len(entries))
	}
}

func TestSplitArgs(t *testing.T) {
	files, rest := splitArgs([]string{"a.cue", "b.cue", "--", "x", "y"})
	if len(files) != 2 || len(rest) != 2 || rest[0] != "x" {
		t.Errorf("splitArgs = %v, %v", files, rest)
	}
	files, rest = splitArgs([]string{"a.cue"})
	if len(files) != 1 || rest != nil {
		t.Errorf("splitArgs = %v, %v", files, rest)
	}
}
