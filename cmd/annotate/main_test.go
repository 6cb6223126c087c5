package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"annotation-backend/internal/pipeline"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunText(t *testing.T) {
	out, _, err := execute(t, "run", "--text", "Patient has no fever.")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{`<?xml version="1.0" encoding="UTF-8"?>`, `polarity="-1"`, `cui="C0015967"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRunFileToOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(in, []byte("Denies cough."), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	outPath := filepath.Join(dir, "out", "note.xml")

	_, stderr, err := execute(t, "run", in, "-o", outPath, "--repeat", "2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), "<FileName>note.txt</FileName>") {
		t.Fatalf("unexpected output:\n%s", data)
	}
	if !strings.Contains(string(data), `<Environment existed="true">`) {
		t.Fatalf("second pass should reuse the engine:\n%s", data)
	}
	if !strings.Contains(stderr, "reused=true") {
		t.Fatalf("unexpected summary %q", stderr)
	}
}

func TestRunRequiresInput(t *testing.T) {
	if _, _, err := execute(t, "run"); err == nil {
		t.Fatalf("expected error without input")
	}
}

func TestRunRejectsEmptyFile(t *testing.T) {
	in := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(in, nil, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	_, _, err := execute(t, "run", "--text", "  ", in)
	if !errors.Is(err, pipeline.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestCheckReportsEngine(t *testing.T) {
	out, _, err := execute(t, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, `"initialized": true`) {
		t.Fatalf("unexpected report %s", out)
	}
}

func TestCheckFailsOnMissingDictionary(t *testing.T) {
	_, _, err := execute(t, "--dictionary", filepath.Join(t.TempDir(), "missing.yaml"), "check")
	if err == nil {
		t.Fatalf("expected failure for a missing dictionary")
	}
}
