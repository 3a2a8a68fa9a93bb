package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kokistudios/xlmatch/internal/ui"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--no-color"}, args...))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func resultKeys(t *testing.T) []string {
	t.Helper()
	s, err := openSession(context.Background())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()
	var keys []string
	for _, r := range s.app.Results() {
		keys = append(keys, r.Key)
	}
	return keys
}

func referenceKeys(t *testing.T) []string {
	t.Helper()
	s, err := openSession(context.Background())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()
	var keys []string
	for _, r := range s.app.Reference() {
		keys = append(keys, r.Key)
	}
	return keys
}

func TestCLI_Workflow(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("XLMATCH_HOME", home)

	dir := t.TempDir()
	ref := filepath.Join(dir, "people.csv")
	if err := os.WriteFile(ref, []byte("Alice,100\nBob,200\nCarol,300\n"), 0644); err != nil {
		t.Fatal(err)
	}
	batch := filepath.Join(dir, "batch.csv")
	if err := os.WriteFile(batch, []byte("nobody,carol\n200\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := run(t, "load", ref); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err != nil {
		t.Errorf("home should be auto-initialized: %v", err)
	}

	if err := run(t, "add", "alice", "zzz", "ALICE"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := run(t, "batch", batch); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if diff := cmp.Diff([]string{"Carol", "Bob", "Alice"}, resultKeys(t)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	// Nothing new: reported as a warning, not a failure.
	if err := run(t, "batch", batch); err != nil {
		t.Errorf("repeat batch should not fail: %v", err)
	}

	out := t.TempDir()
	if err := run(t, "export", "-o", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(out, "matched_export_*.xlsx"))
	if len(files) != 1 {
		t.Errorf("expected one export file, got %v", files)
	}

	if err := run(t, "clear", "--yes"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if keys := resultKeys(t); len(keys) != 0 {
		t.Errorf("expected empty list after clear, got %v", keys)
	}
	if err := run(t, "export", "-o", out); err == nil {
		t.Error("exporting an empty list should fail")
	}

	if err := run(t, "reset", "--yes"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := run(t, "add", "alice"); err == nil {
		t.Error("add without reference data should fail")
	}
}

func TestCLI_LoadReplacesOnlyWhenConfirmed(t *testing.T) {
	t.Setenv("XLMATCH_HOME", filepath.Join(t.TempDir(), "home"))
	dir := t.TempDir()
	first := filepath.Join(dir, "people.csv")
	second := filepath.Join(dir, "other.csv")
	if err := os.WriteFile(first, []byte("Alice,100\nBob,200\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte("Dave,400\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var prompts []string
	answer := false
	confirmPrompt = func(prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return answer, nil
	}
	t.Cleanup(func() { confirmPrompt = ui.Confirm })

	if err := run(t, "load", first); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(prompts) != 0 {
		t.Errorf("first load should not ask, got %v", prompts)
	}

	if err := run(t, "load", second); err != nil {
		t.Fatalf("declined load: %v", err)
	}
	if len(prompts) != 1 {
		t.Fatalf("expected one prompt, got %v", prompts)
	}
	if got := referenceKeys(t); !cmp.Equal([]string{"Alice", "Bob"}, got) {
		t.Errorf("declined replace must keep the reference set, got %v", got)
	}

	answer = true
	if err := run(t, "load", second); err != nil {
		t.Fatalf("confirmed load: %v", err)
	}
	if got := referenceKeys(t); !cmp.Equal([]string{"Dave"}, got) {
		t.Errorf("expected replaced reference set, got %v", got)
	}

	answer = false
	if err := run(t, "load", "--yes", first); err != nil {
		t.Fatalf("load --yes: %v", err)
	}
	if len(prompts) != 2 {
		t.Errorf("--yes should skip the prompt, got %d prompts", len(prompts))
	}
	if got := referenceKeys(t); !cmp.Equal([]string{"Alice", "Bob"}, got) {
		t.Errorf("expected reference set from --yes load, got %v", got)
	}
}

func TestCLI_ConfigSet(t *testing.T) {
	t.Setenv("XLMATCH_HOME", filepath.Join(t.TempDir(), "home"))

	if err := run(t, "config", "set", "batch.max_cells", "2"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if err := run(t, "config", "set", "batch.max_cells", "zero"); err == nil {
		t.Error("expected validation error")
	}
	s, err := loadStore()
	if err != nil {
		t.Fatal(err)
	}
	if s.Config.Batch.MaxCells != 2 {
		t.Errorf("max_cells = %d, want 2", s.Config.Batch.MaxCells)
	}
}

func TestCLI_LoadErrors(t *testing.T) {
	t.Setenv("XLMATCH_HOME", filepath.Join(t.TempDir(), "home"))
	if err := run(t, "load", filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected read error")
	}
	if err := run(t, "load"); err == nil {
		t.Error("expected argument error")
	}
}
