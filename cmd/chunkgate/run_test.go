package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dgallion1/chunkgate/internal/config"
	"github.com/dgallion1/chunkgate/internal/sink"
)

func TestDocIDFor(t *testing.T) {
	tests := map[string]string{
		"/data/Annual Report 2024.pdf": "annual_report_2024",
		"notes.md":                     "notes",
		"./a/b/already-ok_id.txt":      "already-ok_id",
		"...":                          "document",
	}
	for in, want := range tests {
		if got := docIDFor(in); got != want {
			t.Errorf("docIDFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDocIDsForSameNameInDifferentDirs(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "x", "notes.txt")
	b := filepath.Join(root, "y", "notes.txt")
	c := filepath.Join(root, "other.md")

	ids, err := docIDsFor([]string{a, b, c}, "")
	require.NoError(t, err)
	require.Len(t, ids, 3)
	require.NotEqual(t, ids[0], ids[1])
	require.True(t, strings.HasPrefix(ids[0], "notes-"), ids[0])
	require.True(t, strings.HasPrefix(ids[1], "notes-"), ids[1])
	require.Equal(t, "other", ids[2])

	again, err := docIDsFor([]string{b, a, c}, "")
	require.NoError(t, err)
	require.Equal(t, []string{ids[1], ids[0], ids[2]}, again, "ids must not depend on argument order")

	_, err = docIDsFor([]string{a, filepath.Join(root, "x", ".", "notes.txt")}, "")
	require.ErrorContains(t, err, "more than once")
}

func TestRunFilesSameNameInDifferentDirs(t *testing.T) {
	cfg := testCLIConfig(t)
	root := t.TempDir()
	for _, d := range []string{"x", "y"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	files := []string{writeDoc(t, filepath.Join(root, "x"), "notes.txt", 3), writeDoc(t, filepath.Join(root, "y"), "notes.txt", 2)}

	var out bytes.Buffer
	require.NoError(t, runFiles(context.Background(), &out, cfg, runOptions{strategy: "fast"}, map[string]any{}, files))
	require.Equal(t, 2, strings.Count(out.String(), "complete"))

	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "each file gets its own output directory")
	for _, e := range entries {
		require.FileExists(t, filepath.Join(cfg.OutputDir, e.Name(), sink.AcceptedFile))
	}
}

func writeDoc(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	var b strings.Builder
	for p := range pages {
		b.WriteString(strings.Repeat("steady informative sentence about chunk gating ", 40))
		if p < pages-1 {
			b.WriteString("\f")
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testCLIConfig(t *testing.T) config.Config {
	root := t.TempDir()
	return config.Config{
		OutputDir:     filepath.Join(root, "out"),
		CheckpointURL: filepath.Join(root, "checkpoints"),
		WorkerCount:   2,
		LogLevel:      "error",
	}
}

func TestRunFilesThenSkip(t *testing.T) {
	cfg := testCLIConfig(t)
	dir := t.TempDir()
	files := []string{writeDoc(t, dir, "alpha.txt", 3), writeDoc(t, dir, "beta.txt", 2)}
	opts := runOptions{strategy: "fast"}

	var out bytes.Buffer
	require.NoError(t, runFiles(context.Background(), &out, cfg, opts, map[string]any{}, files))
	require.Contains(t, out.String(), "alpha")
	require.Contains(t, out.String(), "complete")
	for _, id := range []string{"alpha", "beta"} {
		require.FileExists(t, filepath.Join(cfg.OutputDir, id, sink.AcceptedFile))
		require.FileExists(t, filepath.Join(cfg.OutputDir, id, sink.StatsFile))
	}

	out.Reset()
	require.NoError(t, runFiles(context.Background(), &out, cfg, opts, map[string]any{}, files))
	require.Equal(t, 2, strings.Count(out.String(), "skipped"))
}

func TestRunFilesDryRunWritesNothing(t *testing.T) {
	cfg := testCLIConfig(t)
	file := writeDoc(t, t.TempDir(), "gamma.txt", 2)
	opts := runOptions{strategy: "fast", dryRun: true}

	var out bytes.Buffer
	require.NoError(t, runFiles(context.Background(), &out, cfg, opts, map[string]any{"runtime": map[string]any{"enable_checkpoint": false}}, []string{file}))
	require.Contains(t, out.String(), "complete")
	require.NoDirExists(t, cfg.OutputDir)
	require.NoDirExists(t, cfg.CheckpointURL)
}

func TestRunFilesReportsFailures(t *testing.T) {
	cfg := testCLIConfig(t)
	var out bytes.Buffer
	err := runFiles(context.Background(), &out, cfg, runOptions{strategy: "fast"}, map[string]any{},
		[]string{filepath.Join(t.TempDir(), "missing.txt")})
	require.ErrorContains(t, err, "1 of 1 documents failed")
	require.Contains(t, out.String(), "failed")
}

func TestRunFilesRejectsUnknownStrategy(t *testing.T) {
	err := runFiles(context.Background(), &bytes.Buffer{}, testCLIConfig(t), runOptions{strategy: "turbo"}, nil, []string{"x.txt"})
	require.Error(t, err)
}
