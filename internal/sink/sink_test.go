package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/chunkgate/internal/record"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

func TestFilesCommitAndRollback(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFiles(dir, Offsets{})
	if err != nil {
		t.Fatal(err)
	}
	c := record.Candidate{DocumentID: "d", PageStart: 1, PageEnd: 1, Content: "hello"}
	if err := f.Accept(record.NewAccepted(c, record.Verdict{RuleScore: 1, RuleAccepted: true})); err != nil {
		t.Fatal(err)
	}
	off, err := f.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if off.Accepted == 0 || off.Rejected != 0 {
		t.Fatalf("unexpected offsets %+v", off)
	}

	// Uncommitted writes that reach disk are rolled back on reopen.
	c.SequenceIndex = 1
	f.Accept(record.NewAccepted(c, record.Verdict{RuleScore: 1, RuleAccepted: true}))
	f.Reject(record.NewRejected(c, record.Verdict{Reason: record.ReasonLength}))
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if got := len(readLines(t, filepath.Join(dir, AcceptedFile))); got != 2 {
		t.Fatalf("expected 2 lines before rollback, got %d", got)
	}

	f, err = OpenFiles(dir, off)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	lines := readLines(t, filepath.Join(dir, AcceptedFile))
	if len(lines) != 1 {
		t.Fatalf("expected 1 line after rollback, got %d", len(lines))
	}
	var got record.AcceptedChunk
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatal(err)
	}
	if got.ChunkID != record.ChunkID(record.Candidate{DocumentID: "d", PageStart: 1, PageEnd: 1, Content: "hello"}) {
		t.Errorf("unexpected chunk id %s", got.ChunkID)
	}
	if n := len(readLines(t, filepath.Join(dir, RejectedFile))); n != 0 {
		t.Errorf("expected empty rejected sink, got %d lines", n)
	}
}

func TestOpenJSONLRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.jsonl")
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenJSONL(path, 100); err == nil {
		t.Fatal("expected error when file is shorter than committed offset")
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", StatsFile)
	if err := WriteJSON(context.Background(), path, map[string]int{"accepted": 3}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["accepted"] != 3 {
		t.Errorf("got %v", got)
	}
}
