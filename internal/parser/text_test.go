package parser

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/chunkgate/internal/record"
)

func drain(t *testing.T, src Source) []record.PageRecord {
	t.Helper()
	var out []record.PageRecord
	for {
		p, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, p)
	}
}

func TestTextSource_FormFeedsSplitPages(t *testing.T) {
	src := NewTextSource(strings.NewReader("page one\nmore\fpage two\f\fpage four\n"), "doc", 0)
	pages := drain(t, src)

	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(pages))
	}
	want := []string{"page one\nmore", "page two", "", "page four"}
	for i, w := range want {
		if pages[i].Text != w {
			t.Errorf("page %d: expected %q, got %q", i+1, w, pages[i].Text)
		}
		if pages[i].PageNumber != i+1 {
			t.Errorf("page %d numbered %d", i+1, pages[i].PageNumber)
		}
	}
	if pages[2].Confidence != 0 || pages[2].ContentType != record.ContentScanned {
		t.Errorf("blank page should be zero-confidence scan, got %+v", pages[2])
	}
	if pages[0].BlockID != "doc:p1" {
		t.Errorf("unexpected block id %q", pages[0].BlockID)
	}
}

func TestTextSource_LinesPerPage(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		b.WriteString("line\n")
	}
	pages := drain(t, NewTextSource(strings.NewReader(b.String()), "doc", 3))
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if strings.Count(pages[2].Text, "line") != 1 {
		t.Errorf("last page should hold the remaining line, got %q", pages[2].Text)
	}
}

func TestTextSource_EmptyInput(t *testing.T) {
	pages := drain(t, NewTextSource(strings.NewReader(""), "doc", 0))
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
}

func TestTextSource_ResumeFrom(t *testing.T) {
	src := NewTextSource(strings.NewReader("a\fb\fc\fd"), "doc", 0)
	if err := src.ResumeFrom(3); err != nil {
		t.Fatal(err)
	}
	pages := drain(t, src)
	if len(pages) != 2 || pages[0].PageNumber != 3 || pages[0].Text != "c" {
		t.Fatalf("unexpected pages after resume: %+v", pages)
	}
}

func TestTextSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewTextSource(strings.NewReader("a"), "doc", 0)
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestOpen_TextFileNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("Hello\u200b   world\n12\n\ufb01ne\fsecond"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := Open(path, "notes", Options{Normalize: true})
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	pages := drain(t, src)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Text != "Hello world\nfine" {
		t.Errorf("unexpected normalized text %q", pages[0].Text)
	}
}

func TestOpen_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte{0, 1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, "x", Options{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestOpen_MissingPDF(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.pdf"), "x", Options{}); err == nil {
		t.Error("expected error for missing pdf")
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"page number line", "body\n  Page 3 of 10 \nmore", "body\nmore"},
		{"bare number line", "a\n42\nb", "a\nb"},
		{"number inside text", "chapter 42 starts", "chapter 42 starts"},
		{"tabs collapse", "a\t\tb", "a b"},
		{"bom", "\ufefftext", "text"},
		{"full width digits", "\uff11\uff12 apples", "12 apples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSliceSource_ResumeFrom(t *testing.T) {
	src := NewSliceSource("d", []record.PageRecord{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	if src.TotalPages() != 3 {
		t.Fatalf("expected 3 pages, got %d", src.TotalPages())
	}
	_ = src.ResumeFrom(2)
	pages := drain(t, src)
	if len(pages) != 2 || pages[0].PageNumber != 2 || pages[0].BlockID != "d:p2" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
	_ = src.ResumeFrom(9)
	if len(drain(t, src)) != 0 {
		t.Error("resume past the end should yield nothing")
	}
}
