package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/chunkgate/internal/record"
)

// PDFSource extracts one page at a time so memory stays bounded on very
// large files.
type PDFSource struct {
	docID  string
	f      *os.File
	reader *pdflib.Reader
	total  int
	next   int
}

// OpenPDF opens path with the Go PDF reader. When that fails and fallback is
// set, the whole file is converted with pdftotext instead.
func OpenPDF(path, docID string, fallback bool) (Source, error) {
	f, reader, err := pdflib.Open(path)
	if err == nil {
		return &PDFSource{docID: docID, f: f, reader: reader, total: reader.NumPage(), next: 1}, nil
	}
	if !fallback {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	text, ferr := extractPdftotext(path)
	if ferr != nil {
		return nil, fmt.Errorf("open pdf: %w (fallback: %v)", err, ferr)
	}
	var pages []record.PageRecord
	for i, t := range strings.Split(strings.TrimRight(text, "\f"), "\f") {
		pages = append(pages, textPage(docID, i+1, record.ContentText, t))
	}
	return NewSliceSource(docID, pages), nil
}

func (s *PDFSource) Next(ctx context.Context) (record.PageRecord, error) {
	if err := ctx.Err(); err != nil {
		return record.PageRecord{}, err
	}
	if s.next > s.total {
		return record.PageRecord{}, io.EOF
	}
	n := s.next
	s.next++
	return textPage(s.docID, n, record.ContentText, s.pageText(n)), nil
}

// pageText returns "" for pages the reader cannot decode; they become
// zero-confidence records instead of failing the document.
func (s *PDFSource) pageText(n int) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	page := s.reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	t, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return t
}

func (s *PDFSource) ResumeFrom(page int) error {
	if page < 1 {
		page = 1
	}
	s.next = page
	return nil
}

func (s *PDFSource) TotalPages() int { return s.total }

func (s *PDFSource) Close() error { return s.f.Close() }

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
