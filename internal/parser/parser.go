// Package parser turns documents into ordered streams of page records.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/chunkgate/internal/record"
)

// Source streams the page records of one document in page order.
type Source interface {
	// Next returns the next page, or io.EOF after the last one.
	Next(ctx context.Context) (record.PageRecord, error)
	// ResumeFrom positions the source so the next page returned is the first
	// page numbered at least page.
	ResumeFrom(page int) error
	// TotalPages is the page count, or 0 when it is not known up front.
	TotalPages() int
	Close() error
}

// Parser converts a whole document into page records. Formats whose
// libraries need the complete input implement Parser and are served from
// memory; PDF and plain text stream.
type Parser interface {
	Parse(r io.Reader, filename string) ([]record.PageRecord, error)
}

// ErrUnsupported is returned for file types no parser handles.
var ErrUnsupported = errors.New("unsupported file type")

// Options tune source construction.
type Options struct {
	FallbackPdftotext bool
	Normalize         bool
	LinesPerPage      int // plain text page length when no form feeds are present
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the in-memory parser for a filename. PDF and text are
// handled by Open.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// Open returns a Source for the document at path.
func Open(path, docID string, opts Options) (Source, error) {
	var (
		src Source
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		src, err = OpenPDF(path, docID, opts.FallbackPdftotext)
	case ".txt":
		src, err = OpenText(path, docID, opts.LinesPerPage)
	default:
		src, err = parseFile(path, docID)
	}
	if err != nil {
		return nil, err
	}
	if opts.Normalize {
		src = Normalized(src)
	}
	return src, nil
}

func parseFile(path, docID string) (Source, error) {
	p, err := ForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	pages, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	return NewSliceSource(docID, pages), nil
}

// SliceSource serves pre-parsed pages.
type SliceSource struct {
	pages []record.PageRecord
	next  int
}

// NewSliceSource numbers pages 1..n when they carry no page number and fills
// missing block IDs.
func NewSliceSource(docID string, pages []record.PageRecord) *SliceSource {
	for i := range pages {
		if pages[i].PageNumber == 0 {
			pages[i].PageNumber = i + 1
		}
		if pages[i].BlockID == "" {
			pages[i].BlockID = blockID(docID, pages[i].PageNumber)
		}
	}
	return &SliceSource{pages: pages}
}

func (s *SliceSource) Next(ctx context.Context) (record.PageRecord, error) {
	if err := ctx.Err(); err != nil {
		return record.PageRecord{}, err
	}
	if s.next >= len(s.pages) {
		return record.PageRecord{}, io.EOF
	}
	p := s.pages[s.next]
	s.next++
	return p, nil
}

func (s *SliceSource) ResumeFrom(page int) error {
	s.next = len(s.pages)
	for i, p := range s.pages {
		if p.PageNumber >= page {
			s.next = i
			break
		}
	}
	return nil
}

func (s *SliceSource) TotalPages() int { return len(s.pages) }
func (s *SliceSource) Close() error    { return nil }

func blockID(docID string, page int) string {
	return fmt.Sprintf("%s:p%d", docID, page)
}

// textPage builds a page record for extracted text. Blank pages are marked as
// low-confidence scans since text extraction found nothing on them.
func textPage(docID string, n int, ct record.ContentType, text string) record.PageRecord {
	p := record.PageRecord{
		PageNumber:  n,
		ContentType: ct,
		Text:        text,
		Confidence:  1,
		BlockID:     blockID(docID, n),
	}
	if strings.TrimSpace(text) == "" {
		p.ContentType = record.ContentScanned
		p.Confidence = 0
	}
	return p
}
