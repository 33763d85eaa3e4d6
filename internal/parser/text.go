package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/chunkgate/internal/record"
)

// DefaultLinesPerPage splits text files that contain no form feeds.
const DefaultLinesPerPage = 60

// TextSource streams a plain text file. Form feeds end a page; so does
// reaching linesPerPage lines.
type TextSource struct {
	docID        string
	closer       io.Closer
	r            *bufio.Reader
	linesPerPage int
	buf          string
	eof          bool
	page         int
	skipBefore   int
}

// OpenText opens path as a streaming text source.
func OpenText(path, docID string, linesPerPage int) (*TextSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewTextSource(f, docID, linesPerPage), nil
}

// NewTextSource reads from r, closing it on Close when it is an io.Closer.
func NewTextSource(r io.Reader, docID string, linesPerPage int) *TextSource {
	if linesPerPage <= 0 {
		linesPerPage = DefaultLinesPerPage
	}
	t := &TextSource{docID: docID, r: bufio.NewReaderSize(r, 64<<10), linesPerPage: linesPerPage}
	if c, ok := r.(io.Closer); ok {
		t.closer = c
	}
	return t
}

func (t *TextSource) Next(ctx context.Context) (record.PageRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return record.PageRecord{}, err
		}
		text, err := t.readPage()
		if err != nil {
			return record.PageRecord{}, err
		}
		t.page++
		if t.page < t.skipBefore {
			continue
		}
		return textPage(t.docID, t.page, record.ContentText, strings.TrimRight(text, "\n")), nil
	}
}

func (t *TextSource) readPage() (string, error) {
	var b strings.Builder
	lines := 0
	broke := false
	for {
		if t.buf == "" {
			if t.eof {
				break
			}
			line, err := t.r.ReadString('\n')
			if err == io.EOF {
				t.eof = true
			} else if err != nil {
				return "", fmt.Errorf("read text: %w", err)
			}
			if line == "" {
				continue
			}
			t.buf = line
		}
		if i := strings.IndexByte(t.buf, '\f'); i >= 0 {
			b.WriteString(t.buf[:i])
			t.buf = t.buf[i+1:]
			broke = true
			break
		}
		b.WriteString(t.buf)
		t.buf = ""
		lines++
		if lines >= t.linesPerPage {
			break
		}
	}
	if b.Len() == 0 && !broke && t.eof && t.buf == "" {
		return "", io.EOF
	}
	return b.String(), nil
}

// ResumeFrom skips pages numbered below page. Skipped pages are still read.
func (t *TextSource) ResumeFrom(page int) error {
	t.skipBefore = page
	return nil
}

func (t *TextSource) TotalPages() int { return 0 }

func (t *TextSource) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
