package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/chunkgate/internal/record"
)

// DOCXParser splits Word documents on Title and Heading paragraph styles.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) ([]record.PageRecord, error) {
	// go-docx reads the zip through io.ReaderAt.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx %s: %w", filename, err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx %s: %w", filename, err)
	}

	var b sectionBuilder
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level := docxStyleLevel(para); level > 0 {
			b.heading(level, text)
		} else {
			b.text(text)
		}
	}
	return b.done(), nil
}

// docxStyleLevel maps "Title" to 1 and "Heading N" to N. Style IDs vary in
// case and spacing between editors.
func docxStyleLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if style == "title" {
		return 1
	}
	n, ok := strings.CutPrefix(style, "heading")
	if !ok || len(n) != 1 || n[0] < '1' || n[0] > '6' {
		return 0
	}
	return int(n[0] - '0')
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
