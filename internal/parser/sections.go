package parser

import (
	"strings"

	"github.com/dgallion1/chunkgate/internal/record"
)

// tableRowsPerPage is how many data rows make up one table page.
const tableRowsPerPage = 20

// sectionBuilder splits heading-structured documents into one page per
// section. Each page starts with its heading path. Tables become pages of
// their own so their rows are never mixed with prose.
type sectionBuilder struct {
	stack []heading
	body  strings.Builder
	pages []record.PageRecord
}

type heading struct {
	title string
	level int
}

func (b *sectionBuilder) heading(level int, title string) {
	b.flush()
	// Pop until the parent has a lower level.
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}
	b.stack = append(b.stack, heading{title: title, level: level})
}

func (b *sectionBuilder) text(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if b.body.Len() > 0 {
		b.body.WriteString("\n\n")
	}
	b.body.WriteString(t)
}

// table emits header and rows as table pages, repeating the header on each.
// A table without data rows is kept as prose.
func (b *sectionBuilder) table(header []string, rows [][]string) {
	if len(rows) == 0 {
		b.text(strings.Join(header, ", "))
		return
	}
	b.flush()
	for i := 0; i < len(rows); i += tableRowsPerPage {
		var sb strings.Builder
		sb.WriteString("Headers: " + strings.Join(header, ", ") + "\n\n")
		for _, row := range rows[i:min(i+tableRowsPerPage, len(rows))] {
			sb.WriteString(tableRow(header, row))
			sb.WriteByte('\n')
		}
		b.add(record.ContentTable, sb.String())
	}
}

// tableRow labels each cell with its column header.
func tableRow(header, row []string) string {
	cells := make([]string, len(row))
	for j, cell := range row {
		if j < len(header) && header[j] != "" {
			cells[j] = header[j] + ": " + cell
		} else {
			cells[j] = cell
		}
	}
	return strings.Join(cells, ", ")
}

func (b *sectionBuilder) flush() {
	body := strings.TrimSpace(b.body.String())
	b.body.Reset()
	if body != "" {
		b.add(record.ContentText, body)
	}
}

func (b *sectionBuilder) add(ct record.ContentType, body string) {
	text := body
	if len(b.stack) > 0 {
		titles := make([]string, len(b.stack))
		for i, h := range b.stack {
			titles[i] = h.title
		}
		text = strings.Join(titles, " > ") + "\n\n" + body
	}
	b.pages = append(b.pages, record.PageRecord{
		PageNumber:  len(b.pages) + 1,
		ContentType: ct,
		Text:        text,
		Confidence:  1,
	})
}

func (b *sectionBuilder) done() []record.PageRecord {
	b.flush()
	return b.pages
}
