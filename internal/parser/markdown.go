package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/chunkgate/internal/record"
)

// MarkdownParser splits Markdown on headings. GFM tables become table pages;
// raw HTML blocks are dropped.
type MarkdownParser struct{}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func (p *MarkdownParser) Parse(r io.Reader, filename string) ([]record.PageRecord, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	var b sectionBuilder
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			b.heading(node.Level, extractText(node, src))
		case *extast.Table:
			b.table(markdownTable(node, src))
		case *ast.HTMLBlock:
		default:
			b.text(extractText(n, src))
		}
	}
	return b.done(), nil
}

func markdownTable(t *extast.Table, src []byte) (header []string, rows [][]string) {
	for n := t.FirstChild(); n != nil; n = n.NextSibling() {
		var cells []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			cells = append(cells, extractText(c, src))
		}
		if _, ok := n.(*extast.TableHeader); ok {
			header = cells
		} else {
			rows = append(rows, cells)
		}
	}
	return header, rows
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	// Leaf blocks such as code fences carry raw lines; everything else is
	// rebuilt from its inline children so text is not written twice.
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
