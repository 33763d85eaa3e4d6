package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/dgallion1/chunkgate/internal/record"
)

// HTMLParser splits the page body on h1-h6. Site chrome and scripts are
// dropped and tables become table pages.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) ([]record.PageRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", filename, err)
	}
	root := doc
	if body := findElement(doc, atom.Body); body != nil {
		root = body
	}
	var b sectionBuilder
	walkHTML(&b, root)
	return b.done(), nil
}

func walkHTML(b *sectionBuilder, n *html.Node) {
	if n.Type == html.ElementNode {
		if level := headingLevel(n.DataAtom); level > 0 {
			b.heading(level, nodeText(n))
			return
		}
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Nav, atom.Header, atom.Footer, atom.Aside, atom.Form:
			return
		case atom.Table:
			b.table(htmlTable(n))
			return
		case atom.Pre:
			b.text(rawText(n))
			return
		case atom.P, atom.Li, atom.Blockquote, atom.Dd, atom.Dt, atom.Figcaption:
			b.text(nodeText(n))
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(b, c)
	}
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// htmlTable reads a table's rows. The header is the first row made only of
// th cells, or the first row when there is none.
func htmlTable(table *html.Node) (header []string, rows [][]string) {
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			// Cells are read as flat text, so nested tables fold into their cell.
			switch c.DataAtom {
			case atom.Tr:
				cells, allTH := htmlRow(c)
				if len(cells) == 0 {
					continue
				}
				if header == nil && allTH {
					header = cells
				} else {
					rows = append(rows, cells)
				}
			default:
				collect(c)
			}
		}
	}
	collect(table)
	if header == nil && len(rows) > 0 {
		header, rows = rows[0], rows[1:]
	}
	return header, rows
}

func htmlRow(tr *html.Node) (cells []string, allTH bool) {
	allTH = true
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom != atom.Td && c.DataAtom != atom.Th {
			continue
		}
		allTH = allTH && c.DataAtom == atom.Th
		cells = append(cells, nodeText(c))
	}
	return cells, allTH
}

// nodeText returns the text under n with HTML whitespace collapsed.
func nodeText(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.Trim(buf.String(), "\n")
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
