package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/chunkgate/internal/record"
)

func TestMarkdownParser_SectionsBecomePages(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.

## Section B

Section B content.
`
	p := &MarkdownParser{}
	pages, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"Title\n\nIntro text.",
		"Title > Section A\n\nSection A content.",
		"Title > Section A > Subsection A1\n\nSubsection A1 content.",
		"Title > Section B\n\nSection B content.",
	}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %d", len(want), len(pages))
	}
	for i, w := range want {
		if pages[i].Text != w {
			t.Errorf("page %d: expected %q, got %q", i+1, w, pages[i].Text)
		}
		if pages[i].PageNumber != i+1 {
			t.Errorf("page %d numbered %d", i+1, pages[i].PageNumber)
		}
	}
}

func TestMarkdownParser_NoHeadings(t *testing.T) {
	input := "Just some plain text.\n\nAnother paragraph here."
	pages, err := (&MarkdownParser{}).Parse(strings.NewReader(input), "plain.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page for headingless markdown, got %d", len(pages))
	}
	if pages[0].Text != "Just some plain text.\n\nAnother paragraph here." {
		t.Errorf("unexpected text %q", pages[0].Text)
	}
}

func TestMarkdownParser_CodeBlocksKept(t *testing.T) {
	input := "# API\n\n## Endpoints\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"
	pages, err := (&MarkdownParser{}).Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	for _, want := range []string{"API > Endpoints", "GET /api/users", "More text after code."} {
		if !strings.Contains(pages[0].Text, want) {
			t.Errorf("expected %q in %q", want, pages[0].Text)
		}
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	pages, err := (&MarkdownParser{}).Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("expected no pages, got %d", len(pages))
	}
}

func TestHTMLParser_SkipsChrome(t *testing.T) {
	input := `<html><body><nav>menu</nav><h1>Guide</h1><p>Step one.</p><h2>Part</h2><p>Step two.</p><script>x()</script></body></html>`
	pages, err := (&HTMLParser{}).Parse(strings.NewReader(input), "g.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].Text != "Guide\n\nStep one." || pages[1].Text != "Guide > Part\n\nStep two." {
		t.Errorf("unexpected pages: %q / %q", pages[0].Text, pages[1].Text)
	}
}

func TestCSVParser_PagesOfRows(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,qty\n")
	for i := 0; i < 45; i++ {
		b.WriteString("apple,3\n")
	}
	pages, err := (&CSVParser{}).Parse(strings.NewReader(b.String()), "t.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for _, p := range pages {
		if p.ContentType != record.ContentTable {
			t.Errorf("expected table content, got %s", p.ContentType)
		}
		if !strings.HasPrefix(p.Text, "Headers: name, qty") {
			t.Errorf("page should repeat headers: %q", p.Text)
		}
	}
	if strings.Count(pages[2].Text, "apple") != 5 {
		t.Errorf("last page should hold 5 rows")
	}
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"a.md", "b.CSV", "c.htm", "d.docx"} {
		if _, err := ForFile(name); err != nil {
			t.Errorf("ForFile(%q): %v", name, err)
		}
	}
	if _, err := ForFile("x.pdf"); err == nil {
		t.Error("pdf is streamed, not parsed in memory")
	}
	if !IsSupportedExtension("report.PDF") || IsSupportedExtension("a.exe") {
		t.Error("IsSupportedExtension mismatch")
	}
}

func TestMarkdownParser_TablesBecomeTablePages(t *testing.T) {
	input := "# Prices\n\nIntro.\n\n| item | cost |\n|------|------|\n| tea  | 2    |\n| cake | 4    |\n\nAfter.\n\n<div>raw html</div>\n"
	pages, err := (&MarkdownParser{}).Parse(strings.NewReader(input), "p.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	want := "Prices\n\nHeaders: item, cost\n\nitem: tea, cost: 2\nitem: cake, cost: 4\n"
	if pages[1].ContentType != record.ContentTable || pages[1].Text != want {
		t.Errorf("table page: got %s %q", pages[1].ContentType, pages[1].Text)
	}
	if pages[2].Text != "Prices\n\nAfter." {
		t.Errorf("html block should be dropped, got %q", pages[2].Text)
	}
}

func TestHTMLParser_Tables(t *testing.T) {
	input := `<body><h1>Stock</h1><table><thead><tr><th>name</th><th>qty</th></tr></thead>
<tbody><tr><td>apple</td><td> 3 </td></tr><tr><td>pear</td><td>5</td></tr></tbody></table>
<table><tr><td>a</td><td>b</td></tr><tr><td>1</td><td>2</td></tr></table></body>`
	pages, err := (&HTMLParser{}).Parse(strings.NewReader(input), "s.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 table pages, got %d", len(pages))
	}
	if pages[0].Text != "Stock\n\nHeaders: name, qty\n\nname: apple, qty: 3\nname: pear, qty: 5\n" {
		t.Errorf("unexpected th table page %q", pages[0].Text)
	}
	if !strings.Contains(pages[1].Text, "Headers: a, b\n\na: 1, b: 2") {
		t.Errorf("first row should become the header: %q", pages[1].Text)
	}
}

func TestHTMLParser_CollapsesWhitespace(t *testing.T) {
	input := "<p>one\n   two\t three</p><pre>keep\n  indent</pre>"
	pages, err := (&HTMLParser{}).Parse(strings.NewReader(input), "w.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pages) != 1 || pages[0].Text != "one two three\n\nkeep\n  indent" {
		t.Fatalf("unexpected pages %+v", pages)
	}
}
