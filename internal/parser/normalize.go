package parser

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/chunkgate/internal/record"
)

var (
	zeroWidth     = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\u200e", "", "\u200f", "", "\ufeff", "")
	pageNumLine   = regexp.MustCompile(`^\s*(?:[Pp]age\s+)?\d{1,5}(?:\s*(?:/|of)\s*\d{1,5})?\s*$`)
	runsOfSpace   = regexp.MustCompile(`[ \t]{2,}`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// NormalizeText applies NFKC, strips zero-width characters, drops lines that
// hold only a page number and collapses runs of spaces.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = zeroWidth.Replace(s)

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if pageNumLine.MatchString(l) {
			continue
		}
		kept = append(kept, l)
	}
	s = strings.Join(kept, "\n")
	s = runsOfSpace.ReplaceAllString(s, " ")
	s = trailingSpace.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

type normalized struct {
	Source
}

// Normalized wraps src so every page's text passes through NormalizeText.
// Pages that normalize to nothing keep their original confidence; the
// chunker skips blank text either way.
func Normalized(src Source) Source {
	return &normalized{Source: src}
}

func (n *normalized) Next(ctx context.Context) (record.PageRecord, error) {
	p, err := n.Source.Next(ctx)
	if err != nil {
		return p, err
	}
	p.Text = NormalizeText(p.Text)
	return p, nil
}
