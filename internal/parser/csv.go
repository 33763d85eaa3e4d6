package parser

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/chunkgate/internal/record"
)

// CSVParser treats the first row as the header and pages the rest as a
// table.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) ([]record.PageRecord, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", filename, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var b sectionBuilder
	b.table(rows[0], rows[1:])
	return b.done(), nil
}
