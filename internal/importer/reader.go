package importer

// reader.go constructs the CSV readers used by both importer passes.
//
// Uploaded files regularly come out of Windows tooling with a UTF-8 BOM,
// so the raw stream is BOM-stripped before it reaches the CSV parser.

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// newBOMSkippingReader returns r with a leading UTF-8 BOM removed, if present.
func newBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// newRowReader wraps r in a csv.Reader configured for lenient parsing:
// variable column counts and lazy quotes. Quoted fields containing newlines
// are handled by the parser, which is why both passes must read through it
// rather than counting lines.
func newRowReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(newBOMSkippingReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// headerIndex maps lowercased, trimmed header names to their column position.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// rowMap projects one record onto the header's field names. Columns missing
// from a short record are simply absent from the map.
func rowMap(idx map[string]int, record []string) map[string]string {
	m := make(map[string]string, len(idx))
	for name, i := range idx {
		if i < len(record) {
			m[name] = record[i]
		}
	}
	return m
}
