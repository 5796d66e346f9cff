package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gurre/ddb-catalog/catalog"
	"github.com/shopspring/decimal"
)

var (
	// ErrMalformedRow is returned for a data row that cannot be decoded.
	ErrMalformedRow = errors.New("malformed row")
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// Column names, matched case-insensitively.
const (
	colTitle       = "title"
	colDescription = "description"
	colPrice       = "price"
	colCount       = "count"
)

// DefaultCount is the stock count of rows without a count value.
const DefaultCount = 1

const utf8BOM = "\ufeff"

// rowParser decodes one CSV line at a time. The first non-blank line is the
// header; columns may appear in any order. A quoted field may span lines:
// while a record has an odd number of quotes it is held in partial and
// completed by the following lines.
type rowParser struct {
	index   map[string]int
	partial []byte
}

// parseLine returns the product on line. ok is false for the header, for
// blank lines and for lines that end inside a quoted field.
func (p *rowParser) parseLine(line []byte) (product catalog.NewProduct, ok bool, err error) {
	line = bytes.TrimRight(line, "\r\n")
	if p.partial != nil {
		line = append(append(p.partial, '\n'), line...)
		p.partial = nil
	} else if p.index == nil {
		line = bytes.TrimPrefix(line, []byte(utf8BOM))
	}
	if bytes.Count(line, []byte{'"'})%2 == 1 {
		p.partial = append([]byte(nil), line...)
		return catalog.NewProduct{}, false, nil
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return catalog.NewProduct{}, false, nil
	}

	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err != nil {
		return catalog.NewProduct{}, false, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	if p.index == nil {
		p.index, err = headerIndex(record)
		return catalog.NewProduct{}, false, err
	}

	product, err = p.product(record)
	if err != nil {
		return catalog.NewProduct{}, false, err
	}
	return product, true, nil
}

// finish reports a quoted field left open at the end of the file.
func (p *rowParser) finish() error {
	if p.partial != nil {
		return fmt.Errorf("%w: unterminated quoted field", ErrMalformedRow)
	}
	return nil
}

func headerIndex(headers []string) (map[string]int, error) {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colTitle, colPrice} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}
	return idx, nil
}

func (p *rowParser) product(record []string) (catalog.NewProduct, error) {
	title := pick(record, p.index, colTitle)
	if title == "" {
		return catalog.NewProduct{}, fmt.Errorf("%w: empty title", ErrMalformedRow)
	}

	price, err := decimal.NewFromString(pick(record, p.index, colPrice))
	if err != nil {
		return catalog.NewProduct{}, fmt.Errorf("%w: price of %q: %v", ErrMalformedRow, title, err)
	}
	if price.IsNegative() {
		return catalog.NewProduct{}, fmt.Errorf("%w: negative price of %q", ErrMalformedRow, title)
	}

	count := DefaultCount
	if raw := pick(record, p.index, colCount); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil || count < 0 {
			return catalog.NewProduct{}, fmt.Errorf("%w: count of %q: %q", ErrMalformedRow, title, raw)
		}
	}

	return catalog.NewProduct{
		Title:       title,
		Description: pick(record, p.index, colDescription),
		Price:       price.InexactFloat64(),
		Count:       count,
	}, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
