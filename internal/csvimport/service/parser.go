package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/shopspring/decimal"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// parser turns CSV rows into dated amounts using a resolved mapping.
type parser struct {
	dateColumn        string
	descriptionColumn string
	amountColumn      string
	referenceColumn   string
	layout            string
	decimalSeparator  string
	delimiter         rune
	skipRows          int
	invert            bool
}

type parsedRow struct {
	date        time.Time
	description string
	reference   string
	amount      decimal.Decimal
}

func parserFromMapping(m domain.Mapping) parser {
	p := parser{
		dateColumn:        m.DateColumn,
		descriptionColumn: m.DescriptionColumn,
		amountColumn:      m.AmountColumn,
		layout:            m.DateFormat.Layout(),
		decimalSeparator:  m.DecimalSeparator,
		delimiter:         delimiterRune(m.Delimiter),
		skipRows:          m.SkipRows,
		invert:            m.InvertAmount,
	}
	if m.ReferenceColumn != nil {
		p.referenceColumn = *m.ReferenceColumn
	}
	return p
}

func delimiterRune(value string) rune {
	switch value {
	case "":
		return ','
	case `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(value)
	return r
}

// decode strips a UTF-8 byte order mark and rejects anything that is not
// valid UTF-8.
func decode(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, domain.ErrInvalidEncoding
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, domain.ErrEmptyFile
	}
	return content, nil
}

// readAll returns the header and the data rows.
func readAll(content []byte, delimiter rune) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, domain.ErrEmptyFile
	}
	if err != nil {
		return nil, nil, domain.ErrMalformedCSV
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, domain.ErrMalformedCSV
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// columns maps each configured column to its index in the header. Required
// columns absent from the header are listed in missing and fail every row.
type columns struct {
	date, description, amount, reference int
	missing                              []string
}

func (p parser) resolve(header []string) columns {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := index[name]; !ok {
			index[name] = i
		}
	}
	cols := columns{reference: -1}
	lookup := func(name string) int {
		name = strings.TrimSpace(name)
		i, ok := index[name]
		if !ok {
			cols.missing = append(cols.missing, name)
			return -1
		}
		return i
	}

	cols.date = lookup(p.dateColumn)
	cols.description = lookup(p.descriptionColumn)
	cols.amount = lookup(p.amountColumn)
	if ref := strings.TrimSpace(p.referenceColumn); ref != "" {
		if i, ok := index[ref]; ok {
			cols.reference = i
		}
	}
	return cols
}

// parseRow returns the reason string on failure; it ends up in the row error.
func (p parser) parseRow(cols columns, record []string) (parsedRow, string) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	if len(cols.missing) > 0 {
		return parsedRow{}, "missing column " + strings.Join(cols.missing, ", ")
	}

	rawDate := field(cols.date)
	if rawDate == "" {
		return parsedRow{}, "missing date"
	}
	date, err := time.Parse(p.layout, rawDate)
	if err != nil {
		return parsedRow{}, "invalid date: " + rawDate
	}

	rawAmount := field(cols.amount)
	if rawAmount == "" {
		return parsedRow{}, "missing amount"
	}
	amount, err := p.parseAmount(rawAmount)
	if err != nil {
		return parsedRow{}, "invalid amount: " + rawAmount
	}
	if amount.IsZero() {
		return parsedRow{}, "zero amount"
	}
	if p.invert {
		amount = amount.Neg()
	}

	description := field(cols.description)
	if description == "" {
		description = "Imported transaction"
	}
	if utf8.RuneCountInString(description) > 500 {
		description = string([]rune(description)[:500])
	}

	reference := field(cols.reference)
	if utf8.RuneCountInString(reference) > 100 {
		reference = string([]rune(reference)[:100])
	}

	return parsedRow{
		date:        date,
		description: description,
		reference:   reference,
		amount:      amount.Round(2),
	}, ""
}

func (p parser) parseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'':
			return -1
		case '\u2212':
			return '-'
		}
		return r
	}, raw)

	if p.decimalSeparator == "," {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	return decimal.NewFromString(cleaned)
}
