package service

import (
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	comma := parser{decimalSeparator: ","}
	dot := parser{decimalSeparator: "."}

	tests := []struct {
		name string
		p    parser
		raw  string
		want string
	}{
		{name: "norwegian thousands", p: comma, raw: "-1.234,50", want: "-1234.5"},
		{name: "norwegian spaces", p: comma, raw: "12 345,00", want: "12345"},
		{name: "non breaking space", p: comma, raw: "1 000,10", want: "1000.1"},
		{name: "unicode minus", p: comma, raw: "−99,90", want: "-99.9"},
		{name: "english thousands", p: dot, raw: "1,234.56", want: "1234.56"},
		{name: "plain", p: dot, raw: "42", want: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.p.parseAmount(tt.raw)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}

	_, err := dot.parseAmount("abc")
	assert.Error(t, err)
}

func TestParseRow(t *testing.T) {
	p := parserFromMapping(domain.Mapping{
		DateColumn:        "Dato",
		DescriptionColumn: "Tekst",
		AmountColumn:      "Beløp",
		DateFormat:        domain.DateFormatDotted,
		DecimalSeparator:  ",",
		Delimiter:         ";",
		InvertAmount:      true,
	})
	cols := p.resolve([]string{"Dato", "Tekst", "Beløp"})
	assert.Empty(t, cols.missing)
	assert.Equal(t, -1, cols.reference)

	row, reason := p.parseRow(cols, []string{"5.4.2025", "  ", "100,00"})
	require.Empty(t, reason)
	assert.True(t, time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC).Equal(row.date))
	assert.Equal(t, "Imported transaction", row.description)
	assert.True(t, decimal.NewFromInt(-100).Equal(row.amount))

	_, reason = p.parseRow(cols, []string{"2025-04-05", "x", "1,00"})
	assert.Equal(t, "invalid date: 2025-04-05", reason)

	_, reason = p.parseRow(cols, []string{"05.04.2025", "x", "0,00"})
	assert.Equal(t, "zero amount", reason)

	_, reason = p.parseRow(cols, []string{"05.04.2025", "x"})
	assert.Equal(t, "missing amount", reason)
}

func TestResolveMissingColumn(t *testing.T) {
	reference := "Ref"
	p := parserFromMapping(domain.Mapping{
		DateColumn:        "date",
		DescriptionColumn: "text",
		AmountColumn:      "amount",
		ReferenceColumn:   &reference,
	})
	cols := p.resolve([]string{"date", "text", "amount"})
	assert.Empty(t, cols.missing)
	assert.Equal(t, -1, cols.reference)

	row, reason := p.parseRow(cols, []string{"2025-04-05", "Kiwi", "-12.50"})
	require.Empty(t, reason)
	assert.Empty(t, row.reference)

	p.amountColumn = "sum"
	cols = p.resolve([]string{"date", "text", "amount"})
	assert.Equal(t, []string{"sum"}, cols.missing)

	_, reason = p.parseRow(cols, []string{"2025-04-05", "Kiwi", "-12.50"})
	assert.Equal(t, "missing column sum", reason)
}

func TestDecode(t *testing.T) {
	content, err := decode(append([]byte{0xEF, 0xBB, 0xBF}, "a,b\n"...))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(content))

	_, err = decode([]byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, domain.ErrInvalidEncoding)

	_, err = decode([]byte("  \n"))
	assert.ErrorIs(t, err, domain.ErrEmptyFile)
}
