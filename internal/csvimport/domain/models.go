package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type DateFormat string

const (
	DateFormatISO      DateFormat = "YYYY-MM-DD"
	DateFormatDotted   DateFormat = "DD.MM.YYYY"
	DateFormatSlashDMY DateFormat = "DD/MM/YYYY"
	DateFormatSlashMDY DateFormat = "MM/DD/YYYY"
)

func ParseDateFormat(value string) (DateFormat, error) {
	switch DateFormat(strings.ToUpper(strings.TrimSpace(value))) {
	case "", DateFormatISO:
		return DateFormatISO, nil
	case DateFormatDotted:
		return DateFormatDotted, nil
	case DateFormatSlashDMY:
		return DateFormatSlashDMY, nil
	case DateFormatSlashMDY:
		return DateFormatSlashMDY, nil
	}
	return "", ErrInvalidDateFormat
}

// Layout is the time layout for the format. Day and month accept one or two
// digits.
func (f DateFormat) Layout() string {
	switch f {
	case DateFormatDotted:
		return "2.1.2006"
	case DateFormatSlashDMY:
		return "2/1/2006"
	case DateFormatSlashMDY:
		return "1/2/2006"
	}
	return "2006-1-2"
}

// Mapping tells the importer which CSV columns hold what, and how to read
// them.
type Mapping struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	LedgerID          snowflake.ID `gorm:"not null;uniqueIndex:ux_csv_mappings_ledger_name,priority:1" json:"ledger_id"`
	Name              string       `gorm:"size:100;not null;uniqueIndex:ux_csv_mappings_ledger_name,priority:2" json:"name"`
	DateColumn        string       `gorm:"size:100;not null" json:"date_column"`
	DescriptionColumn string       `gorm:"size:100;not null" json:"description_column"`
	AmountColumn      string       `gorm:"size:100;not null" json:"amount_column"`
	ReferenceColumn   *string      `gorm:"size:100" json:"reference_column,omitempty"`
	DateFormat        DateFormat   `gorm:"size:20;not null" json:"date_format"`
	DecimalSeparator  string       `gorm:"size:1;not null" json:"decimal_separator"`
	Delimiter         string       `gorm:"size:1;not null" json:"delimiter"`
	SkipRows          int          `gorm:"not null" json:"skip_rows"`
	InvertAmount      bool         `gorm:"not null" json:"invert_amount"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Mapping) TableName() string { return "csv_mappings" }

type ImportLog struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	LedgerID      snowflake.ID  `gorm:"not null;index" json:"ledger_id"`
	UserID        snowflake.ID  `gorm:"not null" json:"user_id"`
	BankAccountID snowflake.ID  `gorm:"not null" json:"bank_account_id"`
	CSVMappingID  *snowflake.ID `gorm:"column:csv_mapping_id" json:"csv_mapping_id,omitempty"`
	FileName      string        `gorm:"size:255;not null" json:"file_name"`
	RowsImported  int           `gorm:"not null" json:"rows_imported"`
	RowsFailed    int           `gorm:"not null" json:"rows_failed"`
	ImportDate    time.Time     `gorm:"not null" json:"import_date"`
}

func (ImportLog) TableName() string { return "import_logs" }

// ImportRowError is one rejected data row. Row counts data rows from 1,
// header excluded.
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e ImportRowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

type ImportResult struct {
	Imported    int              `json:"imported"`
	Failed      int              `json:"failed"`
	Errors      []ImportRowError `json:"errors"`
	ImportLogID snowflake.ID     `json:"import_log_id"`
}

type Preview struct {
	Headers   []string   `json:"columns"`
	Rows      [][]string `json:"preview"`
	TotalRows int        `json:"total_rows"`
}
