package domain

import (
	"context"
	"errors"

	"github.com/anoteng/regnskap/internal/config"
	"github.com/bwmarrin/snowflake"
)

type MappingRequest struct {
	Name              string
	DateColumn        string
	DescriptionColumn string
	AmountColumn      string
	ReferenceColumn   *string
	DateFormat        string
	DecimalSeparator  string
	Delimiter         string
	SkipRows          int
	InvertAmount      bool
}

// ImportRequest picks the mapping by id, inline definition or preset name,
// in that order.
type ImportRequest struct {
	BankAccountID snowflake.ID
	MappingID     *snowflake.ID
	Mapping       *MappingRequest
	Preset        string
	FileName      string
	Content       []byte
}

type Service interface {
	CreateMapping(ctx context.Context, ledgerID snowflake.ID, req MappingRequest) (Mapping, error)
	UpdateMapping(ctx context.Context, ledgerID, id snowflake.ID, req MappingRequest) (Mapping, error)
	GetMapping(ctx context.Context, ledgerID, id snowflake.ID) (Mapping, error)
	ListMappings(ctx context.Context, ledgerID snowflake.ID) ([]Mapping, error)
	DeleteMapping(ctx context.Context, ledgerID, id snowflake.ID) error

	Preview(content []byte, delimiter string, rows int) (Preview, error)
	Import(ctx context.Context, ledgerID, userID snowflake.ID, req ImportRequest) (ImportResult, error)
	ListImportLogs(ctx context.Context, ledgerID snowflake.ID) ([]ImportLog, error)
	ListPresets() []config.CSVPreset
}

var (
	ErrInvalidLedger     = errors.New("invalid_ledger")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidName       = errors.New("invalid_mapping_name")
	ErrMissingColumn     = errors.New("mapping_column_required")
	ErrInvalidDateFormat = errors.New("invalid_date_format")
	ErrInvalidSeparator  = errors.New("invalid_decimal_separator")
	ErrInvalidDelimiter  = errors.New("invalid_delimiter")
	ErrInvalidSkipRows   = errors.New("invalid_skip_rows")
	ErrDuplicateMapping  = errors.New("duplicate_mapping_name")
	ErrMappingRequired   = errors.New("mapping_required")
	ErrPresetNotFound    = errors.New("preset_not_found")
	ErrNotFound          = errors.New("not_found")
	ErrEmptyFile         = errors.New("empty_file")
	ErrInvalidEncoding   = errors.New("invalid_encoding")
	ErrMalformedCSV      = errors.New("malformed_csv")
	ErrInvalidFileName   = errors.New("invalid_file_name")
)
