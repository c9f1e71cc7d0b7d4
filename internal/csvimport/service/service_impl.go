package service

import (
	"context"
	"strings"
	"unicode/utf8"

	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/anoteng/regnskap/internal/dedup"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/anoteng/regnskap/pkg/db/option"
	"github.com/anoteng/regnskap/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxMappingName = 100
	maxLogs        = 100
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Settings     *config.EngineSettingsHolder
	Mappings     repository.Store[domain.Mapping]
	Repo         domain.Repository
	Transactions transactiondomain.Service
	BankAccounts bankaccountdomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	settings     *config.EngineSettingsHolder
	mappings     repository.Store[domain.Mapping]
	repo         domain.Repository
	transactions transactiondomain.Service
	bankAccounts bankaccountdomain.Service
	auditSvc     auditdomain.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("csvimport.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		settings:     p.Settings,
		mappings:     p.Mappings,
		repo:         p.Repo,
		transactions: p.Transactions,
		bankAccounts: p.BankAccounts,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) CreateMapping(ctx context.Context, ledgerID snowflake.ID, req domain.MappingRequest) (domain.Mapping, error) {
	if ledgerID == 0 {
		return domain.Mapping{}, domain.ErrInvalidLedger
	}
	mapping, err := normalizeMapping(req)
	if err != nil {
		return domain.Mapping{}, err
	}

	now := s.clock.Now()
	mapping.ID = s.genID.Generate()
	mapping.LedgerID = ledgerID
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	if err := s.mappings.Create(ctx, &mapping); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Mapping{}, domain.ErrDuplicateMapping
		}
		return domain.Mapping{}, err
	}
	return mapping, nil
}

func (s *Service) UpdateMapping(ctx context.Context, ledgerID, id snowflake.ID, req domain.MappingRequest) (domain.Mapping, error) {
	existing, err := s.GetMapping(ctx, ledgerID, id)
	if err != nil {
		return domain.Mapping{}, err
	}
	mapping, err := normalizeMapping(req)
	if err != nil {
		return domain.Mapping{}, err
	}

	mapping.ID = existing.ID
	mapping.LedgerID = existing.LedgerID
	mapping.CreatedAt = existing.CreatedAt
	mapping.UpdatedAt = s.clock.Now()

	// Updates with a map so false and zero values are written too.
	_, err = s.mappings.Update(ctx, ledgerID, id, map[string]any{
		"name":               mapping.Name,
		"date_column":        mapping.DateColumn,
		"description_column": mapping.DescriptionColumn,
		"amount_column":      mapping.AmountColumn,
		"reference_column":   mapping.ReferenceColumn,
		"date_format":        mapping.DateFormat,
		"decimal_separator":  mapping.DecimalSeparator,
		"delimiter":          mapping.Delimiter,
		"skip_rows":          mapping.SkipRows,
		"invert_amount":      mapping.InvertAmount,
		"updated_at":         mapping.UpdatedAt,
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Mapping{}, domain.ErrDuplicateMapping
		}
		return domain.Mapping{}, err
	}
	return mapping, nil
}

func (s *Service) GetMapping(ctx context.Context, ledgerID, id snowflake.ID) (domain.Mapping, error) {
	if ledgerID == 0 {
		return domain.Mapping{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Mapping{}, domain.ErrInvalidID
	}
	item, err := s.mappings.Get(ctx, ledgerID, id)
	if err != nil {
		return domain.Mapping{}, err
	}
	if item == nil {
		return domain.Mapping{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) ListMappings(ctx context.Context, ledgerID snowflake.ID) ([]domain.Mapping, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}
	return s.mappings.List(ctx, ledgerID, option.WithOrder("name ASC"))
}

func (s *Service) DeleteMapping(ctx context.Context, ledgerID, id snowflake.ID) error {
	if _, err := s.GetMapping(ctx, ledgerID, id); err != nil {
		return err
	}
	_, err := s.mappings.Delete(ctx, ledgerID, id)
	return err
}

func (s *Service) Preview(content []byte, delimiter string, rows int) (domain.Preview, error) {
	content, err := decode(content)
	if err != nil {
		return domain.Preview{}, err
	}
	if rows <= 0 {
		rows = s.settings.Get().PreviewRows
	}

	header, records, err := readAll(content, delimiterRune(delimiter))
	if err != nil {
		return domain.Preview{}, err
	}

	limit := rows
	if len(records) < limit {
		limit = len(records)
	}
	return domain.Preview{
		Headers:   header,
		Rows:      records[:limit],
		TotalRows: len(records),
	}, nil
}

func (s *Service) Import(ctx context.Context, ledgerID, userID snowflake.ID, req domain.ImportRequest) (domain.ImportResult, error) {
	if ledgerID == 0 {
		return domain.ImportResult{}, domain.ErrInvalidLedger
	}
	if userID == 0 {
		return domain.ImportResult{}, domain.ErrInvalidUser
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "upload.csv"
	}
	if utf8.RuneCountInString(fileName) > 255 {
		return domain.ImportResult{}, domain.ErrInvalidFileName
	}

	bank, err := s.bankAccounts.Get(ctx, ledgerID, req.BankAccountID)
	if err != nil {
		return domain.ImportResult{}, err
	}
	if !bank.IsActive {
		return domain.ImportResult{}, bankaccountdomain.ErrInactive
	}

	mapping, err := s.resolveMapping(ctx, ledgerID, req)
	if err != nil {
		return domain.ImportResult{}, err
	}
	p := parserFromMapping(mapping)

	content, err := decode(req.Content)
	if err != nil {
		return domain.ImportResult{}, err
	}
	header, records, err := readAll(content, p.delimiter)
	if err != nil {
		return domain.ImportResult{}, err
	}
	cols := p.resolve(header)
	if len(cols.missing) > 0 {
		s.log.Warn("csv header lacks mapped columns",
			zap.String("ledger_id", ledgerID.String()),
			zap.Strings("missing", cols.missing),
		)
	}

	var (
		imported int
		failures []domain.ImportRowError
	)
	for i, record := range records {
		if i < p.skipRows {
			continue
		}
		rowNumber := i + 1

		row, reason := p.parseRow(cols, record)
		if reason != "" {
			failures = append(failures, domain.ImportRowError{Row: rowNumber, Reason: reason})
			continue
		}

		if err := s.importRow(ctx, ledgerID, userID, bank, row); err != nil {
			failures = append(failures, domain.ImportRowError{Row: rowNumber, Reason: err.Error()})
			continue
		}
		imported++
	}

	importLog := domain.ImportLog{
		ID:            s.genID.Generate(),
		LedgerID:      ledgerID,
		UserID:        userID,
		BankAccountID: bank.ID,
		FileName:      fileName,
		RowsImported:  imported,
		RowsFailed:    len(failures),
		ImportDate:    s.clock.Now(),
	}
	if mapping.ID != 0 {
		mappingID := mapping.ID
		importLog.CSVMappingID = &mappingID
	}
	if err := s.repo.InsertLog(ctx, s.db, &importLog); err != nil {
		s.log.Error("failed to write import log", zap.Error(err), zap.String("ledger_id", ledgerID.String()))
		return domain.ImportResult{}, err
	}

	s.metrics.RecordImportRows(ctx, "imported", imported)
	s.metrics.RecordImportRows(ctx, "failed", len(failures))
	s.log.Info("csv import finished",
		zap.String("ledger_id", ledgerID.String()),
		zap.String("bank_account_id", bank.ID.String()),
		zap.Int("imported", imported),
		zap.Int("failed", len(failures)),
	)
	if s.auditSvc != nil {
		_ = s.auditSvc.Record(ctx, auditdomain.Entry{
			LedgerID:   ledgerID,
			Action:     "csv.import",
			TargetType: "import_log",
			TargetID:   importLog.ID,
			Metadata: map[string]any{
				"bank_account_id": bank.ID.String(),
				"file_name":       fileName,
				"rows_imported":   imported,
				"rows_failed":     len(failures),
			},
		})
	}

	reported := failures
	if limit := s.settings.Get().MaxReportedErrors; limit > 0 && len(reported) > limit {
		reported = reported[:limit]
	}
	if reported == nil {
		reported = []domain.ImportRowError{}
	}
	return domain.ImportResult{
		Imported:    imported,
		Failed:      len(failures),
		Errors:      reported,
		ImportLogID: importLog.ID,
	}, nil
}

// importRow books the row as a one-sided draft on the bank's GL account. The
// counter entry is added later, by hand or by chaining.
func (s *Service) importRow(ctx context.Context, ledgerID, userID snowflake.ID, bank bankaccountdomain.Linked, row parsedRow) error {
	debit, credit := bankaccountdomain.SplitAmount(bank.GLAccountType, row.amount)
	hash := "csv:" + dedup.Hash(row.date, row.amount, row.description, row.reference)

	var reference *string
	if row.reference != "" {
		reference = &row.reference
	}
	description := row.description

	_, err := s.transactions.Create(ctx, ledgerID, userID, transactiondomain.CreateTransactionRequest{
		TransactionDate: row.date,
		Description:     row.description,
		Reference:       reference,
		Source:          string(transactiondomain.SourceCSVImport),
		SourceReference: &hash,
		Entries: []transactiondomain.EntryInput{{
			AccountID:   bank.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: &description,
		}},
	})
	return err
}

func (s *Service) ListImportLogs(ctx context.Context, ledgerID snowflake.ID) ([]domain.ImportLog, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}
	items, err := s.repo.ListLogs(ctx, s.db, ledgerID, maxLogs)
	if err != nil {
		return nil, err
	}
	result := make([]domain.ImportLog, 0, len(items))
	for _, item := range items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *Service) ListPresets() []config.CSVPreset {
	return s.settings.Get().CSVPresets
}

func (s *Service) resolveMapping(ctx context.Context, ledgerID snowflake.ID, req domain.ImportRequest) (domain.Mapping, error) {
	switch {
	case req.MappingID != nil:
		return s.GetMapping(ctx, ledgerID, *req.MappingID)
	case req.Mapping != nil:
		return normalizeMapping(*req.Mapping)
	case strings.TrimSpace(req.Preset) != "":
		preset, ok := s.findPreset(req.Preset)
		if !ok {
			return domain.Mapping{}, domain.ErrPresetNotFound
		}
		return normalizeMapping(presetRequest(preset))
	}
	return domain.Mapping{}, domain.ErrMappingRequired
}

func (s *Service) findPreset(name string) (config.CSVPreset, bool) {
	name = strings.TrimSpace(name)
	for _, preset := range s.settings.Get().CSVPresets {
		if strings.EqualFold(preset.Name, name) {
			return preset, true
		}
	}
	return config.CSVPreset{}, false
}

func presetRequest(preset config.CSVPreset) domain.MappingRequest {
	req := domain.MappingRequest{
		Name:              preset.Name,
		DateColumn:        preset.DateColumn,
		DescriptionColumn: preset.DescriptionColumn,
		AmountColumn:      preset.AmountColumn,
		DateFormat:        preset.DateFormat,
		DecimalSeparator:  preset.DecimalSeparator,
		Delimiter:         preset.Delimiter,
		SkipRows:          preset.SkipRows,
		InvertAmount:      preset.InvertAmount,
	}
	if preset.ReferenceColumn != "" {
		reference := preset.ReferenceColumn
		req.ReferenceColumn = &reference
	}
	return req
}

func normalizeMapping(req domain.MappingRequest) (domain.Mapping, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxMappingName {
		return domain.Mapping{}, domain.ErrInvalidName
	}

	mapping := domain.Mapping{
		Name:              name,
		DateColumn:        strings.TrimSpace(req.DateColumn),
		DescriptionColumn: strings.TrimSpace(req.DescriptionColumn),
		AmountColumn:      strings.TrimSpace(req.AmountColumn),
		SkipRows:          req.SkipRows,
		InvertAmount:      req.InvertAmount,
	}
	if mapping.DateColumn == "" || mapping.DescriptionColumn == "" || mapping.AmountColumn == "" {
		return domain.Mapping{}, domain.ErrMissingColumn
	}
	if req.ReferenceColumn != nil {
		if reference := strings.TrimSpace(*req.ReferenceColumn); reference != "" {
			mapping.ReferenceColumn = &reference
		}
	}

	format, err := domain.ParseDateFormat(req.DateFormat)
	if err != nil {
		return domain.Mapping{}, err
	}
	mapping.DateFormat = format

	switch req.DecimalSeparator {
	case "", ".":
		mapping.DecimalSeparator = "."
	case ",":
		mapping.DecimalSeparator = ","
	default:
		return domain.Mapping{}, domain.ErrInvalidSeparator
	}

	delimiter := req.Delimiter
	if delimiter == `\t` {
		delimiter = "\t"
	}
	switch {
	case delimiter == "":
		mapping.Delimiter = ","
	case utf8.RuneCountInString(delimiter) == 1 && delimiter != "\"" && delimiter != "\n" && delimiter != "\r":
		mapping.Delimiter = delimiter
	default:
		return domain.Mapping{}, domain.ErrInvalidDelimiter
	}

	if req.SkipRows < 0 {
		return domain.Mapping{}, domain.ErrInvalidSkipRows
	}
	return mapping, nil
}
