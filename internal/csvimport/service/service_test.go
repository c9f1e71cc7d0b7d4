package service

import (
	"context"
	"strings"
	"testing"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	bankaccountrepo "github.com/anoteng/regnskap/internal/bankaccount/repository"
	bankaccountservice "github.com/anoteng/regnskap/internal/bankaccount/service"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/anoteng/regnskap/internal/csvimport/repository"
	"github.com/anoteng/regnskap/internal/testutil"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	transactionrepo "github.com/anoteng/regnskap/internal/transaction/repository"
	transactionservice "github.com/anoteng/regnskap/internal/transaction/service"
	pkgrepository "github.com/anoteng/regnskap/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dnbExport = "Dato;Forklaring;Beløp\n" +
	"01.04.2025;Rema 1000;-1.234,50\n" +
	"02.04.2025;Lønn;25.000,00\n" +
	"xx;Ugyldig;1,00\n" +
	"03.04.2025;Null;0,00\n" +
	"04.04.2025;;12,00\n"

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	txSvc    transactiondomain.Service
	ledgerID snowflake.ID
	userID   snowflake.ID
	bankID   snowflake.ID
	bankGL   snowflake.ID
}

func newFixture(t *testing.T, settings config.EngineSettings) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC))
	log := zap.NewNop()

	bankRepo := bankaccountrepo.Provide()
	txSvc := transactionservice.New(transactionservice.Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		Repo:         transactionrepo.Provide(),
		BankAccounts: bankRepo,
	})
	bankSvc := bankaccountservice.New(bankaccountservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  bankRepo,
	})
	svc := New(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		Settings:     config.NewStaticEngineSettingsHolder(settings),
		Mappings:     pkgrepository.NewStore[domain.Mapping](db),
		Repo:         repository.Provide(),
		Transactions: txSvc,
		BankAccounts: bankSvc,
	})

	ledgerID := node.Generate()
	bankGL := testutil.CreateAccount(t, db, node, ledgerID, "1920", accountdomain.TypeAsset)
	return fixture{
		db:       db,
		svc:      svc,
		txSvc:    txSvc,
		ledgerID: ledgerID,
		userID:   node.Generate(),
		bankID:   testutil.CreateBankAccount(t, db, node, ledgerID, bankGL),
		bankGL:   bankGL,
	}
}

func (f fixture) imported(t *testing.T) map[string]transactiondomain.Transaction {
	t.Helper()
	resp, err := f.txSvc.List(context.Background(), f.ledgerID, transactiondomain.ListTransactionsRequest{
		Source: string(transactiondomain.SourceCSVImport),
	})
	require.NoError(t, err)
	byDescription := make(map[string]transactiondomain.Transaction, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		byDescription[tx.Description] = tx
	}
	return byDescription
}

func TestImportWithPreset(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	ctx := context.Background()

	result, err := f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Preset:        "dnb",
		FileName:      "april.csv",
		Content:       []byte(dnbExport),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []domain.ImportRowError{
		{Row: 3, Reason: "invalid date: xx"},
		{Row: 4, Reason: "zero amount"},
	}, result.Errors)

	txs := f.imported(t)
	require.Len(t, txs, 3)

	rema := txs["Rema 1000"]
	assert.Equal(t, transactiondomain.StatusDraft, rema.Status)
	require.Len(t, rema.Entries, 1)
	assert.Equal(t, f.bankGL, rema.Entries[0].AccountID)
	assert.True(t, decimal.Zero.Equal(rema.Entries[0].Debit))
	assert.True(t, decimal.RequireFromString("1234.50").Equal(rema.Entries[0].Credit))
	require.NotNil(t, rema.SourceReference)
	assert.True(t, strings.HasPrefix(*rema.SourceReference, "csv:"))

	salary := txs["Lønn"]
	require.Len(t, salary.Entries, 1)
	assert.True(t, decimal.NewFromInt(25000).Equal(salary.Entries[0].Debit))

	_, ok := txs["Imported transaction"]
	assert.True(t, ok)

	// drafts do not move the balance
	assert.True(t, decimal.Zero.Equal(testutil.BankBalance(t, f.db, f.bankID)))

	logs, err := f.svc.ListImportLogs(ctx, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, result.ImportLogID, logs[0].ID)
	assert.Equal(t, "april.csv", logs[0].FileName)
	assert.Equal(t, 3, logs[0].RowsImported)
	assert.Equal(t, 2, logs[0].RowsFailed)
	assert.Nil(t, logs[0].CSVMappingID)
}

func TestImportCapsReportedErrors(t *testing.T) {
	settings := config.DefaultEngineSettings()
	settings.MaxReportedErrors = 1
	f := newFixture(t, settings)

	result, err := f.svc.Import(context.Background(), f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Preset:        "DNB",
		Content:       []byte(dnbExport),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].Row)
}

func TestImportWithSavedMappingSkipsRows(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	ctx := context.Background()

	reference := "ref"
	mapping, err := f.svc.CreateMapping(ctx, f.ledgerID, domain.MappingRequest{
		Name:              "Kortfil",
		DateColumn:        "date",
		DescriptionColumn: "text",
		AmountColumn:      "amount",
		ReferenceColumn:   &reference,
		DateFormat:        "YYYY-MM-DD",
		SkipRows:          1,
		InvertAmount:      true,
	})
	require.NoError(t, err)

	content := "date,text,amount,ref\n" +
		"2025-04-01,opening balance,999.00,\n" +
		"2025-04-02,Kiwi,45.10,K-1\n"
	result, err := f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		MappingID:     &mapping.ID,
		Content:       []byte(content),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)

	txs := f.imported(t)
	kiwi, ok := txs["Kiwi"]
	require.True(t, ok)
	require.NotNil(t, kiwi.Reference)
	assert.Equal(t, "K-1", *kiwi.Reference)
	assert.True(t, decimal.RequireFromString("45.10").Equal(kiwi.Entries[0].Credit))

	logs, err := f.svc.ListImportLogs(ctx, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].CSVMappingID)
	assert.Equal(t, mapping.ID, *logs[0].CSVMappingID)
}

func TestImportRejectsFileProblems(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	ctx := context.Background()

	_, err := f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Content:       []byte(dnbExport),
	})
	assert.ErrorIs(t, err, domain.ErrMappingRequired)

	_, err = f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Preset:        "Nordea",
		Content:       []byte(dnbExport),
	})
	assert.ErrorIs(t, err, domain.ErrPresetNotFound)

	_, err = f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Preset:        "DNB",
		Content:       []byte{0xff, 0xfe, 0x41},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEncoding)

	_, err = f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: snowflake.ID(12345),
		Preset:        "DNB",
		Content:       []byte(dnbExport),
	})
	assert.ErrorIs(t, err, bankaccountdomain.ErrNotFound)

	logs, err := f.svc.ListImportLogs(ctx, f.ledgerID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPreview(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())

	content := append([]byte{0xEF, 0xBB, 0xBF}, dnbExport...)
	preview, err := f.svc.Preview(content, ";", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dato", "Forklaring", "Beløp"}, preview.Headers)
	assert.Equal(t, [][]string{
		{"01.04.2025", "Rema 1000", "-1.234,50"},
		{"02.04.2025", "Lønn", "25.000,00"},
	}, preview.Rows)
	assert.Equal(t, 5, preview.TotalRows)

	preview, err = f.svc.Preview([]byte(dnbExport), ";", 0)
	require.NoError(t, err)
	assert.Len(t, preview.Rows, 5)

	_, err = f.svc.Preview([]byte{0xc3, 0x28}, ";", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidEncoding)
}

func TestMappingLifecycle(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	ctx := context.Background()

	req := domain.MappingRequest{
		Name:              "Sparebank",
		DateColumn:        "Dato",
		DescriptionColumn: "Tekst",
		AmountColumn:      "Beløp",
		DateFormat:        "DD.MM.YYYY",
		DecimalSeparator:  ",",
		Delimiter:         `\t`,
	}
	created, err := f.svc.CreateMapping(ctx, f.ledgerID, req)
	require.NoError(t, err)
	assert.Equal(t, "\t", created.Delimiter)
	assert.Equal(t, domain.DateFormatDotted, created.DateFormat)

	_, err = f.svc.CreateMapping(ctx, f.ledgerID, req)
	assert.ErrorIs(t, err, domain.ErrDuplicateMapping)

	req.InvertAmount = true
	req.Delimiter = ";"
	updated, err := f.svc.UpdateMapping(ctx, f.ledgerID, created.ID, req)
	require.NoError(t, err)
	assert.True(t, updated.InvertAmount)

	got, err := f.svc.GetMapping(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	assert.True(t, got.InvertAmount)
	assert.Equal(t, ";", got.Delimiter)

	_, err = f.svc.GetMapping(ctx, snowflake.ID(99), created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := f.svc.ListMappings(ctx, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, f.svc.DeleteMapping(ctx, f.ledgerID, created.ID))
	_, err = f.svc.GetMapping(ctx, f.ledgerID, created.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMappingValidation(t *testing.T) {
	valid := domain.MappingRequest{
		Name:              "x",
		DateColumn:        "d",
		DescriptionColumn: "t",
		AmountColumn:      "a",
	}
	tests := []struct {
		name   string
		mutate func(*domain.MappingRequest)
		want   error
	}{
		{name: "name", mutate: func(r *domain.MappingRequest) { r.Name = " " }, want: domain.ErrInvalidName},
		{name: "column", mutate: func(r *domain.MappingRequest) { r.AmountColumn = "" }, want: domain.ErrMissingColumn},
		{name: "date format", mutate: func(r *domain.MappingRequest) { r.DateFormat = "YY" }, want: domain.ErrInvalidDateFormat},
		{name: "separator", mutate: func(r *domain.MappingRequest) { r.DecimalSeparator = ";" }, want: domain.ErrInvalidSeparator},
		{name: "delimiter", mutate: func(r *domain.MappingRequest) { r.Delimiter = ";;" }, want: domain.ErrInvalidDelimiter},
		{name: "skip rows", mutate: func(r *domain.MappingRequest) { r.SkipRows = -1 }, want: domain.ErrInvalidSkipRows},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := normalizeMapping(req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	mapping, err := normalizeMapping(valid)
	require.NoError(t, err)
	assert.Equal(t, domain.DateFormatISO, mapping.DateFormat)
	assert.Equal(t, ".", mapping.DecimalSeparator)
	assert.Equal(t, ",", mapping.Delimiter)
}

func TestListPresets(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	presets := f.svc.ListPresets()
	require.NotEmpty(t, presets)
	assert.Equal(t, "DNB", presets[0].Name)
}

func TestImportReportsMissingColumnsPerRow(t *testing.T) {
	f := newFixture(t, config.DefaultEngineSettings())
	ctx := context.Background()
	content := "date,description,amount\n" +
		"2025-04-01,Kiwi,-10.00\n" +
		"2025-04-02,Rema,-20.00\n"

	// The preset maps an optional reference column the file does not have.
	result, err := f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		Preset:        "Generic ISO",
		FileName:      "iso.csv",
		Content:       []byte(content),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Failed)

	result, err = f.svc.Import(ctx, f.ledgerID, f.userID, domain.ImportRequest{
		BankAccountID: f.bankID,
		FileName:      "renamed.csv",
		Mapping: &domain.MappingRequest{
			Name:              "Renamed export",
			DateColumn:        "date",
			DescriptionColumn: "description",
			AmountColumn:      "Beløp",
			DateFormat:        string(domain.DateFormatISO),
			DecimalSeparator:  ".",
			Delimiter:         ",",
		},
		Content: []byte(content),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, domain.ImportRowError{Row: 1, Reason: "missing column Beløp"}, result.Errors[0])
	assert.Equal(t, 2, result.Errors[1].Row)

	logs, err := f.svc.ListImportLogs(ctx, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	byName := map[string]domain.ImportLog{}
	for _, l := range logs {
		byName[l.FileName] = l
	}
	assert.Equal(t, 0, byName["renamed.csv"].RowsImported)
	assert.Equal(t, 2, byName["renamed.csv"].RowsFailed)
	assert.Equal(t, 2, byName["iso.csv"].RowsImported)
}
