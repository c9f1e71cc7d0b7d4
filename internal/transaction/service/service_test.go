package service

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	bankaccountrepo "github.com/anoteng/regnskap/internal/bankaccount/repository"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/journal"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/anoteng/regnskap/internal/testutil"
	"github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/internal/transaction/repository"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	svc      domain.Service
	ledgerID snowflake.ID
	userID   snowflake.ID
	bankGL   snowflake.ID
	expense  snowflake.ID
	income   snowflake.ID
	bankID   snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC))
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         repository.Provide(),
		BankAccounts: bankaccountrepo.Provide(),
		Metrics:      obsmetrics.NewNoop(),
	})

	ledgerID := node.Generate()
	bankGL := testutil.CreateAccount(t, db, node, ledgerID, "1920", accountdomain.TypeAsset)
	return fixture{
		db:       db,
		node:     node,
		clock:    fake,
		svc:      svc,
		ledgerID: ledgerID,
		userID:   node.Generate(),
		bankGL:   bankGL,
		expense:  testutil.CreateAccount(t, db, node, ledgerID, "6000", accountdomain.TypeExpense),
		income:   testutil.CreateAccount(t, db, node, ledgerID, "3000", accountdomain.TypeRevenue),
		bankID:   testutil.CreateBankAccount(t, db, node, ledgerID, bankGL),
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func day(d int) time.Time { return time.Date(2025, 4, d, 0, 0, 0, 0, time.UTC) }

func (f fixture) purchase(t *testing.T, date time.Time, amount string) domain.Transaction {
	t.Helper()
	created, err := f.svc.Create(context.Background(), f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: date,
		Description:     "Rema 1000",
		Entries: []domain.EntryInput{
			{AccountID: f.expense, Debit: dec(amount)},
			{AccountID: f.bankGL, Credit: dec(amount)},
		},
	})
	require.NoError(t, err)
	return created
}

func TestCreateStartsAsDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC),
		Description:     "  Lunch  ",
		Source:          "bank_sync",
		Entries:         []domain.EntryInput{{AccountID: f.bankGL, Credit: dec("120")}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, created.Status)
	assert.Equal(t, domain.SourceBankSync, created.Source)
	assert.Equal(t, "Lunch", created.Description)
	assert.Equal(t, day(1), created.TransactionDate)
	assert.Equal(t, int64(1), created.Version)
	require.NotNil(t, created.Validation)
	assert.False(t, created.Validation.Valid())

	stored, err := f.svc.Get(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	require.Len(t, stored.Entries, 1)
	assert.True(t, dec("120").Equal(stored.Entries[0].Credit))
}

func TestCreateRejectsForeignAccounts(t *testing.T) {
	f := newFixture(t)
	other := testutil.CreateAccount(t, f.db, f.node, f.node.Generate(), "6000", accountdomain.TypeExpense)

	_, err := f.svc.Create(context.Background(), f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(1),
		Description:     "x",
		Entries: []domain.EntryInput{
			{AccountID: other, Debit: dec("10")},
			{AccountID: f.bankGL, Credit: dec("10")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = f.svc.Create(context.Background(), f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(1),
		Description:     "x",
		Entries:         []domain.EntryInput{{AccountID: f.bankGL, Debit: dec("-10")}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)

	_, err = f.svc.Create(context.Background(), f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(1),
		Description:     " ",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDescription)
}

func TestEntriesRejectInactiveAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.purchase(t, day(2), "50")
	require.NoError(t, f.db.Exec(`UPDATE accounts SET is_active = ? WHERE id = ?`, false, f.income).Error)

	_, err := f.svc.Create(ctx, f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(3),
		Description:     "Salary",
		Entries: []domain.EntryInput{
			{AccountID: f.bankGL, Debit: dec("50")},
			{AccountID: f.income, Credit: dec("50")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)

	_, err = f.svc.Update(ctx, f.ledgerID, draft.ID, domain.UpdateTransactionRequest{
		ExpectedVersion: draft.Version,
		TransactionDate: day(2),
		Description:     "Refund",
		Entries: []domain.EntryInput{
			{AccountID: f.bankGL, Debit: dec("50")},
			{AccountID: f.income, Credit: dec("50")},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInactiveAccount)

	stored, err := f.svc.Get(ctx, f.ledgerID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.Version, stored.Version)
	assert.Equal(t, "Rema 1000", stored.Description)
}

func TestPostRequiresBalancedEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(2),
		Description:     "Unbalanced",
		Entries: []domain.EntryInput{
			{AccountID: f.expense, Debit: dec("100")},
			{AccountID: f.bankGL, Credit: dec("90")},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Post(ctx, f.ledgerID, created.ID)
	var verr *journal.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, journal.CodeUnbalanced, verr.Code)
	assert.True(t, dec("10").Equal(verr.Difference))

	stored, err := f.svc.Get(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, stored.Status)
}

func TestPostUpdatesBankBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.purchase(t, day(3), "250.50")
	posted, err := f.svc.Post(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, posted.Status)
	assert.Equal(t, int64(2), posted.Version)
	assert.True(t, dec("-250.50").Equal(testutil.BankBalance(t, f.db, f.bankID)))

	_, err = f.svc.Post(ctx, f.ledgerID, created.ID)
	var serr *domain.StateError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, domain.StatusPosted, serr.From)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestUpdateChecksVersionAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.purchase(t, day(4), "80")

	updated, err := f.svc.Update(ctx, f.ledgerID, created.ID, domain.UpdateTransactionRequest{
		ExpectedVersion: created.Version,
		TransactionDate: day(5),
		Description:     "Kiwi",
		Entries: []domain.EntryInput{
			{AccountID: f.expense, Debit: dec("80")},
			{AccountID: f.bankGL, Credit: dec("70")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, day(5), updated.TransactionDate)
	require.NotNil(t, updated.Validation)
	assert.False(t, updated.Validation.Balanced)

	_, err = f.svc.Update(ctx, f.ledgerID, created.ID, domain.UpdateTransactionRequest{
		ExpectedVersion: created.Version,
		TransactionDate: day(5),
		Description:     "Stale",
	})
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	fixed, err := f.svc.Update(ctx, f.ledgerID, created.ID, domain.UpdateTransactionRequest{
		ExpectedVersion: updated.Version,
		TransactionDate: day(5),
		Description:     "Kiwi",
		Entries: []domain.EntryInput{
			{AccountID: f.expense, Debit: dec("80")},
			{AccountID: f.bankGL, Credit: dec("80")},
		},
	})
	require.NoError(t, err)
	assert.True(t, fixed.Validation.Valid())

	_, err = f.svc.Post(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.ledgerID, created.ID, domain.UpdateTransactionRequest{
		ExpectedVersion: 4,
		TransactionDate: day(5),
		Description:     "Too late",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReconcileOnlyFromPosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.purchase(t, day(6), "10")

	_, err := f.svc.Reconcile(ctx, f.ledgerID, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.Post(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	reconciled, err := f.svc.Reconcile(ctx, f.ledgerID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReconciled, reconciled.Status)

	_, err = f.svc.Reconcile(ctx, f.ledgerID, created.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// reconciled entries still count toward the balance
	assert.True(t, dec("-10").Equal(testutil.BankBalance(t, f.db, f.bankID)))
}

func insertStaged(t *testing.T, f fixture, transactionID snowflake.ID) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Exec(
		`INSERT INTO bank_transactions (id, bank_connection_id, external_transaction_id, transaction_date, amount,
			currency, dedup_hash, import_status, imported_transaction_id, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.node.Generate(), id.String(), day(1), "-10", "NOK", "hash", "IMPORTED", transactionID, time.Now().UTC(),
	).Error)
	return id
}

func stagedStatus(t *testing.T, f fixture, id snowflake.ID) (string, *int64) {
	t.Helper()
	var row struct {
		ImportStatus          string
		ImportedTransactionID *int64
	}
	require.NoError(t, f.db.Raw(`SELECT import_status, imported_transaction_id FROM bank_transactions WHERE id = ?`, id).Scan(&row).Error)
	return row.ImportStatus, row.ImportedTransactionID
}

func TestDeleteReleasesStagedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	keep := f.purchase(t, day(7), "10")
	keepStaged := insertStaged(t, f, keep.ID)
	require.NoError(t, f.svc.Delete(ctx, f.ledgerID, keep.ID, false))
	status, imported := stagedStatus(t, f, keepStaged)
	assert.Equal(t, "PENDING", status)
	assert.Nil(t, imported)

	discard := f.purchase(t, day(7), "20")
	discardStaged := insertStaged(t, f, discard.ID)
	require.NoError(t, f.svc.Delete(ctx, f.ledgerID, discard.ID, true))
	status, imported = stagedStatus(t, f, discardStaged)
	assert.Equal(t, "IGNORED", status)
	assert.Nil(t, imported)

	_, err := f.svc.Get(ctx, f.ledgerID, discard.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	posted := f.purchase(t, day(7), "30")
	_, err = f.svc.Post(ctx, f.ledgerID, posted.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.ledgerID, posted.ID, false), domain.ErrInvalidState)
}

func TestPostAllDraftsIsBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.purchase(t, day(1), "10")
	f.purchase(t, day(2), "20")
	single, err := f.svc.Create(ctx, f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(3),
		Description:     "Half",
		Entries:         []domain.EntryInput{{AccountID: f.bankGL, Debit: dec("5")}},
	})
	require.NoError(t, err)

	result, err := f.svc.PostAllDrafts(ctx, f.ledgerID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, single.ID, result.Errors[0].TransactionID)
	assert.Equal(t, string(journal.CodeInsufficientEntries), result.Errors[0].Code)
	assert.True(t, dec("-30").Equal(testutil.BankBalance(t, f.db, f.bankID)))
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	draft := f.purchase(t, day(1), "99.90")
	_, err := f.svc.Reverse(ctx, f.ledgerID, f.userID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.svc.Post(ctx, f.ledgerID, draft.ID)
	require.NoError(t, err)
	_, err = f.svc.Reconcile(ctx, f.ledgerID, draft.ID)
	require.NoError(t, err)

	reversal, err := f.svc.Reverse(ctx, f.ledgerID, f.userID, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPosted, reversal.Status)
	assert.Equal(t, day(10), reversal.TransactionDate)
	assert.Equal(t, "Reversal of: Rema 1000", reversal.Description)
	require.NotNil(t, reversal.Reference)
	assert.Equal(t, "REV-"+draft.ID.String(), *reversal.Reference)
	require.NotNil(t, reversal.ReversedOfTransactionID)
	assert.Equal(t, draft.ID, *reversal.ReversedOfTransactionID)
	require.Len(t, reversal.Entries, 2)
	for _, entry := range reversal.Entries {
		if entry.AccountID == f.expense {
			assert.True(t, dec("99.90").Equal(entry.Credit))
		} else {
			assert.True(t, dec("99.90").Equal(entry.Debit))
		}
	}
	assert.True(t, testutil.BankBalance(t, f.db, f.bankID).IsZero())

	_, err = f.svc.Reverse(ctx, f.ledgerID, f.userID, draft.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)
}

func TestListFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for d := 1; d <= 5; d++ {
		f.purchase(t, day(d), "10")
	}
	salary, err := f.svc.Create(ctx, f.ledgerID, f.userID, domain.CreateTransactionRequest{
		TransactionDate: day(3),
		Description:     "Salary",
		Source:          "CSV_IMPORT",
		Entries: []domain.EntryInput{
			{AccountID: f.bankGL, Debit: dec("1000")},
			{AccountID: f.income, Credit: dec("1000")},
		},
	})
	require.NoError(t, err)

	first, err := f.svc.List(ctx, f.ledgerID, domain.ListTransactionsRequest{Pagination: pagination.Pagination{PageSize: 4}})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 4)
	assert.True(t, first.HasMore)
	assert.True(t, day(5).Equal(first.Transactions[0].TransactionDate))

	second, err := f.svc.List(ctx, f.ledgerID, domain.ListTransactionsRequest{Pagination: pagination.Pagination{PageSize: 4, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	assert.Len(t, second.Transactions, 2)
	assert.False(t, second.HasMore)

	seen := map[snowflake.ID]bool{}
	for _, tx := range append(first.Transactions, second.Transactions...) {
		assert.False(t, seen[tx.ID])
		seen[tx.ID] = true
	}

	byIncome, err := f.svc.List(ctx, f.ledgerID, domain.ListTransactionsRequest{AccountID: &f.income})
	require.NoError(t, err)
	require.Len(t, byIncome.Transactions, 1)
	assert.Equal(t, salary.ID, byIncome.Transactions[0].ID)
	assert.Len(t, byIncome.Transactions[0].Entries, 2)

	from, to := day(2), day(4)
	window, err := f.svc.List(ctx, f.ledgerID, domain.ListTransactionsRequest{From: &from, To: &to, Source: "MANUAL"})
	require.NoError(t, err)
	assert.Len(t, window.Transactions, 3)

	_, err = f.svc.List(ctx, f.ledgerID, domain.ListTransactionsRequest{Status: "VOID"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	queue, err := f.svc.Queue(ctx, f.ledgerID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, queue.Transactions, 2)
	assert.Equal(t, int64(6), queue.Total)
}

func TestValidateIsPure(t *testing.T) {
	f := newFixture(t)
	result := f.svc.Validate([]domain.EntryInput{
		{AccountID: f.expense, Debit: dec("10.004")},
		{AccountID: f.bankGL, Credit: dec("10")},
	})
	assert.True(t, result.Valid())
	assert.True(t, result.TotalDebit.Equal(dec("10")))
}
