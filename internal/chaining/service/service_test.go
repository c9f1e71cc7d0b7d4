package service

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	accountrepo "github.com/anoteng/regnskap/internal/account/repository"
	bankaccountrepo "github.com/anoteng/regnskap/internal/bankaccount/repository"
	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/chaining/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/journal"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/anoteng/regnskap/internal/testutil"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	transactionrepo "github.com/anoteng/regnskap/internal/transaction/repository"
	transactionsvc "github.com/anoteng/regnskap/internal/transaction/service"
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
	txSvc    transactiondomain.Service
	svc      domain.Service
	ledgerID snowflake.ID
	userID   snowflake.ID
	checking snowflake.ID
	card     snowflake.ID
	savings  snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	fake := clock.NewFakeClock(time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC))
	repo := transactionrepo.Provide()
	txSvc := transactionsvc.New(transactionsvc.Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        fake,
		Repo:         repo,
		BankAccounts: bankaccountrepo.Provide(),
	})
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        fake,
		Settings:     config.NewStaticEngineSettingsHolder(config.DefaultEngineSettings()),
		Transactions: repo,
		TxSvc:        txSvc,
		Accounts:     accountrepo.Provide(),
		Metrics:      obsmetrics.NewNoop(),
	})

	ledgerID := node.Generate()
	return fixture{
		db:       db,
		node:     node,
		txSvc:    txSvc,
		svc:      svc,
		ledgerID: ledgerID,
		userID:   node.Generate(),
		checking: testutil.CreateAccount(t, db, node, ledgerID, "1920", accountdomain.TypeAsset),
		card:     testutil.CreateAccount(t, db, node, ledgerID, "2380", accountdomain.TypeLiability),
		savings:  testutil.CreateAccount(t, db, node, ledgerID, "1950", accountdomain.TypeAsset),
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func may(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }

// leg creates a single-entry bank draft. A positive amount is a debit.
func (f fixture) leg(t *testing.T, date time.Time, account snowflake.ID, amount, description string) transactiondomain.Transaction {
	t.Helper()
	entry := transactiondomain.EntryInput{AccountID: account}
	value := dec(amount)
	if value.IsNegative() {
		entry.Credit = value.Neg()
	} else {
		entry.Debit = value
	}
	created, err := f.txSvc.Create(context.Background(), f.ledgerID, f.userID, transactiondomain.CreateTransactionRequest{
		TransactionDate: date,
		Description:     description,
		Source:          "bank_sync",
		Entries:         []transactiondomain.EntryInput{entry},
	})
	require.NoError(t, err)
	return created
}

func TestSuggestionsPairsTransferLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.leg(t, may(3), f.checking, "-1500", "Nedbetaling kredittkort")
	in := f.leg(t, may(3), f.card, "1500", "Innbetaling")
	late := f.leg(t, may(12), f.savings, "-300", "Til sparing")
	lateIn := f.leg(t, may(10), f.checking, "300", "Fra sparing")
	f.leg(t, may(15), f.card, "99", "Unmatched")

	suggestions, err := f.svc.Suggestions(ctx, f.ledgerID)
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	high := suggestions[0]
	assert.Equal(t, domain.ConfidenceHigh, high.Confidence)
	assert.Equal(t, in.ID, high.PrimaryTransactionID, "debit leg is primary on equal dates")
	assert.Equal(t, out.ID, high.SecondaryTransactionID)
	assert.Equal(t, "Account 2380", high.PrimaryAccountName)
	assert.Equal(t, "Account 1920", high.SecondaryAccountName)
	assert.True(t, dec("1500").Equal(high.Amount))

	medium := suggestions[1]
	assert.Equal(t, domain.ConfidenceMedium, medium.Confidence)
	assert.Equal(t, lateIn.ID, medium.PrimaryTransactionID, "earlier leg is primary")
	assert.Equal(t, late.ID, medium.SecondaryTransactionID)
	assert.Equal(t, may(10), medium.PrimaryDate)
	assert.Equal(t, may(12), medium.SecondaryDate)
}

func TestSuggestionsRespectsToleranceAndAccounts(t *testing.T) {
	f := newFixture(t)

	f.leg(t, may(1), f.checking, "-200", "Out")
	f.leg(t, may(4), f.savings, "200", "Too late")
	f.leg(t, may(1), f.checking, "200", "Same account")
	f.leg(t, may(1), f.card, "201", "Wrong amount")

	suggestions, err := f.svc.Suggestions(context.Background(), f.ledgerID)
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestSuggestionsUsesEachLegOnce(t *testing.T) {
	f := newFixture(t)

	f.leg(t, may(5), f.checking, "-50", "Out")
	f.leg(t, may(5), f.card, "50", "In A")
	f.leg(t, may(6), f.savings, "50", "In B")

	suggestions, err := f.svc.Suggestions(context.Background(), f.ledgerID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
}

func TestSuggestionsPrefersClosestDate(t *testing.T) {
	f := newFixture(t)

	in := f.leg(t, may(8), f.card, "75", "In")
	f.leg(t, may(10), f.checking, "-75", "Far")
	near := f.leg(t, may(9), f.savings, "-75", "Near")

	suggestions, err := f.svc.Suggestions(context.Background(), f.ledgerID)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, in.ID, suggestions[0].PrimaryTransactionID)
	assert.Equal(t, near.ID, suggestions[0].SecondaryTransactionID)
}

func TestChainMergesLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	primary := f.leg(t, may(3), f.card, "1500", "Innbetaling")
	secondary := f.leg(t, may(4), f.checking, "-1500", "Nedbetaling")

	connectionID := f.node.Generate()
	staged := banksyncdomain.StagedTransaction{
		ID:                    f.node.Generate(),
		BankConnectionID:      connectionID,
		ExternalTransactionID: "ext-1",
		TransactionDate:       may(4),
		Amount:                dec("-1500"),
		Currency:              "NOK",
		DedupHash:             "abc",
		ImportStatus:          banksyncdomain.ImportImported,
		ImportedTransactionID: &secondary.ID,
		FetchedAt:             may(4),
	}
	require.NoError(t, f.db.Create(&staged).Error)

	merged, err := f.svc.Chain(ctx, f.ledgerID, domain.ChainRequest{
		PrimaryTransactionID:   primary.ID,
		SecondaryTransactionID: secondary.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, primary.ID, merged.ID)
	assert.Equal(t, transactiondomain.StatusDraft, merged.Status)
	assert.Equal(t, primary.Version+1, merged.Version)
	require.Len(t, merged.Entries, 2)
	require.NotNil(t, merged.Validation)
	assert.True(t, merged.Validation.Valid())

	_, err = f.txSvc.Get(ctx, f.ledgerID, secondary.ID)
	assert.ErrorIs(t, err, transactiondomain.ErrNotFound)

	var reloaded banksyncdomain.StagedTransaction
	require.NoError(t, f.db.First(&reloaded, "id = ?", staged.ID).Error)
	require.NotNil(t, reloaded.ImportedTransactionID)
	assert.Equal(t, primary.ID, *reloaded.ImportedTransactionID)
}

func TestChainAutoPost(t *testing.T) {
	f := newFixture(t)

	primary := f.leg(t, may(3), f.card, "250", "In")
	secondary := f.leg(t, may(3), f.checking, "-250", "Out")

	merged, err := f.svc.Chain(context.Background(), f.ledgerID, domain.ChainRequest{
		PrimaryTransactionID:   primary.ID,
		SecondaryTransactionID: secondary.ID,
		AutoPost:               true,
	})
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.StatusPosted, merged.Status)
}

func TestChainRejectsUnbalancedPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	primary := f.leg(t, may(3), f.card, "250", "In")
	secondary := f.leg(t, may(3), f.checking, "-240", "Out")

	_, err := f.svc.Chain(ctx, f.ledgerID, domain.ChainRequest{
		PrimaryTransactionID:   primary.ID,
		SecondaryTransactionID: secondary.ID,
	})
	var verr *journal.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, journal.CodeUnbalanced, verr.Code)

	// Nothing moved.
	stored, err := f.txSvc.Get(ctx, f.ledgerID, secondary.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Entries, 1)
}

func TestChainValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	debit := f.leg(t, may(3), f.card, "100", "In")
	otherDebit := f.leg(t, may(3), f.checking, "100", "Also in")
	sameAccount := f.leg(t, may(3), f.card, "-100", "Same account")
	credit := f.leg(t, may(3), f.savings, "-100", "Out")

	posted := f.leg(t, may(3), f.checking, "-100", "Posted")
	_, err := f.txSvc.Update(ctx, f.ledgerID, posted.ID, transactiondomain.UpdateTransactionRequest{
		ExpectedVersion: posted.Version,
		TransactionDate: may(3),
		Description:     "Posted",
		Entries: []transactiondomain.EntryInput{
			{AccountID: f.checking, Credit: dec("100")},
			{AccountID: f.savings, Debit: dec("100")},
		},
	})
	require.NoError(t, err)
	_, err = f.txSvc.Post(ctx, f.ledgerID, posted.ID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		primary   snowflake.ID
		secondary snowflake.ID
		want      error
	}{
		{"missing ids", 0, credit.ID, domain.ErrInvalidID},
		{"same transaction", debit.ID, debit.ID, domain.ErrSameTransaction},
		{"unknown", debit.ID, f.node.Generate(), transactiondomain.ErrNotFound},
		{"same side", debit.ID, otherDebit.ID, domain.ErrSameSide},
		{"same account", debit.ID, sameAccount.ID, domain.ErrSameAccount},
		{"posted leg", debit.ID, posted.ID, transactiondomain.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Chain(ctx, f.ledgerID, domain.ChainRequest{
				PrimaryTransactionID:   tt.primary,
				SecondaryTransactionID: tt.secondary,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err = f.svc.Chain(ctx, f.node.Generate(), domain.ChainRequest{
		PrimaryTransactionID:   debit.ID,
		SecondaryTransactionID: credit.ID,
	})
	assert.ErrorIs(t, err, transactiondomain.ErrNotFound, "other ledger")
}

func TestChainRejectsMultiEntryDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	debit := f.leg(t, may(3), f.card, "100", "In")
	split, err := f.txSvc.Create(ctx, f.ledgerID, f.userID, transactiondomain.CreateTransactionRequest{
		TransactionDate: may(3),
		Description:     "Split",
		Entries: []transactiondomain.EntryInput{
			{AccountID: f.checking, Credit: dec("60")},
			{AccountID: f.savings, Credit: dec("40")},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Chain(ctx, f.ledgerID, domain.ChainRequest{
		PrimaryTransactionID:   debit.ID,
		SecondaryTransactionID: split.ID,
	})
	assert.ErrorIs(t, err, domain.ErrNotSingleEntry)
}
