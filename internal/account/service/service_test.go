package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/account/domain"
	"github.com/anoteng/regnskap/internal/account/repository"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/testutil"
	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	svc      domain.Service
	ledgerID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return fixture{db: db, node: node, svc: svc, ledgerID: node.Generate()}
}

func strPtr(v string) *string { return &v }

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bank, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{
		AccountNumber: "1920",
		AccountName:   "Bankinnskudd",
		AccountType:   "asset",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TypeAsset, bank.AccountType)
	assert.True(t, bank.IsActive)

	_, err = f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{
		AccountNumber: "1920",
		AccountName:   "Duplicate",
		AccountType:   "ASSET",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateNumber)

	// the same number is free in another ledger
	_, err = f.svc.Create(ctx, f.node.Generate(), domain.CreateAccountRequest{
		AccountNumber: "1920",
		AccountName:   "Other ledger",
		AccountType:   "ASSET",
	})
	assert.NoError(t, err)
}

func TestCreateAccountValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := f.node.Generate()

	cases := []struct {
		name string
		req  domain.CreateAccountRequest
		want error
	}{
		{"missing number", domain.CreateAccountRequest{AccountName: "x", AccountType: "ASSET"}, domain.ErrInvalidNumber},
		{"missing name", domain.CreateAccountRequest{AccountNumber: "1", AccountType: "ASSET"}, domain.ErrInvalidName},
		{"unknown type", domain.CreateAccountRequest{AccountNumber: "1", AccountName: "x", AccountType: "INCOME"}, domain.ErrInvalidType},
		{"unknown parent", domain.CreateAccountRequest{AccountNumber: "1", AccountName: "x", AccountType: "ASSET", ParentAccountID: &missing}, domain.ErrInvalidParent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.ledgerID, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateRejectsParentCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "6000", AccountName: "Kostnader", AccountType: "EXPENSE"})
	require.NoError(t, err)
	child, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "6100", AccountName: "Mat", AccountType: "EXPENSE", ParentAccountID: &root.ID})
	require.NoError(t, err)
	grandchild, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "6110", AccountName: "Dagligvarer", AccountType: "EXPENSE", ParentAccountID: &child.ID})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.ledgerID, root.ID, domain.UpdateAccountRequest{ParentAccountID: &grandchild.ID})
	assert.ErrorIs(t, err, domain.ErrParentCycle)

	_, err = f.svc.Update(ctx, f.ledgerID, root.ID, domain.UpdateAccountRequest{ParentAccountID: &root.ID})
	assert.ErrorIs(t, err, domain.ErrParentCycle)

	updated, err := f.svc.Update(ctx, f.ledgerID, grandchild.ID, domain.UpdateAccountRequest{ParentAccountID: &root.ID, AccountName: strPtr("Groceries")})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *updated.ParentAccountID)
	assert.Equal(t, "Groceries", updated.AccountName)

	cleared, err := f.svc.Update(ctx, f.ledgerID, grandchild.ID, domain.UpdateAccountRequest{ClearParent: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.ParentAccountID)
}

func TestNumberIsImmutableOnceUsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "3000", AccountName: "Lønn", AccountType: "REVENUE"})
	require.NoError(t, err)

	renumbered, err := f.svc.Update(ctx, f.ledgerID, account.ID, domain.UpdateAccountRequest{AccountNumber: strPtr("3010")})
	require.NoError(t, err)
	assert.Equal(t, "3010", renumbered.AccountNumber)

	require.NoError(t, f.db.Exec(
		`INSERT INTO journal_entries (id, transaction_id, account_id, debit, credit, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), f.node.Generate(), account.ID, "0", "100", time.Now().UTC(),
	).Error)

	_, err = f.svc.Update(ctx, f.ledgerID, account.ID, domain.UpdateAccountRequest{AccountNumber: strPtr("3020")})
	assert.ErrorIs(t, err, domain.ErrImmutableField)

	_, err = f.svc.Update(ctx, f.ledgerID, account.ID, domain.UpdateAccountRequest{AccountType: strPtr("EXPENSE")})
	assert.ErrorIs(t, err, domain.ErrImmutableField)

	// name changes stay allowed
	_, err = f.svc.Update(ctx, f.ledgerID, account.ID, domain.UpdateAccountRequest{AccountName: strPtr("Salary")})
	assert.NoError(t, err)

	err = f.svc.Delete(ctx, f.ledgerID, account.ID)
	var inUse *domain.InUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, int64(1), inUse.JournalEntries)
	assert.ErrorIs(t, err, domain.ErrAccountInUse)

	deactivated, err := f.svc.Deactivate(ctx, f.ledgerID, account.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	active, err := f.svc.List(ctx, f.ledgerID, domain.ListAccountsRequest{})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.svc.List(ctx, f.ledgerID, domain.ListAccountsRequest{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeactivateRejectedWhileBankAccountLinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "1920", AccountName: "Bank", AccountType: "ASSET"})
	require.NoError(t, err)
	require.NoError(t, f.db.Exec(
		`INSERT INTO bank_accounts (id, ledger_id, account_id, name, account_type, balance, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.node.Generate(), f.ledgerID, account.ID, "Brukskonto", "CHECKING", "0", true, time.Now().UTC(), time.Now().UTC(),
	).Error)

	_, err = f.svc.Deactivate(ctx, f.ledgerID, account.ID)
	var inUse *domain.InUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, int64(1), inUse.BankAccounts)
}

func TestDeleteUnusedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "7000", AccountName: "Diverse", AccountType: "EXPENSE"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.ledgerID, account.ID))

	_, err = f.svc.Get(ctx, f.ledgerID, account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func seedTemplate(t *testing.T, f fixture) domain.Template {
	t.Helper()
	now := time.Now().UTC()
	template := domain.Template{
		ID:        f.node.Generate(),
		Name:      "Personal",
		Slug:      "personal",
		IsDefault: true,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(&template).Error)

	rows := []domain.TemplateAccount{
		// child listed before its parent on purpose
		{AccountNumber: "1920", AccountName: "Bank", AccountType: domain.TypeAsset, ParentAccountNumber: strPtr("1900"), IsDefault: true, SortOrder: 1},
		{AccountNumber: "1900", AccountName: "Cash and bank", AccountType: domain.TypeAsset, IsDefault: true, SortOrder: 2},
		{AccountNumber: "2400", AccountName: "Credit card", AccountType: domain.TypeLiability, IsDefault: true, SortOrder: 3},
		{AccountNumber: "6500", AccountName: "Hobby", AccountType: domain.TypeExpense, IsDefault: false, SortOrder: 4},
	}
	for i := range rows {
		rows[i].ID = f.node.Generate()
		rows[i].TemplateID = template.ID
		require.NoError(t, f.db.Create(&rows[i]).Error)
	}
	return template
}

func TestApplyTemplateResolvesParentsAfterInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTemplate(t, f)

	created, err := f.svc.ApplyTemplate(ctx, f.ledgerID, "")
	require.NoError(t, err)
	require.Len(t, created, 3)

	byNumber := map[string]domain.Account{}
	for _, account := range created {
		byNumber[account.AccountNumber] = account
	}
	require.Contains(t, byNumber, "1920")
	require.NotNil(t, byNumber["1920"].ParentAccountID)
	assert.Equal(t, byNumber["1900"].ID, *byNumber["1920"].ParentAccountID)
	assert.NotContains(t, byNumber, "6500")

	stored, err := f.svc.Get(ctx, f.ledgerID, byNumber["1920"].ID)
	require.NoError(t, err)
	assert.Equal(t, byNumber["1900"].ID, *stored.ParentAccountID)
}

func TestApplyTemplateSkipsExistingNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedTemplate(t, f)

	existing, err := f.svc.Create(ctx, f.ledgerID, domain.CreateAccountRequest{AccountNumber: "1900", AccountName: "Mine", AccountType: "ASSET"})
	require.NoError(t, err)

	created, err := f.svc.ApplyTemplate(ctx, f.ledgerID, "personal")
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, account := range created {
		if account.AccountNumber == "1920" {
			require.NotNil(t, account.ParentAccountID)
			assert.Equal(t, existing.ID, *account.ParentAccountID)
		}
	}

	again, err := f.svc.ApplyTemplate(ctx, f.ledgerID, "Personal")
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = f.svc.ApplyTemplate(ctx, f.ledgerID, "business")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestListTemplatesIncludesAccounts(t *testing.T) {
	f := newFixture(t)
	seedTemplate(t, f)

	templates, err := f.svc.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Len(t, templates[0].Accounts, 4)
}
