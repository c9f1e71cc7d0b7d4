package service

import (
	"context"
	"strings"

	"github.com/anoteng/regnskap/internal/account/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, ledgerID snowflake.ID, req domain.CreateAccountRequest) (domain.Account, error) {
	if ledgerID == 0 {
		return domain.Account{}, domain.ErrInvalidLedger
	}

	number := strings.TrimSpace(req.AccountNumber)
	if number == "" || len(number) > 20 {
		return domain.Account{}, domain.ErrInvalidNumber
	}
	name := strings.TrimSpace(req.AccountName)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	accountType, err := domain.ParseType(req.AccountType)
	if err != nil {
		return domain.Account{}, err
	}

	now := s.clock.Now()
	account := domain.Account{
		ID:              s.genID.Generate(),
		LedgerID:        ledgerID,
		AccountNumber:   number,
		AccountName:     name,
		AccountType:     accountType,
		ParentAccountID: req.ParentAccountID,
		Description:     trimmedPtr(req.Description),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if account.ParentAccountID != nil {
			parent, err := s.repo.FindByID(ctx, tx, ledgerID, *account.ParentAccountID)
			if err != nil {
				return err
			}
			if parent == nil {
				return domain.ErrInvalidParent
			}
		}

		existing, err := s.repo.FindByNumber(ctx, tx, ledgerID, number)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateNumber
		}

		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

func (s *Service) Update(ctx context.Context, ledgerID, id snowflake.ID, req domain.UpdateAccountRequest) (domain.Account, error) {
	if ledgerID == 0 {
		return domain.Account{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}

	var updated domain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		if req.AccountNumber != nil || req.AccountType != nil {
			if err := s.applyStructuralChange(ctx, tx, account, req); err != nil {
				return err
			}
		}

		if req.AccountName != nil {
			name := strings.TrimSpace(*req.AccountName)
			if name == "" {
				return domain.ErrInvalidName
			}
			account.AccountName = name
		}
		if req.Description != nil {
			account.Description = trimmedPtr(req.Description)
		}
		if req.IsActive != nil {
			account.IsActive = *req.IsActive
		}

		switch {
		case req.ClearParent:
			account.ParentAccountID = nil
		case req.ParentAccountID != nil:
			if err := s.checkParent(ctx, tx, ledgerID, id, *req.ParentAccountID); err != nil {
				return err
			}
			parentID := *req.ParentAccountID
			account.ParentAccountID = &parentID
		}

		account.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, account); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateNumber
			}
			return err
		}
		updated = *account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}

	return updated, nil
}

// applyStructuralChange handles number and type edits, which are frozen once
// the account carries journal entries.
func (s *Service) applyStructuralChange(ctx context.Context, tx *gorm.DB, account *domain.Account, req domain.UpdateAccountRequest) error {
	var (
		number      = account.AccountNumber
		accountType = account.AccountType
	)
	if req.AccountNumber != nil {
		number = strings.TrimSpace(*req.AccountNumber)
		if number == "" || len(number) > 20 {
			return domain.ErrInvalidNumber
		}
	}
	if req.AccountType != nil {
		parsed, err := domain.ParseType(*req.AccountType)
		if err != nil {
			return err
		}
		accountType = parsed
	}
	if number == account.AccountNumber && accountType == account.AccountType {
		return nil
	}

	entries, err := s.repo.CountJournalEntries(ctx, tx, account.ID)
	if err != nil {
		return err
	}
	if entries > 0 {
		return domain.ErrImmutableField
	}

	if number != account.AccountNumber {
		existing, err := s.repo.FindByNumber(ctx, tx, account.LedgerID, number)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateNumber
		}
	}

	account.AccountNumber = number
	account.AccountType = accountType
	return nil
}

// checkParent rejects parents outside the ledger and parents that would close
// a loop in the tree.
func (s *Service) checkParent(ctx context.Context, tx *gorm.DB, ledgerID, id, parentID snowflake.ID) error {
	if parentID == id {
		return domain.ErrParentCycle
	}
	seen := map[snowflake.ID]struct{}{}
	current := parentID
	for {
		node, err := s.repo.FindByID(ctx, tx, ledgerID, current)
		if err != nil {
			return err
		}
		if node == nil {
			if current == parentID {
				return domain.ErrInvalidParent
			}
			return nil
		}
		if node.ParentAccountID == nil {
			return nil
		}
		next := *node.ParentAccountID
		if next == id {
			return domain.ErrParentCycle
		}
		if _, ok := seen[next]; ok {
			return domain.ErrParentCycle
		}
		seen[next] = struct{}{}
		current = next
	}
}

func (s *Service) Deactivate(ctx context.Context, ledgerID, id snowflake.ID) (domain.Account, error) {
	if ledgerID == 0 {
		return domain.Account{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}

	var result domain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		bankAccounts, err := s.repo.CountBankAccounts(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if bankAccounts > 0 {
			return &domain.InUseError{BankAccounts: bankAccounts}
		}

		account.IsActive = false
		account.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, account); err != nil {
			return err
		}
		result = *account
		return nil
	})
	if err != nil {
		return domain.Account{}, err
	}
	return result, nil
}

// Delete removes an account that nothing references. Referenced accounts
// can only be deactivated.
func (s *Service) Delete(ctx context.Context, ledgerID, id snowflake.ID) error {
	if ledgerID == 0 {
		return domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.ErrInvalidID
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByID(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrNotFound
		}

		entries, err := s.repo.CountJournalEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		bankAccounts, err := s.repo.CountBankAccounts(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if entries > 0 || bankAccounts > 0 {
			return &domain.InUseError{JournalEntries: entries, BankAccounts: bankAccounts}
		}

		if err := s.repo.Delete(ctx, tx, ledgerID, id); err != nil {
			if db.IsForeignKeyErr(err) {
				return &domain.InUseError{}
			}
			return err
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, ledgerID, id snowflake.ID) (domain.Account, error) {
	if ledgerID == 0 {
		return domain.Account{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, ledgerID, id)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context, ledgerID snowflake.ID, req domain.ListAccountsRequest) ([]domain.Account, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}

	filter := domain.ListFilter{IncludeInactive: req.IncludeInactive}
	if strings.TrimSpace(req.Type) != "" {
		accountType, err := domain.ParseType(req.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = &accountType
	}

	items, err := s.repo.List(ctx, s.db, ledgerID, filter)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

// ApplyTemplate copies the template's default accounts into the ledger.
// Rows are inserted first, then parents are resolved by account number, so
// template order does not matter. Numbers the ledger already has are kept and
// can still act as parents.
func (s *Service) ApplyTemplate(ctx context.Context, ledgerID snowflake.ID, templateName string) ([]domain.Account, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}

	var created []domain.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		template, err := s.findTemplate(ctx, tx, strings.TrimSpace(templateName))
		if err != nil {
			return err
		}

		rows, err := s.repo.ListTemplateAccounts(ctx, tx, template.ID, true)
		if err != nil {
			return err
		}

		index, err := s.repo.NumberIndex(ctx, tx, ledgerID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		parents := make([]*string, 0, len(rows))
		for _, row := range rows {
			if _, exists := index[row.AccountNumber]; exists {
				continue
			}
			account := domain.Account{
				ID:            s.genID.Generate(),
				LedgerID:      ledgerID,
				AccountNumber: row.AccountNumber,
				AccountName:   row.AccountName,
				AccountType:   row.AccountType,
				Description:   row.Description,
				IsActive:      true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, &account); err != nil {
				return err
			}
			index[account.AccountNumber] = account.ID
			created = append(created, account)
			parents = append(parents, row.ParentAccountNumber)
		}

		for i := range created {
			if parents[i] == nil || *parents[i] == "" {
				continue
			}
			parentID, ok := index[*parents[i]]
			if !ok || parentID == created[i].ID {
				s.log.Warn("template parent not found",
					zap.String("template", template.Name),
					zap.String("account_number", created[i].AccountNumber),
					zap.String("parent_account_number", *parents[i]),
				)
				continue
			}
			if err := s.repo.SetParent(ctx, tx, ledgerID, created[i].ID, &parentID); err != nil {
				return err
			}
			created[i].ParentAccountID = &parentID
		}

		s.log.Info("chart template applied",
			zap.String("ledger_id", ledgerID.String()),
			zap.String("template", template.Name),
			zap.Int("created", len(created)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *Service) findTemplate(ctx context.Context, tx *gorm.DB, name string) (*domain.Template, error) {
	var (
		template *domain.Template
		err      error
	)
	if name == "" {
		template, err = s.repo.FindDefaultTemplate(ctx, tx)
	} else {
		template, err = s.repo.FindTemplateByName(ctx, tx, name)
	}
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, domain.ErrTemplateNotFound
	}
	return template, nil
}

func (s *Service) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	items, err := s.repo.ListTemplates(ctx, s.db)
	if err != nil {
		return nil, err
	}

	templates := make([]domain.Template, 0, len(items))
	for _, item := range items {
		accounts, err := s.repo.ListTemplateAccounts(ctx, s.db, item.ID, false)
		if err != nil {
			return nil, err
		}
		template := *item
		template.Accounts = make([]domain.TemplateAccount, 0, len(accounts))
		for _, account := range accounts {
			template.Accounts = append(template.Accounts, *account)
		}
		templates = append(templates, template)
	}
	return templates, nil
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
