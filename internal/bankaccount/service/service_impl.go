package service

import (
	"context"
	"strings"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	"github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
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
		log:   p.Log.Named("bankaccount.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, ledgerID snowflake.ID, req domain.CreateBankAccountRequest) (domain.Linked, error) {
	if ledgerID == 0 {
		return domain.Linked{}, domain.ErrInvalidLedger
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Linked{}, domain.ErrInvalidName
	}
	accountType, err := domain.ParseType(req.AccountType)
	if err != nil {
		return domain.Linked{}, err
	}
	if req.AccountID == 0 {
		return domain.Linked{}, domain.ErrInvalidGLAccount
	}

	glType, err := s.repo.GLAccountType(ctx, s.db, ledgerID, req.AccountID)
	if err != nil {
		return domain.Linked{}, err
	}
	switch accountdomain.Type(glType) {
	case accountdomain.TypeAsset, accountdomain.TypeLiability:
	default:
		return domain.Linked{}, domain.ErrInvalidGLAccount
	}

	now := s.clock.Now()
	account := domain.BankAccount{
		ID:            s.genID.Generate(),
		LedgerID:      ledgerID,
		AccountID:     req.AccountID,
		Name:          name,
		AccountType:   accountType,
		AccountNumber: req.AccountNumber,
		Balance:       decimal.Zero,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			return err
		}
		// the GL account may already carry postings
		return s.repo.RecomputeBalances(ctx, tx, ledgerID, []snowflake.ID{req.AccountID})
	})
	if err != nil {
		return domain.Linked{}, err
	}

	return s.Get(ctx, ledgerID, account.ID)
}

func (s *Service) Get(ctx context.Context, ledgerID, id snowflake.ID) (domain.Linked, error) {
	if ledgerID == 0 {
		return domain.Linked{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Linked{}, domain.ErrInvalidID
	}
	account, err := s.repo.FindByID(ctx, s.db, ledgerID, id)
	if err != nil {
		return domain.Linked{}, err
	}
	if account == nil {
		return domain.Linked{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context, ledgerID snowflake.ID, includeInactive bool) ([]domain.Linked, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}
	items, err := s.repo.List(ctx, s.db, ledgerID, includeInactive)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Linked, 0, len(items))
	for _, item := range items {
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

func (s *Service) Deactivate(ctx context.Context, ledgerID, id snowflake.ID) error {
	if _, err := s.Get(ctx, ledgerID, id); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, s.db, ledgerID, id, false); err != nil {
		return err
	}
	s.log.Info("bank account deactivated",
		zap.String("ledger_id", ledgerID.String()),
		zap.String("bank_account_id", id.String()),
	)
	return nil
}
