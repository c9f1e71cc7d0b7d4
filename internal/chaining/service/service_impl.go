package service

import (
	"context"
	"sort"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	"github.com/anoteng/regnskap/internal/chaining/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/anoteng/regnskap/internal/journal"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unknownAccount = "Unknown"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Settings     *config.EngineSettingsHolder
	Transactions transactiondomain.Repository
	TxSvc        transactiondomain.Service
	Accounts     accountdomain.Repository
	AuditSvc     auditdomain.Service `optional:"true"`
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	settings     *config.EngineSettingsHolder
	transactions transactiondomain.Repository
	txSvc        transactiondomain.Service
	accounts     accountdomain.Repository
	auditSvc     auditdomain.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("chaining.service"),
		clock:        p.Clock,
		settings:     p.Settings,
		transactions: p.Transactions,
		txSvc:        p.TxSvc,
		accounts:     p.Accounts,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) Suggestions(ctx context.Context, ledgerID snowflake.ID) ([]domain.Suggestion, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}

	drafts, err := s.transactions.ListSingleEntryDrafts(ctx, s.db, ledgerID)
	if err != nil {
		return nil, err
	}

	var debits, credits []transactiondomain.SingleEntryDraft
	for _, d := range drafts {
		switch {
		case d.Debit.IsPositive() && d.Credit.IsZero():
			debits = append(debits, d)
		case d.Credit.IsPositive() && d.Debit.IsZero():
			credits = append(credits, d)
		}
	}
	if len(debits) == 0 || len(credits) == 0 {
		return []domain.Suggestion{}, nil
	}

	names, err := s.accountNames(ctx, ledgerID)
	if err != nil {
		return nil, err
	}

	tolerance := s.settings.Get().ChainToleranceDays
	used := make(map[snowflake.ID]bool, len(credits))
	suggestions := make([]domain.Suggestion, 0)
	for _, debit := range debits {
		best := -1
		bestDiff := tolerance + 1
		for i, credit := range credits {
			if used[credit.TransactionID] || credit.AccountID == debit.AccountID {
				continue
			}
			if !credit.Credit.Equal(debit.Debit) {
				continue
			}
			diff := dayDiff(debit, credit)
			if diff > tolerance {
				continue
			}
			if diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best < 0 {
			continue
		}
		credit := credits[best]
		used[credit.TransactionID] = true

		primary, secondary := debit, credit
		if credit.TransactionDate.Before(debit.TransactionDate) {
			primary, secondary = credit, debit
		}
		suggestions = append(suggestions, domain.Suggestion{
			PrimaryTransactionID:   primary.TransactionID,
			SecondaryTransactionID: secondary.TransactionID,
			PrimaryDescription:     primary.Description,
			SecondaryDescription:   secondary.Description,
			PrimaryAccountName:     nameOf(names, primary.AccountID),
			SecondaryAccountName:   nameOf(names, secondary.AccountID),
			Amount:                 debit.Debit,
			PrimaryDate:            primary.TransactionDate,
			SecondaryDate:          secondary.TransactionDate,
			Confidence:             domain.ConfidenceFor(primary.TransactionDate, secondary.TransactionDate),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if a.Confidence != b.Confidence {
			return a.Confidence == domain.ConfidenceHigh
		}
		return a.PrimaryDate.After(b.PrimaryDate)
	})
	return suggestions, nil
}

// Chain folds the secondary's only entry into the primary and deletes the
// secondary. Staged bank rows that pointed at the secondary follow the entry.
func (s *Service) Chain(ctx context.Context, ledgerID snowflake.ID, req domain.ChainRequest) (transactiondomain.Transaction, error) {
	if ledgerID == 0 {
		return transactiondomain.Transaction{}, domain.ErrInvalidLedger
	}
	if req.PrimaryTransactionID == 0 || req.SecondaryTransactionID == 0 {
		return transactiondomain.Transaction{}, domain.ErrInvalidID
	}
	if req.PrimaryTransactionID == req.SecondaryTransactionID {
		return transactiondomain.Transaction{}, domain.ErrSameTransaction
	}

	var merged *transactiondomain.Transaction
	var confidence domain.Confidence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		primary, err := s.loadLeg(ctx, tx, ledgerID, req.PrimaryTransactionID)
		if err != nil {
			return err
		}
		secondary, err := s.loadLeg(ctx, tx, ledgerID, req.SecondaryTransactionID)
		if err != nil {
			return err
		}

		a, b := primary.Entries[0], secondary.Entries[0]
		if a.AccountID == b.AccountID {
			return domain.ErrSameAccount
		}
		if isDebit(a) == isDebit(b) {
			return domain.ErrSameSide
		}

		lines := append(primary.Lines(), secondary.Lines()...)
		if err := journal.Validate(lines).Err(); err != nil {
			return err
		}

		if err := s.transactions.MoveEntries(ctx, tx, secondary.ID, primary.ID); err != nil {
			return err
		}
		if err := s.transactions.RepointStaged(ctx, tx, secondary.ID, primary.ID); err != nil {
			return err
		}
		ok, err := s.transactions.Delete(ctx, tx, ledgerID, secondary.ID, secondary.Version)
		if err != nil {
			return err
		}
		if !ok {
			return transactiondomain.ErrConcurrentModification
		}
		ok, err = s.transactions.BumpVersion(ctx, tx, ledgerID, primary.ID, primary.Version, s.clock.Now())
		if err != nil {
			return err
		}
		if !ok {
			return transactiondomain.ErrConcurrentModification
		}

		confidence = domain.ConfidenceFor(primary.TransactionDate, secondary.TransactionDate)
		merged = primary
		return nil
	})
	if err != nil {
		return transactiondomain.Transaction{}, err
	}

	s.metrics.RecordChain(ctx, string(confidence), req.AutoPost)
	s.audit(ctx, ledgerID, req, confidence)
	s.log.Info("transactions chained",
		zap.String("ledger_id", ledgerID.String()),
		zap.String("primary_id", req.PrimaryTransactionID.String()),
		zap.String("secondary_id", req.SecondaryTransactionID.String()),
		zap.String("confidence", string(confidence)),
	)

	if req.AutoPost {
		return s.txSvc.Post(ctx, ledgerID, merged.ID)
	}
	return s.txSvc.Get(ctx, ledgerID, merged.ID)
}

func (s *Service) loadLeg(ctx context.Context, tx *gorm.DB, ledgerID, id snowflake.ID) (*transactiondomain.Transaction, error) {
	t, err := s.transactions.FindByID(ctx, tx, ledgerID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, transactiondomain.ErrNotFound
	}
	if t.Status != transactiondomain.StatusDraft {
		return nil, &transactiondomain.StateError{From: t.Status, Op: "chain"}
	}
	entries, err := s.transactions.ListEntries(ctx, tx, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	t.Entries = entries[id]
	if len(t.Entries) != 1 {
		return nil, domain.ErrNotSingleEntry
	}
	return t, nil
}

func (s *Service) accountNames(ctx context.Context, ledgerID snowflake.ID) (map[snowflake.ID]string, error) {
	accounts, err := s.accounts.List(ctx, s.db, ledgerID, accountdomain.ListFilter{IncludeInactive: true})
	if err != nil {
		return nil, err
	}
	names := make(map[snowflake.ID]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.AccountName
	}
	return names, nil
}

func (s *Service) audit(ctx context.Context, ledgerID snowflake.ID, req domain.ChainRequest, confidence domain.Confidence) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		LedgerID:   ledgerID,
		Action:     "transaction.chain",
		TargetType: "transaction",
		TargetID:   req.PrimaryTransactionID,
		Metadata: map[string]any{
			"secondary_transaction_id": req.SecondaryTransactionID.String(),
			"confidence":               string(confidence),
			"auto_post":                req.AutoPost,
		},
	})
}

func isDebit(e transactiondomain.JournalEntry) bool {
	return e.Debit.GreaterThan(decimal.Zero)
}

func dayDiff(a, b transactiondomain.SingleEntryDraft) int {
	hours := a.TransactionDate.Sub(b.TransactionDate).Hours()
	if hours < 0 {
		hours = -hours
	}
	return int(hours / 24)
}

func nameOf(names map[snowflake.ID]string, id snowflake.ID) string {
	if name, ok := names[id]; ok {
		return name
	}
	return unknownAccount
}
