package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/journal"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	"github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/anoteng/regnskap/pkg/db/option"
	"github.com/anoteng/regnskap/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxDescription = 500
	maxReference   = 100

	reversalPrefix = "Reversal of: "
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	BankAccounts bankaccountdomain.Repository
	AuditSvc     auditdomain.Service `optional:"true"`
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	bankAccounts bankaccountdomain.Repository
	auditSvc     auditdomain.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("transaction.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		bankAccounts: p.BankAccounts,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, ledgerID, userID snowflake.ID, req domain.CreateTransactionRequest) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if userID == 0 {
		return domain.Transaction{}, domain.ErrInvalidUser
	}

	header, err := normalizeHeader(req.TransactionDate, req.Description, req.Reference)
	if err != nil {
		return domain.Transaction{}, err
	}

	source := domain.SourceManual
	if strings.TrimSpace(req.Source) != "" {
		source, err = domain.ParseSource(req.Source)
		if err != nil {
			return domain.Transaction{}, err
		}
	}

	now := s.clock.Now()
	t := domain.Transaction{
		ID:              s.genID.Generate(),
		LedgerID:        ledgerID,
		TransactionDate: header.date,
		Description:     header.description,
		Reference:       header.reference,
		Status:          domain.StatusDraft,
		Source:          source,
		SourceReference: trimmedPtr(req.SourceReference),
		Version:         1,
		CreatedBy:       userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	t.Entries, err = s.buildEntries(t.ID, req.Entries, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkAccounts(ctx, tx, ledgerID, t.AccountIDs()); err != nil {
			return err
		}
		if err := s.repo.Insert(ctx, tx, &t); err != nil {
			return err
		}
		return s.repo.InsertEntries(ctx, tx, t.Entries)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	result := journal.Validate(t.Lines())
	t.Validation = &result
	return t, nil
}

func (s *Service) Get(ctx context.Context, ledgerID, id snowflake.ID) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}
	t, err := s.load(ctx, s.db, ledgerID, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	result := journal.Validate(t.Lines())
	t.Validation = &result
	return *t, nil
}

func (s *Service) List(ctx context.Context, ledgerID snowflake.ID, req domain.ListTransactionsRequest) (domain.ListTransactionsResponse, error) {
	if ledgerID == 0 {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidLedger
	}

	filter := domain.ListFilter{AccountID: req.AccountID}
	if req.From != nil {
		from := dateOnly(*req.From)
		filter.From = &from
	}
	if req.To != nil {
		to := dateOnly(*req.To)
		filter.To = &to
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := domain.ParseStatus(req.Status)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		filter.Status = &status
	}
	if strings.TrimSpace(req.Source) != "" {
		source, err := domain.ParseSource(req.Source)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		filter.Source = &source
	}

	return s.list(ctx, ledgerID, filter, req.Pagination, false)
}

// Queue lists drafts awaiting review, newest first, with the total count.
func (s *Service) Queue(ctx context.Context, ledgerID snowflake.ID, page pagination.Pagination) (domain.ListTransactionsResponse, error) {
	if ledgerID == 0 {
		return domain.ListTransactionsResponse{}, domain.ErrInvalidLedger
	}
	status := domain.StatusDraft
	return s.list(ctx, ledgerID, domain.ListFilter{Status: &status}, page, true)
}

func (s *Service) list(ctx context.Context, ledgerID snowflake.ID, filter domain.ListFilter, page pagination.Pagination, withTotal bool) (domain.ListTransactionsResponse, error) {
	if strings.TrimSpace(page.PageToken) != "" {
		if _, err := pagination.DecodeCursor(page.PageToken); err != nil {
			return domain.ListTransactionsResponse{}, domain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, ledgerID, filter, page)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	limit := option.PageLimit(page)
	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(item *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:   item.ID.String(),
			Date: item.TransactionDate.Format(time.DateOnly),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	entries, err := s.repo.ListEntries(ctx, s.db, ids)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	resp := domain.ListTransactionsResponse{Transactions: make([]domain.Transaction, 0, len(items))}
	for _, item := range items {
		item.Entries = entries[item.ID]
		if item.Entries == nil {
			item.Entries = []domain.JournalEntry{}
		}
		resp.Transactions = append(resp.Transactions, *item)
	}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	if withTotal {
		total, err := s.repo.Count(ctx, s.db, ledgerID, filter)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		resp.Total = total
	}
	return resp, nil
}

// Update replaces a draft's header and entries. The stored version must equal
// req.ExpectedVersion. The returned transaction carries the live validation
// result so the caller can see whether it is postable.
func (s *Service) Update(ctx context.Context, ledgerID, id snowflake.ID, req domain.UpdateTransactionRequest) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}

	header, err := normalizeHeader(req.TransactionDate, req.Description, req.Reference)
	if err != nil {
		return domain.Transaction{}, err
	}

	now := s.clock.Now()
	entries, err := s.buildEntries(id, req.Entries, now)
	if err != nil {
		return domain.Transaction{}, err
	}

	var updated domain.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status != domain.StatusDraft {
			return &domain.StateError{From: current.Status, Op: "update"}
		}
		if current.Version != req.ExpectedVersion {
			return domain.ErrConcurrentModification
		}

		current.Entries = entries
		if err := s.checkAccounts(ctx, tx, ledgerID, current.AccountIDs()); err != nil {
			return err
		}

		current.TransactionDate = header.date
		current.Description = header.description
		current.Reference = header.reference
		current.UpdatedAt = now

		ok, err := s.repo.UpdateHeader(ctx, tx, current, req.ExpectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentModification
		}
		current.Version = req.ExpectedVersion + 1

		if err := s.repo.DeleteEntries(ctx, tx, id); err != nil {
			return err
		}
		if err := s.repo.InsertEntries(ctx, tx, entries); err != nil {
			return err
		}

		updated = *current
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	result := journal.Validate(updated.Lines())
	updated.Validation = &result
	return updated, nil
}

// Post moves a balanced draft to POSTED and refreshes the balances of the
// bank accounts it touches.
func (s *Service) Post(ctx context.Context, ledgerID, id snowflake.ID) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}

	var posted domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.post(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		posted = *t
		return nil
	})
	if err != nil {
		s.recordPostFailure(ctx, err)
		return domain.Transaction{}, err
	}

	s.metrics.RecordPosted(ctx, string(posted.Source))
	s.audit(ctx, ledgerID, "transaction.post", &posted, nil)
	return posted, nil
}

func (s *Service) post(ctx context.Context, tx *gorm.DB, ledgerID, id snowflake.ID) (*domain.Transaction, error) {
	t, err := s.load(ctx, tx, ledgerID, id)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusDraft {
		return nil, &domain.StateError{From: t.Status, Op: "post"}
	}

	result := journal.Validate(t.Lines())
	if err := result.Err(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.repo.TransitionStatus(ctx, tx, ledgerID, id, domain.StatusDraft, domain.StatusPosted, t.Version, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrConcurrentModification
	}

	if err := s.bankAccounts.RecomputeBalances(ctx, tx, ledgerID, t.AccountIDs()); err != nil {
		return nil, fmt.Errorf("recompute bank balances: %w", err)
	}

	t.Status = domain.StatusPosted
	t.Version++
	t.UpdatedAt = now
	t.Validation = &result
	return t, nil
}

func (s *Service) Reconcile(ctx context.Context, ledgerID, id snowflake.ID) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}

	var reconciled domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.load(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusPosted {
			return &domain.StateError{From: t.Status, Op: "reconcile"}
		}

		now := s.clock.Now()
		ok, err := s.repo.TransitionStatus(ctx, tx, ledgerID, id, domain.StatusPosted, domain.StatusReconciled, t.Version, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentModification
		}

		t.Status = domain.StatusReconciled
		t.Version++
		t.UpdatedAt = now
		reconciled = *t
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.audit(ctx, ledgerID, "transaction.reconcile", &reconciled, nil)
	return reconciled, nil
}

// Delete removes a draft. Staged bank rows that produced it return to
// PENDING so the next sync re-evaluates them, or to IGNORED when discard is
// set.
func (s *Service) Delete(ctx context.Context, ledgerID, id snowflake.ID, discard bool) error {
	if ledgerID == 0 {
		return domain.ErrInvalidLedger
	}
	if id == 0 {
		return domain.ErrInvalidID
	}

	var deleted domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.FindByID(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrNotFound
		}
		if t.Status != domain.StatusDraft {
			return &domain.StateError{From: t.Status, Op: "delete"}
		}

		releaseTo := "PENDING"
		if discard {
			releaseTo = "IGNORED"
		}
		if err := s.repo.ReleaseStaged(ctx, tx, id, releaseTo); err != nil {
			return err
		}
		if err := s.repo.DeleteEntries(ctx, tx, id); err != nil {
			return err
		}
		ok, err := s.repo.Delete(ctx, tx, ledgerID, id, t.Version)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConcurrentModification
		}
		deleted = *t
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, ledgerID, "transaction.delete", &deleted, map[string]any{"discard": discard})
	return nil
}

// PostAllDrafts tries to post every draft in the ledger. Each draft commits
// on its own; failures are collected and never stop the batch.
func (s *Service) PostAllDrafts(ctx context.Context, ledgerID snowflake.ID) (domain.PostAllResult, error) {
	if ledgerID == 0 {
		return domain.PostAllResult{}, domain.ErrInvalidLedger
	}

	ids, err := s.repo.ListIDsByStatus(ctx, s.db, ledgerID, domain.StatusDraft)
	if err != nil {
		return domain.PostAllResult{}, err
	}

	result := domain.PostAllResult{Errors: []domain.PostFailure{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.Post(ctx, ledgerID, id); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, domain.PostFailure{
				TransactionID: id,
				Code:          FailureCode(err),
				Message:       err.Error(),
			})
			continue
		}
		result.Succeeded++
	}

	s.log.Info("bulk post finished",
		zap.String("ledger_id", ledgerID.String()),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Reverse books a new POSTED transaction that mirrors a posted or reconciled
// one with debit and credit swapped, dated today. A transaction can be
// reversed once.
func (s *Service) Reverse(ctx context.Context, ledgerID, userID, id snowflake.ID) (domain.Transaction, error) {
	if ledgerID == 0 {
		return domain.Transaction{}, domain.ErrInvalidLedger
	}
	if userID == 0 {
		return domain.Transaction{}, domain.ErrInvalidUser
	}
	if id == 0 {
		return domain.Transaction{}, domain.ErrInvalidID
	}

	var reversal domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		original, err := s.load(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if !original.Status.Booked() {
			return &domain.StateError{From: original.Status, Op: "reverse"}
		}

		existing, err := s.repo.FindReversal(ctx, tx, ledgerID, id)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyReversed
		}

		now := s.clock.Now()
		originalID := original.ID
		reference := "REV-" + original.ID.String()
		reversal = domain.Transaction{
			ID:                      s.genID.Generate(),
			LedgerID:                ledgerID,
			TransactionDate:         clock.Today(s.clock),
			Description:             truncate(reversalPrefix+original.Description, maxDescription),
			Reference:               &reference,
			Status:                  domain.StatusPosted,
			Source:                  domain.SourceManual,
			ReversedOfTransactionID: &originalID,
			Version:                 1,
			CreatedBy:               userID,
			CreatedAt:               now,
			UpdatedAt:               now,
		}
		for _, entry := range original.Entries {
			reversal.Entries = append(reversal.Entries, domain.JournalEntry{
				ID:            s.genID.Generate(),
				TransactionID: reversal.ID,
				AccountID:     entry.AccountID,
				Debit:         entry.Credit,
				Credit:        entry.Debit,
				Description:   entry.Description,
				CreatedAt:     now,
			})
		}

		if err := s.repo.Insert(ctx, tx, &reversal); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrAlreadyReversed
			}
			return err
		}
		if err := s.repo.InsertEntries(ctx, tx, reversal.Entries); err != nil {
			return err
		}
		return s.bankAccounts.RecomputeBalances(ctx, tx, ledgerID, reversal.AccountIDs())
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.metrics.RecordReversal(ctx)
	s.audit(ctx, ledgerID, "transaction.reverse", &reversal, map[string]any{
		"reversed_of_transaction_id": id.String(),
	})
	return reversal, nil
}

// Validate runs the posting rules against unsaved entries.
func (s *Service) Validate(entries []domain.EntryInput) journal.Result {
	lines := make([]journal.Line, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, journal.Line{
			AccountID: entry.AccountID,
			Debit:     entry.Debit.Round(2),
			Credit:    entry.Credit.Round(2),
		})
	}
	return journal.Validate(lines)
}

func (s *Service) load(ctx context.Context, tx *gorm.DB, ledgerID, id snowflake.ID) (*domain.Transaction, error) {
	t, err := s.repo.FindByID(ctx, tx, ledgerID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrNotFound
	}
	entries, err := s.repo.ListEntries(ctx, tx, []snowflake.ID{id})
	if err != nil {
		return nil, err
	}
	t.Entries = entries[id]
	if t.Entries == nil {
		t.Entries = []domain.JournalEntry{}
	}
	return t, nil
}

func (s *Service) buildEntries(transactionID snowflake.ID, inputs []domain.EntryInput, now time.Time) ([]domain.JournalEntry, error) {
	entries := make([]domain.JournalEntry, 0, len(inputs))
	for _, input := range inputs {
		if input.AccountID == 0 {
			return nil, domain.ErrInvalidAccount
		}
		if input.Debit.IsNegative() || input.Credit.IsNegative() {
			return nil, domain.ErrInvalidEntry
		}
		entries = append(entries, domain.JournalEntry{
			ID:            s.genID.Generate(),
			TransactionID: transactionID,
			AccountID:     input.AccountID,
			Debit:         input.Debit.Round(2),
			Credit:        input.Credit.Round(2),
			Description:   trimmedPtr(input.Description),
			CreatedAt:     now,
		})
	}
	return entries, nil
}

func (s *Service) checkAccounts(ctx context.Context, tx *gorm.DB, ledgerID snowflake.ID, accountIDs []snowflake.ID) error {
	if len(accountIDs) == 0 {
		return nil
	}
	counts, err := s.repo.CountLedgerAccounts(ctx, tx, ledgerID, accountIDs)
	if err != nil {
		return err
	}
	if counts.Total != int64(len(accountIDs)) {
		return domain.ErrInvalidAccount
	}
	if counts.Active != counts.Total {
		return domain.ErrInactiveAccount
	}
	return nil
}

func (s *Service) recordPostFailure(ctx context.Context, err error) {
	var verr *journal.ValidationError
	if errors.As(err, &verr) {
		s.metrics.RecordPostFailure(ctx, string(verr.Code))
		return
	}
	s.metrics.RecordPostFailure(ctx, FailureCode(err))
}

func (s *Service) audit(ctx context.Context, ledgerID snowflake.ID, action string, t *domain.Transaction, extra map[string]any) {
	if s.auditSvc == nil || t == nil {
		return
	}
	metadata := map[string]any{
		"status":      string(t.Status),
		"source":      string(t.Source),
		"version":     t.Version,
		"description": t.Description,
	}
	for key, value := range extra {
		metadata[key] = value
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		LedgerID:   ledgerID,
		Action:     action,
		TargetType: "transaction",
		TargetID:   t.ID,
		Metadata:   metadata,
	})
}

// FailureCode maps a posting error to the code reported in batch summaries.
func FailureCode(err error) string {
	var verr *journal.ValidationError
	var serr *domain.StateError
	switch {
	case errors.As(err, &verr):
		return string(verr.Code)
	case errors.As(err, &serr):
		return "INVALID_STATE"
	case errors.Is(err, domain.ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	}
	return "INTERNAL"
}

type header struct {
	date        time.Time
	description string
	reference   *string
}

func normalizeHeader(date time.Time, description string, reference *string) (header, error) {
	if date.IsZero() {
		return header{}, domain.ErrInvalidDate
	}
	description = strings.TrimSpace(description)
	if description == "" || utf8.RuneCountInString(description) > maxDescription {
		return header{}, domain.ErrInvalidDescription
	}
	ref := trimmedPtr(reference)
	if ref != nil && utf8.RuneCountInString(*ref) > maxReference {
		return header{}, domain.ErrInvalidReference
	}
	return header{date: dateOnly(date), description: description, reference: ref}, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
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

