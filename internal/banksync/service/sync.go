package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/dedup"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/telemetry/correlation"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultCurrency    = "NOK"
	defaultDescription = "Bank transaction"
	maxDescription     = 500
	maxReference       = 100
)

// run carries the state of one sync attempt.
type run struct {
	conn     *domain.Connection
	bank     *bankaccountdomain.Linked
	provider *domain.Provider
	log      domain.SyncLog
	logger   *zap.Logger
	errors   []string
}

func (r *run) fail(reason string) {
	r.log.TransactionsFailed++
	r.errors = append(r.errors, reason)
}

// Sync fetches the connection's window from the provider and stages every
// row. New rows become drafts unless they already exist in the ledger.
func (s *Service) Sync(ctx context.Context, ledgerID, connectionID snowflake.ID, syncType domain.SyncType, triggeredBy *snowflake.ID) (domain.SyncLog, error) {
	if syncType == "" {
		syncType = domain.SyncManual
	}
	conn, err := s.connection(ctx, ledgerID, connectionID)
	if err != nil {
		return domain.SyncLog{}, err
	}
	if conn.Status == domain.ConnectionDisconnected {
		return domain.SyncLog{}, domain.ErrConnectionDisconnected
	}
	bank, err := s.bankAccounts.FindByID(ctx, s.db, ledgerID, conn.BankAccountID)
	if err != nil {
		return domain.SyncLog{}, err
	}
	if bank == nil {
		return domain.SyncLog{}, bankaccountdomain.ErrNotFound
	}
	provider, err := s.repo.FindProvider(ctx, s.db, conn.ProviderID)
	if err != nil {
		return domain.SyncLog{}, err
	}
	if provider == nil {
		return domain.SyncLog{}, domain.ErrProviderNotFound
	}

	started := s.clock.Now()
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	r := &run{
		conn:     conn,
		bank:     bank,
		provider: provider,
		log: domain.SyncLog{
			ID:               s.genID.Generate(),
			BankConnectionID: conn.ID,
			SyncType:         syncType,
			CorrelationID:    correlationID,
			StartedAt:        started,
			TriggeredBy:      triggeredBy,
		},
		logger: s.log.With(
			zap.String("correlation_id", correlationID),
			zap.String("connection_id", conn.ID.String()),
			zap.String("ledger_id", ledgerID.String()),
			zap.String("sync_type", string(syncType)),
		),
	}

	client, err := s.clients.Client(*provider)
	if err != nil {
		return s.abort(ctx, r, &domain.SyncError{Code: domain.SyncCodeProvider, Message: err.Error(), Err: err})
	}

	accessToken, syncErr := s.accessToken(ctx, r, client)
	if syncErr != nil {
		return s.abort(ctx, r, syncErr)
	}

	from, to := s.window(conn)
	r.log.SyncFromDate = &from
	r.log.SyncToDate = &to

	rows, err := client.ListTransactions(ctx, accessToken, conn.ExternalAccountID, from, to)
	if err != nil {
		return s.abort(ctx, r, &domain.SyncError{
			Code:      domain.SyncCodeFetchFailed,
			Message:   err.Error(),
			Permanent: domain.IsPermanent(err),
			Err:       err,
		})
	}
	r.log.TransactionsFetched = len(rows)

	for _, row := range rows {
		outcome, err := s.stageRow(ctx, r, row)
		if err != nil {
			r.logger.Warn("bank row failed",
				zap.String("external_transaction_id", row.ExternalID),
				zap.Error(err),
			)
			r.fail(fmt.Sprintf("%s: %v", row.ExternalID, err))
			continue
		}
		r.count(outcome)
	}

	if err := s.reevaluatePending(ctx, r); err != nil {
		r.logger.Warn("pending re-evaluation failed", zap.Error(err))
		r.fail(err.Error())
	}

	return s.complete(ctx, r)
}

func (r *run) count(outcome domain.ImportStatus) {
	switch outcome {
	case domain.ImportImported:
		r.log.TransactionsImported++
	case domain.ImportDuplicate:
		r.log.TransactionsDuplicate++
	}
}

// accessToken opens the stored token and refreshes it when it has expired.
func (s *Service) accessToken(ctx context.Context, r *run, client domain.Client) (string, *domain.SyncError) {
	conn := r.conn
	if conn.AccessToken == nil {
		return "", &domain.SyncError{Code: domain.SyncCodeTokenExpired, Message: domain.ErrTokenUnavailable.Error(), Permanent: true, Err: domain.ErrTokenUnavailable}
	}

	now := s.clock.Now()
	if conn.TokenExpiresAt == nil || conn.TokenExpiresAt.After(now) {
		token, err := s.sealer.Open(*conn.AccessToken)
		if err != nil {
			return "", &domain.SyncError{Code: domain.SyncCodeTokenExpired, Message: err.Error(), Permanent: true, Err: err}
		}
		return token, nil
	}

	if conn.RefreshToken == nil {
		return "", &domain.SyncError{Code: domain.SyncCodeTokenExpired, Message: "access token expired and no refresh token is stored", Permanent: true, Err: domain.ErrTokenUnavailable}
	}
	refreshToken, err := s.sealer.Open(*conn.RefreshToken)
	if err != nil {
		return "", &domain.SyncError{Code: domain.SyncCodeTokenExpired, Message: err.Error(), Permanent: true, Err: err}
	}

	token, err := client.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", &domain.SyncError{
			Code:      domain.SyncCodeRefreshFailed,
			Message:   err.Error(),
			Permanent: domain.IsPermanent(err),
			Err:       err,
		}
	}

	sealedAccess, err := s.sealer.Seal(token.AccessToken)
	if err != nil {
		return "", &domain.SyncError{Code: domain.SyncCodeRefreshFailed, Message: err.Error(), Err: err}
	}
	sealedRefresh := conn.RefreshToken
	if token.RefreshToken != "" {
		sealed, err := s.sealer.Seal(token.RefreshToken)
		if err != nil {
			return "", &domain.SyncError{Code: domain.SyncCodeRefreshFailed, Message: err.Error(), Err: err}
		}
		sealedRefresh = &sealed
	}
	expiresAt := tokenExpiry(token, now)
	if err := s.repo.UpdateTokens(ctx, s.db, conn.ID, &sealedAccess, sealedRefresh, &expiresAt, now); err != nil {
		return "", &domain.SyncError{Code: domain.SyncCodeRefreshFailed, Message: err.Error(), Err: err}
	}
	conn.AccessToken = &sealedAccess
	conn.RefreshToken = sealedRefresh
	conn.TokenExpiresAt = &expiresAt
	r.logger.Info("access token refreshed")
	return token.AccessToken, nil
}

// window starts at the last successful sync, then the configured initial
// date, then InitialSyncDays back. It ends today.
func (s *Service) window(conn *domain.Connection) (time.Time, time.Time) {
	today := clock.Today(s.clock)
	var from time.Time
	switch {
	case conn.LastSuccessfulSyncAt != nil:
		from = dateOnly(*conn.LastSuccessfulSyncAt)
	case conn.InitialSyncFromDate != nil:
		from = dateOnly(*conn.InitialSyncFromDate)
	default:
		days := s.cfg.InitialSyncDays
		if days <= 0 {
			days = 90
		}
		from = today.AddDate(0, 0, -days)
	}
	if from.After(today) {
		from = today
	}
	return from, today
}

func (s *Service) stageRow(ctx context.Context, r *run, row domain.ExternalTransaction) (domain.ImportStatus, error) {
	externalID := strings.TrimSpace(row.ExternalID)
	if externalID == "" {
		return "", errors.New("missing external transaction id")
	}
	if row.Date.IsZero() {
		return "", errors.New("missing transaction date")
	}

	amount := row.Amount.Round(2)
	date := dateOnly(row.Date)
	staged := domain.StagedTransaction{
		ID:                    s.genID.Generate(),
		BankConnectionID:      r.conn.ID,
		ExternalTransactionID: externalID,
		TransactionDate:       date,
		BookingDate:           dateOnlyPtr(row.BookingDate),
		ValueDate:             dateOnlyPtr(row.ValueDate),
		Amount:                amount,
		Currency:              defaultCurrency,
		Description:           optional(row.Description),
		Reference:             optional(row.Reference),
		MerchantName:          optional(row.MerchantName),
		MerchantCategory:      optional(row.MerchantCategory),
		DedupHash:             dedup.Hash(date, amount, row.Description, row.Reference),
		ImportStatus:          domain.ImportPending,
		FetchedAt:             s.clock.Now(),
	}
	if currency := strings.ToUpper(strings.TrimSpace(row.Currency)); currency != "" {
		staged.Currency = currency
	}
	if len(row.Raw) > 0 {
		staged.RawData = datatypes.JSON(row.Raw)
	}

	var outcome domain.ImportStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertStaged(ctx, tx, &staged)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := s.repo.FindStagedByExternalID(ctx, tx, r.conn.ID, externalID)
			if err != nil {
				return err
			}
			// PENDING rows are settled and counted by reevaluatePending.
			if existing == nil || existing.ImportStatus != domain.ImportPending {
				outcome = domain.ImportDuplicate
			}
			return nil
		}
		outcome, err = s.evaluate(ctx, tx, r, &staged)
		return err
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// reevaluatePending retries rows a previous run left PENDING.
func (s *Service) reevaluatePending(ctx context.Context, r *run) error {
	pending := domain.ImportPending
	items, err := s.repo.ListStaged(ctx, s.db, r.conn.ID, &pending, 0)
	if err != nil {
		return err
	}
	for _, item := range items {
		var outcome domain.ImportStatus
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			outcome, err = s.evaluate(ctx, tx, r, item)
			return err
		})
		if err != nil {
			r.fail(fmt.Sprintf("%s: %v", item.ExternalTransactionID, err))
			continue
		}
		r.count(outcome)
	}
	return nil
}

// evaluate settles a PENDING staged row. It returns "" when another writer
// moved the row first.
func (s *Service) evaluate(ctx context.Context, tx *gorm.DB, r *run, staged *domain.StagedTransaction) (domain.ImportStatus, error) {
	pending := []domain.ImportStatus{domain.ImportPending}

	if staged.Amount.IsZero() {
		return s.settle(ctx, tx, staged, pending, domain.ImportIgnored, nil)
	}

	existing, err := s.repo.FindStagedByHash(ctx, tx, r.conn.ID, staged.DedupHash, staged.ID,
		[]domain.ImportStatus{domain.ImportImported, domain.ImportDuplicate})
	if err != nil {
		return "", err
	}
	if existing != nil {
		return s.settle(ctx, tx, staged, pending, domain.ImportDuplicate, existing.ImportedTransactionID)
	}

	matchID, err := s.ledgerMatch(ctx, tx, r, staged)
	if err != nil {
		return "", err
	}
	if matchID != 0 {
		return s.settle(ctx, tx, staged, pending, domain.ImportDuplicate, &matchID)
	}

	txID, err := s.createDraft(ctx, tx, r, staged)
	if err != nil {
		return "", err
	}
	return s.settle(ctx, tx, staged, pending, domain.ImportImported, &txID)
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, staged *domain.StagedTransaction, from []domain.ImportStatus, to domain.ImportStatus, transactionID *snowflake.ID) (domain.ImportStatus, error) {
	ok, err := s.repo.SetStagedStatus(ctx, tx, staged.ID, from, to, transactionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	staged.ImportStatus = to
	staged.ImportedTransactionID = transactionID
	return to, nil
}

// ledgerMatch looks for an entry on the bank's GL account with the same
// amount inside the dedup window whose fingerprint equals the staged row's.
func (s *Service) ledgerMatch(ctx context.Context, tx *gorm.DB, r *run, staged *domain.StagedTransaction) (snowflake.ID, error) {
	from, to := dedup.Window(staged.TransactionDate, s.settings.Get().DedupWindowDays)
	candidates, err := s.transactions.FindEntryMatches(ctx, tx, r.conn.LedgerID, r.bank.AccountID, from, to, staged.Amount)
	if err != nil {
		return 0, err
	}
	for _, candidate := range candidates {
		reference := ""
		if candidate.Reference != nil {
			reference = *candidate.Reference
		}
		if dedup.Hash(candidate.TransactionDate, staged.Amount, candidate.Description, reference) == staged.DedupHash {
			return candidate.TransactionID, nil
		}
	}
	return 0, nil
}

func (s *Service) createDraft(ctx context.Context, tx *gorm.DB, r *run, staged *domain.StagedTransaction) (snowflake.ID, error) {
	now := s.clock.Now()
	description := defaultDescription
	if staged.Description != nil && strings.TrimSpace(*staged.Description) != "" {
		description = truncate(strings.TrimSpace(*staged.Description), maxDescription)
	}
	var reference *string
	if staged.Reference != nil {
		ref := truncate(strings.TrimSpace(*staged.Reference), maxReference)
		reference = &ref
	}
	externalID := staged.ExternalTransactionID
	createdBy := r.conn.CreatedBy
	if r.log.TriggeredBy != nil {
		createdBy = *r.log.TriggeredBy
	}

	draft := transactiondomain.Transaction{
		ID:              s.genID.Generate(),
		LedgerID:        r.conn.LedgerID,
		TransactionDate: staged.TransactionDate,
		Description:     description,
		Reference:       reference,
		Status:          transactiondomain.StatusDraft,
		Source:          transactiondomain.SourceBankSync,
		SourceReference: &externalID,
		Version:         1,
		CreatedBy:       createdBy,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	debit, credit := bankaccountdomain.SplitAmount(r.bank.GLAccountType, staged.Amount)
	entry := transactiondomain.JournalEntry{
		ID:            s.genID.Generate(),
		TransactionID: draft.ID,
		AccountID:     r.bank.AccountID,
		Debit:         debit,
		Credit:        credit,
		Description:   &description,
		CreatedAt:     now,
	}

	if err := s.transactions.Insert(ctx, tx, &draft); err != nil {
		return 0, err
	}
	if err := s.transactions.InsertEntries(ctx, tx, []transactiondomain.JournalEntry{entry}); err != nil {
		return 0, err
	}
	return draft.ID, nil
}

// abort records a run that stopped before staging any row.
func (s *Service) abort(ctx context.Context, r *run, syncErr *domain.SyncError) (domain.SyncLog, error) {
	now := s.clock.Now()
	code := syncErr.Code
	message := syncErr.Message
	r.log.SyncStatus = domain.SyncFailed
	r.log.ErrorCode = &code
	r.log.ErrorMessage = &message
	r.log.CompletedAt = &now
	r.log.DurationMS = now.Sub(r.log.StartedAt).Milliseconds()

	r.conn.Status = domain.ConnectionError
	if syncErr.Permanent {
		r.conn.Status = domain.ConnectionExpired
	}
	r.conn.ConnectionError = &message
	r.conn.LastSyncAt = &now
	r.conn.UpdatedAt = now

	s.persist(ctx, r)
	r.logger.Warn("bank sync failed",
		zap.String("error_code", code),
		zap.Bool("permanent", syncErr.Permanent),
		zap.Error(syncErr),
	)
	return r.log, syncErr
}

func (s *Service) complete(ctx context.Context, r *run) (domain.SyncLog, error) {
	now := s.clock.Now()
	r.log.SyncStatus = domain.SyncSuccess
	if r.log.TransactionsFailed > 0 {
		r.log.SyncStatus = domain.SyncPartial
		message := fmt.Sprintf("%d rows failed: %s", r.log.TransactionsFailed, r.errors[0])
		r.log.ErrorMessage = &message
	}
	r.log.CompletedAt = &now
	r.log.DurationMS = now.Sub(r.log.StartedAt).Milliseconds()

	r.conn.Status = domain.ConnectionActive
	r.conn.ConnectionError = nil
	r.conn.LastSyncAt = &now
	r.conn.LastSuccessfulSyncAt = &now
	r.conn.UpdatedAt = now

	s.persist(ctx, r)
	s.metrics.RecordSyncRows(ctx, r.provider.Name, string(domain.ImportImported), r.log.TransactionsImported)
	s.metrics.RecordSyncRows(ctx, r.provider.Name, string(domain.ImportDuplicate), r.log.TransactionsDuplicate)
	s.metrics.RecordSyncRows(ctx, r.provider.Name, "FAILED", r.log.TransactionsFailed)
	r.logger.Info("bank sync completed",
		zap.String("status", string(r.log.SyncStatus)),
		zap.Int("fetched", r.log.TransactionsFetched),
		zap.Int("imported", r.log.TransactionsImported),
		zap.Int("duplicate", r.log.TransactionsDuplicate),
		zap.Int("failed", r.log.TransactionsFailed),
		zap.Int64("duration_ms", r.log.DurationMS),
	)
	return r.log, nil
}

func (s *Service) persist(ctx context.Context, r *run) {
	if err := s.repo.UpdateSyncOutcome(ctx, s.db, r.conn); err != nil {
		r.logger.Error("update connection after sync", zap.Error(err))
	}
	if err := s.repo.InsertSyncLog(ctx, s.db, &r.log); err != nil {
		r.logger.Error("write sync log", zap.Error(err))
	}
	s.metrics.RecordSyncRun(ctx, r.provider.Name, string(r.log.SyncType), string(r.log.SyncStatus))
}

// SyncDue runs every auto-sync connection whose frequency has elapsed. A
// connection locked by another worker is skipped.
func (s *Service) SyncDue(ctx context.Context, now time.Time) (domain.SyncDueResult, error) {
	var result domain.SyncDueResult
	items, err := s.repo.ListAutoSyncConnections(ctx, s.db)
	if err != nil {
		return result, err
	}

	ttl := s.cfg.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	for _, conn := range items {
		if !conn.Due(now) {
			continue
		}
		result.Due++
		if ctx.Err() != nil {
			result.Skipped++
			continue
		}

		key := "banksync:connection:" + conn.ID.String()
		token := ""
		if s.locker != nil {
			var ok bool
			token, ok, err = s.locker.TryLock(ctx, key, ttl)
			if err != nil {
				s.log.Warn("sync lock failed", zap.String("connection_id", conn.ID.String()), zap.Error(err))
				result.Skipped++
				continue
			}
			if !ok {
				result.Skipped++
				continue
			}
		}

		_, err := s.Sync(ctx, conn.LedgerID, conn.ID, domain.SyncAuto, nil)
		if s.locker != nil {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), key, token); releaseErr != nil {
				s.log.Warn("sync lock release failed", zap.String("connection_id", conn.ID.String()), zap.Error(releaseErr))
			}
		}
		if err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := dateOnly(*t)
	return &d
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) > limit {
		return string(runes[:limit])
	}
	return value
}
