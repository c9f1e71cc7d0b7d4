package service

import (
	"context"
	"errors"
	"strings"
	"time"

	auditdomain "github.com/anoteng/regnskap/internal/audit/domain"
	bankaccountdomain "github.com/anoteng/regnskap/internal/bankaccount/domain"
	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/banksync/sealer"
	"github.com/anoteng/regnskap/internal/clock"
	"github.com/anoteng/regnskap/internal/config"
	obsmetrics "github.com/anoteng/regnskap/internal/observability/metrics"
	transactiondomain "github.com/anoteng/regnskap/internal/transaction/domain"
	"github.com/anoteng/regnskap/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	maxSyncLogs    = 50
	maxStagedRows  = 500
	defaultLockTTL = 5 * time.Minute
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Cfg          config.Config
	Settings     *config.EngineSettingsHolder
	Repo         domain.Repository
	Clients      domain.ClientResolver
	Sealer       *sealer.Sealer
	Transactions transactiondomain.Repository
	BankAccounts bankaccountdomain.Repository
	Locker       domain.Locker       `optional:"true"`
	AuditSvc     auditdomain.Service `optional:"true"`
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          config.BankSyncConfig
	settings     *config.EngineSettingsHolder
	repo         domain.Repository
	clients      domain.ClientResolver
	sealer       *sealer.Sealer
	transactions transactiondomain.Repository
	bankAccounts bankaccountdomain.Repository
	locker       domain.Locker
	auditSvc     auditdomain.Service
	metrics      *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("banksync.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Cfg.BankSync,
		settings:     p.Settings,
		repo:         p.Repo,
		clients:      p.Clients,
		sealer:       p.Sealer,
		transactions: p.Transactions,
		bankAccounts: p.BankAccounts,
		locker:       p.Locker,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) ListProviders(ctx context.Context) ([]domain.ProviderSummary, error) {
	items, err := s.repo.ListProviders(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	result := make([]domain.ProviderSummary, 0, len(items))
	for _, item := range items {
		result = append(result, domain.ProviderSummary{
			ID:          item.ID,
			Name:        item.Name,
			DisplayName: item.DisplayName,
			Environment: item.Environment,
		})
	}
	return result, nil
}

func (s *Service) StartConnect(ctx context.Context, ledgerID, userID snowflake.ID, req domain.StartConnectRequest) (domain.StartConnectResult, error) {
	if ledgerID == 0 {
		return domain.StartConnectResult{}, domain.ErrInvalidLedger
	}
	if userID == 0 {
		return domain.StartConnectResult{}, domain.ErrInvalidUser
	}
	if req.BankAccountID == 0 || req.ProviderID == 0 {
		return domain.StartConnectResult{}, domain.ErrInvalidID
	}

	bank, err := s.bankAccounts.FindByID(ctx, s.db, ledgerID, req.BankAccountID)
	if err != nil {
		return domain.StartConnectResult{}, err
	}
	if bank == nil {
		return domain.StartConnectResult{}, bankaccountdomain.ErrNotFound
	}
	if !bank.IsActive {
		return domain.StartConnectResult{}, bankaccountdomain.ErrInactive
	}

	provider, client, err := s.client(ctx, req.ProviderID)
	if err != nil {
		return domain.StartConnectResult{}, err
	}

	now := s.clock.Now()
	state := domain.OAuthState{
		ID:            s.genID.Generate(),
		StateToken:    uuid.NewString(),
		UserID:        userID,
		LedgerID:      ledgerID,
		BankAccountID: bank.ID,
		ProviderID:    provider.ID,
		ExpiresAt:     now.Add(domain.OAuthStateTTL),
		CreatedAt:     now,
	}
	if bankID := strings.TrimSpace(req.ExternalBankID); bankID != "" {
		state.ExternalBankID = &bankID
	}

	authURL, err := client.AuthorizationURL(state.StateToken, s.cfg.RedirectURL, req.ExternalBankID)
	if err != nil {
		return domain.StartConnectResult{}, err
	}
	if err := s.repo.InsertState(ctx, s.db, &state); err != nil {
		return domain.StartConnectResult{}, err
	}

	return domain.StartConnectResult{
		AuthorizationURL: authURL,
		StateToken:       state.StateToken,
		ExpiresAt:        state.ExpiresAt,
	}, nil
}

func (s *Service) CompleteConnect(ctx context.Context, req domain.CompleteConnectRequest) (domain.CompleteConnectResult, error) {
	token := strings.TrimSpace(req.State)
	if token == "" || strings.TrimSpace(req.Code) == "" {
		return domain.CompleteConnectResult{}, domain.ErrInvalidState
	}

	state, err := s.repo.FindState(ctx, s.db, token)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	if state == nil {
		return domain.CompleteConnectResult{}, domain.ErrInvalidState
	}
	now := s.clock.Now()
	if state.UsedAt != nil {
		return domain.CompleteConnectResult{}, domain.ErrStateUsed
	}
	if !state.ExpiresAt.After(now) {
		return domain.CompleteConnectResult{}, domain.ErrStateExpired
	}
	consumed, err := s.repo.ConsumeState(ctx, s.db, state.ID, now)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	if !consumed {
		return domain.CompleteConnectResult{}, domain.ErrStateUsed
	}

	provider, client, err := s.client(ctx, state.ProviderID)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}

	oauthToken, err := client.ExchangeCode(ctx, strings.TrimSpace(req.Code), s.cfg.RedirectURL)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	accounts, err := client.ListAccounts(ctx, oauthToken.AccessToken)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	account, err := pickAccount(accounts, req.ExternalAccountID)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}

	accessToken, err := s.sealer.Seal(oauthToken.AccessToken)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	refreshToken, err := s.sealer.SealOptional(oauthToken.RefreshToken)
	if err != nil {
		return domain.CompleteConnectResult{}, err
	}
	expiresAt := tokenExpiry(oauthToken, now)

	conn := domain.Connection{
		ID:                 s.genID.Generate(),
		LedgerID:           state.LedgerID,
		BankAccountID:      state.BankAccountID,
		ProviderID:         provider.ID,
		ExternalBankID:     state.ExternalBankID,
		ExternalAccountID:  account.ID,
		AccessToken:        &accessToken,
		RefreshToken:       refreshToken,
		TokenExpiresAt:     &expiresAt,
		Status:             domain.ConnectionActive,
		AutoSyncEnabled:    true,
		SyncFrequencyHours: domain.DefaultSyncFrequencyHours,
		CreatedBy:          state.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if account.Name != "" {
		name := account.Name
		conn.ExternalAccountName = &name
	}
	if account.IBAN != "" {
		iban := account.IBAN
		conn.IBAN = &iban
	}

	if err := s.repo.InsertConnection(ctx, s.db, &conn); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.CompleteConnectResult{}, domain.ErrConnectionExists
		}
		return domain.CompleteConnectResult{}, err
	}
	s.audit(ctx, conn.LedgerID, "bank_connection.connect", conn.ID, map[string]any{
		"provider":        provider.Name,
		"bank_account_id": conn.BankAccountID.String(),
	})

	result := domain.CompleteConnectResult{Connection: conn}
	userID := state.UserID
	syncLog, err := s.Sync(ctx, conn.LedgerID, conn.ID, domain.SyncOAuthConnect, &userID)
	if err != nil {
		s.log.Warn("initial sync failed",
			zap.String("connection_id", conn.ID.String()),
			zap.Error(err),
		)
	}
	if syncLog.ID != 0 {
		result.Sync = &syncLog
	}
	if refreshed, err := s.repo.FindConnection(ctx, s.db, conn.LedgerID, conn.ID); err == nil && refreshed != nil {
		result.Connection = *refreshed
	}
	return result, nil
}

func pickAccount(accounts []domain.ExternalAccount, externalAccountID string) (domain.ExternalAccount, error) {
	if len(accounts) == 0 {
		return domain.ExternalAccount{}, domain.ErrNoExternalAccounts
	}
	externalAccountID = strings.TrimSpace(externalAccountID)
	if externalAccountID == "" {
		return accounts[0], nil
	}
	for _, account := range accounts {
		if account.ID == externalAccountID {
			return account, nil
		}
	}
	return domain.ExternalAccount{}, domain.ErrExternalAccountUnknown
}

func tokenExpiry(token *oauth2.Token, now time.Time) time.Time {
	if token.Expiry.IsZero() {
		return now.Add(time.Hour)
	}
	return token.Expiry.UTC()
}

func (s *Service) ListConnections(ctx context.Context, ledgerID snowflake.ID) ([]domain.Connection, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}
	items, err := s.repo.ListConnections(ctx, s.db, ledgerID)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Connection, 0, len(items))
	for _, item := range items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *Service) GetConnection(ctx context.Context, ledgerID, id snowflake.ID) (domain.Connection, error) {
	conn, err := s.connection(ctx, ledgerID, id)
	if err != nil {
		return domain.Connection{}, err
	}
	return *conn, nil
}

func (s *Service) UpdateConnection(ctx context.Context, ledgerID, id snowflake.ID, req domain.UpdateConnectionRequest) (domain.Connection, error) {
	conn, err := s.connection(ctx, ledgerID, id)
	if err != nil {
		return domain.Connection{}, err
	}
	if conn.Status == domain.ConnectionDisconnected {
		return domain.Connection{}, domain.ErrConnectionDisconnected
	}

	if req.AutoSyncEnabled != nil {
		conn.AutoSyncEnabled = *req.AutoSyncEnabled
	}
	if req.SyncFrequencyHours != nil {
		hours := *req.SyncFrequencyHours
		if hours < 1 || hours > domain.MaxSyncFrequencyHours {
			return domain.Connection{}, domain.ErrInvalidFrequency
		}
		conn.SyncFrequencyHours = hours
	}
	if req.InitialSyncFromDate != nil {
		from := dateOnly(*req.InitialSyncFromDate)
		conn.InitialSyncFromDate = &from
	}
	conn.UpdatedAt = s.clock.Now()

	updated, err := s.repo.UpdateSettings(ctx, s.db, conn)
	if err != nil {
		return domain.Connection{}, err
	}
	if !updated {
		return domain.Connection{}, domain.ErrNotFound
	}
	s.audit(ctx, ledgerID, "bank_connection.update", conn.ID, map[string]any{
		"auto_sync_enabled":    conn.AutoSyncEnabled,
		"sync_frequency_hours": conn.SyncFrequencyHours,
	})
	return *conn, nil
}

// Disconnect revokes on a best-effort basis; the connection is disconnected
// even when the provider call fails.
func (s *Service) Disconnect(ctx context.Context, ledgerID, id snowflake.ID) error {
	conn, err := s.connection(ctx, ledgerID, id)
	if err != nil {
		return err
	}
	if conn.Status == domain.ConnectionDisconnected {
		return nil
	}

	if err := s.revoke(ctx, conn); err != nil {
		s.log.Warn("token revocation failed",
			zap.String("connection_id", conn.ID.String()),
			zap.Error(err),
		)
	}

	ok, err := s.repo.Disconnect(ctx, s.db, ledgerID, id, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotFound
	}
	s.audit(ctx, ledgerID, "bank_connection.disconnect", conn.ID, nil)
	return nil
}

func (s *Service) revoke(ctx context.Context, conn *domain.Connection) error {
	if conn.AccessToken == nil {
		return nil
	}
	_, client, err := s.client(ctx, conn.ProviderID)
	if err != nil {
		return err
	}
	accessToken, err := s.sealer.Open(*conn.AccessToken)
	if err != nil {
		return err
	}
	return client.Revoke(ctx, accessToken)
}

func (s *Service) ListSyncLogs(ctx context.Context, ledgerID, connectionID snowflake.ID) ([]domain.SyncLog, error) {
	if _, err := s.connection(ctx, ledgerID, connectionID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListSyncLogs(ctx, s.db, connectionID, maxSyncLogs)
	if err != nil {
		return nil, err
	}
	result := make([]domain.SyncLog, 0, len(items))
	for _, item := range items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *Service) ListStaged(ctx context.Context, ledgerID, connectionID snowflake.ID, status string) ([]domain.StagedTransaction, error) {
	if _, err := s.connection(ctx, ledgerID, connectionID); err != nil {
		return nil, err
	}
	var filter *domain.ImportStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := domain.ParseImportStatus(status)
		if err != nil {
			return nil, err
		}
		filter = &parsed
	}
	items, err := s.repo.ListStaged(ctx, s.db, connectionID, filter, maxStagedRows)
	if err != nil {
		return nil, err
	}
	result := make([]domain.StagedTransaction, 0, len(items))
	for _, item := range items {
		result = append(result, *item)
	}
	return result, nil
}

func (s *Service) IgnoreStaged(ctx context.Context, ledgerID, connectionID, stagedID snowflake.ID) (domain.StagedTransaction, error) {
	if _, err := s.connection(ctx, ledgerID, connectionID); err != nil {
		return domain.StagedTransaction{}, err
	}
	if stagedID == 0 {
		return domain.StagedTransaction{}, domain.ErrInvalidID
	}
	staged, err := s.repo.FindStaged(ctx, s.db, connectionID, stagedID)
	if err != nil {
		return domain.StagedTransaction{}, err
	}
	if staged == nil {
		return domain.StagedTransaction{}, domain.ErrNotFound
	}

	ok, err := s.repo.SetStagedStatus(ctx, s.db, stagedID,
		[]domain.ImportStatus{domain.ImportPending, domain.ImportDuplicate},
		domain.ImportIgnored, nil)
	if err != nil {
		return domain.StagedTransaction{}, err
	}
	if !ok {
		return domain.StagedTransaction{}, domain.ErrStagedNotIgnorable
	}
	staged.ImportStatus = domain.ImportIgnored
	staged.ImportedTransactionID = nil
	return *staged, nil
}

func (s *Service) connection(ctx context.Context, ledgerID, id snowflake.ID) (*domain.Connection, error) {
	if ledgerID == 0 {
		return nil, domain.ErrInvalidLedger
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}
	conn, err := s.repo.FindConnection(ctx, s.db, ledgerID, id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrNotFound
	}
	return conn, nil
}

func (s *Service) client(ctx context.Context, providerID snowflake.ID) (*domain.Provider, domain.Client, error) {
	provider, err := s.repo.FindProvider(ctx, s.db, providerID)
	if err != nil {
		return nil, nil, err
	}
	if provider == nil {
		return nil, nil, domain.ErrProviderNotFound
	}
	client, err := s.clients.Client(*provider)
	if err != nil {
		return nil, nil, err
	}
	return provider, client, nil
}

func (s *Service) audit(ctx context.Context, ledgerID snowflake.ID, action string, connectionID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		LedgerID:   ledgerID,
		Action:     action,
		TargetType: "bank_connection",
		TargetID:   connectionID,
		Metadata:   metadata,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
