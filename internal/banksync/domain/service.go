package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ProviderSummary struct {
	ID          snowflake.ID `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Environment string       `json:"environment"`
}

type StartConnectRequest struct {
	BankAccountID  snowflake.ID
	ProviderID     snowflake.ID
	ExternalBankID string
}

type StartConnectResult struct {
	AuthorizationURL string    `json:"authorization_url"`
	StateToken       string    `json:"state_token"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type CompleteConnectRequest struct {
	State string
	Code  string
	// ExternalAccountID picks one of the provider's accounts. Empty takes
	// the first account returned.
	ExternalAccountID string
}

type CompleteConnectResult struct {
	Connection Connection `json:"connection"`
	Sync       *SyncLog   `json:"sync,omitempty"`
}

type UpdateConnectionRequest struct {
	AutoSyncEnabled     *bool
	SyncFrequencyHours  *int
	InitialSyncFromDate *time.Time
}

type SyncDueResult struct {
	Due       int `json:"due"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Service interface {
	ListProviders(ctx context.Context) ([]ProviderSummary, error)
	StartConnect(ctx context.Context, ledgerID, userID snowflake.ID, req StartConnectRequest) (StartConnectResult, error)
	CompleteConnect(ctx context.Context, req CompleteConnectRequest) (CompleteConnectResult, error)

	ListConnections(ctx context.Context, ledgerID snowflake.ID) ([]Connection, error)
	GetConnection(ctx context.Context, ledgerID, id snowflake.ID) (Connection, error)
	UpdateConnection(ctx context.Context, ledgerID, id snowflake.ID, req UpdateConnectionRequest) (Connection, error)
	Disconnect(ctx context.Context, ledgerID, id snowflake.ID) error

	Sync(ctx context.Context, ledgerID, connectionID snowflake.ID, syncType SyncType, triggeredBy *snowflake.ID) (SyncLog, error)
	SyncDue(ctx context.Context, now time.Time) (SyncDueResult, error)

	ListSyncLogs(ctx context.Context, ledgerID, connectionID snowflake.ID) ([]SyncLog, error)
	ListStaged(ctx context.Context, ledgerID, connectionID snowflake.ID, status string) ([]StagedTransaction, error)
	IgnoreStaged(ctx context.Context, ledgerID, connectionID, stagedID snowflake.ID) (StagedTransaction, error)
}
