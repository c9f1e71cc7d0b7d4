package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListProviders(ctx context.Context, db *gorm.DB, activeOnly bool) ([]*Provider, error)
	FindProvider(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Provider, error)
	FindProviderByName(ctx context.Context, db *gorm.DB, name string) (*Provider, error)
	UpsertProvider(ctx context.Context, db *gorm.DB, provider *Provider) error

	InsertConnection(ctx context.Context, db *gorm.DB, conn *Connection) error
	FindConnection(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID) (*Connection, error)
	ListConnections(ctx context.Context, db *gorm.DB, ledgerID snowflake.ID) ([]*Connection, error)
	ListAutoSyncConnections(ctx context.Context, db *gorm.DB) ([]*Connection, error)
	UpdateSettings(ctx context.Context, db *gorm.DB, conn *Connection) (bool, error)
	UpdateTokens(ctx context.Context, db *gorm.DB, id snowflake.ID, accessToken, refreshToken *string, expiresAt *time.Time, now time.Time) error
	UpdateSyncOutcome(ctx context.Context, db *gorm.DB, conn *Connection) error
	Disconnect(ctx context.Context, db *gorm.DB, ledgerID, id snowflake.ID, now time.Time) (bool, error)

	InsertState(ctx context.Context, db *gorm.DB, state *OAuthState) error
	FindState(ctx context.Context, db *gorm.DB, token string) (*OAuthState, error)
	ConsumeState(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// InsertStaged reports false when the (connection, external id) pair is
	// already staged.
	InsertStaged(ctx context.Context, db *gorm.DB, row *StagedTransaction) (bool, error)
	FindStaged(ctx context.Context, db *gorm.DB, connectionID, id snowflake.ID) (*StagedTransaction, error)
	FindStagedByExternalID(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, externalID string) (*StagedTransaction, error)
	FindStagedByHash(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, hash string, excludeID snowflake.ID, statuses []ImportStatus) (*StagedTransaction, error)
	ListStaged(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, status *ImportStatus, limit int) ([]*StagedTransaction, error)
	SetStagedStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []ImportStatus, to ImportStatus, importedTransactionID *snowflake.ID) (bool, error)

	InsertSyncLog(ctx context.Context, db *gorm.DB, log *SyncLog) error
	ListSyncLogs(ctx context.Context, db *gorm.DB, connectionID snowflake.ID, limit int) ([]*SyncLog, error)
}
