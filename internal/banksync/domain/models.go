package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ConnectionStatus string

const (
	ConnectionActive       ConnectionStatus = "ACTIVE"
	ConnectionExpired      ConnectionStatus = "EXPIRED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

type ImportStatus string

const (
	ImportPending   ImportStatus = "PENDING"
	ImportImported  ImportStatus = "IMPORTED"
	ImportDuplicate ImportStatus = "DUPLICATE"
	ImportIgnored   ImportStatus = "IGNORED"
)

func ParseImportStatus(value string) (ImportStatus, error) {
	switch ImportStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case ImportPending:
		return ImportPending, nil
	case ImportImported:
		return ImportImported, nil
	case ImportDuplicate:
		return ImportDuplicate, nil
	case ImportIgnored:
		return ImportIgnored, nil
	}
	return "", ErrInvalidImportStatus
}

type SyncType string

const (
	SyncManual       SyncType = "MANUAL"
	SyncAuto         SyncType = "AUTO"
	SyncOAuthConnect SyncType = "OAUTH_CONNECT"
)

func ParseSyncType(value string) (SyncType, error) {
	switch SyncType(strings.ToUpper(strings.TrimSpace(value))) {
	case "", SyncManual:
		return SyncManual, nil
	case SyncAuto:
		return SyncAuto, nil
	case SyncOAuthConnect:
		return SyncOAuthConnect, nil
	}
	return "", ErrInvalidSyncType
}

type SyncStatus string

const (
	SyncSuccess SyncStatus = "SUCCESS"
	SyncPartial SyncStatus = "PARTIAL"
	SyncFailed  SyncStatus = "FAILED"
)

// Provider is a configured bank aggregation provider. ConfigData holds the
// provider specific settings (app id, api key, certificate paths).
type Provider struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name             string            `gorm:"size:50;not null;uniqueIndex:ux_bank_providers_name" json:"name"`
	DisplayName      string            `gorm:"size:100;not null" json:"display_name"`
	Environment      string            `gorm:"size:20;not null" json:"environment"`
	IsActive         bool              `gorm:"not null" json:"is_active"`
	ConfigData       datatypes.JSONMap `json:"-"`
	AuthorizationURL *string           `gorm:"size:500" json:"-"`
	TokenURL         *string           `gorm:"size:500" json:"-"`
	APIBaseURL       *string           `gorm:"column:api_base_url;size:500" json:"-"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Provider) TableName() string { return "bank_providers" }

// ConfigString returns a string setting from ConfigData, or "".
func (p Provider) ConfigString(key string) string {
	if p.ConfigData == nil {
		return ""
	}
	value, ok := p.ConfigData[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

type Connection struct {
	ID                   snowflake.ID     `gorm:"primaryKey" json:"id"`
	LedgerID             snowflake.ID     `gorm:"not null;index" json:"ledger_id"`
	BankAccountID        snowflake.ID     `gorm:"not null" json:"bank_account_id"`
	ProviderID           snowflake.ID     `gorm:"not null;uniqueIndex:ux_bank_connections_external,priority:1" json:"provider_id"`
	ExternalBankID       *string          `gorm:"size:100" json:"external_bank_id,omitempty"`
	ExternalAccountID    string           `gorm:"size:255;not null;uniqueIndex:ux_bank_connections_external,priority:2" json:"external_account_id"`
	ExternalAccountName  *string          `gorm:"size:255" json:"external_account_name,omitempty"`
	IBAN                 *string          `gorm:"column:iban;size:50" json:"iban,omitempty"`
	AccessToken          *string          `json:"-"`
	RefreshToken         *string          `json:"-"`
	TokenExpiresAt       *time.Time       `json:"token_expires_at,omitempty"`
	Status               ConnectionStatus `gorm:"size:20;not null" json:"status"`
	ConnectionError      *string          `json:"connection_error,omitempty"`
	LastSyncAt           *time.Time       `json:"last_sync_at,omitempty"`
	LastSuccessfulSyncAt *time.Time       `json:"last_successful_sync_at,omitempty"`
	InitialSyncFromDate  *time.Time       `gorm:"type:date" json:"initial_sync_from_date,omitempty"`
	AutoSyncEnabled      bool             `gorm:"not null" json:"auto_sync_enabled"`
	SyncFrequencyHours   int              `gorm:"not null" json:"sync_frequency_hours"`
	CreatedBy            snowflake.ID     `gorm:"not null" json:"created_by"`
	CreatedAt            time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"not null" json:"updated_at"`
}

func (Connection) TableName() string { return "bank_connections" }

// Due reports whether an auto sync should run at now.
func (c Connection) Due(now time.Time) bool {
	if c.Status != ConnectionActive || !c.AutoSyncEnabled {
		return false
	}
	if c.LastSyncAt == nil {
		return true
	}
	hours := c.SyncFrequencyHours
	if hours <= 0 {
		hours = DefaultSyncFrequencyHours
	}
	return !c.LastSyncAt.Add(time.Duration(hours) * time.Hour).After(now)
}

// StagedTransaction is a provider row as fetched, before or after it was
// turned into a draft.
type StagedTransaction struct {
	ID                    snowflake.ID    `gorm:"primaryKey" json:"id"`
	BankConnectionID      snowflake.ID    `gorm:"not null;uniqueIndex:ux_bank_transactions_external,priority:1;index:ix_bank_transactions_hash,priority:1" json:"bank_connection_id"`
	ExternalTransactionID string          `gorm:"size:255;not null;uniqueIndex:ux_bank_transactions_external,priority:2" json:"external_transaction_id"`
	TransactionDate       time.Time       `gorm:"type:date;not null" json:"transaction_date"`
	BookingDate           *time.Time      `gorm:"type:date" json:"booking_date,omitempty"`
	ValueDate             *time.Time      `gorm:"type:date" json:"value_date,omitempty"`
	Amount                decimal.Decimal `gorm:"type:numeric(15,2);not null" json:"amount"`
	Currency              string          `gorm:"size:3;not null" json:"currency"`
	Description           *string         `json:"description,omitempty"`
	Reference             *string         `gorm:"size:255" json:"reference,omitempty"`
	MerchantName          *string         `gorm:"size:255" json:"merchant_name,omitempty"`
	MerchantCategory      *string         `gorm:"size:100" json:"merchant_category,omitempty"`
	DedupHash             string          `gorm:"size:32;not null;index:ix_bank_transactions_hash,priority:2" json:"dedup_hash"`
	ImportStatus          ImportStatus    `gorm:"size:20;not null" json:"import_status"`
	ImportedTransactionID *snowflake.ID   `gorm:"index" json:"imported_transaction_id,omitempty"`
	RawData               datatypes.JSON  `json:"raw_data,omitempty"`
	FetchedAt             time.Time       `gorm:"not null" json:"fetched_at"`
}

func (StagedTransaction) TableName() string { return "bank_transactions" }

type SyncLog struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	BankConnectionID      snowflake.ID  `gorm:"not null;index" json:"bank_connection_id"`
	SyncType              SyncType      `gorm:"size:20;not null" json:"sync_type"`
	SyncStatus            SyncStatus    `gorm:"size:20;not null" json:"sync_status"`
	TransactionsFetched   int           `gorm:"not null" json:"transactions_fetched"`
	TransactionsImported  int           `gorm:"not null" json:"transactions_imported"`
	TransactionsDuplicate int           `gorm:"not null" json:"transactions_duplicate"`
	TransactionsFailed    int           `gorm:"not null" json:"transactions_failed"`
	SyncFromDate          *time.Time    `gorm:"type:date" json:"sync_from_date,omitempty"`
	SyncToDate            *time.Time    `gorm:"type:date" json:"sync_to_date,omitempty"`
	ErrorMessage          *string       `json:"error_message,omitempty"`
	ErrorCode             *string       `gorm:"size:50" json:"error_code,omitempty"`
	CorrelationID         string        `gorm:"size:32" json:"correlation_id"`
	StartedAt             time.Time     `gorm:"not null" json:"started_at"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
	DurationMS            int64         `gorm:"column:duration_ms;not null" json:"duration_ms"`
	TriggeredBy           *snowflake.ID `json:"triggered_by,omitempty"`
}

func (SyncLog) TableName() string { return "bank_sync_logs" }

type OAuthState struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	StateToken     string       `gorm:"size:255;not null;uniqueIndex:ux_oauth_states_token"`
	UserID         snowflake.ID `gorm:"not null"`
	LedgerID       snowflake.ID `gorm:"not null"`
	BankAccountID  snowflake.ID `gorm:"not null"`
	ProviderID     snowflake.ID `gorm:"not null"`
	ExternalBankID *string      `gorm:"size:100"`
	ExpiresAt      time.Time    `gorm:"not null"`
	UsedAt         *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

func (OAuthState) TableName() string { return "oauth_states" }

const (
	DefaultSyncFrequencyHours = 24
	MaxSyncFrequencyHours     = 24 * 30
	OAuthStateTTL             = 10 * time.Minute
)
