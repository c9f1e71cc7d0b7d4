package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidLedger          = errors.New("invalid_ledger")
	ErrInvalidUser            = errors.New("invalid_user")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidImportStatus    = errors.New("invalid_import_status")
	ErrInvalidSyncType        = errors.New("invalid_sync_type")
	ErrInvalidFrequency       = errors.New("invalid_sync_frequency")
	ErrProviderNotFound       = errors.New("provider_not_found")
	ErrProviderInactive       = errors.New("provider_inactive")
	ErrUnsupportedProvider    = errors.New("unsupported_provider")
	ErrProviderMisconfigured  = errors.New("provider_misconfigured")
	ErrNotFound               = errors.New("not_found")
	ErrInvalidState           = errors.New("invalid_oauth_state")
	ErrStateUsed              = errors.New("oauth_state_used")
	ErrStateExpired           = errors.New("oauth_state_expired")
	ErrNoExternalAccounts     = errors.New("no_external_accounts")
	ErrExternalAccountUnknown = errors.New("external_account_not_found")
	ErrConnectionExists       = errors.New("connection_exists")
	ErrConnectionDisconnected = errors.New("connection_disconnected")
	ErrStagedNotIgnorable     = errors.New("staged_not_ignorable")
	ErrTokenUnavailable       = errors.New("token_unavailable")
)

const (
	SyncCodeTokenExpired  = "TOKEN_EXPIRED"
	SyncCodeRefreshFailed = "TOKEN_REFRESH_FAILED"
	SyncCodeFetchFailed   = "FETCH_FAILED"
	SyncCodeProvider      = "PROVIDER_UNAVAILABLE"
)

// SyncError is returned when a sync run ends FAILED. The run's log has
// already been written.
type SyncError struct {
	Code      string
	Message   string
	Permanent bool
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed (%s): %s", e.Code, e.Message)
}

func (e *SyncError) Unwrap() error { return e.Err }
