package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

// Client talks to one bank aggregation provider.
type Client interface {
	AuthorizationURL(state, redirectURL, bankID string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	ListAccounts(ctx context.Context, accessToken string) ([]ExternalAccount, error)
	ListTransactions(ctx context.Context, accessToken, externalAccountID string, from, to time.Time) ([]ExternalTransaction, error)
	Revoke(ctx context.Context, accessToken string) error
}

// ClientResolver builds the client for a stored provider row.
type ClientResolver interface {
	Client(provider Provider) (Client, error)
}

type ExternalAccount struct {
	ID       string
	Name     string
	IBAN     string
	BIC      string
	Currency string
	Product  string
}

// ExternalTransaction is a booked provider row, normalised.
type ExternalTransaction struct {
	ExternalID       string
	Date             time.Time
	BookingDate      *time.Time
	ValueDate        *time.Time
	Amount           decimal.Decimal
	Currency         string
	Description      string
	Reference        string
	MerchantName     string
	MerchantCategory string
	Raw              json.RawMessage
}

// ProviderError wraps a failed provider call. Permanent errors (revoked
// consent, invalid grant) will not go away on retry.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Permanent  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func IsPermanent(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Permanent
	}
	return false
}

// Locker serialises sync runs for a connection across processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}
