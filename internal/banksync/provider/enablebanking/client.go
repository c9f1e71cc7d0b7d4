// Package enablebanking is a client for Enable Banking style PSD2 aggregation
// APIs: OAuth2 authorization code flow for consent, bearer-token REST for
// accounts and booked transactions.
package enablebanking

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
)

const Name = "enable_banking"

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 512

type Client struct {
	name       string
	oauth      *oauth2.Config
	apiBaseURL string
	revokeURL  string
	http       *http.Client
}

// New builds a client from the provider row. ConfigData keys: app_id,
// api_key, certificate_path and private_key_path (mTLS), revoke_url.
func New(provider domain.Provider, base *http.Client) (domain.Client, error) {
	if provider.AuthorizationURL == nil || provider.TokenURL == nil || provider.APIBaseURL == nil {
		return nil, fmt.Errorf("%w: %s needs authorization, token and api urls", domain.ErrProviderMisconfigured, provider.Name)
	}
	appID := provider.ConfigString("app_id")
	if appID == "" {
		return nil, fmt.Errorf("%w: %s needs app_id", domain.ErrProviderMisconfigured, provider.Name)
	}

	httpClient, err := buildHTTPClient(provider, base)
	if err != nil {
		return nil, err
	}

	return &Client{
		name: provider.Name,
		oauth: &oauth2.Config{
			ClientID: appID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   *provider.AuthorizationURL,
				TokenURL:  *provider.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"accounts", "transactions"},
		},
		apiBaseURL: strings.TrimRight(*provider.APIBaseURL, "/"),
		revokeURL:  provider.ConfigString("revoke_url"),
		http:       httpClient,
	}, nil
}

func buildHTTPClient(provider domain.Provider, base *http.Client) (*http.Client, error) {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	certPath := provider.ConfigString("certificate_path")
	keyPath := provider.ConfigString("private_key_path")
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: load client certificate: %v", domain.ErrProviderMisconfigured, err)
		}
		httpTransport, ok := transport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("%w: mTLS needs an *http.Transport", domain.ErrProviderMisconfigured)
		}
		httpTransport = httpTransport.Clone()
		if httpTransport.TLSClientConfig == nil {
			httpTransport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		httpTransport.TLSClientConfig.Certificates = []tls.Certificate{cert}
		transport = httpTransport
	}

	if apiKey := provider.ConfigString("api_key"); apiKey != "" {
		transport = &apiKeyTransport{base: transport, apiKey: apiKey}
	}

	return &http.Client{Timeout: base.Timeout, Transport: transport}, nil
}

// apiKeyTransport authenticates the application on requests that carry no
// user token, which is the token endpoint.
type apiKeyTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

func (c *Client) AuthorizationURL(state, redirectURL, bankID string) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", errors.New("state is required")
	}
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("redirect_uri", redirectURL)}
	if bankID = strings.TrimSpace(bankID); bankID != "" {
		opts = append(opts, oauth2.SetAuthURLParam("aspsp", bankID))
	}
	return c.oauth.AuthCodeURL(state, opts...), nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, redirectURL string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURL))
	if err != nil {
		return nil, c.tokenError("exchange", err)
	}
	return token, nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, &domain.ProviderError{Provider: c.name, Op: "refresh", Permanent: true, Err: errors.New("no refresh token")}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	// An empty access token forces the source to refresh.
	source := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, c.tokenError("refresh", err)
	}
	return token, nil
}

func (c *Client) tokenError(op string, err error) error {
	perr := &domain.ProviderError{Provider: c.name, Op: op, Err: err}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.Response != nil {
			perr.StatusCode = rerr.Response.StatusCode
		}
		perr.Permanent = rerr.ErrorCode == "invalid_grant" || rerr.ErrorCode == "invalid_client" || permanentStatus(perr.StatusCode)
	}
	return perr
}

type accountsResponse struct {
	Accounts []struct {
		ResourceID string `json:"resourceId"`
		Name       string `json:"name"`
		IBAN       string `json:"iban"`
		BIC        string `json:"bic"`
		Currency   string `json:"currency"`
		Product    string `json:"product"`
	} `json:"accounts"`
}

func (c *Client) ListAccounts(ctx context.Context, accessToken string) ([]domain.ExternalAccount, error) {
	var payload accountsResponse
	if err := c.get(ctx, "accounts", accessToken, c.apiBaseURL+"/accounts", &payload); err != nil {
		return nil, err
	}

	accounts := make([]domain.ExternalAccount, 0, len(payload.Accounts))
	for _, item := range payload.Accounts {
		if strings.TrimSpace(item.ResourceID) == "" {
			continue
		}
		name := item.Name
		if name == "" {
			name = item.Product
		}
		if name == "" {
			name = "Unknown"
		}
		currency := item.Currency
		if currency == "" {
			currency = "NOK"
		}
		accounts = append(accounts, domain.ExternalAccount{
			ID:       item.ResourceID,
			Name:     name,
			IBAN:     item.IBAN,
			BIC:      item.BIC,
			Currency: currency,
			Product:  item.Product,
		})
	}
	return accounts, nil
}

type transactionsResponse struct {
	Transactions struct {
		Booked []json.RawMessage `json:"booked"`
	} `json:"transactions"`
}

type bookedTransaction struct {
	TransactionID     string `json:"transactionId"`
	BookingDate       string `json:"bookingDate"`
	ValueDate         string `json:"valueDate"`
	TransactionAmount struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"transactionAmount"`
	RemittanceInformation string `json:"remittanceInformationUnstructured"`
	CreditorName          string `json:"creditorName"`
	DebtorName            string `json:"debtorName"`
	EndToEndID            string `json:"endToEndId"`
	MandateID             string `json:"mandateId"`
	MerchantCategoryCode  string `json:"merchantCategoryCode"`
}

// ListTransactions returns booked rows only; pending rows change until they
// book.
func (c *Client) ListTransactions(ctx context.Context, accessToken, externalAccountID string, from, to time.Time) ([]domain.ExternalTransaction, error) {
	query := url.Values{}
	query.Set("dateFrom", from.Format(time.DateOnly))
	query.Set("dateTo", to.Format(time.DateOnly))
	endpoint := fmt.Sprintf("%s/accounts/%s/transactions?%s", c.apiBaseURL, url.PathEscape(externalAccountID), query.Encode())

	var payload transactionsResponse
	if err := c.get(ctx, "transactions", accessToken, endpoint, &payload); err != nil {
		return nil, err
	}

	rows := make([]domain.ExternalTransaction, 0, len(payload.Transactions.Booked))
	for _, raw := range payload.Transactions.Booked {
		row, err := normalizeTransaction(raw)
		if err != nil {
			return nil, &domain.ProviderError{Provider: c.name, Op: "transactions", Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeTransaction(raw json.RawMessage) (domain.ExternalTransaction, error) {
	var tx bookedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return domain.ExternalTransaction{}, fmt.Errorf("decode transaction: %w", err)
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(tx.TransactionAmount.Amount))
	if err != nil {
		return domain.ExternalTransaction{}, fmt.Errorf("transaction %s: invalid amount %q", tx.TransactionID, tx.TransactionAmount.Amount)
	}

	booking := parseDate(tx.BookingDate)
	value := parseDate(tx.ValueDate)
	date := value
	if date == nil {
		date = booking
	}
	if date == nil {
		return domain.ExternalTransaction{}, fmt.Errorf("transaction %s: no booking or value date", tx.TransactionID)
	}

	merchant := tx.CreditorName
	if merchant == "" {
		merchant = tx.DebtorName
	}
	description := strings.TrimSpace(tx.RemittanceInformation)
	if description == "" {
		description = strings.TrimSpace(merchant)
	}
	reference := tx.EndToEndID
	if reference == "" {
		reference = tx.MandateID
	}
	currency := tx.TransactionAmount.Currency
	if currency == "" {
		currency = "NOK"
	}

	return domain.ExternalTransaction{
		ExternalID:       strings.TrimSpace(tx.TransactionID),
		Date:             *date,
		BookingDate:      booking,
		ValueDate:        value,
		Amount:           amount,
		Currency:         currency,
		Description:      description,
		Reference:        strings.TrimSpace(reference),
		MerchantName:     strings.TrimSpace(merchant),
		MerchantCategory: strings.TrimSpace(tx.MerchantCategoryCode),
		Raw:              raw,
	}, nil
}

func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil
	}
	return &parsed
}

// Revoke calls the configured revoke endpoint. Providers without one end
// consent when the token expires or the user withdraws it at the bank.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	if c.revokeURL == "" || accessToken == "" {
		return nil
	}
	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("client_id", c.oauth.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: c.name, Op: "revoke", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.statusError("revoke", resp)
	}
	return nil
}

func (c *Client) get(ctx context.Context, op, accessToken, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: c.name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Provider: c.name, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &domain.ProviderError{
		Provider:   c.name,
		Op:         op,
		StatusCode: resp.StatusCode,
		Permanent:  permanentStatus(resp.StatusCode),
		Err:        errors.New(strings.TrimSpace(string(body))),
	}
}

// permanentStatus treats auth and client errors as permanent. Rate limits
// and server errors are retried on the next run.
func permanentStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return false
	case code >= 400 && code < 500:
		return true
	}
	return false
}
