package enablebanking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

type fakeBank struct {
	t            *testing.T
	tokenStatus  int
	tokenError   string
	lastTokenReq url.Values
	lastAuth     string
	lastQuery    url.Values
	revoked      []string
}

func (f *fakeBank) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		f.lastTokenReq = r.PostForm
		f.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": f.tokenError})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + r.PostForm.Get("grant_type"),
			"refresh_token": "refresh-2",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accounts":[
			{"resourceId":"acc-1","name":"Brukskonto","iban":"NO9386011117947","currency":"NOK"},
			{"resourceId":"acc-2","product":"Sparekonto"},
			{"resourceId":"","name":"skipped"}
		]}`))
	})
	mux.HandleFunc("/api/accounts/acc-1/transactions", func(w http.ResponseWriter, r *http.Request) {
		f.lastQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":{
			"booked":[
				{"transactionId":"t-1","bookingDate":"2026-03-02","valueDate":"2026-03-01",
				 "transactionAmount":{"amount":"-249.90","currency":"NOK"},
				 "remittanceInformationUnstructured":"REMA 1000 MAJORSTUEN",
				 "endToEndId":"E2E-1","merchantCategoryCode":"5411"},
				{"transactionId":"t-2","bookingDate":"2026-03-03",
				 "transactionAmount":{"amount":"15000.00"},
				 "debtorName":"Employer AS","mandateId":"M-7"}
			],
			"pending":[
				{"transactionId":"p-1","bookingDate":"2026-03-04","transactionAmount":{"amount":"-10"}}
			]
		}}`))
	})
	mux.HandleFunc("/api/accounts/broken/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	})
	mux.HandleFunc("/api/accounts/gone/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("consent expired"))
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		f.revoked = append(f.revoked, r.PostForm.Get("token"))
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T, config map[string]any) (*Client, *fakeBank) {
	t.Helper()
	bank := &fakeBank{t: t}
	server := httptest.NewServer(bank.handler())
	t.Cleanup(server.Close)

	authURL := server.URL + "/auth"
	tokenURL := server.URL + "/token"
	apiURL := server.URL + "/api/"
	if config == nil {
		config = map[string]any{}
	}
	config["app_id"] = "app-123"
	if _, ok := config["revoke_url"]; ok {
		config["revoke_url"] = server.URL + "/revoke"
	}

	client, err := New(domain.Provider{
		Name:             Name,
		IsActive:         true,
		ConfigData:       datatypes.JSONMap(config),
		AuthorizationURL: &authURL,
		TokenURL:         &tokenURL,
		APIBaseURL:       &apiURL,
	}, server.Client())
	require.NoError(t, err)
	return client.(*Client), bank
}

func TestNewRequiresURLsAndAppID(t *testing.T) {
	_, err := New(domain.Provider{Name: Name}, nil)
	require.ErrorIs(t, err, domain.ErrProviderMisconfigured)

	u := "https://example.test"
	_, err = New(domain.Provider{Name: Name, AuthorizationURL: &u, TokenURL: &u, APIBaseURL: &u}, nil)
	require.ErrorIs(t, err, domain.ErrProviderMisconfigured)
}

func TestAuthorizationURL(t *testing.T) {
	client, _ := newTestClient(t, nil)

	raw, err := client.AuthorizationURL("state-1", "https://app.test/callback", "DNB_NO")
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	query := parsed.Query()
	require.Equal(t, "/auth", parsed.Path)
	require.Equal(t, "state-1", query.Get("state"))
	require.Equal(t, "app-123", query.Get("client_id"))
	require.Equal(t, "code", query.Get("response_type"))
	require.Equal(t, "https://app.test/callback", query.Get("redirect_uri"))
	require.Equal(t, "DNB_NO", query.Get("aspsp"))
	require.Equal(t, "accounts transactions", query.Get("scope"))

	_, err = client.AuthorizationURL(" ", "https://app.test/callback", "")
	require.Error(t, err)
}

func TestExchangeAndRefresh(t *testing.T) {
	client, bank := newTestClient(t, map[string]any{"api_key": "secret-key"})
	ctx := context.Background()

	token, err := client.ExchangeCode(ctx, "code-1", "https://app.test/callback")
	require.NoError(t, err)
	require.Equal(t, "access-authorization_code", token.AccessToken)
	require.Equal(t, "refresh-2", token.RefreshToken)
	require.Equal(t, "code-1", bank.lastTokenReq.Get("code"))
	require.Equal(t, "app-123", bank.lastTokenReq.Get("client_id"))
	require.Equal(t, "Bearer secret-key", bank.lastAuth)

	refreshed, err := client.RefreshToken(ctx, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-refresh_token", refreshed.AccessToken)
	require.Equal(t, "refresh-1", bank.lastTokenReq.Get("refresh_token"))
}

func TestRefreshFailuresClassified(t *testing.T) {
	client, bank := newTestClient(t, nil)
	ctx := context.Background()

	_, err := client.RefreshToken(ctx, "")
	require.True(t, domain.IsPermanent(err))

	bank.tokenStatus = http.StatusBadRequest
	bank.tokenError = "invalid_grant"
	_, err = client.RefreshToken(ctx, "refresh-1")
	require.Error(t, err)
	require.True(t, domain.IsPermanent(err))

	bank.tokenStatus = http.StatusServiceUnavailable
	bank.tokenError = "temporarily_unavailable"
	_, err = client.RefreshToken(ctx, "refresh-1")
	require.Error(t, err)
	require.False(t, domain.IsPermanent(err))
}

func TestListAccounts(t *testing.T) {
	client, bank := newTestClient(t, map[string]any{"api_key": "secret-key"})

	accounts, err := client.ListAccounts(context.Background(), "user-token")
	require.NoError(t, err)
	require.Equal(t, "Bearer user-token", bank.lastAuth)
	require.Len(t, accounts, 2)
	require.Equal(t, domain.ExternalAccount{
		ID:       "acc-1",
		Name:     "Brukskonto",
		IBAN:     "NO9386011117947",
		Currency: "NOK",
	}, accounts[0])
	require.Equal(t, "Sparekonto", accounts[1].Name)
	require.Equal(t, "NOK", accounts[1].Currency)
}

func TestListTransactions(t *testing.T) {
	client, bank := newTestClient(t, nil)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)

	rows, err := client.ListTransactions(context.Background(), "user-token", "acc-1", from, to)
	require.NoError(t, err)
	require.Equal(t, "2026-02-01", bank.lastQuery.Get("dateFrom"))
	require.Equal(t, "2026-03-05", bank.lastQuery.Get("dateTo"))
	require.Len(t, rows, 2)

	first := rows[0]
	require.Equal(t, "t-1", first.ExternalID)
	require.True(t, first.Date.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, first.BookingDate)
	require.Equal(t, "-249.9", first.Amount.String())
	require.Equal(t, "REMA 1000 MAJORSTUEN", first.Description)
	require.Equal(t, "E2E-1", first.Reference)
	require.Equal(t, "5411", first.MerchantCategory)
	require.NotEmpty(t, first.Raw)

	second := rows[1]
	require.True(t, second.Date.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))
	require.Nil(t, second.ValueDate)
	require.Equal(t, "Employer AS", second.Description)
	require.Equal(t, "Employer AS", second.MerchantName)
	require.Equal(t, "M-7", second.Reference)
	require.Equal(t, "NOK", second.Currency)
}

func TestListTransactionsStatusErrors(t *testing.T) {
	client, _ := newTestClient(t, nil)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := client.ListTransactions(ctx, "user-token", "broken", day, day)
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	require.False(t, perr.Permanent)
	require.Contains(t, err.Error(), "maintenance")

	_, err = client.ListTransactions(ctx, "user-token", "gone", day, day)
	require.True(t, domain.IsPermanent(err))
}

func TestNormalizeTransactionRejectsBadRows(t *testing.T) {
	_, err := normalizeTransaction([]byte(`{"transactionId":"x","bookingDate":"2026-03-01","transactionAmount":{"amount":"abc"}}`))
	require.Error(t, err)

	_, err = normalizeTransaction([]byte(`{"transactionId":"x","transactionAmount":{"amount":"1.00"}}`))
	require.Error(t, err)
}

func TestRevoke(t *testing.T) {
	client, _ := newTestClient(t, nil)
	require.NoError(t, client.Revoke(context.Background(), "user-token"))

	withRevoke, bank := newTestClient(t, map[string]any{"revoke_url": ""})
	require.NoError(t, withRevoke.Revoke(context.Background(), "user-token"))
	require.Equal(t, []string{"user-token"}, bank.revoked)
}
