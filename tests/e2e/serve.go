package e2e

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletmart/internal/handlers"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/repository"
	"github.com/nkiryanov/walletmart/internal/repository/postgres"
	"github.com/nkiryanov/walletmart/internal/service/auth"
	"github.com/nkiryanov/walletmart/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/walletmart/internal/service/balance"
	"github.com/nkiryanov/walletmart/internal/service/purchase"
	"github.com/nkiryanov/walletmart/internal/service/redeem"
	"github.com/nkiryanov/walletmart/internal/testutil"
)

type Services struct {
	Storage repository.Storage
	Tokens  *tokenmanager.TokenManager
}

// Create user with profile and wallet holding the balance
func (s Services) User(t *testing.T, balance string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := s.Storage.Profile().CreateProfile(t.Context(), id, "user-"+id.String()[:8])
	require.NoError(t, err, "failed to create profile")
	w, err := s.Storage.Wallet().CreateWallet(t.Context(), id)
	require.NoError(t, err, "failed to create wallet")
	_, err = s.Storage.Wallet().UpdateBalance(t.Context(), id, w.Version, decimal.RequireFromString(balance))
	require.NoError(t, err, "failed to set balance")

	return id
}

// Send request as the user, uuid.Nil sends it anonymous. Returns status code and body
func (s Services) Do(t *testing.T, method string, url string, user uuid.UUID, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err, "failed to create request")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if user != uuid.Nil {
		token, err := s.Tokens.Issue(user)
		require.NoError(t, err, "failed to issue token")
		req.Header.Set("Authorization", "Bearer "+token.Value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "failed to send request")
	defer resp.Body.Close() // nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")

	return resp.StatusCode, string(data)
}

// Create db transaction and run server with that connection (one connection cause one transaction)
// The created transaction passed to inner function: so, you can safely use testutil.WithTx with it
func ServeWithTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
		l := logger.NewNoOpLogger()
		storage := postgres.NewStorage(tx)

		tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"})
		require.NoError(t, err, "token manager should be created without errors")

		router := handlers.NewRouter(handlers.Services{
			Auth:     auth.NewService(tokens),
			Purchase: purchase.NewCoordinator(storage, l),
			Redeem:   redeem.NewCoordinator(storage, l),
			Wallet:   balance.NewService(storage.Wallet()),
		}, l)

		// Run http server with the router in transaction
		srv := httptest.NewServer(router)
		defer srv.Close()

		fn(tx, srv.URL, Services{Storage: storage, Tokens: tokens})
	})
}
