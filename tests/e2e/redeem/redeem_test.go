package redeem

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletmart/internal/testutil"
	"github.com/nkiryanov/walletmart/tests/e2e"
)

const (
	RedeemURL = "/redeem"
	WalletURL = "/wallet"
)

func Test_Redeem(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	e2e.ServeWithTx(pg.Pool, t, func(tx pgx.Tx, srvURL string, s e2e.Services) {
		user := s.User(t, "20")
		_, err := s.Storage.BalanceKey().CreateBalanceKey(t.Context(), "ABC123", decimal.NewFromInt(50))
		require.NoError(t, err, "failed to create balance key")

		t.Run("unknown code", func(t *testing.T) {
			code, resp := s.Do(t, http.MethodPost, srvURL+RedeemURL, user, `{"key_code": "nope"}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code, body: %s", resp)
			require.JSONEq(t, `{"success": false, "error": "Invalid code"}`, resp)
		})

		t.Run("missing code", func(t *testing.T) {
			code, resp := s.Do(t, http.MethodPost, srvURL+RedeemURL, user, `{}`)

			require.Equalf(t, http.StatusBadRequest, code, "not expected code, body: %s", resp)
		})

		t.Run("redeem once", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				code, resp := s.Do(t, http.MethodPost, srvURL+RedeemURL, user, `{"key_code": "  abc123  "}`)
				require.Equalf(t, http.StatusOK, code, "redeem request should return 200. Body: %s", resp)
				require.JSONEq(t, `{
					"success": true,
					"message": "Balance key redeemed",
					"new_balance": 70
				}`, resp)

				code, resp = s.Do(t, http.MethodPost, srvURL+RedeemURL, user, `{"key_code": "ABC123"}`)
				require.Equal(t, http.StatusBadRequest, code, resp)
				require.JSONEq(t, `{"success": false, "error": "Balance key already used"}`, resp)

				code, resp = s.Do(t, http.MethodGet, srvURL+WalletURL, user, "")
				require.Equal(t, http.StatusOK, code, resp)
				require.Contains(t, resp, `"balance":70`)
			})
		})

		t.Run("no wallet", func(t *testing.T) {
			testutil.WithTx(tx, t, func(_ pgx.Tx) {
				id := uuid.New()
				_, err := s.Storage.Profile().CreateProfile(t.Context(), id, "walletless")
				require.NoError(t, err)

				code, resp := s.Do(t, http.MethodGet, srvURL+WalletURL, id, "")

				require.Equalf(t, http.StatusNotFound, code, "not expected code, body: %s", resp)
			})
		})
	})
}
