package redeem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository/memory"
)

var errStore = errors.New("store is down")

type fixture struct {
	store *memory.Storage
	coord *Coordinator
	user  uuid.UUID
	key   models.BalanceKey
}

// User with 20 on the wallet and a fresh 50 key "ABC123"
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := t.Context()

	store := memory.NewStorage()
	f := &fixture{
		store: store,
		coord: NewCoordinator(store, nil, opts...),
	}
	f.user = f.newUser(t, "buyer", "20")

	var err error
	f.key, err = store.BalanceKey().CreateBalanceKey(ctx, "abc123", decimal.RequireFromString("50"))
	require.NoError(t, err)

	return f
}

func (f *fixture) newUser(t *testing.T, username string, balance string) uuid.UUID {
	t.Helper()
	ctx := t.Context()

	id := uuid.New()
	_, err := f.store.Profile().CreateProfile(ctx, id, username)
	require.NoError(t, err)
	w, err := f.store.Wallet().CreateWallet(ctx, id)
	require.NoError(t, err)
	_, err = f.store.Wallet().UpdateBalance(ctx, id, w.Version, decimal.RequireFromString(balance))
	require.NoError(t, err)

	return id
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()

	w, err := f.store.Wallet().GetWallet(t.Context(), id)
	require.NoError(t, err)
	return w.Balance.StringFixed(2)
}

func (f *fixture) storedKey(t *testing.T) models.BalanceKey {
	t.Helper()

	k, err := f.store.BalanceKey().GetByCode(t.Context(), "ABC123")
	require.NoError(t, err)
	return k
}

func TestCoordinator_Redeem(t *testing.T) {
	t.Run("code normalized and wallet credited", func(t *testing.T) {
		usedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		f := newFixture(t, WithClock(func() time.Time { return usedAt }))

		wallet, err := f.coord.Redeem(t.Context(), f.user, "  abc123  ")

		require.NoError(t, err)
		require.Equal(t, "70.00", wallet.Balance.StringFixed(2), "returned wallet must hold new balance")
		require.Equal(t, "70.00", f.balance(t, f.user))

		k := f.storedKey(t)
		require.True(t, k.IsUsed)
		require.NotNil(t, k.UsedBy)
		require.Equal(t, f.user, *k.UsedBy)
		require.NotNil(t, k.UsedAt)
		require.Equal(t, usedAt, *k.UsedAt)
	})

	t.Run("key is single use", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")
		require.NoError(t, err)

		_, err = f.coord.Redeem(t.Context(), f.user, "abc123")

		require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		require.Equal(t, "70.00", f.balance(t, f.user), "second redemption must not credit")
	})
}

func TestCoordinator_Redeem_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture) (user uuid.UUID, code string)
		wantErr error
		wantMsg string
	}{
		{
			name: "unknown user",
			prepare: func(t *testing.T, f *fixture) (uuid.UUID, string) {
				return uuid.New(), "ABC123"
			},
			wantErr: apperrors.ErrUnauthenticated,
		},
		{
			name: "banned user",
			prepare: func(t *testing.T, f *fixture) (uuid.UUID, string) {
				require.NoError(t, f.store.Profile().SetBanned(t.Context(), f.user, true))
				return f.user, "ABC123"
			},
			wantErr: apperrors.ErrBanned,
		},
		{
			name: "unknown code",
			prepare: func(t *testing.T, f *fixture) (uuid.UUID, string) {
				return f.user, "NOPE"
			},
			wantErr: apperrors.ErrNotFound,
			wantMsg: "balance key not found",
		},
		{
			name: "blank code",
			prepare: func(t *testing.T, f *fixture) (uuid.UUID, string) {
				return f.user, "   "
			},
			wantErr: apperrors.ErrNotFound,
		},
		{
			name: "user without wallet",
			prepare: func(t *testing.T, f *fixture) (uuid.UUID, string) {
				id := uuid.New()
				_, err := f.store.Profile().CreateProfile(t.Context(), id, "walletless")
				require.NoError(t, err)
				return id, "ABC123"
			},
			wantErr: apperrors.ErrNotFound,
			wantMsg: "wallet not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			user, code := tt.prepare(t, f)

			_, err := f.coord.Redeem(t.Context(), user, code)

			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				require.EqualError(t, err, tt.wantMsg)
			}
			require.Equal(t, "20.00", f.balance(t, f.user))
			require.False(t, f.storedKey(t).IsUsed)
		})
	}
}

func TestCoordinator_Redeem_Compensation(t *testing.T) {
	t.Run("credit failure changes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.store.FailOnce(memory.OpUpdateBalance, f.user, errStore)

		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")

		var storeErr *apperrors.StoreFailureError
		require.ErrorAs(t, err, &storeErr)
		require.Equal(t, StepCreditWallet, storeErr.Step)
		require.Equal(t, "20.00", f.balance(t, f.user))
		require.False(t, f.storedKey(t).IsUsed)
	})

	t.Run("mark failure takes credit back", func(t *testing.T) {
		f := newFixture(t)
		f.store.FailOnce(memory.OpMarkKeyUsed, f.key.ID, errStore)

		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")

		var storeErr *apperrors.StoreFailureError
		require.ErrorAs(t, err, &storeErr)
		require.Equal(t, StepMarkKeyUsed, storeErr.Step)
		require.True(t, storeErr.Compensated())
		require.Equal(t, "20.00", f.balance(t, f.user))
		require.False(t, f.storedKey(t).IsUsed, "key must stay redeemable")

		wallet, err := f.coord.Redeem(t.Context(), f.user, "ABC123")
		require.NoError(t, err, "retry should succeed")
		require.Equal(t, "70.00", wallet.Balance.StringFixed(2))
	})

	t.Run("failed compensation is reported", func(t *testing.T) {
		f := newFixture(t)
		f.store.FailOnce(memory.OpMarkKeyUsed, f.key.ID, errStore)
		// Credit is done by now, fail its compensation
		f.store.BeforeOnce(memory.OpMarkKeyUsed, f.key.ID, func() {
			f.store.FailOnce(memory.OpUpdateBalance, f.user, errStore)
		})

		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")

		var storeErr *apperrors.StoreFailureError
		require.ErrorAs(t, err, &storeErr)
		require.False(t, storeErr.Compensated())
		require.Equal(t, "70.00", f.balance(t, f.user), "credit is left for reconciliation")
	})

	t.Run("credit spent before compensation", func(t *testing.T) {
		f := newFixture(t)
		f.store.FailOnce(memory.OpMarkKeyUsed, f.key.ID, errStore)
		// User spends 60 of the 70 between the credit and the flag flip
		f.store.BeforeOnce(memory.OpMarkKeyUsed, f.key.ID, func() {
			w, err := f.store.Wallet().GetWallet(context.Background(), f.user)
			require.NoError(t, err)
			_, err = f.store.Wallet().UpdateBalance(context.Background(), f.user, w.Version, w.Balance.Sub(decimal.NewFromInt(60)))
			require.NoError(t, err)
		})

		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")

		var storeErr *apperrors.StoreFailureError
		require.ErrorAs(t, err, &storeErr)
		require.Equal(t, StepMarkKeyUsed, storeErr.Step)
		require.False(t, storeErr.Compensated(), "spent credit can't be taken back")
		require.ErrorIs(t, storeErr.CompensationErr, apperrors.ErrInsufficientFunds)
		require.Equal(t, "10.00", f.balance(t, f.user))
		require.False(t, f.storedKey(t).IsUsed)
	})

	t.Run("key consumed concurrently", func(t *testing.T) {
		f := newFixture(t)
		rival := f.newUser(t, "rival", "0")

		// Rival consumes the key between the precondition read and the flag flip
		f.store.BeforeOnce(memory.OpMarkKeyUsed, f.key.ID, func() {
			_, err := f.store.BalanceKey().MarkUsed(context.Background(), f.key.ID, rival, time.Now())
			require.NoError(t, err)
		})

		_, err := f.coord.Redeem(t.Context(), f.user, "ABC123")

		require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		require.Equal(t, "20.00", f.balance(t, f.user), "credit must be taken back")
		require.Equal(t, rival, *f.storedKey(t).UsedBy)
	})
}

func TestCoordinator_Redeem_Concurrency(t *testing.T) {
	t.Run("same key redeemed once", func(t *testing.T) {
		f := newFixture(t, WithRetries(1000))

		const attempts = 10
		users := make([]uuid.UUID, attempts)
		for i := range users {
			users[i] = f.newUser(t, uuid.NewString(), "0")
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			errs      []error
		)
		for _, u := range users {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.coord.Redeem(context.Background(), u, "abc123")

				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else {
					errs = append(errs, err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)
		for _, err := range errs {
			require.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		}

		total := decimal.Zero
		for _, u := range users {
			w, err := f.store.Wallet().GetWallet(t.Context(), u)
			require.NoError(t, err)
			total = total.Add(w.Balance)
		}
		require.Equal(t, "50.00", total.StringFixed(2), "exactly one key amount must be credited")
	})

	t.Run("parallel keys on one wallet lose no credit", func(t *testing.T) {
		f := newFixture(t, WithRetries(1000))

		const keys = 20
		codes := make([]string, keys)
		for i := range codes {
			k, err := f.store.BalanceKey().CreateBalanceKey(t.Context(), uuid.NewString(), decimal.NewFromInt(5))
			require.NoError(t, err)
			codes[i] = k.Code
		}

		var wg sync.WaitGroup
		errs := make(chan error, keys)
		for _, code := range codes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.coord.Redeem(context.Background(), f.user, code)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		require.Equal(t, "120.00", f.balance(t, f.user))
	})
}
