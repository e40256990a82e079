// Package redeem tops up a wallet with a single-use balance key.
package redeem

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
	"github.com/nkiryanov/walletmart/internal/saga"
	"github.com/nkiryanov/walletmart/internal/service/balance"
)

const (
	StepCreditWallet = "credit wallet"
	StepMarkKeyUsed  = "mark key used"
)

type Coordinator struct {
	storage repository.Storage
	runner  *saga.Runner
	logger  logger.Logger

	retries int
	now     func() time.Time
}

type Option func(*Coordinator)

// Max re-reads of the wallet after a concurrent write, balance.DefaultRetries by default
func WithRetries(n int) Option {
	return func(c *Coordinator) {
		c.retries = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(storage repository.Storage, l logger.Logger, opts ...Option) *Coordinator {
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	c := &Coordinator{
		storage: storage,
		runner:  saga.NewRunner(l),
		logger:  l,
		retries: balance.DefaultRetries,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Redeem credits the key amount to the user wallet and consumes the key.
// The code is trimmed and upper-cased before lookup.
//
// Returns the wallet after the credit.
// Precondition failures (nothing changed):
//   - apperrors.ErrUnauthenticated, apperrors.ErrBanned for the caller profile
//   - *apperrors.NotFoundError if the code is unknown or the user has no wallet
//   - apperrors.ErrAlreadyUsed
//
// A key consumed concurrently by someone else is reported as apperrors.ErrAlreadyUsed too, the
// credit is taken back. Any other failed store call is *apperrors.StoreFailureError.
func (c *Coordinator) Redeem(ctx context.Context, userID uuid.UUID, code string) (models.Wallet, error) {
	code = models.NormalizeKeyCode(code)
	l := c.logger.With("user_id", userID, "code", code)

	key, wallet, err := c.check(ctx, userID, code)
	if err != nil {
		l.Debug("Redemption rejected", "error", err)
		return models.Wallet{}, err
	}

	wallets := c.storage.Wallet()
	var credited models.Wallet

	err = c.runner.Run(ctx, "redeem",
		saga.Step{
			Name: StepCreditWallet,
			Action: func(ctx context.Context) error {
				var err error
				credited, err = balance.Adjust(ctx, wallets, wallet, key.Amount, c.retries)
				return err
			},
			Compensate: func(ctx context.Context) error {
				_, err := balance.Adjust(ctx, wallets, credited, key.Amount.Neg(), c.retries)
				return err
			},
		},
		saga.Step{
			Name: StepMarkKeyUsed,
			Action: func(ctx context.Context) error {
				_, err := c.storage.BalanceKey().MarkUsed(ctx, key.ID, userID, c.now())
				return err
			},
		},
	)
	if err != nil {
		err = translate(err)

		var storeErr *apperrors.StoreFailureError
		if errors.As(err, &storeErr) && !storeErr.Compensated() {
			l.Error("Redemption left data inconsistent, manual reconciliation required",
				"key_id", key.ID,
				"amount", key.Amount.String(),
				"error", err,
			)
		}
		return models.Wallet{}, err
	}

	l.Info("Balance key redeemed", "key_id", key.ID, "amount", key.Amount.String())
	return credited, nil
}

func (c *Coordinator) check(ctx context.Context, userID uuid.UUID, code string) (models.BalanceKey, models.Wallet, error) {
	var (
		key    models.BalanceKey
		wallet models.Wallet
	)

	profile, err := c.storage.Profile().GetProfile(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrProfileNotFound):
		return key, wallet, apperrors.ErrUnauthenticated
	case err != nil:
		return key, wallet, apperrors.StoreFailure("load profile", err)
	case profile.IsBanned:
		return key, wallet, apperrors.ErrBanned
	}

	key, err = c.storage.BalanceKey().GetByCode(ctx, code)
	switch {
	case errors.Is(err, apperrors.ErrBalanceKeyNotFound):
		return key, wallet, apperrors.NotFound("balance key")
	case err != nil:
		return key, wallet, apperrors.StoreFailure("load balance key", err)
	case key.IsUsed:
		return key, wallet, apperrors.ErrAlreadyUsed
	}

	wallet, err = c.storage.Wallet().GetWallet(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return key, wallet, apperrors.NotFound("wallet")
	case err != nil:
		return key, wallet, apperrors.StoreFailure("load wallet", err)
	}

	return key, wallet, nil
}

func translate(err error) error {
	var sagaErr *saga.Error
	if !errors.As(err, &sagaErr) {
		return apperrors.StoreFailure("redeem", err)
	}

	if sagaErr.CompensationErr == nil && errors.Is(sagaErr.Err, apperrors.ErrAlreadyUsed) {
		return apperrors.ErrAlreadyUsed
	}

	return &apperrors.StoreFailureError{
		Step:            sagaErr.Step,
		Err:             sagaErr.Err,
		CompensationErr: sagaErr.CompensationErr,
	}
}
