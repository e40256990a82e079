package balance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

// How many times a balance write is retried after losing a race to a concurrent writer
const DefaultRetries = 3

// Adjust adds delta to the wallet balance starting from the snapshot read earlier.
//
// The write is accepted only if nobody changed the wallet since the snapshot was taken. On
// conflict the wallet is re-read and the new balance recomputed, at most 'retries' times.
// Returns apperrors.ErrInsufficientFunds if the resulting balance would be negative.
func Adjust(ctx context.Context, wallets repository.WalletRepo, snapshot models.Wallet, delta decimal.Decimal, retries int) (models.Wallet, error) {
	current := snapshot

	for attempt := 0; ; attempt++ {
		balance := current.Balance.Add(delta)
		if balance.IsNegative() {
			return current, apperrors.ErrInsufficientFunds
		}

		updated, err := wallets.UpdateBalance(ctx, current.UserID, current.Version, balance)

		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, apperrors.ErrWalletVersionConflict) && attempt < retries:
			current, err = wallets.GetWallet(ctx, current.UserID)
			if err != nil {
				return current, fmt.Errorf("wallet re-read after conflict failed: %w", err)
			}
		default:
			return current, err
		}
	}
}

type Service struct {
	wallets repository.WalletRepo
}

func NewService(wallets repository.WalletRepo) *Service {
	return &Service{wallets: wallets}
}

// Get user wallet
// Returns *apperrors.NotFoundError if the user has no wallet
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	wallet, err := s.wallets.GetWallet(ctx, userID)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, apperrors.ErrWalletNotFound):
		return wallet, apperrors.NotFound("wallet")
	default:
		return wallet, apperrors.StoreFailure("load wallet", err)
	}
}
