package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

type ProfileRepo struct {
	s *Storage
}

func (r *ProfileRepo) CreateProfile(_ context.Context, id uuid.UUID, username string) (models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.profiles {
		if p.ID == id || p.Username == username {
			return models.Profile{}, fmt.Errorf("profile already exists: %s", username)
		}
	}

	p := models.Profile{ID: id, Username: username, CreatedAt: time.Now()}
	r.s.profiles[id] = p
	return p, nil
}

func (r *ProfileRepo) GetProfile(_ context.Context, id uuid.UUID) (models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return p, apperrors.ErrProfileNotFound
	}
	return p, nil
}

func (r *ProfileRepo) SetBanned(_ context.Context, id uuid.UUID, banned bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return apperrors.ErrProfileNotFound
	}
	p.IsBanned = banned
	r.s.profiles[id] = p
	return nil
}

func (r *ProfileRepo) IncrementSales(_ context.Context, id uuid.UUID) error {
	if err := r.s.enter(OpIncrementSales, id); err != nil {
		r.s.mu.Unlock()
		return err
	}
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return apperrors.ErrProfileNotFound
	}
	p.TotalSales++
	r.s.profiles[id] = p
	return nil
}

type WalletRepo struct {
	s *Storage
}

func (r *WalletRepo) CreateWallet(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.wallets[userID]; ok {
		return models.Wallet{}, apperrors.ErrWalletExists
	}

	now := time.Now()
	w := models.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	r.s.wallets[userID] = w
	return w, nil
}

func (r *WalletRepo) GetWallet(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	w, ok := r.s.wallets[userID]
	if !ok {
		return w, apperrors.ErrWalletNotFound
	}
	return w, nil
}

func (r *WalletRepo) UpdateBalance(_ context.Context, userID uuid.UUID, expectedVersion int64, balance decimal.Decimal) (models.Wallet, error) {
	if err := r.s.enter(OpUpdateBalance, userID); err != nil {
		r.s.mu.Unlock()
		return models.Wallet{}, err
	}
	defer r.s.mu.Unlock()

	if balance.IsNegative() {
		return models.Wallet{}, apperrors.ErrInsufficientFunds
	}

	w, ok := r.s.wallets[userID]
	if !ok || w.Version != expectedVersion {
		return models.Wallet{}, apperrors.ErrWalletVersionConflict
	}

	w.Balance = balance
	w.Version++
	w.UpdatedAt = time.Now()
	r.s.wallets[userID] = w
	return w, nil
}

type ListingRepo struct {
	s *Storage
}

func (r *ListingRepo) CreateListing(_ context.Context, sellerID uuid.UUID, price decimal.Decimal, opts ...repository.CreateListingOption) (models.Listing, error) {
	now := time.Now()
	l := models.Listing{
		ID:        uuid.New(),
		SellerID:  sellerID,
		Price:     price,
		Status:    models.ListingStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, option := range opts {
		option(&l)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.listings[l.ID] = l
	return l, nil
}

func (r *ListingRepo) GetListing(_ context.Context, id uuid.UUID) (models.Listing, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.listings[id]
	if !ok {
		return l, apperrors.ErrListingNotFound
	}
	return l, nil
}

func (r *ListingRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	if err := r.s.enter(OpSetListingStatus, id); err != nil {
		r.s.mu.Unlock()
		return err
	}
	defer r.s.mu.Unlock()

	l, ok := r.s.listings[id]
	if !ok {
		return apperrors.ErrListingNotFound
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	r.s.listings[id] = l
	return nil
}

type OrderRepo struct {
	s *Storage
}

func (r *OrderRepo) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	if err := r.s.enter(OpCreateOrder, o.ListingID); err != nil {
		r.s.mu.Unlock()
		return models.Order{}, err
	}
	defer r.s.mu.Unlock()

	for _, existing := range r.s.orders {
		if existing.ListingID == o.ListingID && existing.Status == models.OrderStatusCompleted && o.Status == models.OrderStatusCompleted {
			return models.Order{}, apperrors.ErrListingSold
		}
	}

	r.s.orders[o.ID] = o
	return o, nil
}

func (r *OrderRepo) GetOrder(_ context.Context, id uuid.UUID) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return o, apperrors.ErrOrderNotFound
	}
	return o, nil
}

func (r *OrderRepo) DeleteOrder(_ context.Context, id uuid.UUID) error {
	if err := r.s.enter(OpDeleteOrder, id); err != nil {
		r.s.mu.Unlock()
		return err
	}
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[id]; !ok {
		return apperrors.ErrOrderNotFound
	}
	delete(r.s.orders, id)
	return nil
}

func (r *OrderRepo) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	if err := r.s.enter(OpSetOrderStatus, id); err != nil {
		r.s.mu.Unlock()
		return err
	}
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return apperrors.ErrOrderNotFound
	}
	o.Status = status
	r.s.orders[id] = o
	return nil
}

func (r *OrderRepo) ListOrders(_ context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	orders := make([]models.Order, 0)
	for _, o := range r.s.orders {
		if opts.BuyerID != nil && o.BuyerID != *opts.BuyerID {
			continue
		}
		if opts.ListingID != nil && o.ListingID != *opts.ListingID {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, o.Status) {
			continue
		}
		if opts.ListingStatus != nil && r.s.listings[o.ListingID].Status != *opts.ListingStatus {
			continue
		}
		if opts.CreatedBefore != nil && !o.CreatedAt.Before(*opts.CreatedBefore) {
			continue
		}
		orders = append(orders, o)
	}

	slices.SortFunc(orders, func(a, b models.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if opts.Limit > 0 && len(orders) > opts.Limit {
		orders = orders[:opts.Limit]
	}
	return orders, nil
}

type BalanceKeyRepo struct {
	s *Storage
}

func (r *BalanceKeyRepo) CreateBalanceKey(_ context.Context, code string, amount decimal.Decimal) (models.BalanceKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	code = models.NormalizeKeyCode(code)
	for _, k := range r.s.keys {
		if k.Code == code {
			return models.BalanceKey{}, apperrors.ErrBalanceKeyExists
		}
	}

	k := models.BalanceKey{ID: uuid.New(), Code: code, Amount: amount, CreatedAt: time.Now()}
	r.s.keys[k.ID] = k
	return k, nil
}

func (r *BalanceKeyRepo) GetByCode(_ context.Context, code string) (models.BalanceKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, k := range r.s.keys {
		if k.Code == code {
			return k, nil
		}
	}
	return models.BalanceKey{}, apperrors.ErrBalanceKeyNotFound
}

func (r *BalanceKeyRepo) MarkUsed(_ context.Context, id uuid.UUID, userID uuid.UUID, usedAt time.Time) (models.BalanceKey, error) {
	if err := r.s.enter(OpMarkKeyUsed, id); err != nil {
		r.s.mu.Unlock()
		return models.BalanceKey{}, err
	}
	defer r.s.mu.Unlock()

	k, ok := r.s.keys[id]
	switch {
	case !ok:
		return k, apperrors.ErrBalanceKeyNotFound
	case k.IsUsed:
		return k, apperrors.ErrAlreadyUsed
	}

	k.IsUsed = true
	k.UsedBy = &userID
	k.UsedAt = &usedAt
	r.s.keys[id] = k
	return k, nil
}
