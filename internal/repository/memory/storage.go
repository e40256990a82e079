// Package memory is an in-memory repository.Storage.
//
// It honors the same contracts as the postgres storage and lets tests fail or interleave any
// mutating call deterministically.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/models"
	"github.com/nkiryanov/walletmart/internal/repository"
)

// Mutating operations that may be faulted or intercepted
type Op string

const (
	OpCreateOrder      Op = "order.create"
	OpDeleteOrder      Op = "order.delete"
	OpSetOrderStatus   Op = "order.set_status"
	OpUpdateBalance    Op = "wallet.update_balance"
	OpSetListingStatus Op = "listing.set_status"
	OpIncrementSales   Op = "profile.increment_sales"
	OpMarkKeyUsed      Op = "balance_key.mark_used"
)

type fault struct {
	op    Op
	id    uuid.UUID // uuid.Nil matches any record
	err   error
	times int // 0 means forever
}

type hook struct {
	op Op
	id uuid.UUID
	fn func()
}

type Storage struct {
	mu sync.Mutex

	profiles map[uuid.UUID]models.Profile
	wallets  map[uuid.UUID]models.Wallet // by user id
	listings map[uuid.UUID]models.Listing
	orders   map[uuid.UUID]models.Order
	keys     map[uuid.UUID]models.BalanceKey

	faults []*fault
	hooks  []hook
}

func NewStorage() *Storage {
	return &Storage{
		profiles: make(map[uuid.UUID]models.Profile),
		wallets:  make(map[uuid.UUID]models.Wallet),
		listings: make(map[uuid.UUID]models.Listing),
		orders:   make(map[uuid.UUID]models.Order),
		keys:     make(map[uuid.UUID]models.BalanceKey),
	}
}

var _ repository.Storage = (*Storage)(nil)

func (s *Storage) Profile() repository.ProfileRepo       { return &ProfileRepo{s: s} }
func (s *Storage) Wallet() repository.WalletRepo         { return &WalletRepo{s: s} }
func (s *Storage) Listing() repository.ListingRepo       { return &ListingRepo{s: s} }
func (s *Storage) Order() repository.OrderRepo           { return &OrderRepo{s: s} }
func (s *Storage) BalanceKey() repository.BalanceKeyRepo { return &BalanceKeyRepo{s: s} }

// Fail every call of op on record id with err (uuid.Nil for any record)
func (s *Storage) Fail(op Op, id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{op: op, id: id, err: err})
}

// Fail the next call of op on record id only
func (s *Storage) FailOnce(op Op, id uuid.UUID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{op: op, id: id, err: err, times: 1})
}

// Run fn right before the next call of op on record id
// fn runs without the storage lock, so it may call the storage itself (e.g. to play a concurrent writer)
func (s *Storage) BeforeOnce(op Op, id uuid.UUID, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook{op: op, id: id, fn: fn})
}

func (s *Storage) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
	s.hooks = nil
}

// Run pending hook and lock storage; returns injected error if any
// Caller must unlock storage
func (s *Storage) enter(op Op, id uuid.UUID) error {
	s.runHook(op, id)

	s.mu.Lock()
	for i, f := range s.faults {
		if f.op != op || (f.id != uuid.Nil && f.id != id) {
			continue
		}
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				s.faults = append(s.faults[:i], s.faults[i+1:]...)
			}
		}
		return f.err
	}
	return nil
}

func (s *Storage) runHook(op Op, id uuid.UUID) {
	s.mu.Lock()
	var fn func()
	for i, h := range s.hooks {
		if h.op == op && (h.id == uuid.Nil || h.id == id) {
			fn = h.fn
			s.hooks = append(s.hooks[:i], s.hooks[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}
