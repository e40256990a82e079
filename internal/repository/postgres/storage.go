package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/walletmart/internal/repository"
)

// Implemented by *pgxpool.Pool and pgx.Tx both
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) *Storage {
	return &Storage{db: db}
}

func (s *Storage) Profile() repository.ProfileRepo {
	return &ProfileRepo{DB: s.db}
}

func (s *Storage) Wallet() repository.WalletRepo {
	return &WalletRepo{DB: s.db}
}

func (s *Storage) Listing() repository.ListingRepo {
	return &ListingRepo{DB: s.db}
}

func (s *Storage) Order() repository.OrderRepo {
	return &OrderRepo{DB: s.db}
}

func (s *Storage) BalanceKey() repository.BalanceKeyRepo {
	return &BalanceKeyRepo{DB: s.db}
}
