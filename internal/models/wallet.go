package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Balance   decimal.Decimal
	Version   int64 // incremented on every balance write
	CreatedAt time.Time
	UpdatedAt time.Time
}
