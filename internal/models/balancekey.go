package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prepaid single-use code that credits Amount to a wallet
type BalanceKey struct {
	ID        uuid.UUID
	Code      string
	Amount    decimal.Decimal
	IsUsed    bool
	UsedBy    *uuid.UUID
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Codes are stored and looked up in this form only
func NormalizeKeyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
