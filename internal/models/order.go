package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusCompleted = "completed"

	// Purchase was rolled back but the order row could not be removed
	OrderStatusFailed = "failed"
)

type Order struct {
	ID          uuid.UUID
	BuyerID     uuid.UUID
	SellerID    uuid.UUID
	ListingID   uuid.UUID
	Amount      decimal.Decimal
	Status      string
	CompletedAt time.Time
	CreatedAt   time.Time
}
