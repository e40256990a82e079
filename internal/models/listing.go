package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ListingStatusActive  = "active"
	ListingStatusSold    = "sold"
	ListingStatusRemoved = "removed"
)

type Listing struct {
	ID        uuid.UUID
	SellerID  uuid.UUID
	Title     string
	Price     decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
