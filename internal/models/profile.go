package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile shares its ID with the authenticated user
type Profile struct {
	ID         uuid.UUID
	Username   string
	IsBanned   bool
	TotalSales int64
	CreatedAt  time.Time
}

// Authenticated caller identity as taken from the bearer credential
type User struct {
	ID uuid.UUID
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
