package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/models"
)

const (
	authHeaderName = "Authorization"
	bearerPrefix   = "Bearer "
)

type accessParser interface {
	// Parse and validate access token, return user id it was issued for
	ParseAccess(access string) (uuid.UUID, error)
}

// Auth service verifies bearer credentials, it never issues them
type AuthService struct {
	tokens accessParser
}

func NewService(tokens accessParser) *AuthService {
	return &AuthService{tokens: tokens}
}

// Get user from 'Authorization: Bearer <token>' header
// Returns apperrors.ErrUnauthenticated if the header is missing or the token is invalid
func (s *AuthService) Auth(_ context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(authHeaderName)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return models.User{}, apperrors.ErrUnauthenticated
	}

	access := strings.TrimSpace(header[len(bearerPrefix):])
	if access == "" {
		return models.User{}, apperrors.ErrUnauthenticated
	}

	userID, err := s.tokens.ParseAccess(access)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthenticated, err)
	}

	return models.User{ID: userID}, nil
}
