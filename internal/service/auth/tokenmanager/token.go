package tokenmanager

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/models"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"

	// Length of generated secret keys
	SecretKeyBytesLen = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"uid"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration
}

type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	accessTTL time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if _, ok := alg.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing method %q, only HMAC ones allowed", cfg.Alg)
	}

	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       cfg.SecretKey,
		alg:       alg,
		accessTTL: cfg.AccessTTL,
	}, nil
}

// Issue signed access token for the user
func (m *TokenManager) Issue(userID uuid.UUID) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID: userID,
		},
	)
	access, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
func (m *TokenManager) ParseAccess(access string) (userID uuid.UUID, err error) {
	claims := &AccessTokenClaims{}

	_, err = jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return []byte(m.key), nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error while parsing or validating token. Err: %w", err)
	}

	if claims.UserID == uuid.Nil {
		return uuid.Nil, errors.New("token has no user id")
	}

	return claims.UserID, nil
}

// Generate random hex encoded secret key suitable for Config.SecretKey
func GenerateSecret() (string, error) {
	b := make([]byte, SecretKeyBytesLen)

	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("error while generating secret key: %w", err)
	}

	return hex.EncodeToString(b), nil
}
