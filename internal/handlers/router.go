package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/walletmart/internal/handlers/middleware"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type authService interface {
	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type Services struct {
	Auth     authService
	Purchase purchaser
	Redeem   redeemer
	Wallet   walletService

	// Replay guard for POST routes, may be nil
	Idempotency middleware.IdempotencyStore
}

func NewRouter(s Services, l logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(s.Auth)

	// Mutating routes: replay guard runs after auth, its keys are scoped to the user
	mutating := func(h http.Handler) http.Handler {
		if s.Idempotency == nil {
			return withAuth(h)
		}
		return chain(h, withAuth, middleware.IdempotencyMiddleware(s.Idempotency, l))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /purchase", mutating(handlePurchase(s.Purchase, l)))
	mux.Handle("POST /redeem", mutating(handleRedeem(s.Redeem, l)))
	mux.Handle("GET /wallet", withAuth(handleWallet(s.Wallet, l)))

	return chain(mux,
		middleware.LoggerMiddleware(l),
		middleware.CORSMiddleware(),
	)
}
