package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/handlers/render"
	"github.com/nkiryanov/walletmart/internal/handlers/userctx"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	maxIdempotencyKeyLen = 128
)

type IdempotencyStore interface {
	Key(userID uuid.UUID, route string, clientKey string) string

	// Reserve key, false if it is reserved already
	Acquire(ctx context.Context, key string) (bool, error)

	Release(ctx context.Context, key string) error
}

type warnLogger interface {
	Warn(msg string, args ...any)
}

// IdempotencyMiddleware rejects repeated requests carrying the same Idempotency-Key.
// Must run after AuthMiddleware. Requests without the header pass as is.
// A request that failed on the server side releases its key, so it may be retried.
// If the store is unavailable requests pass unguarded.
func IdempotencyMiddleware(store IdempotencyStore, l warnLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				render.ServiceError(w, "Idempotency key too long", http.StatusBadRequest)
				return
			}

			user, ok := userctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			key := store.Key(user.ID, r.URL.Path, clientKey)
			acquired, err := store.Acquire(r.Context(), key)
			switch {
			case err != nil:
				l.Warn("Idempotency store unavailable, request not guarded", "error", err)
				next.ServeHTTP(w, r)
				return
			case !acquired:
				render.ServiceError(w, "Duplicate request", http.StatusConflict)
				return
			}

			lw := newLogWriter(w)
			next.ServeHTTP(lw, r)

			if lw.data.responseStatus >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(r.Context()), key); err != nil {
					l.Warn("Idempotency key not released", "key", key, "error", err)
				}
			}
		})
	}
}
