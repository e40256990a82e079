package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/handlers/render"
	"github.com/nkiryanov/walletmart/internal/logger"
)

// Render coordinator error with matching status code
// notFoundCode differs per route: missing resource of a redemption is a client mistake
func renderError(w http.ResponseWriter, l logger.Logger, err error, notFoundCode int) {
	var (
		notFound     *apperrors.NotFoundError
		invalidState *apperrors.InvalidStateError
	)

	switch {
	// Store failure may wrap a business error of the failed step, it is still a server error
	case errors.Is(err, apperrors.ErrStoreFailure):
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	case errors.Is(err, apperrors.ErrUnauthenticated):
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrBanned):
		render.ServiceError(w, "Account is banned", http.StatusForbidden)
	case errors.As(err, &notFound):
		render.ServiceError(w, notFound.Error(), notFoundCode)
	case errors.As(err, &invalidState):
		render.ServiceError(w, invalidState.Reason, http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		render.ServiceError(w, "Insufficient funds", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		render.ServiceError(w, "Balance key already used", http.StatusBadRequest)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
