package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/handlers/render"
	"github.com/nkiryanov/walletmart/internal/handlers/userctx"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
)

type walletService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)
}

func handleWallet(ws walletService, l logger.Logger) http.Handler {
	type response struct {
		Success   bool        `json:"success"`
		Balance   json.Number `json:"balance"`
		UpdatedAt time.Time   `json:"updated_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		wallet, err := ws.GetWallet(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err, http.StatusNotFound)
			return
		}

		render.JSON(w, response{
			Success:   true,
			Balance:   render.Amount(wallet.Balance),
			UpdatedAt: wallet.UpdatedAt,
		})
	})
}
