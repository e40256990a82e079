package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/apperrors"
	"github.com/nkiryanov/walletmart/internal/handlers/render"
	"github.com/nkiryanov/walletmart/internal/handlers/userctx"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
)

type redeemer interface {
	Redeem(ctx context.Context, userID uuid.UUID, code string) (models.Wallet, error)
}

func handleRedeem(rd redeemer, l logger.Logger) http.Handler {
	type request struct {
		KeyCode string `json:"key_code" validate:"required,notblank,max=64"`
	}

	type response struct {
		Success    bool        `json:"success"`
		Message    string      `json:"message"`
		NewBalance json.Number `json:"new_balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		wallet, err := rd.Redeem(r.Context(), user.ID, data.KeyCode)

		var notFound *apperrors.NotFoundError
		switch {
		case err == nil:
			render.JSON(w, response{
				Success:    true,
				Message:    "Balance key redeemed",
				NewBalance: render.Amount(wallet.Balance),
			})
		case errors.As(err, &notFound) && notFound.Resource == "balance key":
			render.ServiceError(w, "Invalid code", http.StatusBadRequest)
		default:
			renderError(w, l, err, http.StatusBadRequest)
		}
	})
}
