package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/walletmart/internal/handlers/render"
	"github.com/nkiryanov/walletmart/internal/handlers/userctx"
	"github.com/nkiryanov/walletmart/internal/logger"
	"github.com/nkiryanov/walletmart/internal/models"
)

type purchaser interface {
	Purchase(ctx context.Context, buyerID uuid.UUID, listingID uuid.UUID) (models.Order, error)
}

func handlePurchase(p purchaser, l logger.Logger) http.Handler {
	type request struct {
		ListingID string `json:"listing_id" validate:"required,uuid"`
	}

	type response struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		OrderID uuid.UUID `json:"order_id"`
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
		listingID := uuid.MustParse(data.ListingID) // validated already

		order, err := p.Purchase(r.Context(), user.ID, listingID)
		if err != nil {
			renderError(w, l, err, http.StatusNotFound)
			return
		}

		render.JSON(w, response{
			Success: true,
			Message: "Purchase completed",
			OrderID: order.ID,
		})
	})
}
