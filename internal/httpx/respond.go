package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainErr maps domain errors onto HTTP statuses. Unknown errors
// become a logged 500 with no internals leaked.
func writeDomainErr(w http.ResponseWriter, err error) {
	var insufficient *market.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient_stock",
			"listing_id": insufficient.ListingID,
			"requested":  insufficient.Requested,
			"available":  insufficient.Available,
		})
		return
	}
	switch {
	case errors.Is(err, market.ErrOrderNotFound), errors.Is(err, market.ErrListingNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, market.ErrCartEmpty):
		writeErr(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, market.ErrOwnListing):
		writeErr(w, http.StatusBadRequest, "cannot buy your own listing")
	case errors.Is(err, market.ErrNotRefundable):
		writeErr(w, http.StatusConflict, "order is not refundable")
	case errors.Is(err, market.ErrItemShipped):
		writeErr(w, http.StatusConflict, "order has shipped items")
	case errors.Is(err, market.ErrStaleTransition):
		writeErr(w, http.StatusConflict, "order state changed")
	case errors.Is(err, market.ErrPaymentMismatch):
		writeErr(w, http.StatusBadRequest, "payment reference mismatch")
	default:
		log.Error().Err(err).Msg("request failed")
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
