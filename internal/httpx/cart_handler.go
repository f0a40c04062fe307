package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

type CartHandler struct {
	Ledger *ledger.Ledger
}

type AddCartItemReq struct {
	ListingID string `json:"listing_id"`
	Quantity  int    `json:"quantity"`
}

type SetQuantityReq struct {
	Quantity int `json:"quantity"`
}

type CartItemView struct {
	ID         string `json:"id"`
	ListingID  string `json:"listing_id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type CartView struct {
	ID         string         `json:"id"`
	Items      []CartItemView `json:"items"`
	TotalCents int64          `json:"total_cents"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.get)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items/{id}", h.setQuantity)
	r.Delete("/cart/items/{id}", h.removeItem)
	r.Delete("/cart", h.clear)
}

func toCartView(c *market.Cart) CartView {
	v := CartView{ID: c.ID, Items: make([]CartItemView, 0, len(c.Items))}
	for _, it := range c.Items {
		v.Items = append(v.Items, CartItemView{
			ID:         it.ID,
			ListingID:  it.ListingID,
			Title:      it.ListingTitle,
			PriceCents: it.ListingPriceCents,
			Quantity:   it.Quantity,
		})
		v.TotalCents += it.ListingPriceCents * int64(it.Quantity)
	}
	return v
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := h.Ledger.GetCart(ctx, uid)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartView(cart))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req AddCartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ListingID == "" || req.Quantity <= 0 {
		writeErr(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	item, err := h.Ledger.AddCartItem(ctx, uid, req.ListingID, req.Quantity)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CartItemView{
		ID:         item.ID,
		ListingID:  item.ListingID,
		Title:      item.ListingTitle,
		PriceCents: item.ListingPriceCents,
		Quantity:   item.Quantity,
	})
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req SetQuantityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Quantity <= 0 {
		writeErr(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.UpdateCartItem(ctx, uid, chi.URLParam(r, "id"), req.Quantity); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.RemoveCartItem(ctx, uid, chi.URLParam(r, "id")); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Ledger.ClearCart(ctx, uid); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
