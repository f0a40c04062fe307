package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-market-reservations.git/internal/engine"
	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

type ListingsHandler struct {
	Ledger *ledger.Ledger
	Engine *engine.Engine
}

type CreateListingReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Quantity    int    `json:"quantity"`
}

type UpdateListingReq struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	Quantity    *int    `json:"quantity"`
}

type ListingView struct {
	ID             string `json:"id"`
	SellerID       string `json:"seller_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	PriceCents     int64  `json:"price_cents"`
	Status         string `json:"status"`
	IsActive       bool   `json:"is_active"`
	AvailableStock *int   `json:"available_stock,omitempty"`
	ReservedStock  *int   `json:"reserved_stock,omitempty"`
}

func (h *ListingsHandler) Register(r *chi.Mux) {
	r.Post("/listings", h.create)
	r.Get("/listings", h.listMine)
	r.Get("/listings/{id}", h.get)
	r.Patch("/listings/{id}", h.update)
	r.Delete("/listings/{id}", h.softDelete)
}

func toListingView(li *market.Listing) ListingView {
	return ListingView{
		ID:          li.ID,
		SellerID:    li.SellerID,
		Title:       li.Title,
		Description: li.Description,
		PriceCents:  li.PriceCents,
		Status:      string(li.Status),
		IsActive:    li.IsActive,
	}
}

func (h *ListingsHandler) create(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req CreateListingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" || req.PriceCents <= 0 || req.Quantity < 0 {
		writeErr(w, http.StatusBadRequest, "missing or invalid fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	li, err := h.Ledger.CreateListing(ctx, market.Listing{
		SellerID:      uid,
		Title:         req.Title,
		Description:   req.Description,
		PriceCents:    req.PriceCents,
		TotalQuantity: req.Quantity,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingView(li))
}

func (h *ListingsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	li, err := h.Ledger.GetListing(ctx, id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	view := toListingView(li)
	if avail, err := h.Engine.AvailableStock(ctx, id); err == nil {
		view.AvailableStock = &avail
	} else {
		var integrity *market.IntegrityError
		if errors.As(err, &integrity) {
			log.Error().Str("listing_id", id).Int("available", integrity.Available).
				Msg("listing shows negative stock")
		}
		zero := 0
		view.AvailableStock = &zero
	}
	// sellers also see how much of their stock is held by open orders
	if userID(r) == li.SellerID {
		if reserved, err := h.Ledger.ReservedStock(ctx, id); err == nil {
			view.ReservedStock = &reserved
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ListingsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	list, err := h.Ledger.ListListingsBySeller(ctx, uid, includeInactive)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]ListingView, 0, len(list))
	for i := range list {
		out = append(out, toListingView(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ListingsHandler) update(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req UpdateListingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	li, err := h.Ledger.UpdateListing(ctx, chi.URLParam(r, "id"), uid, ledger.ListingUpdate{
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Quantity:    req.Quantity,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingView(li))
}

func (h *ListingsHandler) softDelete(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Ledger.SoftDeleteListing(ctx, chi.URLParam(r, "id"), uid); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
