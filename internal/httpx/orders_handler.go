package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/engine"
	"github.com/ariefcatur/go-market-reservations.git/internal/market"
)

type OrdersHandler struct {
	Engine *engine.Engine
}

type CheckoutReq struct {
	Email   string `json:"email"`
	Address string `json:"address"`
}

type OrderItemView struct {
	ID           string `json:"id"`
	ListingID    string `json:"listing_id"`
	Title        string `json:"title"`
	PriceCents   int64  `json:"price_cents"`
	Quantity     int    `json:"quantity"`
	State        string `json:"state"`
	TrackingCode string `json:"tracking_code,omitempty"`
}

type OrderView struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	TotalCents   int64           `json:"total_cents"`
	CreatedAt    time.Time       `json:"created_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Items        []OrderItemView `json:"items"`
	ClientSecret string          `json:"client_secret,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.checkout)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/refund", h.refund)
	r.Post("/orders/{id}/mark-shipped", h.markShipped)
}

func toOrderView(o *market.Order, clientSecret string) OrderView {
	v := OrderView{
		ID:           o.ID,
		Status:       string(o.Status),
		TotalCents:   o.TotalCents,
		CreatedAt:    o.CreatedAt,
		ExpiresAt:    o.ExpiresAt,
		Items:        make([]OrderItemView, 0, len(o.Items)),
		ClientSecret: clientSecret,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, OrderItemView{
			ID:           it.ID,
			ListingID:    it.ListingID,
			Title:        it.SnapshotListingTitle,
			PriceCents:   it.SnapshotPriceCents,
			Quantity:     it.Quantity,
			State:        string(it.State),
			TrackingCode: it.TrackingCode,
		})
	}
	return v
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Email == "" || req.Address == "" {
		writeErr(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, clientSecret, err := h.Engine.CreateOrder(ctx, engine.Buyer{ID: uid, Email: req.Email, Address: req.Address})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(order, clientSecret))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sellerView := r.URL.Query().Get("view") == "sales"
	list, err := h.Engine.ListOrders(ctx, uid, sellerView)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]OrderView, 0, len(list))
	for i := range list {
		out = append(out, toOrderView(&list[i], ""))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, clientSecret, err := h.Engine.GetOrder(ctx, chi.URLParam(r, "id"), uid)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order, clientSecret))
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.Engine.Refund(ctx, chi.URLParam(r, "id"), uid); err != nil {
		writeDomainErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ShipReq struct {
	ItemIDs      []string `json:"item_ids"`
	TrackingCode string   `json:"tracking_code"`
}

func (h *OrdersHandler) markShipped(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "missing identity")
		return
	}
	var req ShipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.ItemIDs) == 0 || req.TrackingCode == "" {
		writeErr(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	shipped, err := h.Engine.MarkShipped(ctx, chi.URLParam(r, "id"), uid, req.ItemIDs, req.TrackingCode)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"shipped": shipped})
}
