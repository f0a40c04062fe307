package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-market-reservations.git/internal/ledger"
	"github.com/ariefcatur/go-market-reservations.git/internal/sweeper"
)

// DebugHandler exposes test-orchestration hooks. Only register it when the
// debug flag is on; these endpoints must never reach production.
type DebugHandler struct {
	Ledger  *ledger.Ledger
	Sweeper *sweeper.Sweeper
}

type AgeOrderReq struct {
	OrderID string `json:"order_id"`
	// AgeSeconds moves the deadline this far into the past.
	AgeSeconds int `json:"age_seconds"`
}

func (h *DebugHandler) Register(r *chi.Mux) {
	r.Post("/debug/age-order", h.ageOrder)
	r.Post("/debug/run-sweep", h.runSweep)
}

func (h *DebugHandler) ageOrder(w http.ResponseWriter, r *http.Request) {
	var req AgeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" {
		writeErr(w, http.StatusBadRequest, "missing order_id")
		return
	}
	if req.AgeSeconds <= 0 {
		req.AgeSeconds = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	expiresAt := time.Now().Add(-time.Duration(req.AgeSeconds) * time.Second)
	if err := h.Ledger.BackdateOrder(ctx, req.OrderID, expiresAt); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": req.OrderID, "expires_at": expiresAt})
}

func (h *DebugHandler) runSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	h.Sweeper.Sweep(ctx)
	w.WriteHeader(http.StatusNoContent)
}
