package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tg-eats/checkout-gateway/internal/checkout"
	"github.com/tg-eats/checkout-gateway/internal/commerce"
	"github.com/tg-eats/checkout-gateway/internal/progress"
	"github.com/tg-eats/checkout-gateway/internal/storage/postgres"
)

// RegisterCheckoutRoutes wires the checkout endpoints into the provided mux.
// POST /api/checkout submits synchronously and reconciles in the background;
// GET /api/checkout/{order_id} reads the persisted row.
func RegisterCheckoutRoutes(mux *http.ServeMux, eng *checkout.Engine, repo *postgres.Repository, board *progress.Board) {
	mux.Handle("/api/checkout", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleCheckoutCreate(eng, board, w, r)
	}), "checkout-create"))

	mux.Handle("/api/checkout/", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleCheckoutGet(repo, w, r)
	}), "checkout-get"))
}

type checkoutRequest struct {
	ChatID string          `json:"chat_id"`
	Order  json.RawMessage `json:"order"`
}

func handleCheckoutCreate(eng *checkout.Engine, board *progress.Board, w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || len(req.Order) == 0 {
		http.Error(w, "chat_id and order are required", http.StatusBadRequest)
		return
	}

	sig := board.Signal(req.ChatID)
	sig.Show(checkout.MsgCreatingOrder)

	orderID, err := eng.Submit(r.Context(), req.ChatID, commerce.OrderPayload(req.Order))
	if err != nil {
		sig.Hide()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
		return
	}

	sig.Update(checkout.MsgAwaitingPay)

	// Reconciliation outlives the request; the board holds the cancel
	// handle so a later cancel call can stop it.
	ctx, cancel := context.WithCancel(context.Background())
	detach := board.Attach(req.ChatID, cancel)
	go func() {
		defer detach()
		defer cancel()
		if err := eng.Reconcile(ctx, orderID, req.ChatID, sig, checkout.Callbacks{}); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[api] reconcile %s: %v", orderID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"order_id": orderID})
}

func handleCheckoutGet(repo *postgres.Repository, w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimPrefix(r.URL.Path, "/api/checkout/")
	if orderID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	if repo == nil || repo.DB == nil {
		http.Error(w, "db unavailable", http.StatusInternalServerError)
		return
	}

	row, err := repo.GetCheckout(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "checkout not found", http.StatusNotFound)
			return
		}
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(row)
}
