package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tg-eats/checkout-gateway/internal/progress"
	"github.com/tg-eats/checkout-gateway/internal/storage/postgres"
)

// RegisterChatRoutes exposes per-chat state:
// - GET  /api/chats/{chat_id}/progress -> current waiting-screen snapshot
// - POST /api/chats/{chat_id}/cancel   -> stop the running reconciliation
// - GET  /api/chats/{chat_id}/orders   -> recent checkouts for the chat
func RegisterChatRoutes(mux *http.ServeMux, repo *postgres.Repository, board *progress.Board) {
	mux.Handle("/api/chats/", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleChats(repo, board, w, r)
	}), "chats-api"))
}

func handleChats(repo *postgres.Repository, board *progress.Board, w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		http.Error(w, "invalid path, expected: /api/chats/{chat_id}/(progress|cancel|orders)", http.StatusBadRequest)
		return
	}
	chatID, resource := parts[0], parts[1]

	switch resource {
	case "progress":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, ok := board.Get(chatID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"known": ok, "progress": snap})

	case "cancel":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cancelled := board.Cancel(chatID)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"cancelled": cancelled})

	case "orders":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if repo == nil || repo.DB == nil {
			http.Error(w, "db unavailable", http.StatusInternalServerError)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		rows, err := repo.ListRecent(r.Context(), chatID, limit)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"checkouts": rows})

	default:
		http.Error(w, "unknown resource", http.StatusNotFound)
	}
}
