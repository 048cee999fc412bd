package api

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

const msgPromoNotApplied = "Промокод не применён"

// RegisterPromocodeRoutes exposes POST /api/promocode, applying a code to the
// cart identified by the chat's upstream session.
func RegisterPromocodeRoutes(mux *http.ServeMux, client *commerce.Client) {
	mux.Handle("/api/promocode", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlePromocode(client, w, r)
	}), "promocode"))
}

func handlePromocode(client *commerce.Client, w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID       string `json:"chat_id"`
		Code         string `json:"code"`
		PlaceSlug    string `json:"place_slug"`
		ShippingType string `json:"shipping_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	res, err := client.ApplyPromocode(r.Context(), req.ChatID, req.Code, req.PlaceSlug, req.ShippingType)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{"applied": false, "message": msgPromoNotApplied})
		return
	}

	msg := res.Message
	if !res.OK && msg == "" {
		msg = msgPromoNotApplied
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"applied": res.OK, "message": msg})
}
