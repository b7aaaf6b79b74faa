// Package handler exposes the order store, confirmation protocol, and chat
// service over HTTP. The viewer's identity comes from the X-User-ID header,
// standing in for the identity provider the prototype never had.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/bianshufei/meetnow/internal/chat"
	"github.com/bianshufei/meetnow/internal/confirm"
	"github.com/bianshufei/meetnow/internal/relay"
	"github.com/bianshufei/meetnow/internal/store"
)

const userIDHeader = "X-User-ID"

// Handler serves the MeetNow API routes.
type Handler struct {
	store   *store.Store
	confirm *confirm.Protocol
	chat    *chat.Service
	relay   *relay.Relay
}

// New constructs a Handler with its domain dependencies.
func New(st *store.Store, cp *confirm.Protocol, cs *chat.Service, rl *relay.Relay) *Handler {
	return &Handler{
		store:   st,
		confirm: cp,
		chat:    cs,
		relay:   rl,
	}
}

// Routes returns a mux with every API route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", h.createOrder)
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("POST /api/orders/{id}/take", h.takeOrder)
	mux.HandleFunc("POST /api/orders/{id}/status", h.updateStatus)

	mux.HandleFunc("GET /api/orders/{id}/confirm", h.confirmStatus)
	mux.HandleFunc("POST /api/orders/{id}/confirm", h.initiateConfirm)
	mux.HandleFunc("POST /api/orders/{id}/confirm/accept", h.acceptConfirm)
	mux.HandleFunc("POST /api/orders/{id}/confirm/reject", h.rejectConfirm)

	mux.HandleFunc("GET /api/orders/{id}/messages", h.listMessages)
	mux.HandleFunc("POST /api/orders/{id}/messages", h.sendMessage)
	mux.HandleFunc("POST /api/messages/{id}/retry", h.retryMessage)

	mux.HandleFunc("GET /api/events", h.streamEvents)

	return mux
}

// viewer extracts the caller's identity. It writes a 401 and returns false
// when the header is absent.
func (h *Handler) viewer(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := r.Header.Get(userIDHeader)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Code:    http.StatusUnauthorized,
			Message: "missing " + userIDHeader + " header",
		})
		return "", false
	}
	return uid, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
