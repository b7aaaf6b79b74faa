package handler

import (
	"net/http"
	"time"

	"github.com/bianshufei/meetnow/internal/chat"
)

type messageResponse struct {
	ID       string    `json:"id"`
	OrderID  string    `json:"order_id"`
	SenderID string    `json:"sender_id"`
	Kind     string    `json:"kind"`
	Body     string    `json:"body,omitempty"`
	SentAt   time.Time `json:"sent_at"`
	Delivery string    `json:"delivery"`
	Retries  int       `json:"retries"`
}

func toMessageResponse(m chat.Message) messageResponse {
	return messageResponse{
		ID:       m.ID,
		OrderID:  m.OrderID,
		SenderID: m.SenderID,
		Kind:     string(m.Kind),
		Body:     m.Body,
		SentAt:   m.SentAt,
		Delivery: string(m.Delivery),
		Retries:  m.Retries,
	}
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := h.store.Get(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	msgs := h.chat.History(id)
	resp := make([]messageResponse, len(msgs))
	for i, m := range msgs {
		resp[i] = toMessageResponse(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

type sendMessageRequest struct {
	Kind string `json:"kind"`
	Body string `json:"body"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: 400, Message: "invalid request body"})
		return
	}

	id := r.PathValue("id")
	if _, err := h.store.Get(id); err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.chat.Send(r.Context(), chat.SendRequest{
		OrderID:  id,
		SenderID: uid,
		Kind:     chat.Kind(req.Kind),
		Body:     req.Body,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

func (h *Handler) retryMessage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	msg, err := h.chat.Retry(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}
