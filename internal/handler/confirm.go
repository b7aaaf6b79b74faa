package handler

import (
	"net/http"
)

type confirmStatusResponse struct {
	State     string `json:"state"`
	Initiator string `json:"initiator,omitempty"`
}

func (h *Handler) confirmStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	// Surface a 404 for unknown orders rather than an empty handshake.
	if _, err := h.store.Get(r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	state, initiator := h.confirm.Status(r.PathValue("id"))
	writeJSON(w, http.StatusOK, confirmStatusResponse{
		State:     string(state),
		Initiator: initiator,
	})
}

func (h *Handler) initiateConfirm(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if err := h.confirm.Initiate(r.PathValue("id"), uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, confirmStatusResponse{State: "pending", Initiator: uid})
}

func (h *Handler) acceptConfirm(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := h.confirm.Accept(id, uid); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.store.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, uid))
}

func (h *Handler) rejectConfirm(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if err := h.confirm.Reject(r.PathValue("id"), uid); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmStatusResponse{State: "none"})
}
