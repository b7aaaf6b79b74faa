package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bianshufei/meetnow/internal/confirm"
	"github.com/bianshufei/meetnow/internal/domain/order"
	"github.com/bianshufei/meetnow/internal/store"
)

type orderResponse struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	CreatorID     string          `json:"creator_id"`
	TakerID       string          `json:"taker_id,omitempty"`
	ScheduledTime time.Time       `json:"scheduled_time"`
	Location      string          `json:"location"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	ViewerRole    string          `json:"viewer_role,omitempty"`
}

func toOrderResponse(o order.Order, viewerID string) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		CreatorID:     o.CreatorID,
		TakerID:       o.TakerID,
		ScheduledTime: o.ScheduledTime,
		Location:      o.Location,
		Amount:        o.Amount,
		Description:   o.Description,
		CreatedAt:     o.CreatedAt,
	}
	if viewerID != "" {
		resp.ViewerRole = string(o.RoleOf(viewerID))
	}
	return resp
}

type createOrderRequest struct {
	ScheduledTime time.Time       `json:"scheduled_time"`
	Location      string          `json:"location"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: 400, Message: "invalid request body"})
		return
	}

	o, err := h.store.Create(store.CreateParams{
		CreatorID:     uid,
		ScheduledTime: req.ScheduledTime,
		Location:      req.Location,
		Amount:        req.Amount,
		Description:   req.Description,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o, uid))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	role := order.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = order.RoleCreator
	}
	if role != order.RoleCreator && role != order.RoleTaker {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: 400, Message: "role must be creator or taker"})
		return
	}

	status := order.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: 400, Message: "unknown status filter"})
		return
	}

	orders := h.store.List(store.Filter{ViewerID: uid, Role: role, Status: status})
	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = toOrderResponse(o, uid)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	o, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, uid))
}

func (h *Handler) takeOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	o, err := h.store.Take(r.PathValue("id"), uid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o, uid))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.viewer(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: 400, Message: "invalid request body"})
		return
	}
	next := order.Status(req.Status)
	if !next.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Code: 422, Message: "unknown status"})
		return
	}

	id := r.PathValue("id")
	o, err := h.store.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !o.IsParticipant(uid) {
		h.writeError(w, r, confirm.ErrNotParticipant)
		return
	}

	updated, err := h.store.UpdateStatus(id, next)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if next.Terminal() {
		// A finished or cancelled order can carry no handshake.
		h.confirm.Drop(id)
	}
	writeJSON(w, http.StatusOK, toOrderResponse(updated, uid))
}
