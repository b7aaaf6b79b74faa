package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// streamEvents serves the status-change feed over Server-Sent Events. Late
// subscribers get no replay; a client that cannot keep up misses events, in
// line with the relay's at-most-once delivery.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: 500, Message: "streaming unsupported"})
		return
	}

	events, cancel := h.relay.Subscribe(16)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-events:
			if !open {
				return
			}
			var e jx.Encoder
			e.ObjStart()
			e.FieldStart("order_id")
			e.Str(evt.OrderID)
			e.FieldStart("new_status")
			e.Str(string(evt.NewStatus))
			e.ObjEnd()

			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(e.Bytes()); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
