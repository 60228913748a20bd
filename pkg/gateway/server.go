package gateway

import (
	"log/slog"
	"net/http"

	"nhooyr.io/websocket"
)

// Handler returns an http.Handler that upgrades a request to a
// WebSocket connection and serves it for as long as the client stays
// connected, grounded on the agenterm example's websocket.Accept usage.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			h.log.ErrorContext(r.Context(), "gateway: websocket accept failed", slog.Any("error", err))
			return
		}

		sess, err := h.connect(r.Context())
		if err != nil {
			h.log.ErrorContext(r.Context(), "gateway: session create failed", slog.Any("error", err))
			ws.Close(websocket.StatusInternalError, "session create failed")
			return
		}

		c := &conn{hub: h, sess: sess, ws: ws}
		c.serve(r.Context())
	})
}
