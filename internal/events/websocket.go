package events

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// Handler streams hub events to WebSocket clients as JSON text messages.
// The optional "since" query parameter replays buffered events after that
// sequence number.
type Handler struct {
	hub            *Hub
	allowedOrigins []string
}

// NewHandler creates a WebSocket handler for hub. An empty origin list or
// a "*" entry accepts any origin.
func NewHandler(hub *Hub, allowedOrigins ...string) *Handler {
	return &Handler{hub: hub, allowedOrigins: allowedOrigins}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.hub.logger

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	var after uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		after = n
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	sub, replay := h.hub.Subscribe(after)
	defer sub.Close()

	// Clients only listen; CloseRead handles control frames and cancels
	// ctx once the peer goes away.
	ctx := ws.CloseRead(r.Context())
	logger.Info("Event stream connected", "ip", r.RemoteAddr, "replay", len(replay))

	for _, e := range replay {
		if err := writeEvent(ctx, ws, e); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Event stream closed by client", "ip", r.RemoteAddr)
			return
		case e, ok := <-sub.C:
			if !ok {
				_ = ws.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := writeEvent(ctx, ws, e); err != nil {
				logger.Debug("Event stream write error", "error", err)
				return
			}
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.hub.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func writeEvent(ctx context.Context, ws *websocket.Conn, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
