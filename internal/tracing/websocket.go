package tracing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/prasenjit/edgerules/internal/models"
)

// WebSocketHandler streams live traces over a WebSocket
type WebSocketHandler struct {
	service  *Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(service *Service, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &WebSocketHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the connection and streams traces. The kind, method
// and path query parameters filter the stream.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.TraceFilter{
		Kind:   q.Get("kind"),
		Method: q.Get("method"),
		Path:   q.Get("path"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	subID, traceChan := h.service.Subscribe()
	defer h.service.Unsubscribe(subID)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	// Reads only detect the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case trace, ok := <-traceChan:
			if !ok {
				return
			}
			if !Matches(trace, filter) {
				continue
			}

			data, err := json.Marshal(trace)
			if err != nil {
				h.logger.Error("failed to marshal trace", zap.String("id", trace.ID), zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("trace stream closed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
