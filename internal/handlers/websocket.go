package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/metrics"
	"piccsync-backend/internal/middleware"
	"piccsync-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	writeWait  = 10 * time.Second
	readLimit  = 4096
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *services.WSHub
	auth     middleware.Authenticator
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. Origins are checked against the CORS allow-list.
func NewWebSocketHandler(hub *services.WSHub, auth middleware.Authenticator, cors config.CORSConfig) *WebSocketHandler {
	allowed := make(map[string]struct{}, len(cors.AllowedOrigins))
	for _, o := range cors.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return &WebSocketHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				_, wildcard := allowed["*"]
				return ok || wildcard
			},
		},
	}
}

// HandleWebSocket handles GET /api/ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "No token provided", http.StatusUnauthorized)
		return
	}

	identity, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			respondError(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		respondServiceError(w, r, err, "Authentication failed")
		return
	}
	userID := identity.ID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userID, conn)
	metrics.SetWSConnections(h.hub.Count())
	defer func() {
		h.hub.Unregister(userID, conn)
		metrics.SetWSConnections(h.hub.Count())
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(userID, "Invalid message format")
			continue
		}

		switch msg.Type {
		case services.EventPing:
			if err := h.hub.SendToUser(userID, services.WSMessage{Type: services.EventPong}); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to send pong")
			}
		default:
			h.sendError(userID, "Unknown message type")
		}
	}
}

// keepAlive sends control pings until done is closed
func (h *WebSocketHandler) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// sendError sends an error event to a user
func (h *WebSocketHandler) sendError(userID, message string) {
	msg := services.WSMessage{Type: services.EventError, Message: message}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send error event")
	}
}
