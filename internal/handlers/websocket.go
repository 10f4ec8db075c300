package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"messenger-sync/internal/middleware"
	"messenger-sync/internal/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub       *services.WSHub
	validator middleware.TokenValidator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, validator middleware.TokenValidator) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		validator: validator,
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	session, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.validator)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userIdentity := session.Identity()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(userIdentity, conn)
	defer h.hub.Unregister(userIdentity, conn)

	// watches outlive individual commands and are cancelled on unregister
	ctx := context.WithoutCancel(r.Context())

	log.Info().Str("identity", userIdentity).Msg("WebSocket connection established")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("identity", userIdentity).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Error().Err(err).Str("identity", userIdentity).Msg("Failed to parse WebSocket message")
			h.sendError(userIdentity, "Invalid message format")
			continue
		}

		if err := h.handleMessage(ctx, userIdentity, msg); err != nil {
			log.Error().Err(err).Str("identity", userIdentity).Str("type", msg.Type).Msg("Failed to handle message")
			h.sendError(userIdentity, err.Error())
		}
	}
}

// handleMessage processes incoming WebSocket commands
func (h *WebSocketHandler) handleMessage(ctx context.Context, userIdentity string, msg services.WSMessage) error {
	switch msg.Type {
	case services.WSWatchConversations:
		return h.hub.WatchConversations(ctx, userIdentity)
	case services.WSWatchMessages:
		if msg.ConversationID == "" {
			return fmt.Errorf("conversation_id is required")
		}
		return h.hub.WatchMessages(ctx, userIdentity, msg.ConversationID)
	case services.WSUnwatch:
		h.hub.Unwatch(userIdentity, msg.ConversationID)
		return nil
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// sendError sends an error message to a user
func (h *WebSocketHandler) sendError(userIdentity, message string) {
	err := h.hub.SendToUser(userIdentity, services.WSMessage{
		Type:    services.WSError,
		Message: message,
	})
	if err != nil {
		log.Error().Err(err).Str("identity", userIdentity).Msg("Failed to send error message")
	}
}
