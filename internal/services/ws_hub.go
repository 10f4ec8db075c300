package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"messenger-sync/internal/models"
	"messenger-sync/internal/repository"
)

// WebSocket message types
const (
	WSWatchConversations = "watch_conversations"
	WSWatchMessages      = "watch_messages"
	WSUnwatch            = "unwatch"
	WSConversations      = "conversations"
	WSMessages           = "messages"
	WSError              = "error"
)

// WSMessage is a command from a client or a delivery to it. Deliveries
// always carry the full list.
type WSMessage struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Message        string      `json:"message,omitempty"`
	Data           interface{} `json:"data,omitempty"`
}

const (
	// writeWait bounds a single write to a client
	writeWait = 10 * time.Second
	// sendBuffer is how many deliveries may wait for a slow client
	sendBuffer = 64
)

// ErrSlowClient is returned when a client's send buffer is full. The client
// is disconnected.
var ErrSlowClient = errors.New("client send buffer full")

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	watches map[string]*repository.Watch
}

func newWSClient(conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		watches: make(map[string]*repository.Watch),
	}
	go c.writePump()
	return c
}

// write queues message without blocking the caller
func (c *wsClient) write(message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSlowClient
	}
}

// writePump is the only writer of the connection
func (c *wsClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("WebSocket write failed")
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// WSHub manages WebSocket connections and the store watches opened through them
type WSHub struct {
	mu            sync.RWMutex
	clients       map[string]*wsClient
	conversations *ConversationService
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(conversations *ConversationService) *WSHub {
	return &WSHub{
		clients:       make(map[string]*wsClient),
		conversations: conversations,
	}
}

// Register registers a new WebSocket connection for a user, replacing any
// previous connection together with its watches.
func (h *WSHub) Register(userIdentity string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[userIdentity]; ok {
		closeClient(existing)
	}
	h.clients[userIdentity] = newWSClient(conn)

	log.Info().Str("identity", userIdentity).Msg("WebSocket connection registered")
}

// Unregister cancels the user's watches and closes the connection. It is a
// no-op when conn is no longer the user's registered connection.
func (h *WSHub) Unregister(userIdentity string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userIdentity]
	if !ok || client.conn != conn {
		return
	}
	closeClient(client)
	delete(h.clients, userIdentity)

	log.Info().Str("identity", userIdentity).Msg("WebSocket connection unregistered")
}

func closeClient(client *wsClient) {
	for key, w := range client.watches {
		w.Cancel()
		delete(client.watches, key)
	}
	client.close()
}

// SendToUser queues a message for a specific user. A user whose buffer is
// full is disconnected.
func (h *WSHub) SendToUser(userIdentity string, message WSMessage) error {
	h.mu.RLock()
	client, ok := h.clients[userIdentity]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userIdentity)
	}
	if err := client.write(message); err != nil {
		if errors.Is(err, ErrSlowClient) {
			log.Warn().Str("identity", userIdentity).Msg("Dropping slow WebSocket client")
			h.Unregister(userIdentity, client.conn)
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// IsOnline checks if a user is connected
func (h *WSHub) IsOnline(userIdentity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userIdentity]
	return ok
}

// WatchConversations streams the user's conversation list to their connection
func (h *WSHub) WatchConversations(ctx context.Context, userIdentity string) error {
	return h.watch(userIdentity, WSConversations, func() (*repository.Watch, error) {
		return h.conversations.WatchConversations(ctx, userIdentity, func(list []models.Conversation, err error) {
			if err != nil {
				log.Debug().Err(err).Str("identity", userIdentity).Msg("Conversation list unavailable")
				list = []models.Conversation{}
			}
			h.deliver(userIdentity, WSMessage{Type: WSConversations, Data: list})
		})
	})
}

// WatchMessages streams a conversation's messages to the user's connection
func (h *WSHub) WatchMessages(ctx context.Context, userIdentity, conversationID string) error {
	return h.watch(userIdentity, watchKey(conversationID), func() (*repository.Watch, error) {
		return h.conversations.WatchMessages(ctx, conversationID, func(list []models.Message, err error) {
			if err != nil {
				log.Debug().Err(err).Str("conversation_id", conversationID).Msg("Message list unavailable")
			}
			h.deliver(userIdentity, WSMessage{
				Type:           WSMessages,
				ConversationID: conversationID,
				Data:           MessageViews(list),
			})
		})
	})
}

// Unwatch cancels the conversation list watch, or the message watch of
// conversationID when it is set.
func (h *WSHub) Unwatch(userIdentity, conversationID string) {
	key := WSConversations
	if conversationID != "" {
		key = watchKey(conversationID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userIdentity]
	if !ok {
		return
	}
	if w, ok := client.watches[key]; ok {
		w.Cancel()
		delete(client.watches, key)
	}
}

func (h *WSHub) watch(userIdentity, key string, start func() (*repository.Watch, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[userIdentity]
	if !ok {
		return fmt.Errorf("user %s is not connected", userIdentity)
	}
	if existing, ok := client.watches[key]; ok {
		existing.Cancel()
	}

	w, err := start()
	if err != nil {
		delete(client.watches, key)
		return fmt.Errorf("failed to start watch: %w", err)
	}
	client.watches[key] = w
	return nil
}

func (h *WSHub) deliver(userIdentity string, message WSMessage) {
	if err := h.SendToUser(userIdentity, message); err != nil {
		log.Error().Err(err).Str("identity", userIdentity).Str("type", message.Type).Msg("Failed to deliver update")
	}
}

func watchKey(conversationID string) string {
	return WSMessages + ":" + conversationID
}
