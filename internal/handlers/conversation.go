package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"messenger-sync/internal/codec"
	"messenger-sync/internal/identity"
	"messenger-sync/internal/middleware"
	"messenger-sync/internal/models"
	"messenger-sync/internal/services"
)

// ConversationHandler handles conversation-related HTTP requests
type ConversationHandler struct {
	conversations *services.ConversationService
	now           func() time.Time
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, now: time.Now}
}

// MessageInput is a message as sent by a client. Location messages may use
// latitude/longitude instead of content.
type MessageInput struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// CreateConversationRequest represents the request body for starting a conversation
type CreateConversationRequest struct {
	OtherUserEmail string       `json:"other_user_email"`
	Name           string       `json:"name"`
	Message        MessageInput `json:"message"`
}

// SendMessageRequest represents the request body for sending a message
type SendMessageRequest struct {
	OtherUserEmail string       `json:"other_user_email"`
	Name           string       `json:"name"`
	Message        MessageInput `json:"message"`
}

// message validates input through the codec so only storable kinds are accepted
func (h *ConversationHandler) message(session identity.Session, in MessageInput) (models.Message, error) {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.Type == string(models.KindLocation) && in.Latitude != nil && in.Longitude != nil {
		in.Content = strconv.FormatFloat(*in.Latitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(*in.Longitude, 'f', -1, 64)
	}

	now := h.now()
	msg, err := codec.Decode(models.MessageRecord{
		ID:          in.ID,
		Type:        in.Type,
		Content:     in.Content,
		Date:        codec.FormatDate(now),
		SenderEmail: session.Identity(),
		Name:        session.DisplayName,
	})
	if err != nil {
		return models.Message{}, err
	}
	msg.SentAt = now
	return msg, nil
}

// otherIdentity accepts either an email address or a safe identity
func otherIdentity(raw string) string {
	return identity.SafeIdentity(raw)
}

// ListConversations handles GET /api/v1/conversations. Failures degrade to an empty list.
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	conversations, err := h.conversations.GetAllConversations(ctx, session.Identity())
	if err != nil {
		log.Debug().Err(err).Str("identity", session.Identity()).Msg("No conversations")
		conversations = []models.Conversation{}
	}
	respondJSON(w, http.StatusOK, conversations)
}

// CreateConversation handles POST /api/v1/conversations
func (h *ConversationHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OtherUserEmail == "" || req.Name == "" {
		respondError(w, "other_user_email and name are required", http.StatusBadRequest)
		return
	}

	msg, err := h.message(session, req.Message)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	other := otherIdentity(req.OtherUserEmail)
	id, err := h.conversations.CreateConversation(ctx, session, other, req.Name, msg)
	if err != nil {
		log.Error().
			Err(err).
			Str("identity", session.Identity()).
			Str("other", other).
			Msg("Failed to create conversation")
		respondError(w, "Failed to create conversation", statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ConversationExists handles GET /api/v1/conversations/exists?email=
func (h *ConversationHandler) ConversationExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.URL.Query().Get("email")
	if email == "" {
		respondError(w, "email is required", http.StatusBadRequest)
		return
	}

	id, err := h.conversations.ConversationExists(ctx, middleware.GetSession(ctx), otherIdentity(email))
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Debug().Err(err).Msg("Conversation lookup failed")
		}
		respondError(w, "Conversation not found", http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

// DeleteConversation handles DELETE /api/v1/conversations/{conversation_id}
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)
	conversationID := chi.URLParam(r, "conversation_id")

	if err := h.conversations.DeleteConversation(ctx, session, conversationID); err != nil {
		log.Error().
			Err(err).
			Str("identity", session.Identity()).
			Str("conversation_id", conversationID).
			Msg("Failed to delete conversation")
		respondError(w, "Failed to delete conversation", statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/conversations/{conversation_id}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversation_id")

	messages, err := h.conversations.GetAllMessages(r.Context(), conversationID)
	if err != nil {
		log.Debug().Err(err).Str("conversation_id", conversationID).Msg("No messages")
	}
	respondJSON(w, http.StatusOK, services.MessageViews(messages))
}

// SendMessage handles POST /api/v1/conversations/{conversation_id}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)
	conversationID := chi.URLParam(r, "conversation_id")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OtherUserEmail == "" || req.Name == "" {
		respondError(w, "other_user_email and name are required", http.StatusBadRequest)
		return
	}

	msg, err := h.message(session, req.Message)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.conversations.SendMessage(ctx, session, conversationID, otherIdentity(req.OtherUserEmail), req.Name, msg)
	if err != nil {
		log.Error().
			Err(err).
			Str("identity", session.Identity()).
			Str("conversation_id", conversationID).
			Msg("Failed to send message")
		respondError(w, "Failed to send message", statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": msg.ID})
}
