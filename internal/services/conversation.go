package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"messenger-sync/internal/codec"
	"messenger-sync/internal/identity"
	"messenger-sync/internal/models"
	"messenger-sync/internal/repository"
)

const conversationIDPrefix = "conversation_"

// MessageNotifier is told about messages delivered to a recipient
type MessageNotifier interface {
	NotifyNewMessage(ctx context.Context, recipient, senderName, preview string)
}

// ConversationService keeps conversation summaries and message lists in the
// document store. Every participant owns an independent copy of each
// summary; nothing here coordinates concurrent writers.
type ConversationService struct {
	store    DocumentStore
	notifier MessageNotifier
}

// NewConversationService creates a new conversation service. notifier may be nil.
func NewConversationService(store DocumentStore, notifier MessageNotifier) *ConversationService {
	return &ConversationService{store: store, notifier: notifier}
}

// ConversationID derives the id of a conversation from its first message
func ConversationID(firstMessageID string) string {
	return conversationIDPrefix + firstMessageID
}

// CreateConversation starts a conversation with otherIdentity whose display
// name is otherName. The recipient's summary is appended first and a failure
// there is only logged. The sender's root document and then the message list
// are written after it. A conversation whose message list already exists is
// rejected with models.ErrConversationExists.
func (s *ConversationService) CreateConversation(
	ctx context.Context,
	session identity.Session,
	otherIdentity, otherName string,
	first models.Message,
) (string, error) {
	self := session.Identity()

	if err := checkKey("identity", otherIdentity); err != nil {
		return "", err
	}
	if err := checkKey("message id", first.ID); err != nil {
		return "", err
	}
	if otherIdentity == self {
		return "", models.ErrSelfConversation
	}

	raw, err := s.store.Get(ctx, self)
	if err != nil {
		return "", fmt.Errorf("failed to read user %s: %w: %w", self, models.ErrUserNotFound, err)
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil || root == nil {
		return "", fmt.Errorf("failed to read user %s: %w", self, models.ErrUserNotFound)
	}

	conversationID := ConversationID(first.ID)
	switch _, err := s.store.Get(ctx, conversationID); {
	case err == nil:
		return "", fmt.Errorf("%s: %w", conversationID, models.ErrConversationExists)
	case !errors.Is(err, models.ErrNotFound):
		return "", fetchFailed(conversationID, err)
	}
	latest := codec.Latest(first)

	senderSummary := models.Conversation{
		ID:             conversationID,
		OtherUserEmail: otherIdentity,
		Name:           otherName,
		LatestMessage:  latest,
	}
	recipientSummary := models.Conversation{
		ID:             conversationID,
		OtherUserEmail: self,
		Name:           session.DisplayName,
		LatestMessage:  latest,
	}

	if err := s.appendSummary(ctx, otherIdentity, recipientSummary); err != nil {
		log.Error().
			Err(err).
			Str("conversation_id", conversationID).
			Str("recipient", otherIdentity).
			Msg("Failed to add conversation to recipient")
	}

	entry, err := json.Marshal(senderSummary)
	if err != nil {
		return "", fmt.Errorf("failed to encode conversation: %w", err)
	}
	var conversations []json.RawMessage
	if existing, ok := root["conversations"]; ok {
		conversations, err = codec.DecodeList(existing, "conversations")
		if err != nil {
			log.Debug().Err(err).Str("identity", self).Msg("Replacing malformed conversation list")
		}
	}
	conversations = append(conversations, entry)

	root["conversations"], err = json.Marshal(conversations)
	if err != nil {
		return "", fmt.Errorf("failed to encode conversations: %w", err)
	}
	if err := s.store.Set(ctx, self, root); err != nil {
		return "", writeFailed(self, err)
	}

	thread := models.MessageThread{Messages: []models.MessageRecord{codec.Encode(first)}}
	if err := s.store.Set(ctx, conversationID, thread); err != nil {
		return "", writeFailed(conversationID, err)
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("sender", self).
		Str("recipient", otherIdentity).
		Msg("Conversation created")

	s.notify(ctx, otherIdentity, session, first)
	return conversationID, nil
}

// SendMessage appends message to an existing conversation and then rewrites
// the latest message of the sender's summary followed by the recipient's.
// The two summary updates are independent; if the second fails the first
// stays written.
func (s *ConversationService) SendMessage(
	ctx context.Context,
	session identity.Session,
	conversationID, otherIdentity, otherName string,
	message models.Message,
) error {
	if err := checkKey("conversation id", conversationID); err != nil {
		return err
	}
	if err := checkKey("identity", otherIdentity); err != nil {
		return err
	}
	if err := checkKey("message id", message.ID); err != nil {
		return err
	}
	path := messagesPath(conversationID)

	raw, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to read %s: %w", path, models.ErrNoMessages)
		}
		return fetchFailed(path, err)
	}
	messages, err := codec.DecodeList(raw, "messages")
	if err != nil {
		return fetchFailed(path, err)
	}

	record, err := json.Marshal(codec.Encode(message))
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	messages = append(messages, record)
	if err := s.store.Set(ctx, path, messages); err != nil {
		return writeFailed(path, err)
	}

	self := session.Identity()
	latest := codec.Latest(message)

	if err := s.updateLatest(ctx, self, models.Conversation{
		ID:             conversationID,
		OtherUserEmail: otherIdentity,
		Name:           otherName,
		LatestMessage:  latest,
	}); err != nil {
		return err
	}

	if err := s.updateLatest(ctx, otherIdentity, models.Conversation{
		ID:             conversationID,
		OtherUserEmail: self,
		Name:           session.DisplayName,
		LatestMessage:  latest,
	}); err != nil {
		return err
	}

	log.Debug().
		Str("conversation_id", conversationID).
		Str("message_id", message.ID).
		Msg("Message sent")

	s.notify(ctx, otherIdentity, session, message)
	return nil
}

// DeleteConversation removes the first summary with id from the session
// user's list. The counterpart's copy and the message list are untouched.
// An unknown id writes the list back unchanged.
func (s *ConversationService) DeleteConversation(ctx context.Context, session identity.Session, conversationID string) error {
	path := conversationsPath(session.Identity())

	raw, err := s.store.Get(ctx, path)
	if err != nil {
		return fetchFailed(path, err)
	}
	entries, err := codec.DecodeList(raw, "conversations")
	if err != nil {
		return fetchFailed(path, err)
	}

	for i, entry := range entries {
		if codec.EntryID(entry) == conversationID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if err := s.store.Set(ctx, path, entries); err != nil {
		return writeFailed(path, err)
	}

	log.Info().Str("conversation_id", conversationID).Str("identity", session.Identity()).Msg("Conversation deleted")
	return nil
}

// ConversationExists looks in targetIdentity's own list for a conversation
// whose counterpart is the session user. It returns models.ErrNotFound when
// there is none.
func (s *ConversationService) ConversationExists(ctx context.Context, session identity.Session, targetIdentity string) (string, error) {
	if err := checkKey("identity", targetIdentity); err != nil {
		return "", err
	}
	path := conversationsPath(targetIdentity)

	raw, err := s.store.Get(ctx, path)
	if err != nil {
		return "", fetchFailed(path, err)
	}
	conversations, err := codec.DecodeConversations(raw)
	if err != nil {
		return "", fetchFailed(path, err)
	}

	self := session.Identity()
	for _, c := range conversations {
		if c.OtherUserEmail == self {
			return c.ID, nil
		}
	}
	return "", models.ErrNotFound
}

// GetAllConversations returns the decoded conversation list of a user
func (s *ConversationService) GetAllConversations(ctx context.Context, userIdentity string) ([]models.Conversation, error) {
	path := conversationsPath(userIdentity)

	raw, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, fetchFailed(path, err)
	}
	conversations, err := codec.DecodeConversations(raw)
	if err != nil {
		return nil, fetchFailed(path, err)
	}
	return conversations, nil
}

// GetAllMessages returns the decoded messages of a conversation
func (s *ConversationService) GetAllMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	path := messagesPath(conversationID)

	raw, err := s.store.Get(ctx, path)
	if err != nil {
		return nil, fetchFailed(path, err)
	}
	messages, err := codec.DecodeMessages(raw)
	if err != nil {
		return nil, fetchFailed(path, err)
	}
	return messages, nil
}

// WatchConversations delivers the full conversation list of a user on every
// change until the watch is cancelled.
func (s *ConversationService) WatchConversations(
	ctx context.Context,
	userIdentity string,
	onChange func([]models.Conversation, error),
) (*repository.Watch, error) {
	path := conversationsPath(userIdentity)
	return s.store.Observe(ctx, path, func(raw json.RawMessage, err error) {
		if err != nil {
			onChange(nil, fetchFailed(path, err))
			return
		}
		conversations, err := codec.DecodeConversations(raw)
		if err != nil {
			onChange(nil, fetchFailed(path, err))
			return
		}
		onChange(conversations, nil)
	})
}

// WatchMessages delivers the full message list of a conversation on every
// change until the watch is cancelled.
func (s *ConversationService) WatchMessages(
	ctx context.Context,
	conversationID string,
	onChange func([]models.Message, error),
) (*repository.Watch, error) {
	path := messagesPath(conversationID)
	return s.store.Observe(ctx, path, func(raw json.RawMessage, err error) {
		if err != nil {
			onChange(nil, fetchFailed(path, err))
			return
		}
		messages, err := codec.DecodeMessages(raw)
		if err != nil {
			onChange(nil, fetchFailed(path, err))
			return
		}
		onChange(messages, nil)
	})
}

// appendSummary adds summary to a user's conversation list, creating the
// list when it is absent.
func (s *ConversationService) appendSummary(ctx context.Context, userIdentity string, summary models.Conversation) error {
	path := conversationsPath(userIdentity)

	entries, err := s.readSummaries(ctx, path)
	if err != nil {
		return err
	}

	entry, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	entries = append(entries, entry)

	if err := s.store.Set(ctx, path, entries); err != nil {
		return writeFailed(path, err)
	}
	return nil
}

// updateLatest replaces the latest message of the matching summary in place,
// or appends summary when the list has no entry with its id.
func (s *ConversationService) updateLatest(ctx context.Context, userIdentity string, summary models.Conversation) error {
	path := conversationsPath(userIdentity)

	entries, err := s.readSummaries(ctx, path)
	if err != nil {
		return err
	}

	latest, err := json.Marshal(summary.LatestMessage)
	if err != nil {
		return fmt.Errorf("failed to encode latest message: %w", err)
	}

	found := false
	for i, entry := range entries {
		if codec.EntryID(entry) != summary.ID {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			return fetchFailed(path, err)
		}
		fields["latest_message"] = latest
		if entries[i], err = json.Marshal(fields); err != nil {
			return fmt.Errorf("failed to encode conversation: %w", err)
		}
		found = true
		break
	}

	if !found {
		entry, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to encode conversation: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := s.store.Set(ctx, path, entries); err != nil {
		return writeFailed(path, err)
	}
	return nil
}

// readSummaries returns the raw entries of a conversation list. An absent or
// malformed list reads as empty.
func (s *ConversationService) readSummaries(ctx context.Context, path string) ([]json.RawMessage, error) {
	raw, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fetchFailed(path, err)
	}

	entries, err := codec.DecodeList(raw, "conversations")
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Replacing malformed conversation list")
		return nil, nil
	}
	return entries, nil
}

func (s *ConversationService) notify(ctx context.Context, recipient string, session identity.Session, message models.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyNewMessage(ctx, recipient, session.DisplayName, Preview(message))
}
