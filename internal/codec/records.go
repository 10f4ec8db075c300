package codec

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"messenger-sync/internal/models"
)

type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage, record string) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, &models.DecodeError{Record: record, Reason: "not an object"}
	}
	return obj, nil
}

func (o object) str(record, key string) (string, error) {
	raw, ok := o[key]
	if !ok {
		return "", &models.DecodeError{Record: record, Field: key, Reason: "missing"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &models.DecodeError{Record: record, Field: key, Reason: "not a string"}
	}
	return s, nil
}

func (o object) boolean(record, key string) (bool, error) {
	raw, ok := o[key]
	if !ok {
		return false, &models.DecodeError{Record: record, Field: key, Reason: "missing"}
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, &models.DecodeError{Record: record, Field: key, Reason: "not a boolean"}
	}
	return b, nil
}

// DecodeList splits a stored JSON array into its raw elements
func DecodeList(raw json.RawMessage, record string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, &models.DecodeError{Record: record, Reason: "not a list"}
	}
	return items, nil
}

// EntryID returns the "id" field of a stored list element, or "" if it has none
func EntryID(raw json.RawMessage) string {
	obj, err := decodeObject(raw, "entry")
	if err != nil {
		return ""
	}
	id, err := obj.str("entry", "id")
	if err != nil {
		return ""
	}
	return id
}

// DecodeConversation decodes one conversation summary
func DecodeConversation(raw json.RawMessage) (models.Conversation, error) {
	const record = "conversation"
	obj, err := decodeObject(raw, record)
	if err != nil {
		return models.Conversation{}, err
	}

	var c models.Conversation
	if c.ID, err = obj.str(record, "id"); err != nil {
		return models.Conversation{}, err
	}
	if c.Name, err = obj.str(record, "name"); err != nil {
		return models.Conversation{}, err
	}
	if c.OtherUserEmail, err = obj.str(record, "other_user_email"); err != nil {
		return models.Conversation{}, err
	}

	latestRaw, ok := obj["latest_message"]
	if !ok {
		return models.Conversation{}, &models.DecodeError{Record: record, Field: "latest_message", Reason: "missing"}
	}
	latest, err := decodeObject(latestRaw, "latest_message")
	if err != nil {
		return models.Conversation{}, err
	}
	if c.LatestMessage.Date, err = latest.str("latest_message", "date"); err != nil {
		return models.Conversation{}, err
	}
	if c.LatestMessage.Text, err = latest.str("latest_message", "message"); err != nil {
		return models.Conversation{}, err
	}
	if c.LatestMessage.IsRead, err = latest.boolean("latest_message", "is_read"); err != nil {
		return models.Conversation{}, err
	}

	return c, nil
}

// DecodeConversations decodes a conversation list, skipping malformed entries
func DecodeConversations(raw json.RawMessage) ([]models.Conversation, error) {
	items, err := DecodeList(raw, "conversations")
	if err != nil {
		return nil, err
	}

	conversations := make([]models.Conversation, 0, len(items))
	for _, item := range items {
		c, err := DecodeConversation(item)
		if err != nil {
			log.Debug().Err(err).Msg("Skipping malformed conversation entry")
			continue
		}
		conversations = append(conversations, c)
	}
	return conversations, nil
}

// DecodeMessageRecord decodes one flat message record
func DecodeMessageRecord(raw json.RawMessage) (models.MessageRecord, error) {
	const record = "message"
	obj, err := decodeObject(raw, record)
	if err != nil {
		return models.MessageRecord{}, err
	}

	var rec models.MessageRecord
	if rec.Name, err = obj.str(record, "name"); err != nil {
		return models.MessageRecord{}, err
	}
	if rec.ID, err = obj.str(record, "id"); err != nil {
		return models.MessageRecord{}, err
	}
	if rec.Content, err = obj.str(record, "content"); err != nil {
		return models.MessageRecord{}, err
	}
	if rec.SenderEmail, err = obj.str(record, "sender_email"); err != nil {
		return models.MessageRecord{}, err
	}
	if rec.Date, err = obj.str(record, "date"); err != nil {
		return models.MessageRecord{}, err
	}
	if rec.Type, err = obj.str(record, "type"); err != nil {
		return models.MessageRecord{}, err
	}
	if _, present := obj["is_read"]; present {
		if rec.IsRead, err = obj.boolean(record, "is_read"); err != nil {
			return models.MessageRecord{}, err
		}
	}

	return rec, nil
}

// DecodeMessages decodes a message list through the codec, skipping records
// that are malformed or of an unsupported kind
func DecodeMessages(raw json.RawMessage) ([]models.Message, error) {
	items, err := DecodeList(raw, "messages")
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(items))
	for _, item := range items {
		rec, err := DecodeMessageRecord(item)
		if err != nil {
			log.Debug().Err(err).Msg("Skipping malformed message record")
			continue
		}
		msg, err := Decode(rec)
		if err != nil {
			log.Debug().Err(err).Str("message_id", rec.ID).Msg("Skipping undecodable message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// DecodeDirectory decodes the flat user directory, skipping malformed entries
func DecodeDirectory(raw json.RawMessage) ([]models.DirectoryEntry, error) {
	const record = "user"
	items, err := DecodeList(raw, "users")
	if err != nil {
		return nil, err
	}

	entries := make([]models.DirectoryEntry, 0, len(items))
	for _, item := range items {
		obj, err := decodeObject(item, record)
		if err != nil {
			continue
		}
		var entry models.DirectoryEntry
		if entry.Name, err = obj.str(record, "name"); err != nil {
			continue
		}
		if entry.Email, err = obj.str(record, "email"); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
