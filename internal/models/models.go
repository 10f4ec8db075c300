package models

import (
	"net/url"
	"time"
)

// User represents a registered chat user
type User struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	EmailAddress string `json:"email"`
}

// DisplayName returns the name shown to other users
func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

// DirectoryEntry is one element of the flat "users" list
type DirectoryEntry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UserProfile is the root document stored under a user's safe identity
type UserProfile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// LatestMessage is the denormalized summary of the newest message in a conversation
type LatestMessage struct {
	Date   string `json:"date"`
	Text   string `json:"message"`
	IsRead bool   `json:"is_read"`
}

// Conversation is one participant's copy of a conversation summary
type Conversation struct {
	ID             string        `json:"id"`
	OtherUserEmail string        `json:"other_user_email"`
	Name           string        `json:"name"`
	LatestMessage  LatestMessage `json:"latest_message"`
}

// MessageKind tags the payload carried by a message
type MessageKind string

const (
	KindText           MessageKind = "text"
	KindAttributedText MessageKind = "attributed_text"
	KindPhoto          MessageKind = "photo"
	KindVideo          MessageKind = "video"
	KindLocation       MessageKind = "location"
	KindEmoji          MessageKind = "emoji"
	KindAudio          MessageKind = "audio"
	KindContact        MessageKind = "contact"
	KindLinkPreview    MessageKind = "link_preview"
	KindCustom         MessageKind = "custom"
)

// Coordinate is a latitude/longitude pair carried by location messages
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is a typed chat message. Exactly one of Text, Media or Location
// is meaningful, selected by Kind.
type Message struct {
	ID          string
	Kind        MessageKind
	Text        string
	Media       *url.URL
	Location    *Coordinate
	SenderEmail string
	SenderName  string
	SentAt      time.Time
}

// MessageRecord is the flat representation of a message inside
// {conversation_id}/messages
type MessageRecord struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Date        string `json:"date"`
	SenderEmail string `json:"sender_email"`
	IsRead      bool   `json:"is_read"`
	Name        string `json:"name"`
}

// MessageThread is the document stored under a conversation id
type MessageThread struct {
	Messages []MessageRecord `json:"messages"`
}
