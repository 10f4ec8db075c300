package services

import (
	"messenger-sync/internal/codec"
	"messenger-sync/internal/models"
)

// MessageView is the JSON shape of a message sent to clients
type MessageView struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Content     string             `json:"content"`
	Location    *models.Coordinate `json:"location,omitempty"`
	SenderEmail string             `json:"sender_email"`
	SenderName  string             `json:"sender_name"`
	Date        string             `json:"date"`
}

// MessageViews converts decoded messages for clients. A nil list becomes empty.
func MessageViews(messages []models.Message) []MessageView {
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, MessageView{
			ID:          m.ID,
			Type:        string(m.Kind),
			Content:     codec.Content(m),
			Location:    m.Location,
			SenderEmail: m.SenderEmail,
			SenderName:  m.SenderName,
			Date:        codec.FormatDate(m.SentAt),
		})
	}
	return views
}
