package codec

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"messenger-sync/internal/models"
)

// DateLayout is the format of every stored message and summary date
const DateLayout = "Jan 2, 2006 at 3:04:05 PM MST"

// offsetDateLayout matches dates written in zones whose abbreviation is a
// numeric offset, such as +0545.
const offsetDateLayout = "Jan 2, 2006 at 3:04:05 PM -0700"

// FormatDate renders t the way message dates are stored. Dates are always
// written in UTC so they parse back regardless of the server's zone.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a stored message date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err == nil {
		return t, nil
	}
	if t, offsetErr := time.Parse(offsetDateLayout, s); offsetErr == nil {
		return t, nil
	}
	return time.Time{}, err
}

// Content selects the serialized content string for a message. Kinds that
// have no stored representation produce an empty string.
func Content(m models.Message) string {
	switch m.Kind {
	case models.KindText:
		return m.Text
	case models.KindPhoto, models.KindVideo:
		if m.Media == nil {
			return ""
		}
		return m.Media.String()
	case models.KindLocation:
		if m.Location == nil {
			return ""
		}
		return strconv.FormatFloat(m.Location.Latitude, 'f', -1, 64) + "," +
			strconv.FormatFloat(m.Location.Longitude, 'f', -1, 64)
	default:
		return ""
	}
}

// Encode converts a typed message into its flat stored record
func Encode(m models.Message) models.MessageRecord {
	return models.MessageRecord{
		ID:          m.ID,
		Type:        string(m.Kind),
		Content:     Content(m),
		Date:        FormatDate(m.SentAt),
		SenderEmail: m.SenderEmail,
		IsRead:      false,
		Name:        m.SenderName,
	}
}

// Latest builds the conversation summary for a message
func Latest(m models.Message) models.LatestMessage {
	return models.LatestMessage{
		Date:   FormatDate(m.SentAt),
		Text:   Content(m),
		IsRead: false,
	}
}

// Decode converts a stored record back into a typed message. Malformed
// content and unsupported kinds return an error; list decoding skips them.
func Decode(rec models.MessageRecord) (models.Message, error) {
	sentAt, err := ParseDate(rec.Date)
	if err != nil {
		return models.Message{}, &models.DecodeError{Record: "message", Field: "date", Reason: err.Error()}
	}

	msg := models.Message{
		ID:          rec.ID,
		Kind:        models.MessageKind(rec.Type),
		SenderEmail: rec.SenderEmail,
		SenderName:  rec.Name,
		SentAt:      sentAt,
	}

	switch msg.Kind {
	case models.KindText:
		msg.Text = rec.Content
	case models.KindPhoto, models.KindVideo:
		u, err := parseMediaURL(rec.Content)
		if err != nil {
			return models.Message{}, &models.DecodeError{Record: "message", Field: "content", Reason: err.Error()}
		}
		msg.Media = u
	case models.KindLocation:
		loc, err := parseLocation(rec.Content)
		if err != nil {
			return models.Message{}, &models.DecodeError{Record: "message", Field: "content", Reason: err.Error()}
		}
		msg.Location = loc
	default:
		return models.Message{}, fmt.Errorf("%w: %q", models.ErrUnsupportedKind, rec.Type)
	}

	return msg, nil
}

func parseMediaURL(content string) (*url.URL, error) {
	if content == "" {
		return nil, fmt.Errorf("empty media url")
	}
	u, err := url.Parse(content)
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("media url %q is not absolute", content)
	}
	return u, nil
}

func parseLocation(content string) (*models.Coordinate, error) {
	parts := strings.Split(content, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("location %q must have two comma separated fields", content)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	return &models.Coordinate{Latitude: lat, Longitude: lon}, nil
}
