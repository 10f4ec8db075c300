package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"

	"messenger-sync/internal/codec"
	"messenger-sync/internal/identity"
	"messenger-sync/internal/models"
)

type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Notifier sends APNs alerts for new messages to recipients that registered
// a device token.
type Notifier struct {
	store  DocumentStore
	client pusher
	topic  string
}

// NewNotifier loads the APNs certificate and creates a notifier. An empty
// certificate path disables pushing; tokens are still recorded.
func NewNotifier(store DocumentStore, certPath, certPassword, topic string, production bool) (*Notifier, error) {
	n := &Notifier{store: store, topic: topic}
	if certPath == "" {
		log.Warn().Msg("APNs certificate not configured, push notifications disabled")
		return n, nil
	}

	cert, err := certificate.FromP12File(certPath, certPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs certificate: %w", err)
	}

	client := apns2.NewClient(cert)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	n.client = client
	return n, nil
}

var _ MessageNotifier = (*Notifier)(nil)

// RegisterToken records the device token of the session's user
func (n *Notifier) RegisterToken(ctx context.Context, session identity.Session, token string) error {
	path := pushTokenPath(session.Identity())
	if err := n.store.Set(ctx, path, token); err != nil {
		return writeFailed(path, err)
	}
	return nil
}

// NotifyNewMessage pushes an alert to recipient. Failures are logged only.
func (n *Notifier) NotifyNewMessage(ctx context.Context, recipient, senderName, preview string) {
	if n.client == nil {
		return
	}

	token, err := n.token(ctx, recipient)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error().Err(err).Str("recipient", recipient).Msg("Failed to read push token")
		}
		return
	}

	notification := &apns2.Notification{
		DeviceToken: token,
		Topic:       n.topic,
		PushType:    apns2.PushTypeAlert,
		Payload:     payload.NewPayload().AlertTitle(senderName).AlertBody(preview).Sound("default"),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		log.Error().Err(err).Str("recipient", recipient).Msg("Failed to send push notification")
		return
	}
	if !res.Sent() {
		log.Error().
			Int("status", res.StatusCode).
			Str("reason", res.Reason).
			Str("recipient", recipient).
			Msg("Push notification rejected")
		return
	}

	log.Debug().Str("recipient", recipient).Str("apns_id", res.ApnsID).Msg("Push notification sent")
}

func (n *Notifier) token(ctx context.Context, recipient string) (string, error) {
	raw, err := n.store.Get(ctx, pushTokenPath(recipient))
	if err != nil {
		return "", err
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil || token == "" {
		return "", &models.DecodeError{Record: "push token", Reason: "not a string"}
	}
	return token, nil
}

// Preview is the notification text shown for a message
func Preview(m models.Message) string {
	switch m.Kind {
	case models.KindText:
		return m.Text
	case models.KindPhoto:
		return "Photo"
	case models.KindVideo:
		return "Video"
	case models.KindLocation:
		return "Location"
	default:
		return codec.Content(m)
	}
}
