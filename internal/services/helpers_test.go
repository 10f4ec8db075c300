package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-sync/internal/identity"
	"messenger-sync/internal/models"
	"messenger-sync/internal/repository"
)

var (
	ann = models.User{FirstName: "Ann", LastName: "Lee", EmailAddress: "ann@x.io"}
	bob = models.User{FirstName: "Bob", LastName: "Stone", EmailAddress: "bob@x.io"}

	baseTime = time.Date(2022, time.August, 27, 10, 0, 0, 0, time.UTC)
)

const (
	annID = "ann-x-io"
	bobID = "bob-x-io"
)

func sessionFor(u models.User) identity.Session {
	return identity.Session{Email: u.EmailAddress, DisplayName: u.DisplayName()}
}

func textMessage(id, text string, from models.User, minute int) models.Message {
	return models.Message{
		ID:          id,
		Kind:        models.KindText,
		Text:        text,
		SenderEmail: identity.SafeIdentity(from.EmailAddress),
		SenderName:  from.DisplayName(),
		SentAt:      baseTime.Add(time.Duration(minute) * time.Minute),
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// failingStore fails writes to selected paths and passes everything else to
// an in-memory store.
type failingStore struct {
	*repository.MemoryRepository
	failSet map[string]error
}

func (s *failingStore) Set(ctx context.Context, path string, value any) error {
	if err, ok := s.failSet[path]; ok {
		return err
	}
	return s.MemoryRepository.Set(ctx, path, value)
}

func newStore(t *testing.T) *failingStore {
	t.Helper()
	repo := repository.NewMemoryRepository()
	t.Cleanup(repo.Close)
	return &failingStore{MemoryRepository: repo, failSet: map[string]error{}}
}

func seedUsers(t *testing.T, store DocumentStore, users ...models.User) {
	t.Helper()
	dir := NewDirectoryService(store)
	for _, u := range users {
		require.NoError(t, dir.Insert(context.Background(), u))
	}
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyNewMessage(ctx context.Context, recipient, senderName, preview string) {
	m.Called(ctx, recipient, senderName, preview)
}
