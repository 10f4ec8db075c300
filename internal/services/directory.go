package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"messenger-sync/internal/codec"
	"messenger-sync/internal/identity"
	"messenger-sync/internal/models"
)

// DirectoryService maintains user profiles and the flat "users" directory
type DirectoryService struct {
	store DocumentStore
}

// NewDirectoryService creates a new directory service
func NewDirectoryService(store DocumentStore) *DirectoryService {
	return &DirectoryService{store: store}
}

// Exists reports whether a profile document is stored for email
func (s *DirectoryService) Exists(ctx context.Context, email string) (bool, error) {
	path := identity.SafeIdentity(email)
	_, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check user %s: %w", path, err)
	}
	return true, nil
}

// Insert writes the user's profile document and then appends the user to
// the directory. The append is a plain read-modify-write, so two concurrent
// inserts can lose one of the entries.
func (s *DirectoryService) Insert(ctx context.Context, user models.User) error {
	safe := identity.SafeIdentity(user.EmailAddress)
	if err := checkKey("identity", safe); err != nil {
		return err
	}

	profile := models.UserProfile{FirstName: user.FirstName, LastName: user.LastName}
	if err := s.store.Set(ctx, safe, profile); err != nil {
		return writeFailed(safe, err)
	}

	entry, err := json.Marshal(models.DirectoryEntry{Name: user.DisplayName(), Email: safe})
	if err != nil {
		return fmt.Errorf("failed to encode directory entry: %w", err)
	}

	var entries []json.RawMessage
	raw, err := s.store.Get(ctx, usersPath)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return fetchFailed(usersPath, err)
	default:
		entries, err = codec.DecodeList(raw, "users")
		if err != nil {
			log.Debug().Err(err).Msg("Replacing malformed user directory")
		}
	}

	entries = append(entries, entry)
	if err := s.store.Set(ctx, usersPath, entries); err != nil {
		return writeFailed(usersPath, err)
	}

	log.Info().Str("identity", safe).Msg("User inserted")
	return nil
}

// GetAll returns every directory entry
func (s *DirectoryService) GetAll(ctx context.Context) ([]models.DirectoryEntry, error) {
	raw, err := s.store.Get(ctx, usersPath)
	if err != nil {
		return nil, fetchFailed(usersPath, err)
	}
	entries, err := codec.DecodeDirectory(raw)
	if err != nil {
		return nil, fetchFailed(usersPath, err)
	}
	return entries, nil
}

// Search returns directory entries whose name starts with query, ignoring
// case and leaving out the session's own user.
func (s *DirectoryService) Search(ctx context.Context, session identity.Session, query string) ([]models.DirectoryEntry, error) {
	entries, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	self := session.Identity()
	prefix := strings.ToLower(query)

	results := make([]models.DirectoryEntry, 0)
	for _, entry := range entries {
		if entry.Email == self {
			continue
		}
		if strings.HasPrefix(strings.ToLower(entry.Name), prefix) {
			results = append(results, entry)
		}
	}
	return results, nil
}
