package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"messenger-sync/internal/models"
	"messenger-sync/internal/repository"
	"messenger-sync/internal/storage"
)

// DocumentStore is a path-addressed tree of JSON values. Writes are atomic
// per call only; there are no transactions across paths.
type DocumentStore interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any) error
	Observe(ctx context.Context, path string, onChange repository.ChangeFunc) (*repository.Watch, error)
}

// BlobStore stores binary objects and resolves retrievable addresses for them
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	DownloadURL(ctx context.Context, key string) (string, error)
}

var (
	_ DocumentStore = (*repository.MemoryRepository)(nil)
	_ DocumentStore = (*repository.DocumentRepository)(nil)
	_ BlobStore     = (*storage.S3Store)(nil)
	_ BlobStore     = (*storage.MinioStore)(nil)
)

const usersPath = "users"

func conversationsPath(identity string) string {
	return identity + "/conversations"
}

func messagesPath(conversationID string) string {
	return conversationID + "/messages"
}

func pushTokenPath(identity string) string {
	return identity + "/push_token"
}

// checkKey rejects client-supplied values that would not stay a single path
// segment once used as a store key.
func checkKey(kind, key string) error {
	if key == "" || strings.Contains(key, "/") {
		return fmt.Errorf("%s %q: %w", kind, key, models.ErrInvalidKey)
	}
	return nil
}

// fetchFailed folds absent values, wrong shapes and store errors into ErrFetchFailed
func fetchFailed(path string, err error) error {
	if errors.Is(err, models.ErrFetchFailed) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fmt.Errorf("failed to read %s: %w: %w", path, models.ErrFetchFailed, err)
}

func writeFailed(path string, err error) error {
	return fmt.Errorf("failed to write %s: %w: %w", path, models.ErrWriteFailed, err)
}
