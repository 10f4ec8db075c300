package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"messenger-sync/internal/models"
)

const imagesPrefix = "images/"

// BlobService uploads media and resolves the address clients download it from
type BlobService struct {
	store BlobStore
}

// NewBlobService creates a new blob service
func NewBlobService(store BlobStore) *BlobService {
	return &BlobService{store: store}
}

// Upload stores data under images/{name} and returns its download address.
// A blob stored before a failed address lookup is left in place.
func (s *BlobService) Upload(ctx context.Context, data []byte, name string) (string, error) {
	key := imagesPrefix + name

	if err := s.store.Put(ctx, key, data, http.DetectContentType(data)); err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrUploadFailed, key, err)
	}

	address, err := s.store.DownloadURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrAddressResolutionFailed, key, err)
	}

	log.Info().Str("key", key).Int("size", len(data)).Msg("Blob uploaded")
	return address, nil
}
