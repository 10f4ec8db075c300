package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"messenger-sync/internal/identity"
	"messenger-sync/internal/middleware"
	"messenger-sync/internal/models"
	"messenger-sync/internal/services"
)

const maxPictureSize = 10 << 20

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	directory *services.DirectoryService
	notifier  *services.Notifier
	blobs     *services.BlobService
}

// NewUserHandler creates a new user handler
func NewUserHandler(directory *services.DirectoryService, notifier *services.Notifier, blobs *services.BlobService) *UserHandler {
	return &UserHandler{
		directory: directory,
		notifier:  notifier,
		blobs:     blobs,
	}
}

// CreateUserRequest represents the request body for registering a profile
type CreateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		respondError(w, "first_name and last_name are required", http.StatusBadRequest)
		return
	}

	exists, err := h.directory.Exists(ctx, session.Email)
	if err != nil {
		log.Error().Err(err).Str("identity", session.Identity()).Msg("Failed to check user")
		respondError(w, "Failed to check user", statusFor(err))
		return
	}
	if exists {
		respondError(w, models.ErrUserExists.Error(), http.StatusConflict)
		return
	}

	user := models.User{FirstName: req.FirstName, LastName: req.LastName, EmailAddress: session.Email}
	if err := h.directory.Insert(ctx, user); err != nil {
		log.Error().Err(err).Str("identity", session.Identity()).Msg("Failed to insert user")
		respondError(w, "Failed to create user", statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, models.DirectoryEntry{Name: user.DisplayName(), Email: session.Identity()})
}

// UserExists handles GET /api/v1/users/exists?email=
func (h *UserHandler) UserExists(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		respondError(w, "email is required", http.StatusBadRequest)
		return
	}

	exists, err := h.directory.Exists(r.Context(), email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check user")
		respondError(w, "Failed to check user", statusFor(err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetUsers handles GET /api/v1/users. Failures degrade to an empty list.
func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.directory.GetAll(r.Context())
	if err != nil {
		log.Debug().Err(err).Msg("User directory unavailable")
		entries = []models.DirectoryEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// SearchUsers handles GET /api/v1/users/search?q=. Failures degrade to no results.
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	results, err := h.directory.Search(ctx, middleware.GetSession(ctx), query)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("Search failed")
		results = []models.DirectoryEntry{}
	}
	respondJSON(w, http.StatusOK, results)
}

// PushTokenRequest represents the request body for registering a device token
type PushTokenRequest struct {
	Token string `json:"token"`
}

// SetPushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) SetPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		respondError(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := h.notifier.RegisterToken(ctx, session, req.Token); err != nil {
		log.Error().Err(err).Str("identity", session.Identity()).Msg("Failed to register push token")
		respondError(w, "Failed to register push token", statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadPicture handles POST /api/v1/users/me/picture. The body is the raw image.
func (h *UserHandler) UploadPicture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := middleware.GetSession(ctx)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxPictureSize+1))
	if err != nil || len(data) == 0 {
		respondError(w, "Image body is required", http.StatusBadRequest)
		return
	}
	if len(data) > maxPictureSize {
		respondError(w, "Image is too large", http.StatusRequestEntityTooLarge)
		return
	}

	address, err := h.blobs.Upload(ctx, data, identity.ProfilePictureFileName(session.Email))
	if err != nil {
		log.Error().Err(err).Str("identity", session.Identity()).Msg("Failed to upload profile picture")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"url": address})
}
