package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by the document store when nothing is stored at a path
	ErrNotFound = errors.New("document not found")

	ErrFetchFailed             = errors.New("could not fetch data")
	ErrWriteFailed             = errors.New("could not write data")
	ErrUserNotFound            = errors.New("user not found")
	ErrNoMessages              = errors.New("conversation has no messages")
	ErrUserExists              = errors.New("user already exists")
	ErrUploadFailed            = errors.New("failed to upload")
	ErrAddressResolutionFailed = errors.New("failed to get download url")
	ErrUnsupportedKind         = errors.New("unsupported message kind")
	ErrInvalidKey              = errors.New("invalid storage key")
	ErrConversationExists      = errors.New("conversation already exists")
	ErrSelfConversation        = errors.New("cannot start a conversation with yourself")
)

// DecodeError reports why a stored record could not be turned into a typed value
type DecodeError struct {
	Record string
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode %s: %s", e.Record, e.Reason)
	}
	return fmt.Sprintf("decode %s: field %q: %s", e.Record, e.Field, e.Reason)
}

// Is lets a DecodeError match ErrFetchFailed, since a wrong-shaped value is
// treated the same way as an absent one.
func (e *DecodeError) Is(target error) bool {
	return target == ErrFetchFailed
}
