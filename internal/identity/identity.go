package identity

import "strings"

// SafeIdentity turns an email address into a storage key by replacing every
// "." and then every "@" with "-". Distinct emails may collide.
func SafeIdentity(email string) string {
	safe := strings.ReplaceAll(email, ".", "-")
	return strings.ReplaceAll(safe, "@", "-")
}

// ProfilePictureFileName returns the blob name used for a user's profile picture
func ProfilePictureFileName(email string) string {
	return SafeIdentity(email) + "_profile_picture.png"
}

// Session carries the signed-in user's details through a request. It replaces
// process-wide "current user" state.
type Session struct {
	Email                 string
	DisplayName           string
	ProfilePictureAddress string
}

// Identity returns the safe identity of the session's user, or an empty
// string when no email is known.
func (s Session) Identity() string {
	if s.Email == "" {
		return ""
	}
	return SafeIdentity(s.Email)
}

// Authenticated reports whether the session belongs to a signed-in user
func (s Session) Authenticated() bool {
	return s.Email != ""
}
