package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messenger-sync/internal/identity"
)

const jwtExpDays = 365

// ErrInvalidToken is returned for tokens that fail validation
var ErrInvalidToken = errors.New("invalid token")

// AuthService issues and validates the bearer tokens handed out by the auth
// provider. Tokens carry the user's email and display name.
type AuthService struct {
	jwtSecret string
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(jwtSecret string) *AuthService {
	return &AuthService{jwtSecret: jwtSecret, now: time.Now}
}

// IssueToken generates a JWT for email with the given display name
func (s *AuthService) IssueToken(email, name string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"email": email,
		"name":  name,
		"exp":   now.AddDate(0, 0, jwtExpDays).Unix(),
		"iat":   now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT and returns the session it describes
func (s *AuthService) ValidateToken(tokenString string) (identity.Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return identity.Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return identity.Session{}, ErrInvalidToken
	}

	email, ok := claims["email"].(string)
	if !ok || email == "" {
		return identity.Session{}, fmt.Errorf("%w: email not found in token", ErrInvalidToken)
	}
	name, _ := claims["name"].(string)

	return identity.Session{Email: email, DisplayName: name}, nil
}
