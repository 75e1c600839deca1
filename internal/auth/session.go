// Package auth persists the login session and reads the identity carried by
// the backend's bearer token.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/golang-jwt/jwt/v5"

	"github.com/omochice/taskflow-chat/pkg/protocol"
)

var (
	ErrNoSession      = errors.New("not logged in")
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
)

// Session is what a successful login leaves on disk.
type Session struct {
	Token   string        `yaml:"token"`
	User    protocol.User `yaml:"user"`
	SavedAt time.Time     `yaml:"saved_at"`
}

// Identity is what the client can learn from a token without the signing key.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry that is before now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	UserRef string `json:"id,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// IdentityFromToken reads the user id and expiry of a JWT. The signature is
// not verified; the backend does that on every request.
func IdentityFromToken(token string) (Identity, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := Identity{UserID: claims.Subject}
	if id.UserID == "" {
		id.UserID = claims.UserID
	}
	if id.UserID == "" {
		id.UserID = claims.UserRef
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no user claim", ErrInvalidToken)
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Resolve fills in the user id from the token when the login response did not
// carry one and rejects sessions whose token has expired. Opaque tokens are
// accepted as long as the session names a user.
func (s *Session) Resolve(now time.Time) error {
	if s.Token == "" {
		return ErrNoSession
	}
	id, err := IdentityFromToken(s.Token)
	if err != nil {
		if s.User.ID != "" {
			return nil
		}
		return err
	}
	if id.Expired(now) {
		return ErrSessionExpired
	}
	if s.User.ID == "" {
		s.User.ID = id.UserID
	}
	return nil
}

// Load reads the session file at path.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if s.Token == "" {
		return nil, ErrNoSession
	}
	return &s, nil
}

// Save writes the session readable only by the current user.
func Save(path string, s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Remove deletes the session file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
