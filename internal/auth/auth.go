// Package auth provides the bearer credential used for the realtime handshake and
// the REST API, plus the session identity used to target notifications.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	homedir "github.com/mitchellh/go-homedir"
)

// ErrMissingToken is returned when neither a token nor a token file is configured.
var ErrMissingToken = errors.New("bearer token is required")

// Credentials holds the bearer token presented at connect time.
type Credentials struct {
	Token string
}

// LoadCredentials builds credentials from an inline token or a token file.
// An inline token wins over the file.
func LoadCredentials(token, tokenFile string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token != "" {
		return &Credentials{Token: token}, nil
	}
	if tokenFile == "" {
		return nil, ErrMissingToken
	}

	token, err := ReadTokenFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}

	return &Credentials{Token: token}, nil
}

// ReadTokenFile reads a token from disk, trimming surrounding whitespace.
// A leading ~ is expanded to the home directory.
func ReadTokenFile(path string) (string, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand token file path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}

	return token, nil
}

// Header returns the HTTP headers carrying the credential.
func (c *Credentials) Header() http.Header {
	header := http.Header{}
	if c != nil && c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	return header
}

// AuthPayload returns the object sent in the Socket.IO connect packet.
func (c *Credentials) AuthPayload() map[string]string {
	if c == nil || c.Token == "" {
		return nil
	}
	return map[string]string{"token": c.Token}
}

// Session tracks the identity of the logged-in user.
// The user is unknown until SetUser is called.
type Session struct {
	mu     sync.RWMutex
	userID int64
	known  bool
}

// NewSession returns a session hydrated with userID.
func NewSession(userID int64) *Session {
	return &Session{userID: userID, known: true}
}

// SetUser records the current user.
func (s *Session) SetUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.known = true
}

// Clear forgets the current user (logout).
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
	s.known = false
}

// UserID returns the current user and whether it is known yet.
func (s *Session) UserID() (int64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.known
}
