// Package auth verifies the API keys callers present to the HTTP API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/mclink/internal/guildconfig"
	"github.com/mcoot/mclink/internal/model"
)

// KeyPrefix starts every generated API key
const KeyPrefix = "mck_"

// Errors
var (
	ErrInvalidAPIKey = errors.New("invalid api key")
	ErrEmptySecret   = errors.New("api key secret is empty")
)

// Key is an authenticated caller
type Key struct {
	Name   string
	Scopes []model.Scope
}

// HasScope reports whether the key grants scope
func (k *Key) HasScope(scope model.Scope) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Service checks presented secrets against the configured bcrypt hashes.
// Verified secrets are remembered by digest so bcrypt runs once per key.
type Service struct {
	keys []guildconfig.APIKey

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]*Key
}

// New creates a Service for the configured keys
func New(keys []guildconfig.APIKey) *Service {
	return &Service{
		keys:     append([]guildconfig.APIKey(nil), keys...),
		verified: make(map[[sha256.Size]byte]*Key),
	}
}

// Authenticate returns the key matching secret
func (s *Service) Authenticate(secret string) (*Key, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrInvalidAPIKey
	}
	digest := sha256.Sum256([]byte(secret))

	s.mu.RLock()
	key, ok := s.verified[digest]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	for _, k := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(secret)) != nil {
			continue
		}
		key := &Key{Name: k.Name, Scopes: append([]model.Scope(nil), k.Scopes...)}
		s.mu.Lock()
		s.verified[digest] = key
		s.mu.Unlock()
		return key, nil
	}
	return nil, ErrInvalidAPIKey
}

// HashKey returns the bcrypt hash to put in the configuration file
func HashKey(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateKey creates a random secret and its hash
func GenerateKey() (secret, hash string, err error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	secret = KeyPrefix + base64.RawURLEncoding.EncodeToString(b)
	hash, err = HashKey(secret)
	if err != nil {
		return "", "", err
	}
	return secret, hash, nil
}
