package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"rapidcast/pkg/models"
)

var (
	ErrMissingToken = errors.New("capture token required")
	ErrInvalidToken = errors.New("invalid capture token")
	ErrTokenExpired = errors.New("capture token expired or revoked")
)

// Manager issues and checks capture authorization tokens. The host hands a
// token out once the user granted screen capture; a session needs it to start.
type Manager struct {
	tokens map[string]*models.CaptureToken // token -> CaptureToken
	mu     sync.RWMutex

	// Config
	defaultExpiration time.Duration
	maxExpiration     time.Duration
}

// New creates a new auth manager
func New(defaultExpiration, maxExpiration time.Duration) *Manager {
	if defaultExpiration <= 0 {
		defaultExpiration = time.Hour
	}
	if maxExpiration < defaultExpiration {
		maxExpiration = defaultExpiration
	}
	return &Manager{
		tokens:            make(map[string]*models.CaptureToken),
		defaultExpiration: defaultExpiration,
		maxExpiration:     maxExpiration,
	}
}

// IssueToken creates a new capture token valid for expiresIn seconds
// (0 means the default, capped at the maximum).
func (m *Manager) IssueToken(expiresIn int, grantedTo string) (*models.CaptureToken, error) {
	// Generate secure random token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	tokenString := hex.EncodeToString(tokenBytes)

	expiration := m.defaultExpiration
	if expiresIn > 0 {
		expiration = time.Duration(expiresIn) * time.Second
	}
	if expiration > m.maxExpiration {
		expiration = m.maxExpiration
	}

	now := time.Now()
	token := &models.CaptureToken{
		Token:     tokenString,
		CreatedAt: now,
		ExpiresAt: now.Add(expiration),
		GrantedTo: grantedTo,
	}

	m.mu.Lock()
	m.tokens[tokenString] = token
	m.mu.Unlock()

	return token, nil
}

// Authorize checks that a token may be used to start a capture.
func (m *Manager) Authorize(tokenString string) error {
	if tokenString == "" {
		return ErrMissingToken
	}

	m.mu.RLock()
	token, exists := m.tokens[tokenString]
	valid := exists && token.IsValid()
	m.mu.RUnlock()

	if !exists {
		return ErrInvalidToken
	}
	if !valid {
		return ErrTokenExpired
	}
	return nil
}

// RevokeToken withdraws a token. Running sessions are not affected.
func (m *Manager) RevokeToken(tokenString string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, exists := m.tokens[tokenString]; exists {
		token.Revoked = true
	}
}

// CleanupExpiredTokens removes all expired or revoked tokens (call periodically)
func (m *Manager) CleanupExpiredTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for tokenString, token := range m.tokens {
		if !token.IsValid() {
			delete(m.tokens, tokenString)
			removed++
		}
	}
	return removed
}

// TokenCount returns the number of tracked tokens
func (m *Manager) TokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
