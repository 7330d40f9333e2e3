package api

import (
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager mints and tracks control plane tokens.
//
// Tokens are HS256 JWTs signed with a secret generated per process, so no
// token survives a restart. They carry no expiry: a token stays valid until
// InvalidateToken removes it from the live set.
type TokenManager struct {
	secret []byte
	now    func() time.Time

	mu   sync.RWMutex
	live map[string]struct{}
}

func NewTokenManager() (*TokenManager, error) {
	secret, err := cryptox.RandBytes(cryptox.KeySize)
	if err != nil {
		return nil, err
	}
	return &TokenManager{
		secret: secret,
		now:    time.Now,
		live:   make(map[string]struct{}),
	}, nil
}

// GenerateToken returns a new token issued to subject.
func (m *TokenManager) GenerateToken(subject string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  subject,
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(m.now()),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.live[signed] = struct{}{}
	m.mu.Unlock()
	return signed, nil
}

// IsValidToken reports whether token was issued by this manager and has not
// been invalidated.
func (m *TokenManager) IsValidToken(token string) bool {
	if token == "" {
		return false
	}
	m.mu.RLock()
	_, ok := m.live[token]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	_, err := m.Subject(token)
	return err == nil
}

// Subject returns the subject of a signed token. It checks the signature
// only, not whether the token is still live.
func (m *TokenManager) Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}

// InvalidateToken removes token from the live set. Unknown tokens are
// ignored.
func (m *TokenManager) InvalidateToken(token string) {
	m.mu.Lock()
	delete(m.live, token)
	m.mu.Unlock()
}

// InvalidateAll drops every live token.
func (m *TokenManager) InvalidateAll() {
	m.mu.Lock()
	clear(m.live)
	m.mu.Unlock()
}

// Count returns the number of live tokens.
func (m *TokenManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// tokenFromHeader accepts the raw token and tolerates a "Bearer " prefix.
func tokenFromHeader(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		v = strings.TrimSpace(v[7:])
	}
	return v
}
