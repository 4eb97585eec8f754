package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource mints short lived HS256 service tokens for outbound calls and
// reuses a token until it is close to expiry.
type TokenSource struct {
	key     []byte
	subject string
	ttl     time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewTokenSource(key, subject string, ttl time.Duration) *TokenSource {
	return &TokenSource{
		key:     []byte(key),
		subject: subject,
		ttl:     ttl,
	}
}

// Token returns the cached token, minting a fresh one when the cached one is
// within a minute of expiry.
func (t *TokenSource) Token() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Until(t.expires) > time.Minute {
		return t.token, nil
	}

	now := time.Now()
	expires := now.Add(t.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   t.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}

	t.token = signed
	t.expires = expires

	return signed, nil
}

// TokenExpired decodes a JWT without verifying its signature and reports
// whether its exp claim is in the past. Malformed tokens count as expired.
func TokenExpired(token string) bool {
	parser := jwt.NewParser()

	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}

	return claims.ExpiresAt.Before(time.Now())
}
