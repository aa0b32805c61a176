// Package auth issues and checks the bearer tokens the task API accepts.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrNoToken      = errors.New("no token configured")
)

// Claims carried by a task API token. Teams lists the team boards the user
// belongs to.
type Claims struct {
	UserID string   `json:"user_id"`
	Teams  []string `json:"teams,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for userID, member of teams, that is valid for
// ttl.
func IssueToken(secret, issuer, userID string, ttl time.Duration, teams ...string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if userID == "" {
		return "", errors.New("user id is empty")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Teams:  teams,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, issuer and expiry and returns the claims.
func ParseToken(secret, issuer, token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrTokenInvalid)
	}
	return claims, nil
}

// ExpiresAt reads the exp claim without verifying the signature. The
// client uses it to refuse a token that has already lapsed.
func ExpiresAt(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// UserIDOf reads the user_id claim without verifying the signature.
func UserIDOf(token string) (string, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// TokenSource hands out the bearer token for outgoing requests.
type TokenSource struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token, now: time.Now}
}

// Token returns the current token, or ErrTokenExpired if its exp claim has
// passed. Tokens without an exp claim are passed through unchanged.
func (s *TokenSource) Token() (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoToken
	}
	if exp, ok := ExpiresAt(token); ok && !s.now().Before(exp) {
		return "", ErrTokenExpired
	}
	return token, nil
}

// Set replaces the token, for example after the user signs in again.
func (s *TokenSource) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear drops the token. Later calls to Token fail with ErrNoToken.
func (s *TokenSource) Clear() {
	s.Set("")
}
