// Package auth provides authenticated-session handling for IdeaSpark.
//
// Every API and capture surface resolves the caller to a [Session] before
// touching the store; ownership of idea records is always taken from the
// session, never from request payloads. Verification is behind the
// [Verifier] interface so tests can swap in [Static] without minting
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a credential is missing, malformed,
// expired, or otherwise not acceptable.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Session is the authenticated identity attached to a request or capture
// connection.
type Session struct {
	// UserID is the stable subject identifier. Owns the user's records.
	UserID string

	// Email is the account email, when the credential carries one.
	Email string
}

// Verifier resolves a bearer credential to a [Session].
type Verifier interface {
	// Verify validates token and returns the session it represents.
	// Failures wrap [ErrUnauthenticated].
	Verify(ctx context.Context, token string) (Session, error)
}

// sessionKey is the context key for the request session.
type sessionKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session attached to ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}

// BearerToken extracts the bearer credential from an HTTP request. It
// checks the Authorization header first and falls back to the
// access_token query parameter, which browsers need for WebSocket
// handshakes where custom headers are unavailable.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// claims extends the registered JWT claims with the account email.
type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// JWT verifies HS256-signed bearer tokens. The subject claim is the user
// ID; an optional email claim carries the account email.
type JWT struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// Compile-time interface check.
var _ Verifier = (*JWT)(nil)

// NewJWT creates a JWT verifier. The secret should be at least 32 bytes
// for HS256.
func NewJWT(secret, issuer string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Verify implements [Verifier].
func (j *JWT) Verify(_ context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, fmt.Errorf("auth: empty token: %w", ErrUnauthenticated)
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth: parse token: %v: %w", err, ErrUnauthenticated)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return Session{}, fmt.Errorf("auth: invalid claims: %w", ErrUnauthenticated)
	}
	if c.Issuer != j.issuer {
		return Session{}, fmt.Errorf("auth: issuer %q not accepted: %w", c.Issuer, ErrUnauthenticated)
	}
	if c.Subject == "" {
		return Session{}, fmt.Errorf("auth: token has no subject: %w", ErrUnauthenticated)
	}

	return Session{UserID: c.Subject, Email: c.Email}, nil
}

// Issue mints a signed token for s, expiring after the verifier's TTL.
// Used by the development token endpoint and by tests.
func (j *JWT) Issue(s Session) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
		Email: s.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Static maps literal tokens to sessions. For tests and local development
// only.
type Static map[string]Session

// Compile-time interface check.
var _ Verifier = Static(nil)

// Verify implements [Verifier].
func (s Static) Verify(_ context.Context, token string) (Session, error) {
	sess, ok := s[token]
	if !ok {
		return Session{}, fmt.Errorf("auth: unknown token: %w", ErrUnauthenticated)
	}
	return sess, nil
}
