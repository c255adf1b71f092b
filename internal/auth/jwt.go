// Package auth covers who a request belongs to.
//
// Browser logins go through an OAuth 2.0 Provider (GitHub or LinkedIn). A successful callback
// ends with a signed session JWT in the HttpOnly "session" cookie; the only thing a session is
// good for is minting an API token. Every programmatic call carries that API token in the
// X-API-Token header, and it is checked against the user store on each request.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "panchang"

	// DefaultSessionTTL is how long a login lasts without re-authenticating.
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// Session is what a valid session token proves: who logged in, and at which session version.
type Session struct {
	UserID  int64
	Version int64
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Version int64 `json:"sv"`
}

// TokenService signs and verifies session JWTs with HS256.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService rejects secrets shorter than 16 bytes. A non-positive ttl means
// DefaultSessionTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate issues a session token for userID at the user's current session version. The user
// id is the "sub" claim, the version the "sv" claim.
func (s *TokenService) Generate(userID, version int64) (string, error) {
	return s.GenerateWithDuration(userID, version, s.ttl)
}

// GenerateWithDuration issues a token expiring after d.
func (s *TokenService) GenerateWithDuration(userID, version int64, d time.Duration) (string, error) {
	now := time.Now()

	c := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		Version: version,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, algorithm, issuer and expiry. Whether the session version is
// still current is for the caller to check against the user store.
func (s *TokenService) Validate(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, fmt.Errorf("auth: token expired")
		}
		return Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return Session{}, fmt.Errorf("auth: invalid token claims")
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Session{}, fmt.Errorf("auth: token has no valid subject")
	}
	return Session{UserID: userID, Version: c.Version}, nil
}
