// Package auth reads and mints the user tokens the realtime connection and
// the REST client present. The client never verifies tokens; it only reads
// their claims to learn the user and when to refresh.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrNoUserID = errors.New("token has no user_id claim")

// Claims is the user-token payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenProvider returns a fresh token for the configured user.
type TokenProvider func(ctx context.Context) (string, error)

// StaticToken returns a provider that always yields token.
func StaticToken(token string) TokenProvider {
	return func(context.Context) (string, error) { return token, nil }
}

// ParseUnverified decodes the claims of tokenStr without checking the
// signature.
func ParseUnverified(tokenStr string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrNoUserID
	}
	return &claims, nil
}

// Expired reports whether tokenStr expires within leeway of now. Tokens
// without an exp claim never expire.
func Expired(tokenStr string, now time.Time, leeway time.Duration) (bool, error) {
	claims, err := ParseUnverified(tokenStr)
	if err != nil {
		return false, err
	}
	if claims.ExpiresAt == nil {
		return false, nil
	}
	return !now.Add(leeway).Before(claims.ExpiresAt.Time), nil
}

// GenerateDevToken signs a token for userID with secret. A zero ttl yields a
// token without expiry.
func GenerateDevToken(userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// DevTokenProvider signs a new dev token on every call.
func DevTokenProvider(userID, secret string, ttl time.Duration) TokenProvider {
	return func(context.Context) (string, error) {
		return GenerateDevToken(userID, secret, ttl)
	}
}
