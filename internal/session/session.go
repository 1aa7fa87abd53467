// Package session issues and validates the bearer tokens handed to clients
// after a successful login. Tokens are stateless JWTs; logout is a
// client-side discard.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"shopcore/internal/account/models"
)

const issuerName = "shopcore"

// Claims carries the account identity inside the session token.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer signs and validates session tokens with a shared HMAC key.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer creates a session issuer.
func NewIssuer(signingKey string, ttl time.Duration) (*Issuer, error) {
	if signingKey == "" {
		return nil, errors.New("signing key is required")
	}
	return &Issuer{key: []byte(signingKey), ttl: ttl}, nil
}

// Issue mints a token for the account, returning the token and its expiry.
func (i *Issuer) Issue(accountID string, kind models.Kind, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate parses a token and returns the account ID it belongs to.
func (i *Issuer) Validate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(issuerName), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", errors.New("session token missing subject")
	}
	return claims.Subject, nil
}
