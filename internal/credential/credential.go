// Package credential owns password hashing and single-use lifecycle tokens.
// The account service consumes it through the Service interface and never
// sees hashes or token bytes beyond opaque strings.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shopcore/internal/account/models"
	"shopcore/pkg/sentinel"
)

// ErrPasswordMismatch reports a verification failure without revealing which
// part of the credential was wrong.
var ErrPasswordMismatch = errors.New("password mismatch")

// Service is the credential boundary the account service depends on.
type Service interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) error
	// IssueToken mints a single-purpose token bound to one account. Issuing
	// replaces any outstanding token of the same kind for that account.
	IssueToken(ctx context.Context, accountID string, kind models.TokenKind, ttl time.Duration) (string, error)
	// ConsumeToken validates and burns a token; a second consume of the same
	// token fails with sentinel.ErrNotFound.
	ConsumeToken(ctx context.Context, accountID string, kind models.TokenKind, token string) error
}

// TokenStore persists issued tokens with a TTL. Keys are opaque to the
// store; expiry enforcement is the store's job.
type TokenStore interface {
	Put(ctx context.Context, key string, ttl time.Duration) error
	// Consume removes the key, failing with sentinel.ErrNotFound when it is
	// absent or expired.
	Consume(ctx context.Context, key string) error
}

// Bcrypt is the default Service implementation: bcrypt hashes plus random
// hex tokens kept in a TokenStore.
type Bcrypt struct {
	tokens TokenStore
	cost   int
}

// Option configures the Bcrypt service.
type Option func(*Bcrypt)

// WithCost overrides the bcrypt work factor.
func WithCost(cost int) Option {
	return func(b *Bcrypt) {
		b.cost = cost
	}
}

// New creates the default credential service.
func New(tokens TokenStore, opts ...Option) (*Bcrypt, error) {
	if tokens == nil {
		return nil, errors.New("token store is required")
	}
	b := &Bcrypt{tokens: tokens, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bcrypt) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (b *Bcrypt) VerifyPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		return ErrPasswordMismatch
	}
	return nil
}

func (b *Bcrypt) IssueToken(ctx context.Context, accountID string, kind models.TokenKind, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(raw)
	if err := b.tokens.Put(ctx, tokenKey(accountID, kind, token), ttl); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return token, nil
}

func (b *Bcrypt) ConsumeToken(ctx context.Context, accountID string, kind models.TokenKind, token string) error {
	if token == "" {
		return sentinel.ErrNotFound
	}
	return b.tokens.Consume(ctx, tokenKey(accountID, kind, token))
}

// tokenKey binds a token to one account and one purpose so a reset token can
// never confirm an email and tokens cannot cross accounts.
func tokenKey(accountID string, kind models.TokenKind, token string) string {
	return string(kind) + ":" + accountID + ":" + token
}
