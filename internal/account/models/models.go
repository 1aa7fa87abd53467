// Package models defines the Account aggregate and its lifecycle vocabulary.
// Lifecycle state and the failed-login counter are mutated only by the
// account service; stores treat them as opaque columns.
package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "shopcore/pkg/domain-errors"
)

// LifecycleState is the account's position in the registration state machine.
type LifecycleState string

const (
	// StatePendingConfirmation is the state of every freshly registered
	// account until its confirmation token is redeemed.
	StatePendingConfirmation LifecycleState = "pending_confirmation"
	// StateActive accounts may log in.
	StateActive LifecycleState = "active"
	// StateLockedOut is time-bounded: once LockedUntil passes, the account
	// behaves as Active again. There is no permanent terminal state.
	StateLockedOut LifecycleState = "locked_out"
)

// Kind distinguishes ordinary shoppers from back-office administrators.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// TokenKind is the single purpose a lifecycle token is issued for.
type TokenKind string

const (
	TokenConfirmEmail  TokenKind = "confirm_email"
	TokenPasswordReset TokenKind = "password_reset"
)

// Field limits carried over from the storage schema.
const (
	maxNameLength     = 20
	maxDocumentLength = 20
	maxAddressLength  = 200
)

// Account is the aggregate the lifecycle service operates on. Version backs
// the optimistic compare-and-swap protocol: every store update must match
// the version it read and bumps it by one.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Document     string
	Address      string
	Phone        string
	// ImageID references an uploaded profile photo; uuid.Nil means none.
	ImageID uuid.UUID
	// CityID is the leaf of a validated Country→State→City selection.
	CityID *int64
	Kind   Kind
	State  LifecycleState

	FailedLogins int
	LockedUntil  *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile carries the mutable person fields used at registration and profile
// update time.
type Profile struct {
	FirstName string
	LastName  string
	Document  string
	Address   string
	Phone     string
	ImageID   uuid.UUID
	CityID    *int64
}

// Validate enforces the schema field limits.
func (p Profile) Validate() error {
	switch {
	case p.FirstName == "" || len(p.FirstName) > maxNameLength:
		return dErrors.Newf(dErrors.CodeBadRequest, "first name is required and must not exceed %d characters", maxNameLength)
	case p.LastName == "" || len(p.LastName) > maxNameLength:
		return dErrors.Newf(dErrors.CodeBadRequest, "last name is required and must not exceed %d characters", maxNameLength)
	case len(p.Document) > maxDocumentLength:
		return dErrors.Newf(dErrors.CodeBadRequest, "document must not exceed %d characters", maxDocumentLength)
	case len(p.Address) > maxAddressLength:
		return dErrors.Newf(dErrors.CodeBadRequest, "address must not exceed %d characters", maxAddressLength)
	}
	return nil
}

// NewAccount creates an account in PendingConfirmation with a fresh ID.
func NewAccount(email, passwordHash string, profile Profile, kind Kind, now time.Time) (*Account, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "email is required")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Document:     profile.Document,
		Address:      profile.Address,
		Phone:        profile.Phone,
		ImageID:      profile.ImageID,
		CityID:       profile.CityID,
		Kind:         kind,
		State:        StatePendingConfirmation,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// FullName mirrors the display name used in outbound mail.
func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// IsLockedAt reports whether the lockout window is still open at now.
func (a *Account) IsLockedAt(now time.Time) bool {
	return a.State == StateLockedOut && a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockoutRemaining is the live wait time left at now; zero when not locked.
func (a *Account) LockoutRemaining(now time.Time) time.Duration {
	if !a.IsLockedAt(now) {
		return 0
	}
	return a.LockedUntil.Sub(now)
}

// LifecycleAt resolves the effective state at now: an expired lockout reads
// as Active even before a write has cleared the columns.
func (a *Account) LifecycleAt(now time.Time) LifecycleState {
	if a.State == StateLockedOut && !a.IsLockedAt(now) {
		return StateActive
	}
	return a.State
}

// RecordFailedLogin bumps the counter and trips the lockout when the
// threshold is reached. The counter resets to zero on lock so the next
// window starts clean. Returns true when this failure triggered the lockout.
func (a *Account) RecordFailedLogin(now time.Time, threshold int, duration time.Duration) bool {
	a.FailedLogins++
	if a.FailedLogins < threshold {
		return false
	}
	until := now.Add(duration)
	a.State = StateLockedOut
	a.LockedUntil = &until
	a.FailedLogins = 0
	return true
}

// ClearLockout resets the failure counter and any lockout, restoring Active.
// Pending accounts stay pending; email confirmation is a separate concern.
func (a *Account) ClearLockout() {
	a.FailedLogins = 0
	a.LockedUntil = nil
	if a.State == StateLockedOut {
		a.State = StateActive
	}
}
