// Package store persists accounts. Implementations must honor the
// compare-and-swap contract on Account.Version so the service can serialize
// mutations per account without cross-account locking.
package store

import (
	"context"

	"shopcore/internal/account/models"
)

// AccountStore is the persistence boundary for accounts.
//
// Create returns sentinel.ErrAlreadyUsed when the email is taken
// (case-insensitive). Update returns sentinel.ErrConflict when the record's
// version no longer matches the one read — callers re-read and retry.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
}
