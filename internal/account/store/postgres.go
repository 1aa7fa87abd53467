package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"shopcore/internal/account/models"
	"shopcore/pkg/sentinel"
)

// Postgres persists accounts in PostgreSQL. This store is pure I/O — all
// lifecycle decisions belong in the service. The accounts table carries a
// case-insensitive unique index on email and a version column backing the
// optimistic concurrency contract.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed account store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const accountColumns = `
	id, email, password_hash, first_name, last_name, document, address, phone,
	image_id, city_id, kind, state, failed_logins, locked_until, version,
	created_at, updated_at
`

func (s *Postgres) Create(ctx context.Context, account *models.Account) error {
	account.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Document,
		account.Address,
		account.Phone,
		account.ImageID,
		account.CityID,
		account.Kind,
		account.State,
		account.FailedLogins,
		account.LockedUntil,
		account.Version,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505: unique_violation on the lower(email) index.
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)
	`, email)
	return scanAccount(row)
}

// Update writes the record only when the stored version matches the one the
// caller read. Zero rows affected means a concurrent writer won; the caller
// re-reads and retries.
func (s *Postgres) Update(ctx context.Context, account *models.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			email = $2,
			password_hash = $3,
			first_name = $4,
			last_name = $5,
			document = $6,
			address = $7,
			phone = $8,
			image_id = $9,
			city_id = $10,
			kind = $11,
			state = $12,
			failed_logins = $13,
			locked_until = $14,
			version = version + 1,
			updated_at = $15
		WHERE id = $1 AND version = $16
	`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Document,
		account.Address,
		account.Phone,
		account.ImageID,
		account.CityID,
		account.Kind,
		account.State,
		account.FailedLogins,
		account.LockedUntil,
		account.UpdatedAt,
		account.Version,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	account.Version++
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.FirstName,
		&a.LastName,
		&a.Document,
		&a.Address,
		&a.Phone,
		&a.ImageID,
		&a.CityID,
		&a.Kind,
		&a.State,
		&a.FailedLogins,
		&a.LockedUntil,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
