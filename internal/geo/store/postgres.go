package store

import (
	"context"
	"database/sql"
	"fmt"

	"shopcore/internal/geo/models"
	"shopcore/pkg/sentinel"
)

// Postgres reads the reference hierarchy from relational storage. Foreign
// keys State→Country and City→State plus the per-parent name uniqueness
// constraints live in the schema; this store is pure I/O.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed geo store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) ListCountries(ctx context.Context) ([]models.Country, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	out := make([]models.Country, 0)
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListStates(ctx context.Context, countryID int64) ([]models.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, country_id, name FROM states
		WHERE country_id = $1
		ORDER BY name
	`, countryID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	out := make([]models.State, 0)
	for rows.Next() {
		var st models.State
		if err := rows.Scan(&st.ID, &st.CountryID, &st.Name); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Postgres) ListCities(ctx context.Context, stateID int64) ([]models.City, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state_id, name FROM cities
		WHERE state_id = $1
		ORDER BY name
	`, stateID)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	out := make([]models.City, 0)
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.StateID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) FindState(ctx context.Context, stateID int64) (*models.State, error) {
	var st models.State
	err := s.db.QueryRowContext(ctx, `
		SELECT id, country_id, name FROM states WHERE id = $1
	`, stateID).Scan(&st.ID, &st.CountryID, &st.Name)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find state: %w", err)
	}
	return &st, nil
}

func (s *Postgres) FindCity(ctx context.Context, cityID int64) (*models.City, error) {
	var c models.City
	err := s.db.QueryRowContext(ctx, `
		SELECT id, state_id, name FROM cities WHERE id = $1
	`, cityID).Scan(&c.ID, &c.StateID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find city: %w", err)
	}
	return &c, nil
}
