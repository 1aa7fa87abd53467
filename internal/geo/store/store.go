// Package store holds the geo reference data behind a small lookup
// interface. Implementations: in-memory (development, tests) and Postgres.
package store

import (
	"context"

	"shopcore/internal/geo/models"
)

// Store answers hierarchy queries. Listing methods return name-ascending
// slices and an empty slice — never nil semantics — for unknown parents.
type Store interface {
	ListCountries(ctx context.Context) ([]models.Country, error)
	ListStates(ctx context.Context, countryID int64) ([]models.State, error)
	ListCities(ctx context.Context, stateID int64) ([]models.City, error)
	FindState(ctx context.Context, stateID int64) (*models.State, error)
	FindCity(ctx context.Context, cityID int64) (*models.City, error)
}
