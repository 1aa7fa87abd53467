// Package resolver validates and resolves cascading Country → State → City
// selections. It is the sole enforcement point for the invariant that a
// chosen city belongs to the chosen state, which belongs to the chosen
// country.
package resolver

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	geoModel "shopcore/internal/geo/models"
	dErrors "shopcore/pkg/domain-errors"
	"shopcore/pkg/sentinel"
)

var tracer = otel.Tracer("shopcore/geo/resolver")

// Store is the subset of the geo store the resolver needs.
type Store interface {
	ListCountries(ctx context.Context) ([]geoModel.Country, error)
	ListStates(ctx context.Context, countryID int64) ([]geoModel.State, error)
	ListCities(ctx context.Context, stateID int64) ([]geoModel.City, error)
	FindState(ctx context.Context, stateID int64) (*geoModel.State, error)
	FindCity(ctx context.Context, cityID int64) (*geoModel.City, error)
}

// Resolver answers dependent-picker queries over the hierarchy store. All
// operations are read-only.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithLogger sets a logger for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver over the given store.
func New(store Store, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("geo store is required")
	}
	r := &Resolver{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ListCountries returns every country ordered by name ascending.
func (r *Resolver) ListCountries(ctx context.Context) ([]geoModel.Option, error) {
	countries, err := r.store.ListCountries(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list countries")
	}
	out := make([]geoModel.Option, 0, len(countries))
	for _, c := range countries {
		out = append(out, geoModel.Option{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// ListStates returns the states of countryID ordered by name ascending. An
// unknown country yields an empty list, not an error: the picker simply has
// nothing to offer.
func (r *Resolver) ListStates(ctx context.Context, countryID int64) ([]geoModel.Option, error) {
	states, err := r.store.ListStates(ctx, countryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list states")
	}
	out := make([]geoModel.Option, 0, len(states))
	for _, st := range states {
		out = append(out, geoModel.Option{ID: st.ID, Name: st.Name})
	}
	return out, nil
}

// ListCities returns the cities of stateID ordered by name ascending; empty
// for unknown states.
func (r *Resolver) ListCities(ctx context.Context, stateID int64) ([]geoModel.Option, error) {
	cities, err := r.store.ListCities(ctx, stateID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cities")
	}
	out := make([]geoModel.Option, 0, len(cities))
	for _, c := range cities {
		out = append(out, geoModel.Option{ID: c.ID, Name: c.Name})
	}
	return out, nil
}

// ValidateSelection confirms the parent chain of a full selection:
// City(cityID).State == stateID and State(stateID).Country == countryID.
// Called whenever an account address is created or edited.
func (r *Resolver) ValidateSelection(ctx context.Context, countryID, stateID, cityID int64) error {
	ctx, span := tracer.Start(ctx, "geo.ValidateSelection")
	defer span.End()

	city, err := r.store.FindCity(ctx, cityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeHierarchyMismatch, "city does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up city")
	}
	if city.StateID != stateID {
		return dErrors.New(dErrors.CodeHierarchyMismatch, "city does not belong to the selected state")
	}

	state, err := r.store.FindState(ctx, stateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeHierarchyMismatch, "state does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up state")
	}
	if state.CountryID != countryID {
		return dErrors.New(dErrors.CodeHierarchyMismatch, "state does not belong to the selected country")
	}

	return nil
}
