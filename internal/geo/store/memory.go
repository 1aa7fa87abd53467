package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"shopcore/internal/geo/models"
	"shopcore/pkg/sentinel"
)

// InMemory keeps the hierarchy in maps keyed by ID. Reads dominate; the
// RWMutex only matters while seeding.
type InMemory struct {
	mu        sync.RWMutex
	countries map[int64]models.Country
	states    map[int64]models.State
	cities    map[int64]models.City
	nextID    int64
}

// NewInMemory creates an empty in-memory geo store.
func NewInMemory() *InMemory {
	return &InMemory{
		countries: make(map[int64]models.Country),
		states:    make(map[int64]models.State),
		cities:    make(map[int64]models.City),
	}
}

// AddCountry inserts a country, assigning an ID when none is set. Name
// uniqueness is case-insensitive, matching the storage-layer constraint.
func (s *InMemory) AddCountry(ctx context.Context, country *models.Country) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.countries {
		if strings.EqualFold(existing.Name, country.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	if country.ID == 0 {
		country.ID = s.allocateID()
	}
	s.countries[country.ID] = *country
	return nil
}

// AddState inserts a state under an existing country.
func (s *InMemory) AddState(ctx context.Context, state *models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.countries[state.CountryID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.states {
		if existing.CountryID == state.CountryID && strings.EqualFold(existing.Name, state.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	if state.ID == 0 {
		state.ID = s.allocateID()
	}
	s.states[state.ID] = *state
	return nil
}

// AddCity inserts a city under an existing state.
func (s *InMemory) AddCity(ctx context.Context, city *models.City) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[city.StateID]; !ok {
		return sentinel.ErrNotFound
	}
	if city.ID == 0 {
		city.ID = s.allocateID()
	}
	s.cities[city.ID] = *city
	return nil
}

func (s *InMemory) ListCountries(ctx context.Context) ([]models.Country, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Country, 0, len(s.countries))
	for _, c := range s.countries {
		out = append(out, c)
	}
	sortByName(out, func(c models.Country) string { return c.Name })
	return out, nil
}

func (s *InMemory) ListStates(ctx context.Context, countryID int64) ([]models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.State, 0)
	for _, st := range s.states {
		if st.CountryID == countryID {
			out = append(out, st)
		}
	}
	sortByName(out, func(st models.State) string { return st.Name })
	return out, nil
}

func (s *InMemory) ListCities(ctx context.Context, stateID int64) ([]models.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.City, 0)
	for _, c := range s.cities {
		if c.StateID == stateID {
			out = append(out, c)
		}
	}
	sortByName(out, func(c models.City) string { return c.Name })
	return out, nil
}

func (s *InMemory) FindState(ctx context.Context, stateID int64) (*models.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[stateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &st, nil
}

func (s *InMemory) FindCity(ctx context.Context, cityID int64) (*models.City, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cities[cityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// allocateID hands out IDs shared across all three levels; callers hold the
// write lock.
func (s *InMemory) allocateID() int64 {
	s.nextID++
	return s.nextID
}

func sortByName[T any](items []T, name func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		return name(items[i]) < name(items[j])
	})
}
