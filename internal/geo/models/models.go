// Package models defines the Country → State → City reference hierarchy.
// Records are seeded by an external process and read-only to this service;
// the resolver is the sole enforcement point for parent-chain consistency.
package models

import (
	dErrors "shopcore/pkg/domain-errors"
)

const maxNameLength = 50

// Country is the root of the address hierarchy.
type Country struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// State belongs to exactly one Country. Names are unique within the country.
type State struct {
	ID        int64  `json:"id"`
	CountryID int64  `json:"-"`
	Name      string `json:"name"`
}

// City belongs to exactly one State.
type City struct {
	ID      int64  `json:"id"`
	StateID int64  `json:"-"`
	Name    string `json:"name"`
}

// Option is the {id, name} shape returned by the lookup endpoints and
// consumed by cascading pickers.
type Option struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NewCountry creates a Country with domain invariant validation.
func NewCountry(id int64, name string) (*Country, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Country{ID: id, Name: name}, nil
}

// NewState creates a State with domain invariant validation.
func NewState(id, countryID int64, name string) (*State, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if countryID == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "state requires a country")
	}
	return &State{ID: id, CountryID: countryID, Name: name}, nil
}

// NewCity creates a City with domain invariant validation.
func NewCity(id, stateID int64, name string) (*City, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if stateID == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "city requires a state")
	}
	return &City{ID: id, StateID: stateID, Name: name}, nil
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "name cannot be empty")
	}
	if len(name) > maxNameLength {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "name exceeds %d characters", maxNameLength)
	}
	return nil
}
