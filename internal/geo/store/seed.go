package store

import (
	"context"
	"fmt"

	"shopcore/internal/geo/models"
)

// SeedReferenceData loads the development hierarchy into an in-memory store.
// Production deployments seed relational storage out of band instead.
func SeedReferenceData(ctx context.Context, s *InMemory) error {
	hierarchy := map[string]map[string][]string{
		"Colombia": {
			"Antioquia":       {"Medellín", "Envigado", "Itagüí"},
			"Cundinamarca":    {"Bogotá", "Soacha", "Chía"},
			"Valle del Cauca": {"Cali", "Palmira", "Buenaventura"},
		},
		"United States": {
			"Florida":    {"Miami", "Orlando", "Tampa"},
			"California": {"Los Angeles", "San Diego", "San Francisco"},
			"Texas":      {"Houston", "Dallas", "Austin"},
		},
	}

	for countryName, states := range hierarchy {
		country, err := models.NewCountry(0, countryName)
		if err != nil {
			return fmt.Errorf("seed country %s: %w", countryName, err)
		}
		if err := s.AddCountry(ctx, country); err != nil {
			return fmt.Errorf("seed country %s: %w", countryName, err)
		}

		for stateName, cities := range states {
			state, err := models.NewState(0, country.ID, stateName)
			if err != nil {
				return fmt.Errorf("seed state %s: %w", stateName, err)
			}
			if err := s.AddState(ctx, state); err != nil {
				return fmt.Errorf("seed state %s: %w", stateName, err)
			}

			for _, cityName := range cities {
				city, err := models.NewCity(0, state.ID, cityName)
				if err != nil {
					return fmt.Errorf("seed city %s: %w", cityName, err)
				}
				if err := s.AddCity(ctx, city); err != nil {
					return fmt.Errorf("seed city %s: %w", cityName, err)
				}
			}
		}
	}
	return nil
}
