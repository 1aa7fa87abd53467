// Package handler exposes the read-only hierarchical lookup endpoints
// consumed by the presentation layer's cascading pickers.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	geoModel "shopcore/internal/geo/models"
	"shopcore/pkg/httputil"
)

// Resolver is the interface the handler needs from the geo resolver.
type Resolver interface {
	ListCountries(ctx context.Context) ([]geoModel.Option, error)
	ListStates(ctx context.Context, countryID int64) ([]geoModel.Option, error)
	ListCities(ctx context.Context, stateID int64) ([]geoModel.Option, error)
}

// Handler handles geo lookup endpoints.
type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

// New creates a geo Handler.
func New(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Register mounts the geo routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/geo/countries", h.handleListCountries)
	r.Get("/geo/states", h.handleListStates)
	r.Get("/geo/cities", h.handleListCities)
}

func (h *Handler) handleListCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.resolver.ListCountries(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list countries", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countries)
}

// handleListStates answers GET /geo/states?countryId=N. A missing or unknown
// countryId yields an empty array so the picker clears instead of erroring.
func (h *Handler) handleListStates(w http.ResponseWriter, r *http.Request) {
	countryID := parseID(r.URL.Query().Get("countryId"))
	states, err := h.resolver.ListStates(r.Context(), countryID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list states",
			"country_id", countryID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, states)
}

// handleListCities answers GET /geo/cities?stateId=N with the same empty
// array contract.
func (h *Handler) handleListCities(w http.ResponseWriter, r *http.Request) {
	stateID := parseID(r.URL.Query().Get("stateId"))
	cities, err := h.resolver.ListCities(r.Context(), stateID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list cities",
			"state_id", stateID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cities)
}

// parseID treats unparseable IDs as 0, which no record uses, so bad input
// falls into the empty-list path.
func parseID(raw string) int64 {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
