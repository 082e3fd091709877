package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/catalog"
)

// CatalogReader is the read side of the catalog.
type CatalogReader interface {
	Tournaments(ctx context.Context) ([]catalog.Tournament, error)
	Tournament(ctx context.Context, id string) (*catalog.Tournament, error)
	Matches(ctx context.Context) ([]catalog.MatchItem, error)
	Match(ctx context.Context, tournamentID, matchID string) (*catalog.Match, error)
	Teams(ctx context.Context) ([]catalog.TeamOverview, error)
	Department(ctx context.Context, key string) (*catalog.DepartmentTeam, error)
}

// CatalogHandler serves tournaments, fixtures and squads.
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(c CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// ListTournaments handles GET /api/tournaments.
func (h *CatalogHandler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Tournaments(r.Context())
	writeCatalog(w, r, items, err)
}

// GetTournament handles GET /api/tournaments/{id}.
func (h *CatalogHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.catalog.Tournament(r.Context(), chi.URLParam(r, "id"))
	writeCatalog(w, r, t, err)
}

// ListMatches handles GET /api/matches.
func (h *CatalogHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Matches(r.Context())
	writeCatalog(w, r, items, err)
}

// GetMatch handles GET /api/tournaments/{tid}/matches/{mid}.
func (h *CatalogHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.catalog.Match(r.Context(), chi.URLParam(r, "tid"), chi.URLParam(r, "mid"))
	writeCatalog(w, r, m, err)
}

// ListTeams handles GET /api/teams.
func (h *CatalogHandler) ListTeams(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.Teams(r.Context())
	writeCatalog(w, r, items, err)
}

// GetTeam handles GET /api/teams/{key}.
func (h *CatalogHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	d, err := h.catalog.Department(r.Context(), chi.URLParam(r, "key"))
	writeCatalog(w, r, d, err)
}

func writeCatalog(w http.ResponseWriter, r *http.Request, data any, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case err == nil:
		response.Success(w, http.StatusOK, data, requestID)
	case errors.Is(err, catalog.ErrNotFound):
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Not found", requestID)
	default:
		slog.Error("catalog: read failed", "path", r.URL.Path, "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
	}
}
