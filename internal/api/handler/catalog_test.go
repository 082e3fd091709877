package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/api/handler"
	"github.com/pstu-cpl/cpl/internal/catalog"
)

// --- Helpers ---

type mockCatalog struct {
	teams []catalog.TeamOverview
	err   error
	keys  []string
}

func (m *mockCatalog) Tournaments(context.Context) ([]catalog.Tournament, error) {
	return nil, m.err
}

func (m *mockCatalog) Tournament(_ context.Context, id string) (*catalog.Tournament, error) {
	m.keys = append(m.keys, id)
	return nil, catalog.ErrNotFound
}

func (m *mockCatalog) Matches(context.Context) ([]catalog.MatchItem, error) {
	return nil, m.err
}

func (m *mockCatalog) Match(_ context.Context, tid, mid string) (*catalog.Match, error) {
	m.keys = append(m.keys, tid, mid)
	return &catalog.Match{ID: mid, TournamentID: tid}, nil
}

func (m *mockCatalog) Teams(context.Context) ([]catalog.TeamOverview, error) {
	return m.teams, m.err
}

func (m *mockCatalog) Department(_ context.Context, key string) (*catalog.DepartmentTeam, error) {
	m.keys = append(m.keys, key)
	return &catalog.DepartmentTeam{Key: key}, nil
}

func catalogRouter(m *mockCatalog) http.Handler {
	h := handler.NewCatalogHandler(m)
	r := chi.NewRouter()
	r.Get("/tournaments/{id}", h.GetTournament)
	r.Get("/tournaments/{tid}/matches/{mid}", h.GetMatch)
	r.Get("/teams", h.ListTeams)
	r.Get("/teams/{key}", h.GetTeam)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ===== CatalogHandler =====

func TestCatalogHandler_ListTeams(t *testing.T) {
	t.Parallel()

	m := &mockCatalog{teams: []catalog.TeamOverview{{ID: "csit", Name: "CSIT", Short: "CSIT", Players: 11}}}
	w := get(catalogRouter(m), "/teams")

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data []catalog.TeamOverview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, m.teams, env.Data)
}

func TestCatalogHandler_PassesPathParams(t *testing.T) {
	t.Parallel()

	m := &mockCatalog{}
	r := catalogRouter(m)

	assert.Equal(t, http.StatusOK, get(r, "/tournaments/cpl-2024/matches/f1").Code)
	assert.Equal(t, http.StatusOK, get(r, "/teams/pme").Code)
	assert.Equal(t, []string{"cpl-2024", "f1", "pme"}, m.keys)
}

func TestCatalogHandler_NotFound(t *testing.T) {
	t.Parallel()

	w := get(catalogRouter(&mockCatalog{}), "/tournaments/nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"NOT_FOUND"`)
}

func TestCatalogHandler_Failure(t *testing.T) {
	t.Parallel()

	w := get(catalogRouter(&mockCatalog{err: errors.New("bundle missing")}), "/teams")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"INTERNAL_ERROR"`)
}
