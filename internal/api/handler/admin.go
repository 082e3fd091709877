package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/catalog"
)

// AdminHandler serves the back-office. Writes run with the signed-in
// admin's remote session, so the data service enforces its own policies
// on top of the route guard.
type AdminHandler struct {
	catalog *catalog.Service
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(svc *catalog.Service) *AdminHandler {
	return &AdminHandler{catalog: svc}
}

func (h *AdminHandler) writer(w http.ResponseWriter, r *http.Request) (*catalog.RemoteSource, bool) {
	ws, ok := webSession(w, r)
	if !ok {
		return nil, false
	}
	src, err := h.catalog.Admin(ws.Client)
	if err != nil {
		if errors.Is(err, catalog.ErrReadOnly) {
			response.Err(w, http.StatusConflict, response.CodeReadOnly, "The catalog is read-only in this deployment", middleware.GetRequestID(r.Context()))
			return nil, false
		}
		writeRemoteError(w, r, "admin", err)
		return nil, false
	}
	return src, true
}

// CreateTournament handles POST /api/admin/tournaments.
func (h *AdminHandler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	var req catalog.TournamentInput
	if !decode(w, r, &req) {
		return
	}
	t, err := src.CreateTournament(r.Context(), req)
	if err != nil {
		writeRemoteError(w, r, "create_tournament", err)
		return
	}
	response.Success(w, http.StatusCreated, t, middleware.GetRequestID(r.Context()))
}

// CreateTeam handles POST /api/admin/teams.
func (h *AdminHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	var req catalog.TeamInput
	if !decode(w, r, &req) {
		return
	}
	t, err := src.CreateTeam(r.Context(), req)
	if err != nil {
		writeRemoteError(w, r, "create_team", err)
		return
	}
	response.Success(w, http.StatusCreated, t, middleware.GetRequestID(r.Context()))
}

// DeleteTeam handles DELETE /api/admin/teams/{id}.
func (h *AdminHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	if err := src.DeleteTeam(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRemoteError(w, r, "delete_team", err)
		return
	}
	response.NoContent(w)
}

// AssignPlayer handles PUT /api/admin/teams/{id}/members.
func (h *AdminHandler) AssignPlayer(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	var req catalog.Assignment
	if !decode(w, r, &req) {
		return
	}
	if err := src.AssignPlayer(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		writeRemoteError(w, r, "assign_player", err)
		return
	}
	response.NoContent(w)
}

// RemovePlayer handles DELETE /api/admin/teams/{id}/members/{profileID}.
func (h *AdminHandler) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	if err := src.RemovePlayer(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "profileID")); err != nil {
		writeRemoteError(w, r, "remove_player", err)
		return
	}
	response.NoContent(w)
}

// CreateMatch handles POST /api/admin/matches.
func (h *AdminHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	var req catalog.MatchInput
	if !decode(w, r, &req) {
		return
	}
	m, err := src.CreateMatch(r.Context(), req)
	if err != nil {
		writeRemoteError(w, r, "create_match", err)
		return
	}
	response.Success(w, http.StatusCreated, m, middleware.GetRequestID(r.Context()))
}

// UpdateMatch handles PATCH /api/admin/matches/{id}.
func (h *AdminHandler) UpdateMatch(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	var req catalog.MatchPatch
	if !decode(w, r, &req) {
		return
	}
	m, err := src.UpdateMatch(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Match not found", middleware.GetRequestID(r.Context()))
			return
		}
		writeRemoteError(w, r, "update_match", err)
		return
	}
	response.Success(w, http.StatusOK, m, middleware.GetRequestID(r.Context()))
}

// ListRegistrations handles GET /api/admin/registrations.
func (h *AdminHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	src, ok := h.writer(w, r)
	if !ok {
		return
	}
	users, err := src.ListRegistrations(r.Context())
	if err != nil {
		writeRemoteError(w, r, "list_registrations", err)
		return
	}
	response.Success(w, http.StatusOK, users, middleware.GetRequestID(r.Context()))
}
