package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/auth"
)

// publicProfile is what anyone may see of a player. Payment details stay
// private to the player and admins.
type publicProfile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Role       auth.Role `json:"role"`
	Avatar     *string   `json:"avatar"`
	Session    string    `json:"session,omitempty"`
	PlayerType string    `json:"playerType,omitempty"`
	Semester   string    `json:"semester,omitempty"`
}

// ProfileHandler serves public player profiles.
type ProfileHandler struct{}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler() *ProfileHandler {
	return &ProfileHandler{}
}

// Get handles GET /api/profiles/{id}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ws, ok := webSession(w, r)
	if !ok {
		return
	}

	row, err := auth.NewRemoteProfiles(ws.Client).GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRemoteError(w, r, "get_profile", err)
		return
	}
	if row == nil {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Profile not found", requestID)
		return
	}

	u := auth.MapProfile(*row)
	response.Success(w, http.StatusOK, publicProfile{
		ID:         u.ID,
		Name:       u.Name,
		Role:       u.Role,
		Avatar:     u.Avatar,
		Session:    u.Session,
		PlayerType: u.PlayerType,
		Semester:   u.Semester,
	}, requestID)
}
