package handler

import (
	"net/http"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email,max=255"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	Avatar        string `json:"avatar" validate:"omitempty,avatar"`
	Session       string `json:"session" validate:"max=20"`
	PlayerType    string `json:"playerType" validate:"omitempty,max=40"`
	Semester      string `json:"semester" validate:"max=20"`
	PaymentMethod string `json:"paymentMethod" validate:"omitempty,max=40"`
	PaymentNumber string `json:"paymentNumber" validate:"max=20"`
	TransactionID string `json:"transactionId" validate:"max=60"`
}

type updateRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=120"`
	Avatar        *string `json:"avatar" validate:"omitempty,avatar"`
	Session       *string `json:"session" validate:"omitempty,max=20"`
	PlayerType    *string `json:"playerType" validate:"omitempty,max=40"`
	Semester      *string `json:"semester" validate:"omitempty,max=20"`
	PaymentMethod *string `json:"paymentMethod" validate:"omitempty,max=40"`
	PaymentNumber *string `json:"paymentNumber" validate:"omitempty,max=20"`
	TransactionID *string `json:"transactionId" validate:"omitempty,max=60"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type sessionResponse struct {
	State   auth.State `json:"state"`
	User    *auth.User `json:"user"`
	Landing string     `json:"landing,omitempty"`
}

// AuthHandler exposes the browser session's auth controller.
type AuthHandler struct {
	policy auth.Policy
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(policy auth.Policy) *AuthHandler {
	return &AuthHandler{policy: policy}
}

func (h *AuthHandler) respond(w http.ResponseWriter, r *http.Request, status int, s auth.Snapshot) {
	body := sessionResponse{State: s.State, User: s.User}
	if s.State == auth.StateAuthenticated && s.User != nil {
		body.Landing = h.policy.LandingFor(s.User.Role)
	}
	response.Success(w, status, body, middleware.GetRequestID(r.Context()))
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, ws.Controller.Snapshot())
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := ws.Controller.Login(r.Context(), req.Email, req.Password); err != nil {
		writeAuthError(w, r, "login", err)
		return
	}
	h.respond(w, r, http.StatusOK, ws.Controller.Snapshot())
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}

	_, err := ws.Controller.Register(r.Context(), auth.RegisterInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		Avatar:        req.Avatar,
		Session:       req.Session,
		PlayerType:    req.PlayerType,
		Semester:      req.Semester,
		PaymentMethod: req.PaymentMethod,
		PaymentNumber: req.PaymentNumber,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeAuthError(w, r, "register", err)
		return
	}
	h.respond(w, r, http.StatusCreated, ws.Controller.Snapshot())
}

// Logout handles POST /api/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	if err := ws.Controller.Logout(r.Context()); err != nil {
		writeAuthError(w, r, "logout", err)
		return
	}
	h.respond(w, r, http.StatusOK, ws.Controller.Snapshot())
}

// Update handles PATCH /api/auth/me.
func (h *AuthHandler) Update(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !decode(w, r, &req) {
		return
	}

	_, err := ws.Controller.UpdateUser(r.Context(), auth.Patch{
		Name:          req.Name,
		Avatar:        req.Avatar,
		Session:       req.Session,
		PlayerType:    req.PlayerType,
		Semester:      req.Semester,
		PaymentMethod: req.PaymentMethod,
		PaymentNumber: req.PaymentNumber,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeAuthError(w, r, "update", err)
		return
	}
	h.respond(w, r, http.StatusOK, ws.Controller.Snapshot())
}

// ChangePassword handles POST /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := ws.Controller.ChangePassword(r.Context(), req.Password); err != nil {
		writeAuthError(w, r, "change_password", err)
		return
	}
	response.NoContent(w)
}

// RequestPasswordReset handles POST /api/auth/password-reset. The answer
// does not reveal whether the email is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := webSession(w, r)
	if !ok {
		return
	}
	var req resetRequest
	if !decode(w, r, &req) {
		return
	}

	if err := ws.Controller.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAuthError(w, r, "password_reset", err)
		return
	}
	response.Success(w, http.StatusAccepted, map[string]string{"status": "sent"}, middleware.GetRequestID(r.Context()))
}
