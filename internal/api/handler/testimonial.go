package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pstu-cpl/cpl/internal/api/middleware"
	"github.com/pstu-cpl/cpl/internal/api/response"
	"github.com/pstu-cpl/cpl/internal/testimonial"
)

type testimonialResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	Message   string  `json:"message"`
	Rating    int     `json:"rating"`
	AvatarURL *string `json:"avatarUrl"`
	Approved  bool    `json:"approved"`
	CreatedAt string  `json:"createdAt"`
}

// adminTestimonialResponse adds the submitter's email, which only admins see.
type adminTestimonialResponse struct {
	testimonialResponse
	Email string `json:"email"`
}

func toTestimonialResponse(t *testimonial.Testimonial) testimonialResponse {
	return testimonialResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Role:      t.Role,
		Message:   t.Message,
		Rating:    t.Rating,
		AvatarURL: t.AvatarURL,
		Approved:  t.Approved,
		CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// TestimonialHandler handles testimonial submission and moderation.
type TestimonialHandler struct {
	repo testimonial.Repository
}

// NewTestimonialHandler creates a new TestimonialHandler.
func NewTestimonialHandler(repo testimonial.Repository) *TestimonialHandler {
	return &TestimonialHandler{repo: repo}
}

// Create handles POST /api/testimonials. Submissions await approval.
func (h *TestimonialHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req testimonial.Submission
	if !decode(w, r, &req) {
		return
	}

	t := req.ToTestimonial()
	if err := h.repo.Create(r.Context(), t); err != nil {
		if errors.Is(err, testimonial.ErrInvalidRating) {
			response.Err(w, http.StatusBadRequest, response.CodeValidation, err.Error(), requestID)
			return
		}
		slog.Error("failed to create testimonial", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
		return
	}

	response.Success(w, http.StatusCreated, toTestimonialResponse(t), requestID)
}

// ListApproved handles GET /api/testimonials.
func (h *TestimonialHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			response.Err(w, http.StatusBadRequest, response.CodeValidation, "limit must be between 1 and 100", requestID)
			return
		}
		limit = n
	}

	items, err := h.repo.ListApproved(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list testimonials", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
		return
	}

	data := make([]testimonialResponse, 0, len(items))
	for i := range items {
		data = append(data, toTestimonialResponse(&items[i]))
	}
	response.Success(w, http.StatusOK, data, requestID)
}

// List handles GET /api/admin/testimonials.
func (h *TestimonialHandler) List(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	items, err := h.repo.List(r.Context())
	if err != nil {
		slog.Error("failed to list testimonials", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
		return
	}

	data := make([]adminTestimonialResponse, 0, len(items))
	for i := range items {
		data = append(data, adminTestimonialResponse{
			testimonialResponse: toTestimonialResponse(&items[i]),
			Email:               items[i].Email,
		})
	}
	response.Success(w, http.StatusOK, data, requestID)
}

// Approve handles POST /api/admin/testimonials/{id}/approve.
func (h *TestimonialHandler) Approve(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	t, err := h.repo.Approve(r.Context(), id)
	if err != nil {
		if errors.Is(err, testimonial.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Testimonial not found", requestID)
			return
		}
		slog.Error("failed to approve testimonial", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
		return
	}

	response.Success(w, http.StatusOK, toTestimonialResponse(t), requestID)
}

// Delete handles DELETE /api/admin/testimonials/{id}.
func (h *TestimonialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, testimonial.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Testimonial not found", requestID)
			return
		}
		slog.Error("failed to delete testimonial", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Internal server error", requestID)
		return
	}

	response.NoContent(w)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeValidation, "id must be a valid UUID", middleware.GetRequestID(r.Context()))
		return uuid.Nil, false
	}
	return id, true
}
