// Package testimonial stores the reviews visitors leave on the site.
package testimonial

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a testimonial does not exist.
var ErrNotFound = errors.New("testimonial not found")

// ErrInvalidRating is returned when a rating falls outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Repository provides operations on the testimonials table.
type Repository interface {
	Create(ctx context.Context, t *Testimonial) error
	ListApproved(ctx context.Context, limit int) ([]Testimonial, error)
	List(ctx context.Context) ([]Testimonial, error)
	Approve(ctx context.Context, id uuid.UUID) (*Testimonial, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
