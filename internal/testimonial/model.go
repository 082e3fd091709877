package testimonial

import (
	"time"

	"github.com/google/uuid"
)

// Testimonial represents a row in the testimonials table.
type Testimonial struct {
	ID        uuid.UUID
	Name      string
	Role      string
	Email     string
	Message   string
	Rating    int
	AvatarURL *string
	Approved  bool
	CreatedAt time.Time
}

// Submission is a visitor's testimonial as posted on the site.
type Submission struct {
	Name      string `json:"name" validate:"required,max=120"`
	Role      string `json:"role" validate:"max=120"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Message   string `json:"message" validate:"required,min=10,max=2000"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
}

// ToTestimonial converts s into an unapproved Testimonial.
func (s Submission) ToTestimonial() *Testimonial {
	t := &Testimonial{
		Name:    s.Name,
		Role:    s.Role,
		Email:   s.Email,
		Message: s.Message,
		Rating:  s.Rating,
	}
	if s.AvatarURL != "" {
		url := s.AvatarURL
		t.AvatarURL = &url
	}
	return t
}
