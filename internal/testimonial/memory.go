package testimonial

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository implements Repository in process memory. It backs the
// server when no database is configured.
type MemoryRepository struct {
	mu    sync.Mutex
	items map[uuid.UUID]Testimonial
	now   func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]Testimonial), now: time.Now}
}

// Create stores t unapproved.
func (r *MemoryRepository) Create(_ context.Context, t *Testimonial) error {
	if t.Rating < 1 || t.Rating > 5 {
		return ErrInvalidRating
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t.ID = uuid.New()
	t.Approved = false
	t.CreatedAt = r.now().UTC()
	r.items[t.ID] = *t
	return nil
}

// ListApproved returns the newest approved testimonials.
func (r *MemoryRepository) ListApproved(_ context.Context, limit int) ([]Testimonial, error) {
	if limit < 1 {
		limit = 20
	}
	out := r.sorted(func(t Testimonial) bool { return t.Approved })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns every testimonial, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]Testimonial, error) {
	return r.sorted(func(Testimonial) bool { return true }), nil
}

// Approve publishes a testimonial.
func (r *MemoryRepository) Approve(_ context.Context, id uuid.UUID) (*Testimonial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.Approved = true
	r.items[id] = t
	return &t, nil
}

// Delete removes a testimonial.
func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryRepository) sorted(keep func(Testimonial) bool) []Testimonial {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Testimonial{}
	for _, t := range r.items {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
