package testimonial

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const columns = `id, name, role, email, message, rating, avatar_url, approved, created_at`

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &PostgresRepository{pool: pool}
}

// Create inserts a testimonial. New testimonials are never approved.
func (r *PostgresRepository) Create(ctx context.Context, t *Testimonial) error {
	if t.Rating < 1 || t.Rating > 5 {
		return ErrInvalidRating
	}
	t.Approved = false

	query := `
		INSERT INTO testimonials (name, role, email, message, rating, avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query, t.Name, t.Role, t.Email, t.Message, t.Rating, t.AvatarURL).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return ErrInvalidRating
		}
		return fmt.Errorf("inserting testimonial: %w", err)
	}

	return nil
}

// ListApproved returns the newest approved testimonials, at most limit of
// them. A limit below 1 defaults to 20.
func (r *PostgresRepository) ListApproved(ctx context.Context, limit int) ([]Testimonial, error) {
	if limit < 1 {
		limit = 20
	}
	query := `SELECT ` + columns + `
		FROM testimonials
		WHERE approved
		ORDER BY created_at DESC
		LIMIT $1`

	return r.scanAll(ctx, query, limit)
}

// List returns every testimonial, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Testimonial, error) {
	query := `SELECT ` + columns + `
		FROM testimonials
		ORDER BY created_at DESC`

	return r.scanAll(ctx, query)
}

// Approve publishes a testimonial.
func (r *PostgresRepository) Approve(ctx context.Context, id uuid.UUID) (*Testimonial, error) {
	query := `
		UPDATE testimonials SET approved = TRUE
		WHERE id = $1
		RETURNING ` + columns

	t, err := scan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("approving testimonial: %w", err)
	}
	return t, nil
}

// Delete removes a testimonial by its UUID.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM testimonials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting testimonial: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanAll(ctx context.Context, query string, args ...any) ([]Testimonial, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing testimonials: %w", err)
	}
	defer rows.Close()

	out := []Testimonial{}
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning testimonial row: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating testimonial rows: %w", err)
	}
	return out, nil
}

func scan(row pgx.Row) (*Testimonial, error) {
	var t Testimonial
	err := row.Scan(&t.ID, &t.Name, &t.Role, &t.Email, &t.Message, &t.Rating, &t.AvatarURL, &t.Approved, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
