// Package catalog serves the league's tournaments, fixtures and squads.
package catalog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pstu-cpl/cpl/internal/remote"
)

// Source reads the catalog.
type Source interface {
	Tournaments(ctx context.Context) ([]Tournament, error)
	Tournament(ctx context.Context, id string) (*Tournament, error)
	Matches(ctx context.Context) ([]MatchItem, error)
	Match(ctx context.Context, tournamentID, matchID string) (*Match, error)
	Teams(ctx context.Context) ([]TeamOverview, error)
	Department(ctx context.Context, key string) (*DepartmentTeam, error)
}

// Service reads from a primary source and falls back to a static one when
// the primary fails or has no matching entry.
type Service struct {
	primary  Source
	fallback Source
}

// NewService creates a Service. primary may be nil, in which case only
// fallback is used and the catalog is read-only.
func NewService(primary, fallback Source) *Service {
	return &Service{primary: primary, fallback: fallback}
}

// Writable reports whether admin writes can be served.
func (s *Service) Writable() bool {
	return s.primary != nil
}

// Admin returns a writer acting with client's session. It fails with
// ErrReadOnly when the catalog has no primary source.
func (s *Service) Admin(client *remote.Client) (*RemoteSource, error) {
	if !s.Writable() || client == nil {
		return nil, ErrReadOnly
	}
	return NewRemoteSource(client), nil
}

// Tournaments lists every tournament.
func (s *Service) Tournaments(ctx context.Context) ([]Tournament, error) {
	return list(s, "tournaments", func(src Source) ([]Tournament, error) { return src.Tournaments(ctx) })
}

// Tournament returns one tournament.
func (s *Service) Tournament(ctx context.Context, id string) (*Tournament, error) {
	return lookup(s, "tournament", func(src Source) (*Tournament, error) { return src.Tournament(ctx, id) })
}

// Matches lists every match.
func (s *Service) Matches(ctx context.Context) ([]MatchItem, error) {
	return list(s, "matches", func(src Source) ([]MatchItem, error) { return src.Matches(ctx) })
}

// Match returns one match.
func (s *Service) Match(ctx context.Context, tournamentID, matchID string) (*Match, error) {
	return lookup(s, "match", func(src Source) (*Match, error) { return src.Match(ctx, tournamentID, matchID) })
}

// Teams lists every team.
func (s *Service) Teams(ctx context.Context) ([]TeamOverview, error) {
	return list(s, "teams", func(src Source) ([]TeamOverview, error) { return src.Teams(ctx) })
}

// Department returns a department squad.
func (s *Service) Department(ctx context.Context, key string) (*DepartmentTeam, error) {
	return lookup(s, "department", func(src Source) (*DepartmentTeam, error) { return src.Department(ctx, key) })
}

func list[T any](s *Service, what string, fetch func(Source) ([]T, error)) ([]T, error) {
	if s.primary != nil {
		items, err := fetch(s.primary)
		if err == nil {
			return items, nil
		}
		slog.Warn("catalog: primary source failed; using bundled catalog", "what", what, "error", err)
	}
	if s.fallback == nil {
		return nil, ErrNotFound
	}
	return fetch(s.fallback)
}

func lookup[T any](s *Service, what string, fetch func(Source) (*T, error)) (*T, error) {
	if s.primary != nil {
		item, err := fetch(s.primary)
		switch {
		case err == nil:
			return item, nil
		case errors.Is(err, ErrNotFound):
			slog.Debug("catalog: entry not in primary source", "what", what)
		default:
			slog.Warn("catalog: primary source failed; using bundled catalog", "what", what, "error", err)
		}
	}
	if s.fallback == nil {
		return nil, ErrNotFound
	}
	return fetch(s.fallback)
}
