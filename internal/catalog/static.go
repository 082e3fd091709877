package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

//go:embed data/catalog.yaml
var defaultCatalog []byte

type staticData struct {
	Tournaments []Tournament     `json:"tournaments"`
	Departments []DepartmentTeam `json:"departments"`
}

// StaticSource serves a catalog bundled with the binary. It is the
// fallback when the remote service has no data or cannot be reached.
type StaticSource struct {
	data staticData
}

// NewStaticSource parses a YAML catalog document.
func NewStaticSource(doc []byte) (*StaticSource, error) {
	var data staticData
	if err := yaml.Unmarshal(doc, &data); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	for i := range data.Departments {
		d := &data.Departments[i]
		if d.Achievements == nil {
			d.Achievements = []string{}
		}
		if d.Players == nil {
			d.Players = []Player{}
		}
		if d.Captain == "" {
			d.Captain = captainOf(d.Players)
		}
	}
	for i := range data.Tournaments {
		if data.Tournaments[i].Matches == nil {
			data.Tournaments[i].Matches = []Match{}
		}
	}
	return &StaticSource{data: data}, nil
}

// DefaultStaticSource returns the bundled catalog.
func DefaultStaticSource() *StaticSource {
	s, err := NewStaticSource(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return s
}

// Tournaments lists every tournament.
func (s *StaticSource) Tournaments(_ context.Context) ([]Tournament, error) {
	return append([]Tournament(nil), s.data.Tournaments...), nil
}

// Tournament returns one tournament.
func (s *StaticSource) Tournament(_ context.Context, id string) (*Tournament, error) {
	for _, t := range s.data.Tournaments {
		if t.ID == id {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

// Matches lists the matches of every tournament.
func (s *StaticSource) Matches(_ context.Context) ([]MatchItem, error) {
	var out []MatchItem
	for _, t := range s.data.Tournaments {
		for _, m := range t.Matches {
			out = append(out, MatchItem{Match: m, TournamentTitle: t.Title, TournamentID: t.ID})
		}
	}
	return out, nil
}

// Match returns one match of a tournament.
func (s *StaticSource) Match(_ context.Context, tournamentID, matchID string) (*Match, error) {
	for _, t := range s.data.Tournaments {
		if t.ID != tournamentID {
			continue
		}
		for _, m := range t.Matches {
			if m.ID == matchID {
				return &m, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Teams lists the department teams.
func (s *StaticSource) Teams(_ context.Context) ([]TeamOverview, error) {
	out := make([]TeamOverview, 0, len(s.data.Departments))
	for _, d := range s.data.Departments {
		out = append(out, TeamOverview{ID: d.Key, Name: d.Name, Short: d.Short, Players: len(d.Players)})
	}
	return out, nil
}

// Department returns a department team by key or short name.
func (s *StaticSource) Department(_ context.Context, key string) (*DepartmentTeam, error) {
	for _, d := range s.data.Departments {
		if strings.EqualFold(d.Key, key) || strings.EqualFold(d.Short, key) {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}
