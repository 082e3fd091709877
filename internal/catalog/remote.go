package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/remote"
)

const (
	tournamentsTable = "tournaments"
	matchesTable     = "matches"
	teamsTable       = "teams"
	membersTable     = "team_members"
	profilesTable    = "profiles"
)

type tournamentRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Season      string `json:"season"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Venue       string `json:"venue"`
}

type matchRow struct {
	ID           string                    `json:"id"`
	TournamentID string                    `json:"tournament_id"`
	MatchDate    string                    `json:"match_date"`
	TeamA        string                    `json:"team_a"`
	TeamB        string                    `json:"team_b"`
	Venue        string                    `json:"venue"`
	Status       string                    `json:"status"`
	Result       string                    `json:"result"`
	Scorecard    json.RawMessage           `json:"scorecard"`
	Tournament   remote.One[tournamentRow] `json:"tournaments"`
}

type countRow struct {
	Count int `json:"count"`
}

type teamRow struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	ShortName   string               `json:"short_name"`
	Description string               `json:"description"`
	Color       string               `json:"color"`
	LogoURL     string               `json:"logo_url"`
	Members     remote.One[countRow] `json:"team_members"`
}

type memberProfile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	Session   string `json:"session"`
}

type memberRow struct {
	TeamID    string                    `json:"team_id"`
	ProfileID string                    `json:"profile_id"`
	Role      string                    `json:"role"`
	Profile   remote.One[memberProfile] `json:"profiles"`
}

// columns is a row written to the remote service.
type columns map[string]any

// compact drops empty strings so the service applies column defaults.
func (c columns) compact() columns {
	for k, v := range c {
		if s, ok := v.(string); ok && s == "" {
			delete(c, k)
		}
	}
	return c
}

func (r matchRow) toMatch() Match {
	return Match{
		ID:           r.ID,
		TournamentID: r.TournamentID,
		MatchDate:    r.MatchDate,
		TeamA:        r.TeamA,
		TeamB:        r.TeamB,
		Venue:        r.Venue,
		Status:       r.Status,
		Result:       r.Result,
		Scorecard:    r.Scorecard,
	}
}

func (r tournamentRow) toTournament() Tournament {
	return Tournament{
		ID:          r.ID,
		Title:       r.Name,
		Season:      r.Season,
		Status:      r.Status,
		Description: r.Description,
		Date:        r.Date,
		Venue:       r.Venue,
		Matches:     []Match{},
	}
}

// RemoteSource reads and writes the catalog through the remote rows API.
// Writes are authorized by the session held by its client.
type RemoteSource struct {
	client *remote.Client
}

// NewRemoteSource creates a RemoteSource over client.
func NewRemoteSource(client *remote.Client) *RemoteSource {
	return &RemoteSource{client: client}
}

// Tournaments lists every tournament with its matches.
func (s *RemoteSource) Tournaments(ctx context.Context) ([]Tournament, error) {
	var rows []tournamentRow
	if err := s.client.From(tournamentsTable).Select("*").Order("created_at", false).Execute(ctx, &rows); err != nil {
		return nil, err
	}
	items, err := s.Matches(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Tournament, 0, len(rows))
	for _, r := range rows {
		t := r.toTournament()
		for _, item := range items {
			if item.TournamentID == t.ID {
				t.Matches = append(t.Matches, item.Match)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// Tournament returns one tournament with its matches.
func (s *RemoteSource) Tournament(ctx context.Context, id string) (*Tournament, error) {
	var row tournamentRow
	found, err := s.client.From(tournamentsTable).Select("*").Eq("id", id).Single(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	var matches []matchRow
	if err := s.client.From(matchesTable).Select("*").Eq("tournament_id", id).Order("match_date", true).Execute(ctx, &matches); err != nil {
		return nil, err
	}
	t := row.toTournament()
	for _, m := range matches {
		t.Matches = append(t.Matches, m.toMatch())
	}
	return &t, nil
}

// Matches lists every match in date order.
func (s *RemoteSource) Matches(ctx context.Context) ([]MatchItem, error) {
	var rows []matchRow
	err := s.client.From(matchesTable).
		Select("*,tournaments:tournament_id(id,name,season)").
		Order("match_date", true).
		Execute(ctx, &rows)
	if err != nil {
		return nil, err
	}

	out := make([]MatchItem, 0, len(rows))
	for _, r := range rows {
		item := MatchItem{Match: r.toMatch(), TournamentID: r.TournamentID}
		if t, ok := r.Tournament.Get(); ok {
			item.TournamentTitle = t.Name
		}
		out = append(out, item)
	}
	return out, nil
}

// Match returns one match of a tournament.
func (s *RemoteSource) Match(ctx context.Context, tournamentID, matchID string) (*Match, error) {
	var row matchRow
	found, err := s.client.From(matchesTable).Select("*").Eq("id", matchID).Single(ctx, &row)
	if err != nil {
		return nil, err
	}
	if !found || (tournamentID != "" && row.TournamentID != tournamentID) {
		return nil, ErrNotFound
	}
	m := row.toMatch()
	return &m, nil
}

// Teams lists every team with its squad size.
func (s *RemoteSource) Teams(ctx context.Context) ([]TeamOverview, error) {
	var rows []teamRow
	if err := s.client.From(teamsTable).Select("id,name,short_name,team_members(count)").Order("name", true).Execute(ctx, &rows); err != nil {
		return nil, err
	}

	out := make([]TeamOverview, 0, len(rows))
	for _, r := range rows {
		o := TeamOverview{ID: r.ID, Name: r.Name, Short: r.ShortName}
		if c, ok := r.Members.Get(); ok {
			o.Players = c.Count
		}
		out = append(out, o)
	}
	return out, nil
}

// Department returns the squad of the team whose short name is key.
func (s *RemoteSource) Department(ctx context.Context, key string) (*DepartmentTeam, error) {
	var team teamRow
	found, err := s.client.From(teamsTable).
		Select("id,name,short_name,description,color,logo_url").
		Eq("short_name", key).
		Single(ctx, &team)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	var members []memberRow
	err = s.client.From(membersTable).
		Select("profile_id,role,profiles(name,avatar_url,session)").
		Eq("team_id", team.ID).
		Execute(ctx, &members)
	if err != nil {
		return nil, err
	}

	d := &DepartmentTeam{
		Key:          team.ShortName,
		Name:         team.Name,
		Short:        team.ShortName,
		Description:  team.Description,
		Color:        team.Color,
		LogoURL:      team.LogoURL,
		Achievements: []string{},
		Players:      make([]Player, 0, len(members)),
	}
	if d.Short == "" {
		d.Short = team.Name
	}
	for _, m := range members {
		p := Player{ID: m.ProfileID, Name: "Player", Role: m.Role}
		if p.Role == "" {
			p.Role = "Player"
		}
		if prof, ok := m.Profile.Get(); ok {
			if prof.Name != "" {
				p.Name = prof.Name
			}
			p.Avatar = prof.AvatarURL
			p.Session = prof.Session
		}
		d.Players = append(d.Players, p)
	}
	d.Captain = captainOf(d.Players)
	return d, nil
}

// captainOf returns the first player whose role mentions captain.
func captainOf(players []Player) string {
	for _, p := range players {
		if strings.Contains(strings.ToLower(p.Role), "captain") {
			return p.Name
		}
	}
	return ""
}

// CreateTournament adds a tournament.
func (s *RemoteSource) CreateTournament(ctx context.Context, in TournamentInput) (*Tournament, error) {
	var rows []tournamentRow
	row := columns{
		"name":        in.Title,
		"season":      in.Season,
		"status":      in.Status,
		"description": in.Description,
		"date":        in.Date,
		"venue":       in.Venue,
	}.compact()
	if err := s.client.From(tournamentsTable).Insert(ctx, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("creating tournament: no row returned")
	}
	t := rows[0].toTournament()
	return &t, nil
}

// CreateTeam adds a team.
func (s *RemoteSource) CreateTeam(ctx context.Context, in TeamInput) (*TeamOverview, error) {
	var rows []teamRow
	row := columns{
		"name":        in.Name,
		"short_name":  strings.ToLower(in.Short),
		"description": in.Description,
		"color":       in.Color,
		"logo_url":    in.LogoURL,
	}.compact()
	if err := s.client.From(teamsTable).Insert(ctx, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("creating team: no row returned")
	}
	return &TeamOverview{ID: rows[0].ID, Name: rows[0].Name, Short: rows[0].ShortName}, nil
}

// DeleteTeam removes a team and its squad.
func (s *RemoteSource) DeleteTeam(ctx context.Context, id string) error {
	if err := s.client.From(membersTable).Eq("team_id", id).Delete(ctx); err != nil {
		return err
	}
	return s.client.From(teamsTable).Eq("id", id).Delete(ctx)
}

// CreateMatch adds a match.
func (s *RemoteSource) CreateMatch(ctx context.Context, in MatchInput) (*Match, error) {
	status := in.Status
	if status == "" {
		status = "scheduled"
	}
	var rows []matchRow
	row := columns{
		"tournament_id": in.TournamentID,
		"match_date":    in.MatchDate,
		"team_a":        in.TeamA,
		"team_b":        in.TeamB,
		"venue":         in.Venue,
		"status":        status,
	}.compact()
	if err := s.client.From(matchesTable).Insert(ctx, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("creating match: no row returned")
	}
	m := rows[0].toMatch()
	return &m, nil
}

// UpdateMatch applies patch to a match.
func (s *RemoteSource) UpdateMatch(ctx context.Context, id string, patch MatchPatch) (*Match, error) {
	fields := make(map[string]any)
	if patch.MatchDate != nil {
		fields["match_date"] = *patch.MatchDate
	}
	if patch.Venue != nil {
		fields["venue"] = *patch.Venue
	}
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Result != nil {
		fields["result"] = *patch.Result
	}
	if len(patch.Scorecard) > 0 {
		fields["scorecard"] = patch.Scorecard
	}

	var rows []matchRow
	if err := s.client.From(matchesTable).Eq("id", id).Update(ctx, fields, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	m := rows[0].toMatch()
	return &m, nil
}

// AssignPlayer places a profile in a team, replacing its previous role
// there.
func (s *RemoteSource) AssignPlayer(ctx context.Context, teamID string, a Assignment) error {
	row := columns{"team_id": teamID, "profile_id": a.ProfileID, "role": a.Role}
	return s.client.From(membersTable).Upsert(ctx, row, "team_id,profile_id", nil)
}

// RemovePlayer takes a profile out of a team.
func (s *RemoteSource) RemovePlayer(ctx context.Context, teamID, profileID string) error {
	return s.client.From(membersTable).Eq("team_id", teamID).Eq("profile_id", profileID).Delete(ctx)
}

// ListRegistrations returns registered players, newest first.
func (s *RemoteSource) ListRegistrations(ctx context.Context) ([]auth.User, error) {
	var rows []auth.ProfileRow
	err := s.client.From(profilesTable).
		Select("*").
		Eq("role", string(auth.RolePlayer)).
		Order("created_at", false).
		Execute(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]auth.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, auth.MapProfile(r))
	}
	return out, nil
}
