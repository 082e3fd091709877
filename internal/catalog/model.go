package catalog

import (
	"encoding/json"
	"errors"
)

var (
	ErrNotFound = errors.New("catalog entry not found")
	ErrReadOnly = errors.New("catalog is read-only")
)

// Tournament is a season of the league.
type Tournament struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Season      string  `json:"season,omitempty"`
	Status      string  `json:"status,omitempty"`
	Description string  `json:"description,omitempty"`
	Date        string  `json:"date,omitempty"`
	Venue       string  `json:"venue,omitempty"`
	Matches     []Match `json:"matches"`
}

// Match is a fixture between two teams.
type Match struct {
	ID           string          `json:"id"`
	TournamentID string          `json:"tournamentId"`
	MatchDate    string          `json:"matchDate,omitempty"`
	TeamA        string          `json:"teamA,omitempty"`
	TeamB        string          `json:"teamB,omitempty"`
	Venue        string          `json:"venue,omitempty"`
	Status       string          `json:"status,omitempty"`
	Result       string          `json:"result,omitempty"`
	Scorecard    json.RawMessage `json:"scorecard,omitempty"`
}

// MatchItem is a match listed together with its tournament.
type MatchItem struct {
	Match           Match  `json:"match"`
	TournamentTitle string `json:"tournamentTitle"`
	TournamentID    string `json:"tournamentId"`
}

// TeamOverview is a team in the team listing.
type TeamOverview struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Short   string `json:"short"`
	Players int    `json:"players"`
}

// DepartmentTeam is a department's squad.
type DepartmentTeam struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	Short        string   `json:"short"`
	Description  string   `json:"description"`
	Color        string   `json:"color,omitempty"`
	LogoURL      string   `json:"logoUrl,omitempty"`
	Captain      string   `json:"captain,omitempty"`
	Coach        string   `json:"coach,omitempty"`
	Achievements []string `json:"achievements"`
	Players      []Player `json:"players"`
}

// Player is a squad member.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Session string `json:"session,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

// TournamentInput creates a tournament.
type TournamentInput struct {
	Title       string `json:"title" validate:"required,max=120"`
	Season      string `json:"season" validate:"max=40"`
	Status      string `json:"status" validate:"omitempty,oneof=upcoming ongoing completed"`
	Description string `json:"description" validate:"max=2000"`
	Date        string `json:"date" validate:"max=60"`
	Venue       string `json:"venue" validate:"max=120"`
}

// TeamInput creates a team.
type TeamInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Short       string `json:"short" validate:"required,max=20"`
	Description string `json:"description" validate:"max=2000"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	LogoURL     string `json:"logoUrl" validate:"omitempty,url"`
}

// MatchInput creates a match.
type MatchInput struct {
	TournamentID string `json:"tournamentId" validate:"required"`
	MatchDate    string `json:"matchDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	TeamA        string `json:"teamA" validate:"required,max=120"`
	TeamB        string `json:"teamB" validate:"required,max=120,nefield=TeamA"`
	Venue        string `json:"venue" validate:"max=120"`
	Status       string `json:"status" validate:"omitempty,oneof=scheduled live completed abandoned"`
}

// MatchPatch updates a match. Nil fields are left unchanged.
type MatchPatch struct {
	MatchDate *string         `json:"matchDate" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Venue     *string         `json:"venue" validate:"omitempty,max=120"`
	Status    *string         `json:"status" validate:"omitempty,oneof=scheduled live completed abandoned"`
	Result    *string         `json:"result" validate:"omitempty,max=500"`
	Scorecard json.RawMessage `json:"scorecard"`
}

// Assignment places a registered player in a team.
type Assignment struct {
	ProfileID string `json:"profileId" validate:"required"`
	Role      string `json:"role" validate:"required,max=40"`
}
