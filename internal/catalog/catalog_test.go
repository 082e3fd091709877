package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/catalog"
	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/remote/remotetest"
)

// --- Helpers ---

func anonClient(t *testing.T, srv *remotetest.Server) *remote.Client {
	t.Helper()
	c, err := remote.NewClient(srv.Config(), nil)
	require.NoError(t, err)
	return c
}

func adminClient(t *testing.T, srv *remotetest.Server) *remote.Client {
	t.Helper()
	srv.AddAccount("cpl.admin@pstu.ac.bd", "secret1")
	c := anonClient(t, srv)
	_, err := c.SignInWithPassword(context.Background(), "cpl.admin@pstu.ac.bd", "secret1")
	require.NoError(t, err)
	return c
}

func seedLeague(srv *remotetest.Server) {
	srv.Seed("tournaments", map[string]any{"id": "t1", "name": "CPL 2026", "season": "2026", "status": "ongoing"})
	srv.Seed("matches",
		map[string]any{
			"id": "m2", "tournament_id": "t1", "match_date": "2026-01-11T09:30:00Z", "team_a": "PME", "team_b": "EEE",
			"tournaments": map[string]any{"id": "t1", "name": "CPL 2026", "season": "2026"},
		},
		map[string]any{
			"id": "m1", "tournament_id": "t1", "match_date": "2026-01-10T09:30:00Z", "team_a": "CSIT", "team_b": "CCE",
			"tournaments": []any{map[string]any{"id": "t1", "name": "CPL 2026", "season": "2026"}},
		},
	)
	srv.Seed("teams",
		map[string]any{"id": "team-csit", "name": "Computer Science", "short_name": "csit", "team_members": []any{map[string]any{"count": 2}}},
		map[string]any{"id": "team-eee", "name": "Electrical", "short_name": "eee", "team_members": []any{}},
	)
	srv.Seed("team_members",
		map[string]any{"team_id": "team-csit", "profile_id": "p1", "role": "Batsman", "profiles": map[string]any{"name": "Asha", "session": "2021-22"}},
		map[string]any{"team_id": "team-csit", "profile_id": "p2", "role": "Bowler (Captain)", "profiles": nil},
	)
}

// ===== StaticSource =====

func TestStaticSource_Bundled(t *testing.T) {
	t.Parallel()

	src := catalog.DefaultStaticSource()
	ctx := context.Background()

	teams, err := src.Teams(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(teams))
	for _, team := range teams {
		keys = append(keys, team.ID)
		assert.Positive(t, team.Players, team.ID)
	}
	assert.Equal(t, []string{"csit", "cce", "pme", "eee", "mathematics"}, keys)

	d, err := src.Department(ctx, "CSIT")
	require.NoError(t, err)
	assert.Equal(t, "Tanvir Ahmed", d.Captain)
	assert.Equal(t, "2020-21", d.Players[0].Session)

	_, err = src.Department(ctx, "law")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	items, err := src.Matches(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "CSE Premier League 2025", items[0].TournamentTitle)

	m, err := src.Match(ctx, "cpl-2024", "f1")
	require.NoError(t, err)
	assert.Equal(t, "CSIT won by 6 wickets", m.Result)
}

func TestNewStaticSource_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := catalog.NewStaticSource([]byte("tournaments: [unterminated"))
	assert.Error(t, err)
}

// ===== RemoteSource =====

func TestRemoteSource_Reads(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	seedLeague(srv)
	src := catalog.NewRemoteSource(anonClient(t, srv))
	ctx := context.Background()

	items, err := src.Matches(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "m1", items[0].Match.ID)
	assert.Equal(t, "CPL 2026", items[0].TournamentTitle)
	assert.Equal(t, "CPL 2026", items[1].TournamentTitle)

	tour, err := src.Tournament(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "CPL 2026", tour.Title)
	require.Len(t, tour.Matches, 2)

	teams, err := src.Teams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, catalog.TeamOverview{ID: "team-csit", Name: "Computer Science", Short: "csit", Players: 2}, teams[0])
	assert.Equal(t, 0, teams[1].Players)

	d, err := src.Department(ctx, "csit")
	require.NoError(t, err)
	require.Len(t, d.Players, 2)
	assert.Equal(t, "Asha", d.Players[0].Name)
	assert.Equal(t, "Player", d.Players[1].Name)
	assert.Equal(t, "Player", d.Captain)

	_, err = src.Match(ctx, "other", "m1")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRemoteSource_AdminWrites(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	seedLeague(srv)
	w := catalog.NewRemoteSource(adminClient(t, srv))
	ctx := context.Background()

	team, err := w.CreateTeam(ctx, catalog.TeamInput{Name: "Mathematics", Short: "MATH"})
	require.NoError(t, err)
	assert.Equal(t, "math", team.Short)
	assert.NotEmpty(t, team.ID)

	require.NoError(t, w.AssignPlayer(ctx, team.ID, catalog.Assignment{ProfileID: "p9", Role: "Batsman"}))
	require.NoError(t, w.AssignPlayer(ctx, team.ID, catalog.Assignment{ProfileID: "p9", Role: "Captain"}))
	var roles []any
	for _, row := range srv.Rows("team_members") {
		if row["team_id"] == team.ID {
			roles = append(roles, row["role"])
		}
	}
	assert.Equal(t, []any{"Captain"}, roles)

	require.NoError(t, w.RemovePlayer(ctx, team.ID, "p9"))
	require.NoError(t, w.DeleteTeam(ctx, team.ID))
	assert.Len(t, srv.Rows("teams"), 2)

	tour, err := w.CreateTournament(ctx, catalog.TournamentInput{Title: "CPL 2027"})
	require.NoError(t, err)
	assert.Equal(t, "CPL 2027", tour.Title)

	m, err := w.CreateMatch(ctx, catalog.MatchInput{TournamentID: tour.ID, TeamA: "CSIT", TeamB: "EEE"})
	require.NoError(t, err)
	assert.Equal(t, "scheduled", m.Status)

	result := "CSIT won by 10 runs"
	status := "completed"
	updated, err := w.UpdateMatch(ctx, m.ID, catalog.MatchPatch{Status: &status, Result: &result})
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	assert.Equal(t, result, updated.Result)

	_, err = w.UpdateMatch(ctx, "missing", catalog.MatchPatch{Status: &status})
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestRemoteSource_ListRegistrations(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.Seed("profiles",
		map[string]any{"id": "p1", "name": "Asha", "email": "asha@pstu.ac.bd", "role": "player", "created_at": "2026-01-01T00:00:00Z"},
		map[string]any{"id": "p2", "name": "Admin", "email": "cpl.admin@pstu.ac.bd", "role": "admin", "created_at": "2026-01-02T00:00:00Z"},
		map[string]any{"id": "p3", "name": "Rafi", "email": "rafi@pstu.ac.bd", "role": "player", "created_at": "2026-01-03T00:00:00Z"},
	)
	w := catalog.NewRemoteSource(adminClient(t, srv))

	users, err := w.ListRegistrations(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Rafi", users[0].Name)
	assert.Equal(t, auth.RolePlayer, users[1].Role)
}

// ===== Service =====

func TestService_FallsBackWhenRemoteDown(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	srv.Down.Store(true)
	svc := catalog.NewService(catalog.NewRemoteSource(anonClient(t, srv)), catalog.DefaultStaticSource())

	teams, err := svc.Teams(context.Background())
	require.NoError(t, err)
	assert.Len(t, teams, 5)

	d, err := svc.Department(context.Background(), "cce")
	require.NoError(t, err)
	assert.Equal(t, "CCE", d.Short)
}

func TestService_FallsBackOnMiss(t *testing.T) {
	t.Parallel()

	srv := remotetest.New()
	seedLeague(srv)
	svc := catalog.NewService(catalog.NewRemoteSource(anonClient(t, srv)), catalog.DefaultStaticSource())
	ctx := context.Background()

	d, err := svc.Department(ctx, "csit")
	require.NoError(t, err)
	assert.Equal(t, "Computer Science", d.Name, "remote entry wins")

	d, err = svc.Department(ctx, "pme")
	require.NoError(t, err)
	assert.Equal(t, "PME", d.Short)

	_, err = svc.Tournament(ctx, "nope")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestService_ReadOnlyWithoutPrimary(t *testing.T) {
	t.Parallel()

	svc := catalog.NewService(nil, catalog.DefaultStaticSource())
	assert.False(t, svc.Writable())

	_, err := svc.Admin(nil)
	assert.ErrorIs(t, err, catalog.ErrReadOnly)

	tours, err := svc.Tournaments(context.Background())
	require.NoError(t, err)
	assert.Len(t, tours, 2)
}
