package auth

import (
	"context"

	"github.com/pstu-cpl/cpl/internal/remote"
)

// profilesTable is the remote collection holding user profiles.
const profilesTable = "profiles"

const profileColumns = "id,name,email,role,avatar_url,session,player_type,semester,payment_method,payment_number,transaction_id,created_at"

// ProfileRepository reads and writes remote profile rows. Lookups return
// nil without error when no row matches.
type ProfileRepository interface {
	GetProfile(ctx context.Context, id string) (*ProfileRow, error)
	GetProfileByEmail(ctx context.Context, email string) (*ProfileRow, error)
	UpsertProfile(ctx context.Context, row ProfileRow) (*ProfileRow, error)
	UpdateProfile(ctx context.Context, id string, fields map[string]any) error
}

// RemoteProfiles implements ProfileRepository over the remote rows API.
type RemoteProfiles struct {
	client *remote.Client
}

// NewRemoteProfiles creates a ProfileRepository backed by client.
func NewRemoteProfiles(client *remote.Client) *RemoteProfiles {
	return &RemoteProfiles{client: client}
}

// GetProfile fetches the profile keyed by account id.
func (r *RemoteProfiles) GetProfile(ctx context.Context, id string) (*ProfileRow, error) {
	return r.single(ctx, "id", id)
}

// GetProfileByEmail fetches the profile with the given email.
func (r *RemoteProfiles) GetProfileByEmail(ctx context.Context, email string) (*ProfileRow, error) {
	return r.single(ctx, "email", email)
}

func (r *RemoteProfiles) single(ctx context.Context, column, value string) (*ProfileRow, error) {
	var row ProfileRow
	found, err := r.client.From(profilesTable).Select(profileColumns).Eq(column, value).Single(ctx, &row)
	if err != nil || !found {
		return nil, err
	}
	return &row, nil
}

// UpsertProfile inserts row or merges it into the row with the same id. It
// returns nil when the service stored nothing.
func (r *RemoteProfiles) UpsertProfile(ctx context.Context, row ProfileRow) (*ProfileRow, error) {
	var rows []ProfileRow
	if err := r.client.From(profilesTable).Upsert(ctx, row, "id", &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateProfile sets fields on the profile keyed by id.
func (r *RemoteProfiles) UpdateProfile(ctx context.Context, id string, fields map[string]any) error {
	return r.client.From(profilesTable).Eq("id", id).Update(ctx, fields, nil)
}
