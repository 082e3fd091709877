package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/auth"
)

func ptr(s string) *string { return &s }

func TestMapProfile_OnlyID(t *testing.T) {
	t.Parallel()

	u := auth.MapProfile(auth.ProfileRow{ID: "acc-1"})

	assert.Equal(t, "acc-1", u.ID)
	assert.Equal(t, auth.RolePlayer, u.Role)
	assert.Equal(t, "User", u.Name)
	assert.Nil(t, u.Avatar)
	assert.Empty(t, u.Email)
	assert.Empty(t, u.Session)
	assert.Empty(t, u.PlayerType)
}

func TestMapProfile_Fields(t *testing.T) {
	t.Parallel()

	row := auth.ProfileRow{
		ID:            "acc-1",
		Name:          ptr("Asha Rahman"),
		Email:         ptr("asha@pstu.ac.bd"),
		Role:          ptr("player"),
		AvatarURL:     ptr("https://cdn.example/a.png"),
		Session:       ptr("2021-22"),
		PlayerType:    ptr("batsman"),
		Semester:      ptr("4th"),
		PaymentMethod: ptr("bkash"),
		PaymentNumber: ptr("01700000000"),
		TransactionID: ptr("TX1"),
	}

	u := auth.MapProfile(row)

	assert.Equal(t, "Asha Rahman", u.Name)
	assert.Equal(t, "asha@pstu.ac.bd", u.Email)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, "https://cdn.example/a.png", *u.Avatar)
	assert.Equal(t, "2021-22", u.Session)
	assert.Equal(t, "batsman", u.PlayerType)
	assert.Equal(t, "4th", u.Semester)
	assert.Equal(t, "bkash", u.PaymentMethod)
	assert.Equal(t, "01700000000", u.PaymentNumber)
	assert.Equal(t, "TX1", u.TransactionID)
}

func TestMapProfile_NameFallsBackToEmail(t *testing.T) {
	t.Parallel()

	u := auth.MapProfile(auth.ProfileRow{ID: "acc-1", Name: ptr("  "), Email: ptr("rafi@pstu.ac.bd")})
	assert.Equal(t, "rafi", u.Name)
}

func TestMapProfile_Role(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		role *string
		want auth.Role
	}{
		{"absent", nil, auth.RolePlayer},
		{"admin", ptr("admin"), auth.RoleAdmin},
		{"admin any case", ptr("ADMIN"), auth.RoleAdmin},
		{"player", ptr("player"), auth.RolePlayer},
		{"unknown", ptr("captain"), auth.RolePlayer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, auth.MapProfile(auth.ProfileRow{ID: "x", Role: tt.role}).Role)
		})
	}
}

func TestMapProfile_EmptyAvatarIsAbsent(t *testing.T) {
	t.Parallel()

	u := auth.MapProfile(auth.ProfileRow{ID: "x", AvatarURL: ptr("")})
	assert.Nil(t, u.Avatar)
}

func TestRoleForEmail(t *testing.T) {
	t.Parallel()

	assert.Equal(t, auth.RoleAdmin, auth.RoleForEmail("cpl.admin@pstu.ac.bd"))
	assert.Equal(t, auth.RoleAdmin, auth.RoleForEmail("Admin@pstu.ac.bd"))
	assert.Equal(t, auth.RolePlayer, auth.RoleForEmail("asha@pstu.ac.bd"))
}
