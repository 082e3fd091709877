package auth

import "strings"

// fallbackName is used when a profile has neither a name nor an email.
const fallbackName = "User"

// MapProfile translates a remote profile row into a User. It is total over
// ProfileRow: absent fields fall back to documented defaults.
func MapProfile(row ProfileRow) User {
	u := User{
		ID:            row.ID,
		Email:         deref(row.Email),
		Role:          mapRole(row.Role),
		Session:       deref(row.Session),
		PlayerType:    deref(row.PlayerType),
		Semester:      deref(row.Semester),
		PaymentMethod: deref(row.PaymentMethod),
		PaymentNumber: deref(row.PaymentNumber),
		TransactionID: deref(row.TransactionID),
	}

	u.Name = strings.TrimSpace(deref(row.Name))
	if u.Name == "" {
		u.Name = nameFromEmail(u.Email)
	}

	if url := strings.TrimSpace(deref(row.AvatarURL)); url != "" {
		u.Avatar = &url
	}

	return u
}

func mapRole(role *string) Role {
	if role != nil && Role(strings.ToLower(*role)) == RoleAdmin {
		return RoleAdmin
	}
	return RolePlayer
}

// nameFromEmail returns the local part of email, or fallbackName.
func nameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	if local == "" {
		return fallbackName
	}
	return local
}

// profileFields translates a Patch into remote column updates. Avatar is
// handled by the caller because it may need an upload first.
func profileFields(p Patch) map[string]any {
	fields := make(map[string]any)
	set := func(column string, v *string) {
		if v != nil {
			fields[column] = *v
		}
	}
	set("name", p.Name)
	set("session", p.Session)
	set("player_type", p.PlayerType)
	set("semester", p.Semester)
	set("payment_method", p.PaymentMethod)
	set("payment_number", p.PaymentNumber)
	set("transaction_id", p.TransactionID)
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
