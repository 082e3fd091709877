package auth

import (
	"strings"
	"time"
)

// Role is the authorization role of a user.
type Role string

// Roles.
const (
	RoleAdmin  Role = "admin"
	RolePlayer Role = "player"
)

// RoleForEmail assigns the role of a new account: admin when the email
// contains "admin", player otherwise.
func RoleForEmail(email string) Role {
	if strings.Contains(strings.ToLower(email), "admin") {
		return RoleAdmin
	}
	return RolePlayer
}

// User is the normalized session record exposed to the rest of the
// application.
type User struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Role          Role    `json:"role"`
	Avatar        *string `json:"avatar"`
	Session       string  `json:"session,omitempty"`
	PlayerType    string  `json:"playerType,omitempty"`
	Semester      string  `json:"semester,omitempty"`
	PaymentMethod string  `json:"paymentMethod,omitempty"`
	PaymentNumber string  `json:"paymentNumber,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.Avatar != nil {
		avatar := *u.Avatar
		cp.Avatar = &avatar
	}
	return &cp
}

// ProfileRow is a row of the remote profiles collection. Every field but ID
// may be absent.
type ProfileRow struct {
	ID            string     `json:"id"`
	Name          *string    `json:"name,omitempty"`
	Email         *string    `json:"email,omitempty"`
	Role          *string    `json:"role,omitempty"`
	AvatarURL     *string    `json:"avatar_url,omitempty"`
	Session       *string    `json:"session,omitempty"`
	PlayerType    *string    `json:"player_type,omitempty"`
	Semester      *string    `json:"semester,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	PaymentNumber *string    `json:"payment_number,omitempty"`
	TransactionID *string    `json:"transaction_id,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// RegisterInput carries the registration form. Avatar is either inline
// image data, an existing URL, or empty.
type RegisterInput struct {
	Name          string
	Email         string
	Password      string
	Avatar        string
	Session       string
	PlayerType    string
	Semester      string
	PaymentMethod string
	PaymentNumber string
	TransactionID string
}

// Patch is a partial profile update. Nil fields are left unchanged. An
// Avatar of "" removes the avatar.
type Patch struct {
	Name          *string `json:"name,omitempty"`
	Avatar        *string `json:"avatar,omitempty"`
	Session       *string `json:"session,omitempty"`
	PlayerType    *string `json:"playerType,omitempty"`
	Semester      *string `json:"semester,omitempty"`
	PaymentMethod *string `json:"paymentMethod,omitempty"`
	PaymentNumber *string `json:"paymentNumber,omitempty"`
	TransactionID *string `json:"transactionId,omitempty"`
}

// State is the authentication state of a Controller.
type State int

// States.
const (
	StateUnresolved State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unresolved"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a point-in-time copy of a Controller's state. User may be
// set while Unresolved when a stored snapshot is surfaced optimistically.
type Snapshot struct {
	State State `json:"state"`
	User  *User `json:"user"`
}

// Loading reports whether the state is still being resolved.
func (s Snapshot) Loading() bool {
	return s.State == StateUnresolved
}
