package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the coarse permission level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts "user" or "admin" (any case); an empty string maps to RoleUser.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(RoleUser):
		return RoleUser, nil
	case string(RoleAdmin):
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// Principal represents an authenticated identity handed to the rest of the app.
// It carries no password hash.
type Principal struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

var (
	// ErrInvalidCredentials covers unknown users, inactive users and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the username's lockout window is active.
	ErrAccountLocked = errors.New("account locked")
	// ErrStoreUnavailable is returned when the credential store could not be queried.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// AuthService defines authentication behaviour.
type AuthService interface {
	Authenticate(username, password string) (Principal, error)
	Register(username, password, fullName string) bool
}
