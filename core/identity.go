package core

import (
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole accepts "user" or "admin" (case-insensitive, trimmed).
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) String() string { return string(r) }

// IsAdmin reports whether the role grants access to agenda management.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Identity is a registered account as seen by handlers; it never carries the hash.
type Identity struct {
	ID        int64
	Username  string
	Role      Role
	CreatedAt time.Time
}
