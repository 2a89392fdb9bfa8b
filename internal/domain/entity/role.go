package entity

import "strings"

// Role is the authorization label carried by an identity and its access tokens.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "":
		return RoleUser, nil
	case "admin":
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole
}
