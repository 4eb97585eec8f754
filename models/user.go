package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleOrganizer = "organizer"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"` // user, organizer
	Interests []string  `json:"interests,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRole reports whether role is one of the switchable account roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleOrganizer
}
