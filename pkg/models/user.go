package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the application-wide role carried by an authenticated principal.
type Role string

// Role constants. Roles are global to the user, not per workspace.
const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleWorker  Role = "WORKER"
)

// ValidRoles contains all valid role values.
var ValidRoles = []Role{RoleAdmin, RoleManager, RoleWorker}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if string(r) == role {
			return true
		}
	}
	return false
}

// User is an account known to the engine. Only the fields needed to attribute
// changes are stored here; account management lives elsewhere.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserIdentity is the public projection of a user attached to history and
// creator fields.
type UserIdentity struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
}

// Identity returns the public projection of the user.
func (u *User) Identity() *UserIdentity {
	if u == nil {
		return nil
	}
	return &UserIdentity{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Principal is the authenticated caller of an operation. It is passed
// explicitly through every service call.
type Principal struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
}

// IsAdmin reports whether the principal bypasses workspace and column checks.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
