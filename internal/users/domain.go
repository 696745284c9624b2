package users

import (
	"time"

	"github.com/google/uuid"
)

// User is a platform account. Role is the static role; time-limited
// elevations live in the authz assignment table and are unioned in at
// evaluation time.
type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	BusinessUnitID *uuid.UUID `json:"businessUnitId,omitempty"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
