package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no user matches a lookup.
var ErrNotFound = errors.New("users: not found")

// User represents an account that can hold roles.
type User struct {
	ID        uuid.UUID
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
