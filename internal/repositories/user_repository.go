package repositories

import (
	"errors"
	"time"

	"authapp/internal/models"
)

// ErrUserNotFound is returned by lookups that match no account.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the interface for account data access.
// Implementations store passwords sealed: raw values are hashed on write,
// already-hashed values are written unchanged.
type UserRepository interface {
	Create(user *models.User) error
	Update(user *models.User) error
	// UpdateLastLogin writes only the last_login column, so it cannot undo a
	// concurrent password change.
	UpdateLastLogin(id uint64, at time.Time) error
	// Transaction runs fn against a repository whose writes are committed
	// together, or not at all when fn returns an error.
	Transaction(fn func(repo UserRepository) error) error
	GetByUsername(username string) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByID(id uint64) (*models.User, error)
}
