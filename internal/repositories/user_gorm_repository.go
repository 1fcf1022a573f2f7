package repositories

import (
	"errors"
	"fmt"
	"time"

	"authapp/internal/models"

	"gorm.io/gorm"
)

// GORMUserRepository is a GORM implementation of UserRepository. The DB it
// wraps must have PasswordPlugin installed.
type GORMUserRepository struct {
	db *gorm.DB
}

// NewGORMUserRepository creates a new instance of GORMUserRepository.
func NewGORMUserRepository(db *gorm.DB) *GORMUserRepository {
	return &GORMUserRepository{
		db: db,
	}
}

// Create inserts a new account. The storage layer assigns the ID and
// enforces username uniqueness (gorm.ErrDuplicatedKey).
func (r *GORMUserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update writes every column of an existing account.
func (r *GORMUserRepository) Update(user *models.User) error {
	if user.ID == 0 {
		return fmt.Errorf("cannot update user %s without an ID", user.Username)
	}
	// Select("*") writes zero values too (e.g. IsAdmin back to false).
	res := r.db.Model(user).Select("*").Updates(user)
	if res.Error != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %d: %w", user.ID, ErrUserNotFound)
	}
	return nil
}

// UpdateLastLogin sets last_login without touching any other column.
func (r *GORMUserRepository) UpdateLastLogin(id uint64, at time.Time) error {
	res := r.db.Model(&models.User{}).Where("id = ?", id).UpdateColumn("last_login", at)
	if res.Error != nil {
		return fmt.Errorf("failed to record login for user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
	}
	return nil
}

// Transaction runs fn inside a database transaction.
func (r *GORMUserRepository) Transaction(fn func(repo UserRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewGORMUserRepository(tx))
	})
}

// GetByUsername retrieves an account by its username.
func (r *GORMUserRepository) GetByUsername(username string) (*models.User, error) {
	return r.first("username = ?", username, "username "+username)
}

// GetByEmail retrieves an account by its email.
func (r *GORMUserRepository) GetByEmail(email string) (*models.User, error) {
	return r.first("email = ?", email, "email "+email)
}

// GetByID retrieves an account by its ID.
func (r *GORMUserRepository) GetByID(id uint64) (*models.User, error) {
	return r.first("id = ?", id, fmt.Sprintf("ID %d", id))
}

func (r *GORMUserRepository) first(query string, arg interface{}, what string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user with %s: %w", what, ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", what, err)
	}
	return &user, nil
}
