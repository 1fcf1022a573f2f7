package repositories

import (
	"fmt"
	"sync"
	"time"

	"authapp/internal/credentials"
	"authapp/internal/models"

	"gorm.io/gorm"
)

// MemoryUserRepository is an in-memory implementation of UserRepository.
// It mirrors the GORM repository: sequential IDs, unique usernames reported
// as gorm.ErrDuplicatedKey, and sealed passwords.
type MemoryUserRepository struct {
	hasher credentials.Hasher
	users  map[uint64]models.User
	nextID uint64
	mu     sync.RWMutex
}

// NewMemoryUserRepository creates a new instance of MemoryUserRepository.
func NewMemoryUserRepository(hasher credentials.Hasher) *MemoryUserRepository {
	return &MemoryUserRepository{
		hasher: hasher,
		users:  make(map[uint64]models.User),
		nextID: 1,
	}
}

// Create adds a new account and assigns its ID.
func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(user)
}

// Update replaces an existing account.
func (r *MemoryUserRepository) Update(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(user)
}

// UpdateLastLogin sets only the login timestamp of an existing account.
func (r *MemoryUserRepository) UpdateLastLogin(id uint64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLastLoginLocked(id, at)
}

// Transaction holds the write lock while fn runs and restores the previous
// contents when fn fails.
func (r *MemoryUserRepository) Transaction(fn func(repo UserRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	saved := make(map[uint64]models.User, len(r.users))
	for id, u := range r.users {
		saved[id] = u
	}
	savedNextID := r.nextID

	if err := fn(&memoryTx{r: r}); err != nil {
		r.users = saved
		r.nextID = savedNextID
		return err
	}
	return nil
}

// GetByUsername returns an account by its username.
func (r *MemoryUserRepository) GetByUsername(username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(func(u models.User) bool { return u.Username == username }, "username "+username)
}

// GetByEmail returns an account by its email.
func (r *MemoryUserRepository) GetByEmail(email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(func(u models.User) bool { return u.Email == email }, "email "+email)
}

// GetByID returns an account by its ID.
func (r *MemoryUserRepository) GetByID(id uint64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getByIDLocked(id)
}

// The *Locked methods must be called with r.mu held.

func (r *MemoryUserRepository) createLocked(user *models.User) error {
	if r.usernameTaken(user.Username, 0) {
		return fmt.Errorf("failed to create user: %w", gorm.ErrDuplicatedKey)
	}
	if err := credentials.Seal(r.hasher, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) updateLocked(user *models.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("user with ID %d: %w", user.ID, ErrUserNotFound)
	}
	if r.usernameTaken(user.Username, user.ID) {
		return fmt.Errorf("failed to update user %d: %w", user.ID, gorm.ErrDuplicatedKey)
	}
	if err := credentials.Seal(r.hasher, user); err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}

	user.UpdatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) updateLastLoginLocked(id uint64, at time.Time) error {
	stored, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
	}
	stored.LastLogin = &at
	r.users[id] = stored
	return nil
}

func (r *MemoryUserRepository) getByIDLocked(id uint64) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user with ID %d: %w", id, ErrUserNotFound)
	}
	return &user, nil
}

func (r *MemoryUserRepository) findLocked(match func(models.User) bool, what string) (*models.User, error) {
	// lowest ID wins, like an ordered SELECT ... LIMIT 1
	var found *models.User
	for _, u := range r.users {
		if !match(u) {
			continue
		}
		if found == nil || u.ID < found.ID {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, fmt.Errorf("user with %s: %w", what, ErrUserNotFound)
	}
	return found, nil
}

func (r *MemoryUserRepository) usernameTaken(username string, except uint64) bool {
	for id, u := range r.users {
		if id != except && u.Username == username {
			return true
		}
	}
	return false
}

// memoryTx is the view handed to Transaction callbacks. The parent's lock is
// already held, so it calls the *Locked methods directly.
type memoryTx struct {
	r *MemoryUserRepository
}

func (t *memoryTx) Create(user *models.User) error { return t.r.createLocked(user) }
func (t *memoryTx) Update(user *models.User) error { return t.r.updateLocked(user) }

func (t *memoryTx) UpdateLastLogin(id uint64, at time.Time) error {
	return t.r.updateLastLoginLocked(id, at)
}

// Transaction nests into the enclosing one.
func (t *memoryTx) Transaction(fn func(repo UserRepository) error) error { return fn(t) }

func (t *memoryTx) GetByUsername(username string) (*models.User, error) {
	return t.r.findLocked(func(u models.User) bool { return u.Username == username }, "username "+username)
}

func (t *memoryTx) GetByEmail(email string) (*models.User, error) {
	return t.r.findLocked(func(u models.User) bool { return u.Email == email }, "email "+email)
}

func (t *memoryTx) GetByID(id uint64) (*models.User, error) { return t.r.getByIDLocked(id) }
