package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"authapp/internal/credentials"
	"authapp/internal/metrics"
	"authapp/internal/models"
	"authapp/internal/repositories"
	"authapp/pkg/logger"
	"authapp/pkg/rabbitmq"

	"github.com/go-playground/validator/v10"
)

// EventPublisher receives account lifecycle events.
type EventPublisher interface {
	PublishAccountEvent(event rabbitmq.AccountEvent) error
}

// UserFields are the optional profile fields set at creation.
type UserFields struct {
	Name  string
	Email string
}

// AccountManager creates and persists account records. Passwords are hashed
// exactly once, when raw input is supplied; later saves keep the hash.
type AccountManager struct {
	repo      repositories.UserRepository
	hasher    credentials.Hasher
	publisher EventPublisher
	metrics   *metrics.Metrics
	log       logger.Logger
	validate  *validator.Validate
}

// NewAccountManager creates a new AccountManager. publisher and m may be nil.
func NewAccountManager(
	repo repositories.UserRepository,
	hasher credentials.Hasher,
	publisher EventPublisher,
	m *metrics.Metrics,
	log logger.Logger,
) *AccountManager {
	return &AccountManager{
		repo:      repo,
		hasher:    hasher,
		publisher: publisher,
		metrics:   m,
		log:       log.With("component", "accounts"),
		validate:  validator.New(),
	}
}

// CreateUser creates and persists a regular account. An empty password
// yields an account that cannot log in.
func (m *AccountManager) CreateUser(username, password string) (*models.User, error) {
	return m.CreateUserWithFields(username, password, UserFields{})
}

// CreateUserWithFields is CreateUser with profile fields.
func (m *AccountManager) CreateUserWithFields(username, password string, fields UserFields) (*models.User, error) {
	user, err := m.newUser(username, password, fields)
	if err != nil {
		return nil, err
	}

	if err := m.repo.Create(user); err != nil {
		m.metrics.AccountError("create")
		m.log.Error("Failed to create user", "user", username, "error", err)
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	m.metrics.AccountCreated(metrics.KindUser)
	m.log.Info("User created", "user", username, "id", user.ID)
	m.publish(rabbitmq.EventAccountCreated, user)
	return user, nil
}

// CreateSuperuser creates an account the way CreateUser does and promotes it
// to administrator. The second save leaves the password hash untouched.
func (m *AccountManager) CreateSuperuser(username, password string) (*models.User, error) {
	return m.CreateSuperuserWithFields(username, password, UserFields{})
}

// CreateSuperuserWithFields is CreateSuperuser with profile fields. Create
// and promotion share one transaction, so a failed promotion leaves no
// account behind.
func (m *AccountManager) CreateSuperuserWithFields(username, password string, fields UserFields) (*models.User, error) {
	user, err := m.newUser(username, password, fields)
	if err != nil {
		return nil, err
	}

	err = m.repo.Transaction(func(repo repositories.UserRepository) error {
		if err := repo.Create(user); err != nil {
			m.metrics.AccountError("create")
			return fmt.Errorf("failed to create user %s: %w", username, err)
		}
		user.IsAdmin = true
		if err := repo.Update(user); err != nil {
			m.metrics.AccountError("promote")
			return fmt.Errorf("failed to promote user %s: %w", username, err)
		}
		return nil
	})
	if err != nil {
		m.log.Error("Failed to create superuser", "user", username, "error", err)
		return nil, err
	}

	m.metrics.AccountCreated(metrics.KindUser)
	m.metrics.AccountCreated(metrics.KindSuperuser)
	m.log.Info("Superuser created", "user", username, "id", user.ID)
	m.publish(rabbitmq.EventAccountCreated, user)
	m.publish(rabbitmq.EventAccountPromoted, user)
	return user, nil
}

// newUser validates the input and builds a record with its password hashed.
func (m *AccountManager) newUser(username, password string, fields UserFields) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		m.metrics.AccountError("create")
		return nil, ErrUsernameRequired
	}

	user := models.NewUser(username)
	user.Name = fields.Name
	user.Email = NormalizeEmail(fields.Email)

	if err := m.validate.StructExcept(user, "Password"); err != nil {
		m.metrics.AccountError("create")
		return nil, newValidationError(err)
	}

	if err := m.setPassword(user, password); err != nil {
		m.metrics.AccountError("create")
		m.log.Error("Failed to hash password", "user", username, "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return user, nil
}

// GetByNaturalKey returns the account identified by username.
func (m *AccountManager) GetByNaturalKey(username string) (*models.User, error) {
	return m.repo.GetByUsername(username)
}

// Authenticate checks a username/password pair and records the login time.
// Every rejection is ErrInvalidCredentials.
func (m *AccountManager) Authenticate(username, password string) (*models.User, error) {
	user, err := m.checkCredentials(username, password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := m.repo.UpdateLastLogin(user.ID, now); err != nil {
		m.metrics.AccountError("authenticate")
		return nil, fmt.Errorf("failed to record login for %s: %w", username, err)
	}
	user.LastLogin = &now
	return user, nil
}

// ChangePassword replaces the password after verifying the current one.
func (m *AccountManager) ChangePassword(username, oldPassword, newPassword string) error {
	user, err := m.checkCredentials(username, oldPassword)
	if err != nil {
		return err
	}

	if err := m.setPassword(user, newPassword); err != nil {
		m.metrics.AccountError("change_password")
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := m.repo.Update(user); err != nil {
		m.metrics.AccountError("change_password")
		m.log.Error("Failed to save new password", "user", username, "error", err)
		return fmt.Errorf("failed to change password for %s: %w", username, err)
	}

	m.log.Info("Password changed", "user", username)
	return nil
}

func (m *AccountManager) checkCredentials(username, password string) (*models.User, error) {
	user, err := m.repo.GetByUsername(username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			// Hash anyway so unknown usernames take as long as wrong passwords.
			_, _ = m.hasher.Hash(password)
			m.log.Debug("Login for unknown user", "user", username)
			return nil, ErrInvalidCredentials
		}
		m.log.Error("Error retrieving user", "user", username, "error", err)
		return nil, fmt.Errorf("error retrieving user %s: %w", username, err)
	}

	if !user.IsActive || !user.CheckPassword(m.hasher, password) {
		m.log.Debug("Rejected credentials", "user", username, "active", user.IsActive)
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (m *AccountManager) setPassword(user *models.User, raw string) error {
	started := time.Now()
	defer m.metrics.ObservePasswordHash(started)
	return user.SetPassword(m.hasher, raw)
}

func (m *AccountManager) publish(eventType string, user *models.User) {
	if m.publisher == nil {
		return
	}
	event := rabbitmq.NewAccountEvent(eventType, user.ID, user.Username, user.IsAdmin)
	if err := m.publisher.PublishAccountEvent(event); err != nil {
		m.log.Warn("Failed to publish account event", "type", eventType, "user", user.Username, "error", err)
	}
}

// NormalizeEmail lower-cases the domain part of an email address.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
