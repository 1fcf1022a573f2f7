package handlers

import (
	"errors"
	"fmt"

	"authapp/internal/repositories"
	"authapp/internal/services"
	"authapp/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AccountHandler handles HTTP requests for accounts.
type AccountHandler struct {
	accounts *services.AccountManager
	validate *validator.Validate
	log      logger.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *services.AccountManager, log logger.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		validate: validator.New(),
		log:      log.With("component", "http"),
	}
}

// RegisterRoutes registers the account routes with the Fiber router.
func (h *AccountHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/users")
	userRoutes.Post("/", h.HandleCreateUser)
	userRoutes.Post("/:username/password", h.HandleChangePassword)

	router.Post("/auth/check", h.HandleCheckCredentials)
}

// RegisterAdminRoutes registers routes that must sit behind administrator
// authentication.
func (h *AccountHandler) RegisterAdminRoutes(router fiber.Router) {
	router.Post("/superusers", h.HandleCreateSuperuser)
	router.Get("/users/:username", h.HandleGetUser)
}

// CreateUserRequest represents the request body for account creation.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// CredentialsRequest represents a username/password pair.
type CredentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// HandleCreateUser creates a regular account.
func (h *AccountHandler) HandleCreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}

	user, err := h.accounts.CreateUserWithFields(req.Username, req.Password, services.UserFields{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.log.Warn("Error creating user", "user", req.Username, "error", err)
		return h.errorResponse(c, "Could not create user", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// HandleCreateSuperuser creates an administrator account.
func (h *AccountHandler) HandleCreateSuperuser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}

	user, err := h.accounts.CreateSuperuserWithFields(req.Username, req.Password, services.UserFields{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		h.log.Warn("Error creating superuser", "user", req.Username, "error", err)
		return h.errorResponse(c, "Could not create superuser", err)
	}

	h.log.Info("Superuser created over HTTP", "user", user.Username, "by", c.Locals("username"))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Superuser created successfully",
		"user":    user,
	})
}

// HandleGetUser returns an account by username. It exposes profile and
// admin fields, so it is registered among the admin routes.
func (h *AccountHandler) HandleGetUser(c *fiber.Ctx) error {
	username := c.Params("username")
	user, err := h.accounts.GetByNaturalKey(username)
	if err != nil {
		return h.errorResponse(c, fmt.Sprintf("Could not retrieve user %s", username), err)
	}
	return c.JSON(user)
}

// HandleChangePassword replaces an account's password.
func (h *AccountHandler) HandleChangePassword(c *fiber.Ctx) error {
	var req ChangePasswordRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}

	username := c.Params("username")
	if err := h.accounts.ChangePassword(username, req.OldPassword, req.NewPassword); err != nil {
		h.log.Warn("Error changing password", "user", username, "error", err)
		return h.errorResponse(c, "Could not change password", err)
	}

	return c.JSON(fiber.Map{
		"message": "Password changed successfully",
	})
}

// HandleCheckCredentials verifies a username/password pair. It does not
// issue any session or token.
func (h *AccountHandler) HandleCheckCredentials(c *fiber.Ctx) error {
	var req CredentialsRequest
	if ok, err := h.parse(c, &req); !ok {
		return err
	}

	user, err := h.accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		return h.errorResponse(c, "Authentication failed", err)
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"user":  user,
	})
}

// parse decodes and validates the body into req. When ok is false the
// error response has already been written and err is the write result.
func (h *AccountHandler) parse(c *fiber.Ctx, req interface{}) (ok bool, err error) {
	if err := c.BodyParser(req); err != nil {
		h.log.Debug("Error parsing request body", "path", c.Path(), "error", err)
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Validation failed",
				"error":   err.Error(),
			})
		}
		errorMessages := make(map[string]string)
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	}
	return true, nil
}

func (h *AccountHandler) errorResponse(c *fiber.Ctx, message string, err error) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		errorMessages := make(map[string]string, len(verr.Fields))
		for field, tag := range verr.Fields {
			errorMessages[field] = fmt.Sprintf("Field '%s' failed on the '%s' tag", field, tag)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"errors":  errorMessages,
		})
	case errors.Is(err, services.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Validation failed",
			"error":   err.Error(),
		})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": message,
			"error":   "username already taken",
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": message,
			"error":   services.ErrInvalidCredentials.Error(),
		})
	case errors.Is(err, repositories.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": message,
			"error":   repositories.ErrUserNotFound.Error(),
		})
	default:
		h.log.Error(message, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": message,
		})
	}
}
