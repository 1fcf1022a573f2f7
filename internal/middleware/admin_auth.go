package middleware

import (
	"authapp/internal/services"
	"authapp/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
)

// AdminRealm is announced in the WWW-Authenticate challenge.
const AdminRealm = "authapp admin"

// AdminRequired is a Fiber middleware that accepts HTTP Basic credentials of
// an active administrator. The username is stored in c.Locals("username").
func AdminRequired(accounts *services.AccountManager, log logger.Logger) fiber.Handler {
	return basicauth.New(basicauth.Config{
		Realm: AdminRealm,
		Authorizer: func(username, password string) bool {
			user, err := accounts.Authenticate(username, password)
			if err != nil {
				log.Debug("Admin authentication failed", "user", username, "error", err)
				return false
			}
			if !user.IsAdmin {
				log.Warn("Non-admin account rejected", "user", username)
				return false
			}
			return true
		},
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="`+AdminRealm+`"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Administrator credentials are required",
			})
		},
	})
}
