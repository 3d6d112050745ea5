package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/TableFox/internal/pkg/config"
	"github.com/ManuelReschke/TableFox/internal/pkg/usercontext"
)

// StaffAuth protects staff routes with HTTP basic auth. The password is
// checked against a bcrypt hash; with no hash configured every request is
// rejected.
func StaffAuth(cfg config.StaffConfig) fiber.Handler {
	if cfg.PasswordHash == "" {
		log.Warn("[StaffAuth] STAFF_PASSWORD_HASH is empty, staff endpoints are disabled")
	}
	return basicauth.New(basicauth.Config{
		Realm:           "TableFox Staff",
		Authorizer:      BcryptAuthorizer(cfg.User, cfg.PasswordHash),
		ContextUsername: usercontext.KeyStaffUser,
		Unauthorized: func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="TableFox Staff"`)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "staff credentials required",
			})
		},
	})
}

// BcryptAuthorizer accepts exactly one user whose password matches hash.
func BcryptAuthorizer(user, hash string) func(string, string) bool {
	return func(u, p string) bool {
		if hash == "" {
			return false
		}
		if subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
	}
}

// StaffContextMiddleware turns the basic auth username into the staff context
// read by handlers. It must run after StaffAuth.
func StaffContextMiddleware(c *fiber.Ctx) error {
	username, _ := c.Locals(usercontext.KeyStaffUser).(string)
	c.Locals(usercontext.KeyStaffContext, usercontext.StaffContext{
		Username: username,
		IsStaff:  username != "",
	})
	return c.Next()
}
