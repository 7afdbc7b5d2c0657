// middleware/auth.go
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	LocalUserID  = "user_id"
	LocalGuildID = "guild_id"
)

// UserContextMiddleware extracts the acting user and guild forwarded by the
// relay. Both headers are required on every route it guards.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		guildID := c.Get("X-Guild-ID")

		if userID == "" || guildID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID and X-Guild-ID required: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID or X-Guild-ID — request must come through the relay",
			})
		}

		// Header values alias the request buffer; matches outlive the request.
		c.Locals(LocalUserID, utils.CopyString(userID))
		c.Locals(LocalGuildID, utils.CopyString(guildID))
		return c.Next()
	}
}

// UserID returns the acting user set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// GuildID returns the guild set by UserContextMiddleware.
func GuildID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalGuildID).(string)
	return id
}
