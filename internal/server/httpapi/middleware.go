package httpapi

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/avolkov/authgate/internal/common"
	"github.com/avolkov/authgate/internal/logging"
	"github.com/avolkov/authgate/internal/server/auth"
)

// localsUID is the fiber locals key under which the authenticated user's
// public uid is stored for downstream handlers.
const localsUID = "uid"

const bearerPrefix = "Bearer "

// requireRole guards a route with a minimum role. An Admin requirement
// demands an Admin token; a User requirement accepts any valid access token
// regardless of its role. Refresh tokens are never accepted here.
func requireRole(codec *auth.Codec, required auth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return common.ErrAuthHeaderMissing
		}
		if !utf8.ValidString(header) || !strings.HasPrefix(header, bearerPrefix) {
			return common.ErrAuthHeaderMalformed
		}

		claims, err := codec.Decode(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			return common.ErrTokenInvalidOrExpired
		}
		if claims.Purpose != auth.PurposeAccess {
			return common.ErrTokenInvalidOrExpired
		}

		if required == auth.RoleAdmin && claims.Role != auth.RoleAdmin {
			return common.ErrInsufficientRole
		}

		c.Locals(localsUID, claims.Subject)
		return c.Next()
	}
}

// requestLogger emits one structured line per request after it completes.
func requestLogger(log logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		log.Info(c.UserContext(), "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", time.Since(start),
		)
		return err
	}
}
