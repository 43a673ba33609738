package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/mlog"
	"github.com/rayattack/amebo/internal/vault"
)

const headerCorrelationID = "X-Correlation-Id"

// withCORS enables permissive CORS, the way the teacher's WithCORS does.
func withCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Accept,Content-Type,Authorization",
		AllowCredentials: false,
	})
}

// withCorrelationID stamps every request/response pair with an id, grounded
// on the teacher's WithCorrelationID.
func withCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := uuid.New().String()
		c.Set(headerCorrelationID, cid)
		c.Locals(headerCorrelationID, cid)

		return c.Next()
	}
}

// withAccessLog writes one structured line per request after it completes,
// grounded on the teacher's RequestInfo/CLFString access-log shape.
func withAccessLog(logger mlog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logger.Infof("%s %s %d %s cid=%v",
			c.Method(), c.OriginalURL(), c.Response().StatusCode(),
			time.Since(start), c.Locals(headerCorrelationID))

		return err
	}
}

// withJSONBody rejects mutating requests that do not carry a JSON body,
// spec.md §7's WrongContentType -> 418.
func withJSONBody() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodDelete {
			return c.Next()
		}

		if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			return WithError(c, ameboerr.WrongContentTypeError{Message: "request body must be application/json"})
		}

		return c.Next()
	}
}

// withBearerAuth authenticates a caller via a previously-minted token,
// read from either the Authorization header or the Authentication cookie
// (spec.md §6 delivers the token both ways), attaching its claims to the
// request context for handlers to consult.
func withBearerAuth(v *vault.Vault) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies("Authentication")

		if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
			raw = strings.TrimPrefix(auth, "Bearer ")
		}

		if raw == "" {
			return WithError(c, ameboerr.ForbiddenError{Message: "missing bearer token"})
		}

		claims, err := v.Verify(raw)
		if err != nil {
			return WithError(c, err)
		}

		c.Locals("claims", claims)

		return c.Next()
	}
}
