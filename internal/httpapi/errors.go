package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rayattack/amebo/internal/ameboerr"
)

// problem is the JSON body every non-2xx response carries.
type problem struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// WithError maps a domain error to the HTTP status spec.md §7 assigns it,
// mirroring the teacher's common/net/http.WithError type-switch boundary.
func WithError(c *fiber.Ctx, err error) error {
	switch e := err.(type) {
	case ameboerr.NotFoundError:
		return c.Status(fiber.StatusNotFound).JSON(problem{Message: e.Error()})
	case ameboerr.UnauthorizedError:
		return c.Status(fiber.StatusUnauthorized).JSON(problem{Message: e.Error()})
	case ameboerr.ForbiddenError:
		return c.Status(fiber.StatusUnauthorized).JSON(problem{Message: e.Error()})
	case ameboerr.ConflictError:
		return c.Status(fiber.StatusConflict).JSON(problem{Message: e.Error()})
	case ameboerr.UnprocessableError:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem{Message: e.Error()})
	case ameboerr.SchemaViolationError:
		return c.Status(fiber.StatusNotAcceptable).JSON(problem{Message: e.Error(), Details: e.Details})
	case ameboerr.BadInputError:
		return c.Status(fiber.StatusBadRequest).JSON(problem{Message: e.Error()})
	case ameboerr.WrongContentTypeError:
		return c.Status(fiber.StatusIMATeapot).JSON(problem{Message: e.Error()})
	case ameboerr.UpstreamUnavailableError:
		return c.Status(fiber.StatusServiceUnavailable).JSON(problem{Message: e.Error()})
	case ameboerr.UpstreamError:
		return c.Status(fiber.StatusBadGateway).JSON(problem{Message: e.Error()})
	case ameboerr.StoreError:
		// 426 is a deliberate convention (spec.md §7), not a literal protocol
		// upgrade request: it distinguishes "the store failed in a way we
		// didn't classify" from the generic 500.
		return c.Status(fiber.StatusUpgradeRequired).JSON(problem{Message: "internal store failure"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(problem{Message: "internal server error"})
	}
}
