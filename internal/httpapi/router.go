// Package httpapi is the HTTP Surface (spec.md §4.8, component C8): thin
// request binding, JSON serialization, pagination, and status-code shaping
// over the Catalog, Publisher, Vault and Replay components.
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/mlog"
	"github.com/rayattack/amebo/internal/publisher"
	"github.com/rayattack/amebo/internal/replay"
	"github.com/rayattack/amebo/internal/vault"
)

// API bundles the handlers' dependencies.
type API struct {
	catalog       *catalog.Catalog
	publisher     *publisher.Publisher
	replay        *replay.Replay
	vault         *vault.Vault
	logger        mlog.Logger
	maxPagination int64
}

// New returns an API wired over its components.
func New(cat *catalog.Catalog, pub *publisher.Publisher, rep *replay.Replay, v *vault.Vault, logger mlog.Logger, maxPagination int64) *API {
	return &API{catalog: cat, publisher: pub, replay: rep, vault: v, logger: logger, maxPagination: maxPagination}
}

// Router assembles the Fiber app: middleware chain, then routes, mirroring
// the teacher's bootstrap/http/routes.go layout.
func (a *API) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "amebo",
		ErrorHandler: a.errorHandler,
	})

	app.Use(withCORS())
	app.Use(withCorrelationID())
	app.Use(withAccessLog(a.logger))

	app.Get("/health", a.getHealth)
	app.Get("/version", a.getVersion)

	v1 := app.Group("/v1", withJSONBody())

	v1.Post("/tokens", a.postTokens)

	v1 = v1.Group("", withBearerAuth(a.vault))

	v1.Get("/applications", a.listApplications)
	v1.Post("/applications", a.postApplications)
	v1.Put("/applications/:id", a.putApplication)

	v1.Get("/actions", a.listActions)
	v1.Post("/actions", a.postActions)

	v1.Get("/events", a.listEvents)
	v1.Post("/events", a.postEvents)

	v1.Get("/subscriptions", a.listSubscriptions)
	v1.Post("/subscriptions", a.postSubscriptions)

	v1.Get("/gists", a.listGists)
	v1.Post("/regists/:id", a.postReplay)

	return app
}

func (a *API) errorHandler(c *fiber.Ctx, err error) error {
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(problem{Message: fe.Message})
	}

	return WithError(c, err)
}

func (a *API) getHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func (a *API) getVersion(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": version})
}
