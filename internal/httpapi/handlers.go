package httpapi

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/publisher"
	"github.com/rayattack/amebo/internal/vault"
)

func pageFrom(c *fiber.Ctx, maxPagination int64) catalog.Page {
	return catalog.Page{
		Page:       int64(c.QueryInt("page", 1)),
		Pagination: clamp(int64(c.QueryInt("pagination", int(maxPagination))), maxPagination),
	}
}

func clamp(n, max int64) int64 {
	if n <= 0 {
		return max
	}

	if n > max {
		return max
	}

	return n
}

func filterFrom(c *fiber.Ctx) catalog.Filter {
	return catalog.Filter{
		Name:        c.Query("name"),
		Application: c.Query("application"),
		Action:      c.Query("action"),
		Timeline:    catalog.Timeline(c.Query("timeline")),
	}
}

// --- authentication --------------------------------------------------------

type tokenRequest struct {
	Scheme   string `json:"scheme"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (a *API) postTokens(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	var (
		token string
		err   error
	)

	switch req.Scheme {
	case "basic":
		token, err = a.vault.AuthenticateAdmin(c.Context(), req.Username, req.Password)
	case "token":
		token, err = a.vault.AuthenticateApplication(c.Context(), req.Username, req.Password)
	default:
		return WithError(c, ameboerr.BadInputError{Message: "scheme must be \"basic\" or \"token\""})
	}

	if err != nil {
		return WithError(c, err)
	}

	name, value, maxAge := vault.TokenCookie(token)
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return c.Status(fiber.StatusAccepted).JSON(tokenResponse{Token: token})
}

// --- applications ------------------------------------------------------------

func (a *API) listApplications(c *fiber.Ctx) error {
	apps, err := a.catalog.ListApplications(c.Context(), filterFrom(c), pageFrom(c, a.maxPagination))
	if err != nil {
		return WithError(c, err)
	}

	for i := range apps {
		apps[i].Secret = ""
	}

	return c.JSON(apps)
}

func (a *API) postApplications(c *fiber.Ctx) error {
	var app catalog.Application
	if err := c.BodyParser(&app); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	if err := validateStruct(app); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: err.Error()})
	}

	created, err := a.catalog.InsertApplication(c.Context(), app)
	if err != nil {
		return WithError(c, err)
	}

	created.Secret = ""

	return c.Status(fiber.StatusCreated).JSON(created)
}

type addressUpdate struct {
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

func (a *API) putApplication(c *fiber.Ctx) error {
	name := c.Params("id")

	var req addressUpdate
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	stored, err := a.catalog.SecretOf(c.Context(), name)
	if err != nil {
		return WithError(c, err)
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(stored)) != 1 {
		return WithError(c, ameboerr.UnauthorizedError{Message: "application secret mismatch"})
	}

	if err := a.catalog.UpdateApplicationAddress(c.Context(), name, req.Address); err != nil {
		return WithError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// --- actions -----------------------------------------------------------------

type actionRequest struct {
	Name        string `json:"name" validate:"required,min=3"`
	Application string `json:"application" validate:"required"`
	Secret      string `json:"secret" validate:"required"`
	Schemata    string `json:"schemata" validate:"required"`
}

func (a *API) listActions(c *fiber.Ctx) error {
	actions, err := a.catalog.ListActions(c.Context(), filterFrom(c), pageFrom(c, a.maxPagination))
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(actions)
}

func (a *API) postActions(c *fiber.Ctx) error {
	var req actionRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	if err := validateStruct(req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: err.Error()})
	}

	created, err := a.catalog.InsertAction(c.Context(), req.Application, req.Secret, catalog.Action{
		Name:     req.Name,
		Schemata: req.Schemata,
	})
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// --- events --------------------------------------------------------------------

type eventRequest struct {
	Action     string `json:"action" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
	Deduper    string `json:"deduper" validate:"required"`
	Payload    string `json:"payload" validate:"required"`
	SleepUntil string `json:"sleep_until,omitempty"`
}

func (a *API) listEvents(c *fiber.Ctx) error {
	events, err := a.catalog.ListEvents(c.Context(), filterFrom(c), pageFrom(c, a.maxPagination))
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(events)
}

func (a *API) postEvents(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	if err := validateStruct(req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: err.Error()})
	}

	env := publisher.Envelope{
		Action:  req.Action,
		Secret:  req.Secret,
		Deduper: req.Deduper,
		Payload: req.Payload,
	}

	if req.SleepUntil != "" {
		sleepUntil, parseErr := time.Parse(time.RFC3339, req.SleepUntil)
		if parseErr != nil {
			return WithError(c, ameboerr.BadInputError{Message: "sleep_until must be RFC3339"})
		}
		env.SleepUntil = &sleepUntil
	}

	receipt, err := a.publisher.Publish(c.Context(), env)
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(receipt)
}

// --- subscriptions ----------------------------------------------------------

type subscriptionRequest struct {
	Application string `json:"application" validate:"required"`
	Secret      string `json:"secret" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Handler     string `json:"handler" validate:"required"`
	MaxRetries  int64  `json:"max_retries" validate:"omitempty,min=1,max=10000"`
}

func (a *API) listSubscriptions(c *fiber.Ctx) error {
	subs, err := a.catalog.ListSubscriptions(c.Context(), filterFrom(c), pageFrom(c, a.maxPagination))
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(subs)
}

func (a *API) postSubscriptions(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "malformed request body"})
	}

	if err := validateStruct(req); err != nil {
		return WithError(c, ameboerr.BadInputError{Message: err.Error()})
	}

	created, err := a.catalog.InsertSubscription(c.Context(), req.Application, req.Secret, catalog.Subscription{
		Action:     req.Action,
		Handler:    req.Handler,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		return WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// --- gists & replay ----------------------------------------------------------

func (a *API) listGists(c *fiber.Ctx) error {
	gists, err := a.catalog.ListGists(c.Context(), pageFrom(c, a.maxPagination))
	if err != nil {
		return WithError(c, err)
	}

	return c.JSON(gists)
}

func (a *API) postReplay(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return WithError(c, ameboerr.BadInputError{Message: "id must be an integer"})
	}

	result, replayErr := a.replay.ByID(c.Context(), int64(id))
	if replayErr != nil {
		return WithError(c, replayErr)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

