package catalog

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/store"
)

// Catalog is the single entry point for every CRUD operation over
// applications, actions, and subscriptions.
type Catalog struct {
	store store.Store
}

// New returns a Catalog backed by s.
func New(s store.Store) *Catalog {
	return &Catalog{store: s}
}

func (c *Catalog) table(name string) string {
	return c.store.Schema() + name
}

func (c *Catalog) builder() sq.StatementBuilderType {
	return store.BuilderFor(c.store.Dialect())
}

// ListApplications returns applications matching f, ordered by name, paged
// per p.
func (c *Catalog) ListApplications(ctx context.Context, f Filter, p Page) ([]Application, error) {
	q := c.builder().Select("name", "address", "secret", "created_at").
		From(c.table("applications")).
		OrderBy("name").
		Limit(uint64(p.Pagination)).
		Offset(uint64(p.Offset()))

	if f.Name != "" {
		q = q.Where(sq.Like{"name": "%" + f.Name + "%"})
	}

	if since, ok := timelineSince(f.Timeline); ok {
		q = q.Where(sq.GtOrEq{"created_at": since})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, store.TranslateError("application", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.Name, &a.Address, &a.Secret, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// InsertApplication registers a new application. Uniqueness on name
// surfaces as a ConflictError.
func (c *Catalog) InsertApplication(ctx context.Context, a Application) (Application, error) {
	a.Address = strings.TrimRight(a.Address, "/")
	a.CreatedAt = time.Now()

	sqlStr, args, err := c.builder().Insert(c.table("applications")).
		Columns("name", "address", "secret", "created_at").
		Values(a.Name, a.Address, a.Secret, a.CreatedAt).
		ToSql()
	if err != nil {
		return Application{}, err
	}

	if _, err := c.store.Executor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return Application{}, store.TranslateError("application", err)
	}

	return a, nil
}

// UpdateApplicationAddress changes the base address of an already
// authenticated application.
func (c *Catalog) UpdateApplicationAddress(ctx context.Context, name, address string) error {
	address = strings.TrimRight(address, "/")

	sqlStr, args, err := c.builder().Update(c.table("applications")).
		Set("address", address).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := c.store.Executor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return store.TranslateError("application", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ameboerr.NotFoundError{EntityType: "application"}
	}

	return nil
}

// applicationSecret returns the stored secret for name, or NotFoundError.
func (c *Catalog) applicationSecret(ctx context.Context, name string) (string, error) {
	sqlStr, args, err := c.builder().Select("secret").
		From(c.table("applications")).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return "", err
	}

	var secret string
	err = c.store.Executor(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&secret)
	if err == sql.ErrNoRows {
		return "", ameboerr.NotFoundError{EntityType: "application"}
	} else if err != nil {
		return "", store.TranslateError("application", err)
	}

	return secret, nil
}

// SecretOf exposes applicationSecret for callers outside the package (the
// Vault's AppLookup).
func (c *Catalog) SecretOf(ctx context.Context, application string) (string, error) {
	return c.applicationSecret(ctx, application)
}

func verifySecret(stored, provided string) error {
	if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) != 1 {
		return ameboerr.UnauthorizedError{Message: "application secret mismatch"}
	}

	return nil
}

// ListActions returns actions matching f, ordered by name, paged per p.
func (c *Catalog) ListActions(ctx context.Context, f Filter, p Page) ([]Action, error) {
	q := c.builder().Select("name", "application", "schemata", "created_at").
		From(c.table("actions")).
		OrderBy("name").
		Limit(uint64(p.Pagination)).
		Offset(uint64(p.Offset()))

	if f.Name != "" {
		q = q.Where(sq.Like{"name": "%" + f.Name + "%"})
	}

	if f.Application != "" {
		q = q.Where(sq.Eq{"application": f.Application})
	}

	if since, ok := timelineSince(f.Timeline); ok {
		q = q.Where(sq.GtOrEq{"created_at": since})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, store.TranslateError("action", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.Name, &a.Application, &a.Schemata, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// InsertAction registers a new action owned by application, after verifying
// secret matches the application's stored secret.
func (c *Catalog) InsertAction(ctx context.Context, application, secret string, a Action) (Action, error) {
	stored, err := c.applicationSecret(ctx, application)
	if err != nil {
		return Action{}, err
	}

	if err := verifySecret(stored, secret); err != nil {
		return Action{}, err
	}

	a.Application = application
	a.CreatedAt = time.Now()

	sqlStr, args, err := c.builder().Insert(c.table("actions")).
		Columns("name", "application", "schemata", "created_at").
		Values(a.Name, a.Application, a.Schemata, a.CreatedAt).
		ToSql()
	if err != nil {
		return Action{}, err
	}

	if _, err := c.store.Executor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return Action{}, store.TranslateError("action", err)
	}

	return a, nil
}

// ActionByName loads a single action, used by the Publisher to resolve
// schemata and owning application.
func (c *Catalog) ActionByName(ctx context.Context, name string) (Action, error) {
	sqlStr, args, err := c.builder().Select("name", "application", "schemata", "created_at").
		From(c.table("actions")).
		Where(sq.Eq{"name": name}).
		ToSql()
	if err != nil {
		return Action{}, err
	}

	var a Action
	err = c.store.Executor(ctx).QueryRowContext(ctx, sqlStr, args...).
		Scan(&a.Name, &a.Application, &a.Schemata, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return Action{}, ameboerr.UnprocessableError{Message: "action does not exist"}
	} else if err != nil {
		return Action{}, store.TranslateError("action", err)
	}

	return a, nil
}

// ListSubscriptions returns subscriptions matching f, ordered by id, paged
// per p.
func (c *Catalog) ListSubscriptions(ctx context.Context, f Filter, p Page) ([]Subscription, error) {
	q := c.builder().Select("id", "application", "action", "handler", "max_retries", "created_at").
		From(c.table("subscriptions")).
		OrderBy("id").
		Limit(uint64(p.Pagination)).
		Offset(uint64(p.Offset()))

	if f.Application != "" {
		q = q.Where(sq.Eq{"application": f.Application})
	}

	if f.Action != "" {
		q = q.Where(sq.Eq{"action": f.Action})
	}

	if since, ok := timelineSince(f.Timeline); ok {
		q = q.Where(sq.GtOrEq{"created_at": since})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, store.TranslateError("subscription", err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(&s.ID, &s.Application, &s.Action, &s.Handler, &s.MaxRetries, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}

// InsertSubscription registers application's interest in action, after
// verifying secret matches application's stored secret. Handler is the
// relative path delivered to; the absolute delivery URL (application's
// address + handler) is resolved at dispatch time, not stored redundantly.
func (c *Catalog) InsertSubscription(ctx context.Context, application, secret string, s Subscription) (Subscription, error) {
	stored, err := c.applicationSecret(ctx, application)
	if err != nil {
		return Subscription{}, err
	}

	if err := verifySecret(stored, secret); err != nil {
		return Subscription{}, err
	}

	if !strings.HasPrefix(s.Handler, "/") {
		return Subscription{}, ameboerr.BadInputError{Message: "handler must be a path beginning with /"}
	}

	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}

	if s.MaxRetries > 10000 {
		return Subscription{}, ameboerr.BadInputError{Message: "max_retries must be between 1 and 10000"}
	}

	s.Application = application
	s.CreatedAt = time.Now()

	sqlStr, args, err := c.builder().Insert(c.table("subscriptions")).
		Columns("application", "action", "handler", "max_retries", "created_at").
		Values(s.Application, s.Action, s.Handler, s.MaxRetries, s.CreatedAt).
		Suffix(c.returningID()).
		ToSql()
	if err != nil {
		return Subscription{}, err
	}

	if c.store.Dialect() == store.DialectPostgres {
		err = c.store.Executor(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&s.ID)
	} else {
		var res sql.Result
		res, err = c.store.Executor(ctx).ExecContext(ctx, sqlStr, args...)
		if err == nil {
			s.ID, err = res.LastInsertId()
		}
	}

	if err != nil {
		return Subscription{}, store.TranslateError("subscription", err)
	}

	return s, nil
}

// ListEvents returns events matching f, ordered by id, paged per p.
func (c *Catalog) ListEvents(ctx context.Context, f Filter, p Page) ([]Event, error) {
	q := c.builder().Select("id", "action", "deduper", "payload", "sleep_until", "created_at").
		From(c.table("events")).
		OrderBy("id").
		Limit(uint64(p.Pagination)).
		Offset(uint64(p.Offset()))

	if f.Action != "" {
		q = q.Where(sq.Eq{"action": f.Action})
	}

	if since, ok := timelineSince(f.Timeline); ok {
		q = q.Where(sq.GtOrEq{"created_at": since})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, store.TranslateError("event", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Action, &e.Deduper, &e.Payload, &e.SleepUntil, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// ListGists returns outbox rows joined with their action/application/handler
// metadata, ordered by id, paged per p.
func (c *Catalog) ListGists(ctx context.Context, p Page) ([]GistView, error) {
	sqlStr, args, err := c.builder().Select(
		"g.id", "g.event", "g.subscription",
		"e.action", "s.application", "s.handler",
		"g.completed", "g.retries", "s.max_retries",
		"g.sleep_until", "g.created_at",
	).
		From(c.table("gists") + " g").
		Join(c.table("events") + " e ON g.event = e.id").
		Join(c.table("subscriptions") + " s ON g.subscription = s.id").
		OrderBy("g.id").
		Limit(uint64(p.Pagination)).
		Offset(uint64(p.Offset())).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := c.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, store.TranslateError("gist", err)
	}
	defer rows.Close()

	var out []GistView
	for rows.Next() {
		var g GistView
		if err := rows.Scan(&g.ID, &g.Event, &g.Subscription, &g.Action, &g.Application,
			&g.Handler, &g.Completed, &g.Retries, &g.MaxRetries, &g.SleepUntil, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}

	return out, rows.Err()
}

// returningID appends a RETURNING clause for the networked backend, where
// LastInsertId is unavailable.
func (c *Catalog) returningID() string {
	if c.store.Dialect() == store.DialectPostgres {
		return "RETURNING id"
	}

	return ""
}
