// Package publisher is the Publisher (spec.md §4.5, component C5): it
// validates an incoming event against its action's schema, then inserts the
// event and fans out one outbox gist per live subscription of that action,
// all under a single transaction.
package publisher

import (
	"context"
	"crypto/subtle"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/schemacache"
	"github.com/rayattack/amebo/internal/store"
)

// Envelope is an incoming publish request.
type Envelope struct {
	Action     string
	Secret     string
	Deduper    string
	Payload    string // raw JSON object, validated against the action's schema
	SleepUntil *time.Time
}

// Receipt is what Publish returns on success.
type Receipt struct {
	EventID   int64     `json:"event_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	Gists     int64     `json:"gists"`
}

// Publisher wires the Catalog (to resolve actions) and the Schema Cache (to
// validate payloads) over a Store.
type Publisher struct {
	store   store.Store
	catalog *catalog.Catalog
	schemas *schemacache.Cache
}

// New returns a Publisher.
func New(s store.Store, c *catalog.Catalog, sc *schemacache.Cache) *Publisher {
	return &Publisher{store: s, catalog: c, schemas: sc}
}

func (p *Publisher) table(name string) string {
	return p.store.Schema() + name
}

func (p *Publisher) builder() sq.StatementBuilderType {
	return store.BuilderFor(p.store.Dialect())
}

// Publish runs the five-step pipeline described in spec.md §4.5.
func (p *Publisher) Publish(ctx context.Context, env Envelope) (Receipt, error) {
	var receipt Receipt

	err := p.store.RunInTransaction(ctx, func(ctx context.Context) error {
		// 1. Resolve action -> owning application, secret, schemata.
		action, err := p.catalog.ActionByName(ctx, env.Action)
		if err != nil {
			return err
		}

		appSecret, err := p.catalog.SecretOf(ctx, action.Application)
		if err != nil {
			return err
		}

		if subtle.ConstantTimeCompare([]byte(env.Secret), []byte(appSecret)) != 1 {
			return ameboerr.UnauthorizedError{Message: "action secret mismatch"}
		}

		// 2. Validate payload against the action's (cached) schema.
		violations, err := p.schemas.Validate(action.Name, action.Schemata, env.Payload)
		if err != nil {
			return ameboerr.BadInputError{Message: "payload is not valid JSON or action schema is not a valid JSON Schema document"}
		}

		if len(violations) > 0 {
			return ameboerr.SchemaViolationError{
				Message: "payload does not conform to the action's schema",
				Details: violations,
			}
		}

		// 3. Insert the event, capturing its surrogate id.
		createdAt := time.Now()

		eventID, err := p.insertEvent(ctx, env, createdAt)
		if err != nil {
			return err
		}

		// 4. Fan out one gist per live subscription of this action.
		gists, err := p.fanOut(ctx, eventID, env.Action, env.SleepUntil, createdAt)
		if err != nil {
			return err
		}

		receipt = Receipt{EventID: eventID, Action: env.Action, CreatedAt: createdAt, Gists: gists}

		return nil
	})

	return receipt, err
}

func (p *Publisher) insertEvent(ctx context.Context, env Envelope, createdAt time.Time) (int64, error) {
	q := p.builder().Insert(p.table("events")).
		Columns("action", "deduper", "payload", "sleep_until", "created_at").
		Values(env.Action, env.Deduper, env.Payload, env.SleepUntil, createdAt)

	if p.store.Dialect() == store.DialectPostgres {
		sqlStr, args, err := q.Suffix("RETURNING id").ToSql()
		if err != nil {
			return 0, err
		}

		var id int64
		if err := p.store.Executor(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
			return 0, translateConflict(err)
		}

		return id, nil
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}

	res, err := p.store.Executor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, translateConflict(err)
	}

	return res.LastInsertId()
}

// fanOut inserts one gist per subscription currently registered against
// action, implementing the "INSERT INTO gists(...) SELECT :event_id,
// subscription, 0, 0, :ts FROM subscriptions WHERE action = :action"
// statement from spec.md §4.5, and returns how many were created.
func (p *Publisher) fanOut(ctx context.Context, eventID int64, action string, sleepUntil *time.Time, createdAt time.Time) (int64, error) {
	selectSQL, selectArgs, err := p.builder().
		Select().
		Column("? AS event", eventID).
		Column("id AS subscription").
		Column("? AS completed", false).
		Column("? AS retries", 0).
		Column("? AS sleep_until", sleepUntil).
		Column("? AS created_at", createdAt).
		From(p.table("subscriptions")).
		Where(sq.Eq{"action": action}).
		ToSql()
	if err != nil {
		return 0, err
	}

	insertSQL := "INSERT INTO " + p.table("gists") +
		" (event, subscription, completed, retries, sleep_until, created_at) " + selectSQL

	res, err := p.store.Executor(ctx).ExecContext(ctx, insertSQL, selectArgs...)
	if err != nil {
		return 0, translateConflict(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports RowsAffected for INSERT...SELECT; a
		// missing count is not itself a failure.
		return 0, nil
	}

	return n, nil
}

func translateConflict(err error) error {
	return store.TranslateError("event", err)
}
