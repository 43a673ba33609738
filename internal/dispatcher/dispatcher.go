// Package dispatcher is the Dispatcher (spec.md §4.6, component C6): a
// single in-process periodic task that picks a bounded envelope of
// undelivered gists, fires them concurrently over HTTP, and reconciles
// their completion/retry counters, pacing itself by idling when the
// envelope comes back sparse.
package dispatcher

import (
	"bytes"
	"context"
	"net/http"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/rayattack/amebo/internal/mlog"
	"github.com/rayattack/amebo/internal/store"
)

// pick is one undelivered gist, joined against its subscription's endpoint
// and its action's secret, per the spec.md §4.6 pick query.
type pick struct {
	GistID   int64
	Endpoint string
	Payload  string
	Secret   string
}

// Dispatcher owns the cycle loop. Config carries the tunables that spec.md
// §6 exposes via environment variables.
type Dispatcher struct {
	store        store.Store
	client       *http.Client
	envelopeSize int64
	restWhen     int64
	idle         time.Duration
	logger       mlog.Logger
}

// Config tunes the Dispatcher's cycle.
type Config struct {
	EnvelopeSize   int64
	RestWhen       int64
	IdleSeconds    int64
	RequestTimeout time.Duration
}

// New returns a Dispatcher over s.
func New(s store.Store, cfg Config, logger mlog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        s,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		envelopeSize: cfg.EnvelopeSize,
		restWhen:     cfg.RestWhen,
		idle:         time.Duration(cfg.IdleSeconds) * time.Second,
		logger:       logger,
	}
}

// Run loops cycles until ctx is cancelled. It is meant to be launched as one
// goroutine from main and never returns until shutdown.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		picked, err := d.cycle(ctx)
		if err != nil {
			d.logger.Errorf("dispatcher cycle failed: %v", err)
		}

		if int64(picked) < d.restWhen {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.idle):
			}
		}
	}
}

// cycle runs one pick/fire/classify/reconcile round and returns how many
// gists it picked (used by Run to decide whether to idle).
func (d *Dispatcher) cycle(ctx context.Context) (int, error) {
	picks, err := d.pick(ctx)
	if err != nil {
		return 0, err
	}

	if len(picks) == 0 {
		return 0, nil
	}

	accepted, rejected := d.fire(ctx, picks)

	if err := d.reconcile(ctx, accepted, rejected); err != nil {
		return len(picks), err
	}

	return len(picks), nil
}

// pick selects up to envelopeSize undelivered, non-sleeping,
// under-retry-cap gists, ordered by event (FIFO publish order).
func (d *Dispatcher) pick(ctx context.Context) ([]pick, error) {
	b := store.BuilderFor(d.store.Dialect())

	sqlStr, args, err := b.Select(
		"sub_app.address || s.handler AS endpoint",
		"e.payload AS payload",
		"act_app.secret AS secret",
		"g.id AS gist_id",
	).
		From(d.store.Schema() + "gists g").
		Join(d.store.Schema() + "events e ON g.event = e.id").
		Join(d.store.Schema() + "subscriptions s ON g.subscription = s.id").
		Join(d.store.Schema() + "actions a ON e.action = a.name").
		Join(d.store.Schema() + "applications sub_app ON s.application = sub_app.name").
		Join(d.store.Schema() + "applications act_app ON a.application = act_app.name").
		Where(sq.NotEq{"g.completed": true}).
		Where("g.retries < s.max_retries").
		Where(sq.Or{sq.Eq{"g.sleep_until": nil}, sq.Lt{"g.sleep_until": time.Now()}}).
		OrderBy("g.event").
		Limit(uint64(d.envelopeSize)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := d.store.Executor(ctx).QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pick
	for rows.Next() {
		var p pick
		if err := rows.Scan(&p.Endpoint, &p.Payload, &p.Secret, &p.GistID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

// fire launches one concurrent HTTP POST per pick and classifies each as
// accepted (200/202) or rejected (anything else, including transport
// failure), per spec.md §4.6 step 3.
func (d *Dispatcher) fire(ctx context.Context, picks []pick) (accepted, rejected []int64) {
	results := make([]bool, len(picks))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range picks {
		i, p := i, p
		g.Go(func() error {
			results[i] = d.post(gctx, p)
			return nil
		})
	}

	_ = g.Wait()

	for i, p := range picks {
		if results[i] {
			accepted = append(accepted, p.GistID)
		} else {
			rejected = append(rejected, p.GistID)
		}
	}

	return accepted, rejected
}

func (d *Dispatcher) post(ctx context.Context, p pick) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewBufferString(p.Payload))
	if err != nil {
		return false
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PASS-Phrase", p.Secret)

	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted
}

// reconcile applies the two unconditional by-id updates from spec.md §4.6
// step 4: rejected gists only get their retry counter incremented; accepted
// gists are marked completed and also get their retry counter incremented,
// so retries reflects attempt count either way.
func (d *Dispatcher) reconcile(ctx context.Context, accepted, rejected []int64) error {
	if len(rejected) > 0 {
		if err := d.bumpRetries(ctx, rejected, false); err != nil {
			return err
		}
	}

	if len(accepted) > 0 {
		if err := d.bumpRetries(ctx, accepted, true); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) bumpRetries(ctx context.Context, ids []int64, completed bool) error {
	table := d.store.Schema() + "gists"

	if d.store.Dialect() == store.DialectPostgres {
		sqlStr := "UPDATE " + table + " SET retries = retries + 1"
		if completed {
			sqlStr += ", completed = true"
		}
		sqlStr += " WHERE id = ANY($1)"

		_, err := d.store.Executor(ctx).ExecContext(ctx, sqlStr, pq.Array(ids))
		return err
	}

	// SQLite's driver has no array-bind equivalent to Postgres' ANY($1), so
	// the batch is expanded into an IN (...) placeholder list.
	b := store.BuilderFor(d.store.Dialect())

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}

	q := b.Update(table).Set("retries", sq.Expr("retries + 1"))
	if completed {
		q = q.Set("completed", true)
	}

	sqlStr, args, err := q.Where(sq.Eq{"id": anyIDs}).ToSql()
	if err != nil {
		return err
	}

	_, err = d.store.Executor(ctx).ExecContext(ctx, sqlStr, args...)
	return err
}
