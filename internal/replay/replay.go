// Package replay is Replay (spec.md §4.7, component C7): synchronous,
// diagnostic redelivery of a single gist. Unlike the Dispatcher it never
// mutates completed/retries.
package replay

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/store"
)

// Result is what Replay returns: the proxied upstream body (if parseable
// JSON) alongside the gist id that was replayed.
type Result struct {
	Gist    int64 `json:"gist"`
	Proxied any   `json:"proxied,omitempty"`
}

// Replay loads the same (endpoint, payload, secret) tuple the Dispatcher
// would, without its completed/retries/sleep_until filters, and performs a
// single synchronous HTTP POST.
type Replay struct {
	store  store.Store
	client *http.Client
}

// New returns a Replay backed by s, using timeout for the upstream request.
func New(s store.Store, timeout time.Duration) *Replay {
	return &Replay{store: s, client: &http.Client{Timeout: timeout}}
}

func (r *Replay) builder() sq.StatementBuilderType {
	if r.store.Dialect() == store.DialectPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// ByID fires a single synchronous redelivery of gistID and returns the
// proxied upstream response; the HTTP boundary maps the returned error.
// Upstream 200 or 202 returns no error; any other upstream status returns
// ameboerr.UpstreamUnavailableError (-> 503); transport failure returns
// ameboerr.UpstreamError (-> 502).
func (r *Replay) ByID(ctx context.Context, gistID int64) (Result, error) {
	endpoint, payload, secret, err := r.lookup(ctx, gistID)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return Result{}, ameboerr.UpstreamError{Cause: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-PASS-Phrase", secret)

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, ameboerr.UpstreamError{Cause: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	result := Result{Gist: gistID}
	if len(body) > 0 {
		var proxied any
		if json.Unmarshal(body, &proxied) == nil {
			result.Proxied = proxied
		}
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		return result, nil
	}

	return result, ameboerr.UpstreamUnavailableError{Status: resp.StatusCode, Body: string(body)}
}

func (r *Replay) lookup(ctx context.Context, gistID int64) (endpoint, payload, secret string, err error) {
	sqlStr, args, err := r.builder().Select(
		"sub_app.address || s.handler AS endpoint",
		"e.payload AS payload",
		"act_app.secret AS secret",
	).
		From(r.store.Schema() + "gists g").
		Join(r.store.Schema() + "events e ON g.event = e.id").
		Join(r.store.Schema() + "subscriptions s ON g.subscription = s.id").
		Join(r.store.Schema() + "actions a ON e.action = a.name").
		Join(r.store.Schema() + "applications sub_app ON s.application = sub_app.name").
		Join(r.store.Schema() + "applications act_app ON a.application = act_app.name").
		Where(sq.Eq{"g.id": gistID}).
		ToSql()
	if err != nil {
		return "", "", "", err
	}

	row := r.store.Executor(ctx).QueryRowContext(ctx, sqlStr, args...)
	if scanErr := row.Scan(&endpoint, &payload, &secret); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", "", "", ameboerr.NotFoundError{EntityType: "gist"}
		}

		return "", "", "", store.TranslateError("gist", scanErr)
	}

	return endpoint, payload, secret, nil
}
