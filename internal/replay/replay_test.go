package replay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayattack/amebo/internal/ameboerr"
	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/publisher"
	"github.com/rayattack/amebo/internal/schemacache"
	"github.com/rayattack/amebo/internal/store"
)

func newGist(t *testing.T, status int) (*Replay, *catalog.Catalog, int64) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	t.Cleanup(srv.Close)

	db, err := store.NewSQLiteStore(context.Background(), ":memory:", "../../migrations/sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(db)

	_, err = cat.InsertApplication(context.Background(), catalog.Application{
		Name: "producer", Address: "https://producer.internal", Secret: "producer-secret-0123456789",
	})
	require.NoError(t, err)

	_, err = cat.InsertApplication(context.Background(), catalog.Application{
		Name: "consumer", Address: srv.URL, Secret: "consumer-secret-0123456789",
	})
	require.NoError(t, err)

	_, err = cat.InsertAction(context.Background(), "producer", "producer-secret-0123456789", catalog.Action{
		Name: "thing.happened", Schemata: `{"type":"object"}`,
	})
	require.NoError(t, err)

	_, err = cat.InsertSubscription(context.Background(), "consumer", "consumer-secret-0123456789", catalog.Subscription{
		Action: "thing.happened", Handler: "/hooks", MaxRetries: 3,
	})
	require.NoError(t, err)

	pub := publisher.New(db, cat, schemacache.New())
	_, err = pub.Publish(context.Background(), publisher.Envelope{
		Action: "thing.happened", Secret: "producer-secret-0123456789",
		Deduper: "evt-1", Payload: `{}`,
	})
	require.NoError(t, err)

	gists, err := cat.ListGists(context.Background(), catalog.Page{Page: 1, Pagination: 10})
	require.NoError(t, err)
	require.Len(t, gists, 1)

	return New(db, time.Second), cat, gists[0].ID
}

// gistState fetches the retries/completed pair for gistID, for before/after
// comparisons around a replay call.
func gistState(t *testing.T, cat *catalog.Catalog, gistID int64) (completed bool, retries int64) {
	t.Helper()

	gists, err := cat.ListGists(context.Background(), catalog.Page{Page: 1, Pagination: 10})
	require.NoError(t, err)

	for _, g := range gists {
		if g.ID == gistID {
			return g.Completed, g.Retries
		}
	}

	t.Fatalf("gist %d not found", gistID)
	return false, 0
}

func TestReplaySuccessDoesNotMutateGist(t *testing.T) {
	rep, cat, gistID := newGist(t, http.StatusAccepted)

	beforeCompleted, beforeRetries := gistState(t, cat, gistID)

	result, err := rep.ByID(context.Background(), gistID)
	require.NoError(t, err)
	assert.Equal(t, gistID, result.Gist)
	assert.NotNil(t, result.Proxied)

	afterCompleted, afterRetries := gistState(t, cat, gistID)
	assert.Equal(t, beforeCompleted, afterCompleted, "replay must not mutate the gist's completed flag")
	assert.Equal(t, beforeRetries, afterRetries, "replay must not mutate the gist's retry counter")
}

func TestReplayUpstreamFailureMapsToUnavailable(t *testing.T) {
	rep, _, gistID := newGist(t, http.StatusInternalServerError)

	_, err := rep.ByID(context.Background(), gistID)
	require.Error(t, err)
	assert.IsType(t, ameboerr.UpstreamUnavailableError{}, err)
}

func TestReplayUnknownGistNotFound(t *testing.T) {
	rep, _, _ := newGist(t, http.StatusOK)

	_, err := rep.ByID(context.Background(), 999999)
	assert.IsType(t, ameboerr.NotFoundError{}, err)
}
