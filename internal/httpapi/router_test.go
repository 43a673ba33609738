package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rayattack/amebo/internal/catalog"
	"github.com/rayattack/amebo/internal/mlog"
	"github.com/rayattack/amebo/internal/publisher"
	"github.com/rayattack/amebo/internal/replay"
	"github.com/rayattack/amebo/internal/schemacache"
	"github.com/rayattack/amebo/internal/store"
	"github.com/rayattack/amebo/internal/vault"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	db, err := store.NewSQLiteStore(context.Background(), ":memory:", "../../migrations/sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(db)
	pub := publisher.New(db, cat, schemacache.New())
	rep := replay.New(db, time.Second)

	adminHash, err := vault.HashPassword("admin-password")
	require.NoError(t, err)

	adminLookup := func(ctx context.Context, username string) (string, error) {
		if username != "root" {
			return "", assertNotFound()
		}
		return adminHash, nil
	}

	v := vault.New("test-signing-secret", adminLookup, cat.SecretOf)

	return New(cat, pub, rep, v, &mlog.StdLogger{}, 50)
}

func assertNotFound() error {
	return notFoundSentinel{}
}

type notFoundSentinel struct{}

func (notFoundSentinel) Error() string { return "not found" }

func TestPostTokensAdminSuccess(t *testing.T) {
	api := newTestAPI(t)
	app := api.Router()

	body, _ := json.Marshal(map[string]string{"scheme": "basic", "username": "root", "password": "admin-password"})
	req := httptest.NewRequest("POST", "/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)
}

func TestPostTokensRejectsBadScheme(t *testing.T) {
	api := newTestAPI(t)
	app := api.Router()

	body, _ := json.Marshal(map[string]string{"scheme": "carrier-pigeon", "username": "root", "password": "x"})
	req := httptest.NewRequest("POST", "/v1/tokens", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestListApplicationsRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)
	app := api.Router()

	req := httptest.NewRequest("GET", "/v1/applications", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestPostApplicationsWrongContentTypeRejected(t *testing.T) {
	api := newTestAPI(t)
	app := api.Router()

	req := httptest.NewRequest("POST", "/v1/applications", bytes.NewReader([]byte("name=x")))
	req.Header.Set("Content-Type", "text/plain")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 418, resp.StatusCode)
}
