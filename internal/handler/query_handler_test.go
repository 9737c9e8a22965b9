package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronomint/verscache/internal/codec"
	"github.com/chronomint/verscache/internal/handler"
	"github.com/chronomint/verscache/internal/model"
	"github.com/chronomint/verscache/internal/service"
	"github.com/chronomint/verscache/internal/validation"
	sqlitelog "github.com/chronomint/verscache/internal/versionedlog/sqlite"
)

type fixture struct {
	router *mux.Router
	log    *sqlitelog.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	store, err := sqlitelog.Open(filepath.Join(t.TempDir(), "log.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := codec.NewRegistry()
	require.NoError(t, registry.Register("user", codec.RawJSON()))

	cache := service.NewSnapshotCache(store, registry, nil, nil, logger)
	h := handler.NewQueryHandler(cache, validation.NewValidator(registry), logger, 5*time.Second)

	router := mux.NewRouter()
	h.Register(router)

	return &fixture{router: router, log: store}
}

func (f *fixture) append(t *testing.T, id, payload string) model.Version {
	t.Helper()
	key := model.EntityKey{Kind: "user", ID: id}
	v, err := f.log.Append(context.Background(), key, []byte(payload), false)
	require.NoError(t, err)
	return v
}

func (f *fixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestQueryHandler_GetSnapshot(t *testing.T) {
	f := setup(t)
	f.append(t, "u1", `{"name":"ada"}`)   // v0
	f.append(t, "u1", `{"name":"grace"}`) // v1

	rec, body := f.get(t, "/v1/snapshots/user/u1?version=0")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user", body["kind"])
	assert.Equal(t, "u1", body["id"])
	assert.Equal(t, float64(0), body["version"])
	assert.Equal(t, map[string]interface{}{"name": "ada"}, body["value"])

	// Omitted version resolves to the log's latest.
	rec, body = f.get(t, "/v1/snapshots/user/u1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["version"])
	assert.Equal(t, map[string]interface{}{"name": "grace"}, body["value"])
}

func TestQueryHandler_GetSnapshotNotFound(t *testing.T) {
	f := setup(t)
	f.append(t, "u1", `{"name":"ada"}`)

	rec, body := f.get(t, "/v1/snapshots/user/ghost?version=0")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "NOT_FOUND", body["error_code"])
}

func TestQueryHandler_UnknownKind(t *testing.T) {
	f := setup(t)

	rec, body := f.get(t, "/v1/snapshots/ghost/u1?version=0")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNSUPPORTED_KIND", body["error_code"])
}

func TestQueryHandler_InvalidVersion(t *testing.T) {
	f := setup(t)

	rec, body := f.get(t, "/v1/snapshots/user/u1?version=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", body["error_code"])

	rec, body = f.get(t, "/v1/snapshots/user/u1?version=-5")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_VERSION", body["error_code"])
}

func TestQueryHandler_EmptyLog(t *testing.T) {
	f := setup(t)

	rec, body := f.get(t, "/v1/snapshots/user/u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["error_code"])
	// The envelope carries the NoVersion sentinel, not a fabricated version.
	assert.Contains(t, body["message"], "at version -1")

	rec, body = f.get(t, "/v1/snapshots/user")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(-1), body["version"])
	assert.Empty(t, body["entities"])
}

func TestQueryHandler_ListSnapshots(t *testing.T) {
	f := setup(t)
	f.append(t, "u1", `{"name":"ada"}`)   // v0
	f.append(t, "u2", `{"name":"alan"}`)  // v1
	f.append(t, "u1", `{"name":"grace"}`) // v2

	rec, body := f.get(t, "/v1/snapshots/user?version=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	entities := body["entities"].([]interface{})
	require.Len(t, entities, 2)
	first := entities[0].(map[string]interface{})
	assert.Equal(t, "u1", first["id"])
	assert.Equal(t, map[string]interface{}{"name": "ada"}, first["value"])
	second := entities[1].(map[string]interface{})
	assert.Equal(t, "u2", second["id"])
}

func TestQueryHandler_Health(t *testing.T) {
	f := setup(t)
	f.append(t, "u1", `{"name":"ada"}`)

	// Warm the cache so stats reflect a catch-up.
	rec, _ := f.get(t, "/v1/snapshots/user/u1?version=0")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(0), stats["watermark"])
	assert.Equal(t, float64(1), stats["indexed_entities"])
}
