package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/roadmap-progress/internal/catalog"
	infra "github.com/pot-code/roadmap-progress/internal/infrastructure"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/driver"
	"github.com/pot-code/roadmap-progress/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testCatalog = `
groups:
  - id: frontend
    items: [{id: a}, {id: b}, {id: c}, {id: d}]
  - id: backend
    items: [{id: x}, {id: y}]
`

type notifyingSubscriber struct {
	*progress.Cache
	subscribed chan struct{}
}

func (n *notifyingSubscriber) Subscribe(buffer int) (<-chan progress.Event, func()) {
	ch, cancel := n.Cache.Subscribe(buffer)
	close(n.subscribed)
	return ch, cancel
}

type fixture struct {
	app   *echo.Echo
	cache *progress.Cache
	kv    *driver.MemoryKV
	sub   *notifyingSubscriber
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := driver.NewMemoryKV()
	cache := progress.NewCache(progress.NewStore(kv, nil), nil)
	t.Cleanup(cache.Close)

	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)

	option := new(infra.AppConfig)
	option.Env = infra.EnvProduction
	option.RequestTimeout = 5 * time.Second
	option.Security.IDLength = 10

	sub := &notifyingSubscriber{Cache: cache, subscribed: make(chan struct{})}
	app, err := NewServer(option, kv, progress.NewProgressUseCase(cache, cat), sub, zap.NewNop())
	require.NoError(t, err)
	return &fixture{app, cache, kv, sub}
}

func (f *fixture) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.app.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz").Code)
}

func TestToggleAndGetGroup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/progress/frontend/items/a/toggle")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"completedItemIds":["a"],"progressPercent":25}`, rec.Body.String())
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 10)

	rec = f.do(http.MethodGet, "/api/v1/progress/frontend")
	require.Equal(t, http.StatusOK, rec.Code)
	var gp progress.GroupProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gp))
	assert.Equal(t, []string{"a"}, gp.CompletedItemIDs)
	assert.Equal(t, 1, gp.Completed)
	assert.Equal(t, 4, gp.Total)
	assert.Equal(t, 25, gp.ProgressPercent)
}

func TestUnknownGroup(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/v1/progress/devops"},
		{http.MethodPost, "/api/v1/progress/devops/items/linux/toggle"},
		{http.MethodDelete, "/api/v1/progress/devops"},
	} {
		rec := f.do(tc.method, tc.target)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.target)
		assert.Contains(t, rec.Body.String(), `"code":404`)
	}
	assert.Empty(t, f.cache.GetAll(context.Background()))
}

func TestInvalidParams(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("x", 129)

	rec := f.do(http.MethodGet, "/api/v1/progress/"+long)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	params := body["invalid_params"].([]interface{})
	require.Len(t, params, 1)
	assert.Equal(t, "group", params[0].(map[string]interface{})["domain"])
}

func TestResetAndOverview(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/v1/progress/frontend/items/a/toggle")
	f.do(http.MethodPost, "/api/v1/progress/frontend/items/b/toggle")
	f.do(http.MethodPost, "/api/v1/progress/backend/items/x/toggle")

	rec := f.do(http.MethodGet, "/api/v1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var ov progress.Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
	assert.Equal(t, progress.Overall{Completed: 3, Total: 6, Percentage: 50}, ov.Overall)
	require.Len(t, ov.Groups, 2)

	rec = f.do(http.MethodDelete, "/api/v1/progress/frontend")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"completedItemIds":[],"progressPercent":0}`, rec.Body.String())

	rec = f.do(http.MethodDelete, "/api/v1/progress")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	f.cache.Flush()
	blob, err := f.kv.Get(context.Background(), progress.DefaultKey)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, blob)
}

func TestNotFoundRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/v1/nothing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.app)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-f.sub.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never subscribed")
	}

	resp, err := http.Post(srv.URL+"/api/v1/progress/backend/items/y/toggle", echo.MIMEApplicationJSON, nil)
	require.NoError(t, err)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var e progress.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, "backend", e.GroupID)
	assert.Equal(t, []string{"y"}, e.Record.CompletedItemIDs)
	assert.Equal(t, 50, e.Record.Progress)
}
