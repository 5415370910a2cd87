package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	u "idsheet/internal/utils"
)

func newServer(t *testing.T) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := u.DefaultConfig()
	cfg.Cache.RedisHost = mr.Addr()
	cfg.Sheet.RasterDPI = 72
	u.SetConfig(cfg)
	u.Tokens.Reset()
	t.Cleanup(u.Tokens.Reset)

	app := SetupApp(cfg, nil)
	t.Cleanup(func() { _ = app.Shutdown() })
	return app
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestSetupApp_NotFoundIsJSON(t *testing.T) {
	app := newServer(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 404, body.Error.Code)
	assert.Equal(t, "Not Found", body.Error.Message)
}

func TestSetupApp_RoutesAndRequestID(t *testing.T) {
	app := newServer(t)

	for _, path := range []string{"/v1/pages", "/v1/layout?page=Letter", "/v1/chrome/stats", "/livez", "/readyz"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}
}

func TestSetupApp_ValidationErrorShape(t *testing.T) {
	app := newServer(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/layout?page=B5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 400, body.Error.Code)
	assert.Contains(t, body.Error.Message, "Invalid page")
}

func TestSetupApp_APIKey(t *testing.T) {
	app := newServer(t)

	withKey := func(key string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/v1/pages", nil)
		req.Header.Set("X-API-Key", key)
		return req
	}

	resp, err := app.Test(withKey("anything"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "token store not loaded yet")

	u.Tokens.LoadMap(map[string]int{"good-token": 50})

	resp, err = app.Test(withKey("bad-token"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(withKey("good-token"), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/v1/pages", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "anonymous requests are allowed")
}

func TestSetupApp_ReadinessWaitsForTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := u.DefaultConfig()
	cfg.Cache.RedisHost = mr.Addr()
	cfg.Auth.Postgres.Host = "db.internal"
	u.SetConfig(cfg)
	u.Tokens.Reset()
	t.Cleanup(u.Tokens.Reset)

	app := SetupApp(cfg, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/readyz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	u.Tokens.LoadMap(map[string]int{})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/readyz", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
