package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serve(h echo.HandlerFunc, m ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	app := echo.New()
	app.GET("/", h, m...)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec
}

func TestErrorHandling(t *testing.T) {
	tests := []struct {
		name     string
		handler  echo.HandlerFunc
		wantCode int
		wantBody string
	}{
		{"returned error", func(c echo.Context) error { return errors.New("boom") }, http.StatusInternalServerError, "boom"},
		{"panic with error", func(c echo.Context) error { panic(errors.New("crash")) }, http.StatusInternalServerError, "crash"},
		{"panic with value", func(c echo.Context) error { panic("negative total") }, http.StatusInternalServerError, "negative total"},
		{"http error", func(c echo.Context) error { return echo.ErrNotFound }, http.StatusNotFound, `"code":404`},
		{"ok", func(c echo.Context) error { return c.String(http.StatusOK, "fine") }, http.StatusOK, "fine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.handler, ErrorHandling())
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestAbortRequest(t *testing.T) {
	var deadline time.Time
	var ok bool
	rec := serve(func(c echo.Context) error {
		deadline, ok = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	}, AbortRequest(&AbortRequestOption{Timeout: time.Minute}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	serve(func(c echo.Context) error {
		_, ok = c.Request().Context().Deadline()
		return nil
	}, AbortRequest(&AbortRequestOption{Skipper: func(echo.Context) bool { return true }}))
	assert.False(t, ok)
}
