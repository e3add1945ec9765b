package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorHandlingOption options for error handling
type ErrorHandlingOption struct {
	Handler func(c echo.Context, traceID string, err error)
	Logger  *zap.Logger
}

// ErrorHandling turn panics and returned errors into JSON responses
// **DO NOT return error anymore**
func ErrorHandling(options ...*ErrorHandlingOption) echo.MiddlewareFunc {
	custom := &ErrorHandlingOption{
		Handler: func(c echo.Context, traceID string, err error) {
			c.String(http.StatusInternalServerError, err.Error())
		},
		Logger: zap.NewNop(),
	}
	if len(options) > 0 {
		option := options[0]
		if option.Handler != nil {
			custom.Handler = option.Handler
		}
		if option.Logger != nil {
			custom.Logger = option.Logger
		}
	}
	handler := custom.Handler
	logger := custom.Logger
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if any := recover(); any != nil {
					err, ok := any.(error)
					if !ok {
						err = fmt.Errorf("%v", any)
					}
					traceID := c.Response().Header().Get(echo.HeaderXRequestID)
					logger.Error(err.Error(),
						zap.String("url.path", c.Request().RequestURI),
						zap.String("http.request.method", c.Request().Method),
						zap.Strings("route.params.name", c.ParamNames()),
						zap.Strings("route.params.value", c.ParamValues()),
						zap.String("trace.id", traceID),
						zap.Stack("error.stack_trace"),
					)
					if !c.Response().Committed {
						handler(c, traceID, err)
					}
				}
			}()
			err := next(c)
			if err == nil || c.Response().Committed {
				return nil
			}
			traceID := c.Response().Header().Get(echo.HeaderXRequestID)
			if v, ok := err.(*echo.HTTPError); ok {
				c.JSON(v.Code, map[string]interface{}{
					"code":     v.Code,
					"title":    http.StatusText(v.Code),
					"detail":   fmt.Sprint(v.Message),
					"trace_id": traceID,
				})
				return nil
			}
			handler(c, traceID, err)
			return nil
		}
	}
}
