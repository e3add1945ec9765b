package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// AbortRequestOption .
type AbortRequestOption struct {
	Timeout time.Duration
	Skipper middleware.Skipper
}

// AbortRequest bound the request context with a deadline, handlers and
// storage calls observing the context give up once it passes
func AbortRequest(options ...*AbortRequestOption) echo.MiddlewareFunc {
	cfg := &AbortRequestOption{
		Timeout: 30 * time.Second,
		Skipper: middleware.DefaultSkipper,
	}
	if len(options) > 0 {
		option := options[0]
		if option.Timeout > 0 {
			cfg.Timeout = option.Timeout
		}
		if option.Skipper != nil {
			cfg.Skipper = option.Skipper
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.Timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
