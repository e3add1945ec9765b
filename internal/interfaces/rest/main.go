package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	infra "github.com/pot-code/roadmap-progress/internal/infrastructure"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/driver"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/uuid"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/validate"
	"github.com/pot-code/roadmap-progress/internal/interfaces/rest/handler"
	"github.com/pot-code/roadmap-progress/internal/interfaces/rest/middleware"
	"github.com/pot-code/roadmap-progress/internal/progress"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// NewServer create the echo app with every route registered
func NewServer(
	option *infra.AppConfig,
	kv driver.KeyValueDB,
	ProgressUseCase progress.ProgressUseCase,
	Subscriber handler.Subscriber,
	logger *zap.Logger,
) (*echo.Echo, error) {
	idGenerator, err := uuid.NewNanoIDGenerator(option.Security.IDLength)
	if err != nil {
		return nil, err
	}

	var (
		app       = echo.New()
		validator = validate.NewValidator("en")
		websocket = infra.NewWebsocket()
	)
	app.HideBanner = true
	app.HidePort = true

	registerLivenessProbe(app, kv)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}

	app.Use(echo_middleware.RequestIDWithConfig(echo_middleware.RequestIDConfig{
		Generator: uuid.StringFunc(idGenerator),
	}))
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, traceID string, err error) {
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
			Logger: logger,
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))

	ProgressHandler := handler.NewProgressHandler(ProgressUseCase, Subscriber, validator)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix: "/progress",
					routes: []*route{
						{"GET", "", ProgressHandler.HandleGetOverview, nil},
						{"DELETE", "", ProgressHandler.HandleResetAll, nil},
						{"GET", "/:group", ProgressHandler.HandleGetGroup, nil},
						{"DELETE", "/:group", ProgressHandler.HandleResetGroup, nil},
						{"POST", "/:group/items/:item/toggle", ProgressHandler.HandleToggleItem, nil},
					},
				},
				{
					prefix: "/ws",
					routes: []*route{
						{"GET", "/progress", websocket.WithHeartbeat(ProgressHandler.HandleStream), nil},
					},
				},
			},
		})
	return app, nil
}

// Serve run app until ctx is done, then shut it down gracefully
func Serve(ctx context.Context, app *echo.Echo, option *infra.AppConfig, logger *zap.Logger) error {
	printRoutes(app, logger)

	addr := fmt.Sprintf("%s:%d", option.Host, option.Port)
	errc := make(chan error, 1)
	go func() {
		logger.Info("Start listening", zap.String("server.address", addr))
		errc <- app.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, kv driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()
		if kv.Ping(ctx) == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
