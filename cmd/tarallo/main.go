package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
	"github.com/weeeopen/tarallo/cmd/tarallo/routes"
	"github.com/weeeopen/tarallo/common/bootstrap"
	"github.com/weeeopen/tarallo/common/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap common components (DB, logger, redis, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "tarallo")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap tarallo: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		components.Logger.Error("failed to initialize service container", "error", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e, components)
	setupHealthCheck(e, components)
	setupMetrics(e, components)
	registerRoutes(e, serviceContainer)

	srv := server.New("tarallo", components.Config.Service.Port, e, components.Logger)
	if err := srv.Run(ctx); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestContext())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.Metrics(components.Telemetry))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "tarallo",
				"error":   err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "tarallo",
		})
	})
}

// setupMetrics exposes Prometheus metrics when enabled
func setupMetrics(e *echo.Echo, components *bootstrap.Components) {
	cfg := components.Config.Telemetry
	if !cfg.EnableMetrics || components.Telemetry == nil {
		return
	}
	e.GET(cfg.MetricsPath, echo.WrapHandler(components.Telemetry.Handler()))
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	v2 := routes.NewV2Group(e, serviceContainer)
	routes.RegisterItemRoutes(e, v2, serviceContainer)
	routes.RegisterProductRoutes(v2, serviceContainer)
	routes.RegisterSearchRoutes(v2, serviceContainer)
	routes.RegisterStatsRoutes(v2, serviceContainer)
}
