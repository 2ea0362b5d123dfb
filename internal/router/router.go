// Package router registers the HTTP routes and middleware on an Echo
// instance.
package router

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/flights-api/internal/config"
	"github.com/iliyamo/flights-api/internal/handler"
	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/middleware"
)

// Deps carries everything the routes need. Redis may be nil, which turns
// caching and rate limiting off. Gatherer defaults to the global registry.
type Deps struct {
	Flights  *handler.FlightHandler
	Store    handler.Pinger
	Redis    *redis.Client
	Cache    config.CacheConfig
	Limit    config.RateLimitConfig
	Log      logger.Logger
	Gatherer prometheus.Gatherer
}

// New returns an Echo instance with the global middleware and all routes.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.AccessLog(d.Log))

	RegisterRoutes(e, d)
	RegisterFlights(e, d)
	return e
}

// RegisterRoutes registers the operational endpoints. They bypass rate
// limiting and caching.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.Store))

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// RegisterFlights registers the /v1/flights routes behind the rate limiter
// and the response cache.
func RegisterFlights(e *echo.Echo, d Deps) {
	g := e.Group("/v1/flights",
		middleware.NewTokenBucket(d.Limit, d.Redis, d.Log),
		middleware.NewRedisCache(d.Cache, d.Redis, d.Log),
	)
	h := d.Flights

	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/paginated", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Replace)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/register", h.Register)
	g.GET("/:id/logs", h.Logs)
}
