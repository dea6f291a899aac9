// Package api assembles the Fiber application: middleware, health and metrics
// endpoints, the threat guard and the security API routes.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ortelius/storefront-guard/graphql"
	"github.com/ortelius/storefront-guard/restapi"
	"github.com/ortelius/storefront-guard/restapi/modules/guard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultAllowOrigins are the storefront front-ends allowed by CORS when none are configured
const DefaultAllowOrigins = "http://localhost:3000,http://localhost:4000,http://127.0.0.1:3000,http://127.0.0.1:4000"

// Options configures NewFiberApp
type Options struct {
	AllowOrigins string
	// Guard screens every request except health and metrics
	Guard guard.Config
	// Gatherer backs /metrics; nil leaves the endpoint out
	Gatherer prometheus.Gatherer
}

// NewFiberApp creates and configures a Fiber app with REST and GraphQL routes
func NewFiberApp(svc restapi.Services, opts Options) (*fiber.App, error) {
	schema, err := graphql.CreateSchema(svc.Coordinator)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "storefront-guard API v1.0",
		BodyLimit:    10 * 1024 * 1024, // 10MB
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	origins := opts.AllowOrigins
	if origins == "" {
		origins = DefaultAllowOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, " + guard.AdminTokenHeader,
		AllowCredentials: true,
		AllowMethods:     "GET, POST, HEAD, PUT, DELETE, PATCH, OPTIONS",
	}))
	app.Use(logger.New())

	guardCfg := opts.Guard
	guardCfg.Skip = func(c *fiber.Ctx) bool {
		return c.Path() == "/" || c.Path() == "/metrics"
	}
	guardCfg.SkipBody = func(c *fiber.Ctx) bool {
		// incident descriptions and scan requests carry attack payloads as data
		return strings.HasPrefix(c.Path(), restapi.SecurityPrefix)
	}
	if guardCfg.Scanner != nil {
		app.Use(guard.ThreatGuard(guardCfg))
	}

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	restapi.SetupRoutes(app, svc, schema)

	return app, nil
}
