// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/storefront-guard/internal/classify"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/restapi/modules/guard"
	"github.com/ortelius/storefront-guard/restapi/modules/incidents"
	"github.com/ortelius/storefront-guard/restapi/modules/inspect"
	"github.com/ortelius/storefront-guard/restapi/modules/privacy"
	"go.uber.org/zap"
)

// SecurityPrefix is the path of the authenticated security API
const SecurityPrefix = "/api/v1/security"

// Services are the components the routes are bound to
type Services struct {
	Coordinator *incident.Coordinator
	Engine      *classify.Engine
	Sweeper     *privacy.Sweeper
	Scanner     *threat.Scanner
	Events      inspect.EventLister
	Auth        guard.AuthConfig
	Logger      *zap.Logger
	// RetentionInterval schedules background sweeps; zero disables the schedule
	RetentionInterval time.Duration
}

// SetupRoutes configures the security API routes and the GraphQL endpoint.
// Every route below SecurityPrefix requires the admin token or an admin JWT.
func SetupRoutes(app *fiber.App, svc Services, schema graphql.Schema) {
	logger := svc.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if svc.RetentionInterval > 0 {
		go startRetentionSchedule(svc.Sweeper, svc.RetentionInterval, logger)
	}

	api := app.Group(SecurityPrefix, guard.RequireAdminToken(svc.Auth))

	api.Post("/graphql", GraphQLHandler(schema))

	// Incident lifecycle
	api.Post("/incidents", incidents.PostIncident(svc.Coordinator, logger))
	api.Get("/incidents", incidents.ListIncidents(svc.Coordinator, logger))
	api.Get("/incidents/:id", incidents.GetIncident(svc.Coordinator))
	api.Put("/incidents/:id/status", incidents.PutIncidentStatus(svc.Coordinator, logger))
	api.Get("/reports/:period", incidents.GetReport(svc.Coordinator, logger))
	api.Get("/escalation", incidents.GetEscalation(svc.Coordinator))
	api.Get("/playbook", incidents.GetPlaybook(svc.Coordinator))

	// Data classification and retention
	api.Post("/protect", privacy.PostProtect(svc.Engine, logger))
	api.Post("/mask", privacy.PostMask())
	api.Post("/anonymize", privacy.PostAnonymize(svc.Engine))
	api.Get("/retention/policies", privacy.GetRetentionPolicies(svc.Sweeper))
	api.Post("/retention/sweep", privacy.PostRetentionSweep(svc.Sweeper))
	api.Get("/retention/status", privacy.GetRetentionStatus(svc.Sweeper))
	api.Delete("/records/:collection/:key", privacy.DeleteRecord(svc.Engine, logger))

	// Scanning on behalf of other services
	api.Post("/scan", inspect.PostScan(svc.Scanner))
	api.Post("/validate", inspect.PostValidate())
	api.Get("/events", inspect.GetEvents(svc.Events, logger))

	logger.Info("API routes initialized successfully")
}

func startRetentionSchedule(sweeper *privacy.Sweeper, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !sweeper.Start() {
			logger.Info("scheduled retention sweep skipped, previous sweep still running")
		}
	}
}
