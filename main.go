// package main provides the entry point for the storefront-guard microservice,
// wiring the threat scanner, crypto service, data classification engine and
// incident coordinator behind the security API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ortelius/storefront-guard/database"
	"github.com/ortelius/storefront-guard/events/modules/security"
	"github.com/ortelius/storefront-guard/internal/api"
	"github.com/ortelius/storefront-guard/internal/classify"
	"github.com/ortelius/storefront-guard/internal/config"
	"github.com/ortelius/storefront-guard/internal/crypt"
	"github.com/ortelius/storefront-guard/internal/events"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/internal/kafka"
	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/internal/notify"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/restapi"
	"github.com/ortelius/storefront-guard/restapi/modules/guard"
	"github.com/ortelius/storefront-guard/restapi/modules/inspect"
	"github.com/ortelius/storefront-guard/restapi/modules/privacy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

type closer interface {
	Close() error
}

func main() {
	logger := database.InitLogger()
	defer logger.Sync()

	settings := config.LoadSettings()
	if err := settings.Validate(); err != nil {
		logger.Fatal("Invalid settings", zap.Error(err))
	}

	policy, err := config.LoadPolicy(settings.PolicyPath)
	if err != nil {
		logger.Fatal("Failed to load security policy", zap.String("path", settings.PolicyPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	cryptCfg := policy.Crypto
	cryptCfg.Secret = settings.MasterSecret
	cryptSvc, err := crypt.NewService(cryptCfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to derive encryption key", zap.Error(err))
	}

	// Storage
	var (
		incidentStore incident.Store
		eventStore    interface {
			events.Store
			inspect.EventLister
		}
		recordStore classify.RecordStore
	)
	switch settings.Storage {
	case config.StorageArango:
		db := database.InitializeDatabase()
		incidentStore = database.NewIncidentStore(db)
		eventStore = database.NewEventStore(db)
		recordStore = database.NewRecordStore(db, database.DefaultDependencies)
	default:
		logger.Warn("Using in-memory storage; incidents and events are lost on restart and retention sweeps are disabled")
		incidentStore = incident.NewMemoryStore()
		eventStore = events.NewMemoryStore(0)
	}

	// Notifications and the event bus
	var closers []closer
	email := notify.NewEmailNotifier(emailConfig(settings.Email, policy.Notifications), logger)
	notifiers := notify.Multi{email}

	var publisher events.Publisher
	if settings.Kafka.Enabled() {
		producer := security.NewProducer(kafka.NewWriter(settings.Kafka, kafka.SecurityEventsTopic), settings.Instance)
		incidentBus := notify.NewKafkaNotifier(kafka.NewWriter(settings.Kafka, kafka.IncidentNotificationsTopic))
		publisher = producer
		notifiers = append(notifiers, incidentBus)
		closers = append(closers, producer, incidentBus)
	}

	coordinator := incident.NewCoordinator(policy.Incidents, incidentStore, notifiers, logger, m)

	recorder, err := startRecorder(policy.Events, eventStore, publisher, coordinator, logger,
		func(observer security.Observer) error {
			return kafka.RunEventProcessor(ctx, settings.Kafka, observer, logger)
		})
	if err != nil {
		logger.Fatal("Failed to create event recorder", zap.Error(err))
	}
	cryptSvc.WithEventSink(recorder)

	scanner := threat.NewScanner(policy.Scanner, recorder, logger, m)
	engine := classify.NewEngine(policy.Classification, cryptSvc, recordStore, logger, m)

	retentionInterval := settings.RetentionInterval
	if recordStore == nil {
		retentionInterval = 0
	}

	app, err := api.NewFiberApp(restapi.Services{
		Coordinator:       coordinator,
		Engine:            engine,
		Sweeper:           privacy.NewSweeper(engine, policy.Retention, logger),
		Scanner:           scanner,
		Events:            eventStore,
		Auth:              guard.AuthConfig{Token: settings.AdminToken, JWTSecret: []byte(settings.JWTSecret)},
		Logger:            logger,
		RetentionInterval: retentionInterval,
	}, api.Options{
		AllowOrigins: settings.AllowOrigins,
		Guard:        guard.Config{Scanner: scanner, Sink: recorder, Metrics: m, Logger: logger},
		Gatherer:     reg,
	})
	if err != nil {
		logger.Fatal("Failed to create application", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("Failed to shut down cleanly", zap.Error(err))
		}
	}()

	logger.Info("Starting server",
		zap.String("port", settings.Port),
		zap.String("storage", settings.Storage),
		zap.Bool("kafka", settings.Kafka.Enabled()),
		zap.String("security_api", restapi.SecurityPrefix))
	if err := app.Listen(":" + settings.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("Failed to close Kafka writer", zap.Error(err))
		}
	}
}

// startRecorder builds the event recorder. With a publisher, escalation runs in
// the Kafka consumer started by startConsumer; if the consumer cannot start the
// recorder is rebuilt without the publisher so events are observed locally.
func startRecorder(cfg events.Config, store events.Store, publisher events.Publisher, esc events.Escalator,
	logger *zap.Logger, startConsumer func(security.Observer) error) (*events.Recorder, error) {
	recorder, err := events.NewRecorder(cfg, store, publisher, esc, logger)
	if err != nil || publisher == nil {
		return recorder, err
	}
	if err := startConsumer(recorder); err != nil {
		logger.Error("Failed to start Kafka event processor, escalating locally", zap.Error(err))
		return events.NewRecorder(cfg, store, nil, esc, logger)
	}
	return recorder, nil
}

// emailConfig completes the SMTP settings with the policy's recipients
func emailConfig(cfg notify.EmailConfig, n config.Notifications) notify.EmailConfig {
	cfg.Recipients = n.Recipients
	cfg.ContainmentContact = n.ContainmentContact
	return cfg
}
