// Package kafka wires the Kafka transport used for security events and incident notifications.
package kafka

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ortelius/storefront-guard/events/modules/security"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// Topics and consumer group
const (
	SecurityEventsTopic        = "security-events"
	IncidentNotificationsTopic = "incident-notifications"
	DefaultGroupID             = "storefront-guard-escalation"
)

// Config holds broker settings. An empty broker list disables Kafka.
type Config struct {
	Brokers   []string
	APIKey    string
	APISecret string
	GroupID   string
}

// Enabled reports whether any broker is configured
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

func (c Config) secure() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// Dialer returns a dialer with SASL/PLAIN over TLS when credentials are provided
func (c Config) Dialer() *kafka.Dialer {
	if c.secure() {
		return &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: plain.Mechanism{Username: c.APIKey, Password: c.APISecret},
			TLS:           &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	// local development, no SASL/TLS
	return &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
}

// NewWriter creates a writer for topic using the same credentials as the dialer
func NewWriter(cfg Config, topic string) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	if cfg.secure() {
		w.Transport = &kafka.Transport{
			SASL: plain.Mechanism{Username: cfg.APIKey, Password: cfg.APISecret},
			TLS:  &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}
	return w
}

// WaitForBroker dials the first broker until it answers, giving up after a few attempts
func WaitForBroker(ctx context.Context, cfg Config, logger *zap.Logger) error {
	dialer := cfg.Dialer()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 10 * time.Second

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		logger.Info("Kafka connection attempt", zap.Int("attempt", attempt), zap.String("broker", cfg.Brokers[0]))
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx), func(err error, next time.Duration) {
		logger.Warn("Retrying Kafka connection", zap.Error(err), zap.Duration("next", next))
	})
}

// RunEventProcessor consumes recorded security events and feeds them to observer,
// so that escalation windows see the events of every node. It returns once the
// reader is started; the reader stops when ctx is cancelled.
func RunEventProcessor(ctx context.Context, cfg Config, observer security.Observer, logger *zap.Logger) error {
	if err := WaitForBroker(ctx, cfg, logger); err != nil {
		return err
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = DefaultGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  groupID,
		Topic:    SecurityEventsTopic,
		MaxBytes: 10e6,
		Dialer:   cfg.Dialer(),
	})

	go func() {
		defer reader.Close()
		logger.Info("Kafka event processor started", zap.String("topic", SecurityEventsTopic), zap.String("group", groupID))

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("Failed to read security event", zap.Error(err))
				continue
			}
			if err := security.HandleSecurityEventRecorded(ctx, msg.Value, observer); err != nil {
				logger.Warn("Dropped security event", zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		}
	}()

	return nil
}
