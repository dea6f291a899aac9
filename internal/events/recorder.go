// Package events records security events and escalates bursts of them to the
// incident coordinator.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// Defaults for Config
const (
	DefaultEscalationThreshold = 5
	DefaultEscalationWindow    = 5 * time.Minute
	DefaultMaxTrackedSources   = 10000
	maxHitsPerSource           = 1000
)

// Store appends security events
type Store interface {
	AppendEvent(ctx context.Context, event model.SecurityEvent) error
}

// Publisher forwards security events to the message bus
type Publisher interface {
	PublishSecurityEvent(ctx context.Context, event model.SecurityEvent) error
}

// Escalator opens incidents
type Escalator interface {
	Report(ctx context.Context, req incident.ReportRequest) (*model.SecurityIncident, error)
}

// Config tunes escalation
type Config struct {
	EscalationThreshold int           `yaml:"escalation_threshold"`
	EscalationWindow    time.Duration `yaml:"escalation_window"`
	MaxTrackedSources   int           `yaml:"max_tracked_sources"`
}

type window struct {
	hits        []time.Time
	escalatedAt time.Time
}

// Recorder persists and publishes events. When no publisher is configured it
// also aggregates them locally; otherwise aggregation happens in the Kafka
// consumer so that every node's events count toward the same window.
type Recorder struct {
	cfg       Config
	store     Store
	publisher Publisher
	escalator Escalator

	mu      sync.Mutex
	windows *lru.Cache[string, *window]

	now    func() time.Time
	logger *zap.Logger
}

// NewRecorder creates a recorder. store, publisher and escalator may be nil.
func NewRecorder(cfg Config, store Store, publisher Publisher, escalator Escalator, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = DefaultEscalationThreshold
	}
	if cfg.EscalationWindow <= 0 {
		cfg.EscalationWindow = DefaultEscalationWindow
	}
	if cfg.MaxTrackedSources <= 0 {
		cfg.MaxTrackedSources = DefaultMaxTrackedSources
	}

	windows, err := lru.New[string, *window](cfg.MaxTrackedSources)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalation window cache: %w", err)
	}

	return &Recorder{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		escalator: escalator,
		windows:   windows,
		now:       time.Now,
		logger:    logger,
	}, nil
}

// WithClock replaces the time source, for tests
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record appends the event, publishes it and, without a publisher, observes it.
// Storage and publish failures are logged; the caller's request is never failed by them.
func (r *Recorder) Record(ctx context.Context, event model.SecurityEvent) {
	if event.Key == "" {
		event.Key = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if !event.Severity.Valid() {
		event.Severity = model.SeverityForKind(event.Kind)
	}
	if event.ObjType == "" {
		event.ObjType = "SecurityEvent"
	}

	if r.store != nil {
		if err := r.store.AppendEvent(ctx, event); err != nil {
			r.logger.Error("failed to store security event", zap.String("kind", string(event.Kind)), zap.Error(err))
		}
	}

	if r.publisher == nil {
		r.Observe(ctx, event)
		return
	}
	if err := r.publisher.PublishSecurityEvent(ctx, event); err != nil {
		r.logger.Error("failed to publish security event", zap.String("kind", string(event.Kind)), zap.Error(err))
		// keep escalation working while the bus is down
		r.Observe(ctx, event)
	}
}

// Observe counts the event in its source's sliding window and escalates once
// per window when the threshold is reached or the event is CRITICAL.
func (r *Recorder) Observe(ctx context.Context, event model.SecurityEvent) {
	source := event.Source
	if source == "" {
		source = "unknown"
	}
	now := r.now()

	r.mu.Lock()
	w, ok := r.windows.Get(source)
	if !ok {
		w = &window{}
		r.windows.Add(source, w)
	}

	cutoff := now.Add(-r.cfg.EscalationWindow)
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	w.hits = append(kept, now)
	if len(w.hits) > maxHitsPerSource {
		w.hits = w.hits[len(w.hits)-maxHitsPerSource:]
	}
	count := len(w.hits)

	trigger := count >= r.cfg.EscalationThreshold || event.Severity == model.SeverityCritical
	escalate := trigger && (w.escalatedAt.IsZero() || now.Sub(w.escalatedAt) >= r.cfg.EscalationWindow)
	if escalate {
		w.escalatedAt = now
	}
	r.mu.Unlock()

	if escalate {
		r.escalate(ctx, event, source, count)
	}
}

func (r *Recorder) escalate(ctx context.Context, event model.SecurityEvent, source string, count int) {
	if r.escalator == nil {
		r.logger.Warn("escalation threshold reached without coordinator", zap.String("source", source), zap.Int("count", count))
		return
	}

	req := incident.ReportRequest{
		Type:             IncidentTypeFor(event.Kind),
		Description:      fmt.Sprintf("%d security event(s) from source %s within %s, latest %s", count, source, r.cfg.EscalationWindow, event.Kind),
		SeverityOverride: event.Severity,
	}
	inc, err := r.escalator.Report(ctx, req)
	if err != nil {
		r.logger.Error("failed to escalate security events", zap.String("source", source), zap.Error(err))
		return
	}
	r.logger.Warn("security events escalated", zap.String("source", source), zap.String("incident", inc.Key))
}

// IncidentTypeFor maps an event kind to the incident type opened on escalation
func IncidentTypeFor(kind model.EventKind) model.IncidentType {
	switch kind {
	case model.EventSQLInjection:
		return model.IncidentSQLInjection
	case model.EventXSS:
		return model.IncidentXSS
	default:
		return model.IncidentSuspiciousActivity
	}
}
