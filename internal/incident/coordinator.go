// Package incident owns the security incident lifecycle: severity scoring,
// the initial response, status transitions and periodic reporting.
package incident

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/storefront-guard/internal/metrics"
	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"go.uber.org/zap"
)

// Notifier performs the side effects of an incident response
type Notifier interface {
	NotifyStakeholders(ctx context.Context, incident *model.SecurityIncident, contacts []string) error
	ImplementContainment(ctx context.Context, incident *model.SecurityIncident, actions []string) error
}

// Coordinator creates and advances incidents
type Coordinator struct {
	cfg      Config
	store    Store
	notifier Notifier
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewCoordinator creates a coordinator. Unset config fields take the compiled-in defaults.
func NewCoordinator(cfg Config, store Store, notifier Notifier, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:      cfg.withDefaults(),
		store:    store,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
		metrics:  m,
	}
}

// WithClock replaces the time source, for tests
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Report validates req, stores a new OPEN incident and runs the initial response.
// Notification failures are logged and never undo the incident.
func (c *Coordinator) Report(ctx context.Context, req ReportRequest) (*model.SecurityIncident, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	severity := ClassifySeverity(req.Type, len(req.AffectedSystems), c.cfg.AffectedSystemsThreshold)
	if req.SeverityOverride != "" {
		severity = model.MaxSeverity(severity, req.SeverityOverride)
	}

	inc := model.NewSecurityIncident(req.Type, severity, req.Description, req.AffectedSystems)
	now := c.now().UTC()
	inc.Key = uuid.NewString()
	inc.ReportedAt = now
	inc.UpdatedAt = now

	if err := c.store.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to store incident: %w", err)
	}

	c.metrics.IncidentReported(string(severity))
	c.logger.Warn("security incident reported",
		zap.String("id", inc.Key),
		zap.String("type", string(inc.Type)),
		zap.String("severity", string(inc.Severity)),
		zap.Int("affected_systems", len(inc.AffectedSystems)),
	)

	c.initiateResponse(ctx, inc)
	return inc, nil
}

// initiateResponse runs the severity branch of the response. Every severity is handled.
func (c *Coordinator) initiateResponse(ctx context.Context, inc *model.SecurityIncident) {
	if c.notifier == nil {
		c.logger.Warn("no notifier configured, response limited to logging", zap.String("id", inc.Key))
		return
	}

	tier := c.cfg.Escalation[inc.Severity]

	switch inc.Severity {
	case model.SeverityCritical:
		c.notify(ctx, inc, tier.Contacts)
		c.contain(ctx, inc, c.cfg.Containment[inc.Type])
	case model.SeverityHigh, model.SeverityMedium:
		c.notify(ctx, inc, tier.Contacts)
	case model.SeverityLow:
		c.logger.Info("low severity incident logged", zap.String("id", inc.Key))
	default:
		c.logger.Error("incident has unknown severity", zap.String("id", inc.Key), zap.String("severity", string(inc.Severity)))
	}
}

func (c *Coordinator) notify(ctx context.Context, inc *model.SecurityIncident, contacts []string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NotifyTimeout)
	defer cancel()

	if err := c.notifier.NotifyStakeholders(ctx, inc, contacts); err != nil {
		c.metrics.NotifyFailed()
		c.logger.Error("failed to notify stakeholders", zap.String("id", inc.Key), zap.Error(err))
	}
}

func (c *Coordinator) contain(ctx context.Context, inc *model.SecurityIncident, actions []string) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.NotifyTimeout)
	defer cancel()

	if err := c.notifier.ImplementContainment(ctx, inc, actions); err != nil {
		c.metrics.NotifyFailed()
		c.logger.Error("failed to start containment", zap.String("id", inc.Key), zap.Error(err))
	}
}

// UpdateStatus moves an incident to status and appends notes. Same-status updates
// only append notes. ResolvedAt is stamped on entering RESOLVED and never cleared.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, status model.IncidentStatus, notes string) (*model.SecurityIncident, error) {
	if !status.Valid() {
		return nil, secerr.Validation("unknown incident status %q", status)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > MaxNotesLength {
		return nil, secerr.Validation("notes exceed %d bytes", MaxNotesLength)
	}

	updated, err := c.store.Update(ctx, id, func(inc *model.SecurityIncident) error {
		if !inc.Status.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", secerr.ErrInvalidTransition, inc.Status, status)
		}

		now := c.now().UTC()
		if status == model.StatusResolved && inc.ResolvedAt == nil {
			inc.ResolvedAt = &now
		}
		inc.Status = status
		if notes != "" {
			appendNote(inc, now, status, notes)
		}
		inc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("incident status updated", zap.String("id", id), zap.String("status", string(status)))
	return updated, nil
}

func appendNote(inc *model.SecurityIncident, at time.Time, status model.IncidentStatus, notes string) {
	entry := fmt.Sprintf("[%s] %s: %s", at.Format(time.RFC3339), status, notes)
	if inc.ResponseNotes == nil || *inc.ResponseNotes == "" {
		inc.ResponseNotes = &entry
		return
	}
	joined := *inc.ResponseNotes + "\n" + entry
	inc.ResponseNotes = &joined
}

// Get returns a single incident
func (c *Coordinator) Get(ctx context.Context, id string) (*model.SecurityIncident, error) {
	return c.store.Get(ctx, id)
}

// List returns incidents reported within [from, to]
func (c *Coordinator) List(ctx context.Context, from, to time.Time) ([]*model.SecurityIncident, error) {
	if to.Before(from) {
		return nil, secerr.Validation("range end before start")
	}
	return c.store.ListBetween(ctx, from.UTC(), to.UTC())
}

// Escalation returns a copy of the escalation matrix
func (c *Coordinator) Escalation() map[model.Severity]EscalationTier {
	out := make(map[model.Severity]EscalationTier, len(c.cfg.Escalation))
	for sev, tier := range c.cfg.Escalation {
		out[sev] = EscalationTier{
			Contacts:        append([]string(nil), tier.Contacts...),
			ResponseMinutes: tier.ResponseMinutes,
		}
	}
	return out
}

// Playbook returns a copy of the response phases in order
func (c *Coordinator) Playbook() []ResponsePhase {
	out := make([]ResponsePhase, len(c.cfg.Playbook))
	for i, phase := range c.cfg.Playbook {
		phase.Actions = append([]string(nil), phase.Actions...)
		out[i] = phase
	}
	return out
}

// Containment returns a copy of the containment checklists per incident type
func (c *Coordinator) Containment() map[model.IncidentType][]string {
	out := make(map[model.IncidentType][]string, len(c.cfg.Containment))
	for t, steps := range c.cfg.Containment {
		out[t] = append([]string(nil), steps...)
	}
	return out
}
