package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ortelius/storefront-guard/internal/secerr"
	"github.com/ortelius/storefront-guard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu        sync.Mutex
	notified  map[string][]string
	contained map[string][]string
	err       error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notified: map[string][]string{}, contained: map[string][]string{}}
}

func (f *fakeNotifier) NotifyStakeholders(_ context.Context, inc *model.SecurityIncident, contacts []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[inc.Key] = contacts
	return f.err
}

func (f *fakeNotifier) ImplementContainment(_ context.Context, inc *model.SecurityIncident, actions []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contained[inc.Key] = actions
	return f.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCoordinator() (*Coordinator, *fakeNotifier, *clock) {
	n := newFakeNotifier()
	clk := &clock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	c := NewCoordinator(Config{}, NewMemoryStore(), n, nil, nil).WithClock(clk.Now)
	return c, n, clk
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		typ      model.IncidentType
		affected int
		want     model.Severity
	}{
		{model.IncidentRansomware, 0, model.SeverityCritical},
		{model.IncidentDataBreach, 10, model.SeverityCritical},
		{model.IncidentSystemCompromise, 1, model.SeverityCritical},
		{model.IncidentDDoS, 5, model.SeverityHigh},
		{model.IncidentMalware, 0, model.SeverityHigh},
		{model.IncidentUnauthorizedAccess, 1, model.SeverityHigh},
		{model.IncidentPhishing, 3, model.SeverityMedium},
		{model.IncidentPhishing, 4, model.SeverityHigh},
		{model.IncidentPolicyViolation, 0, model.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.typ, tt.affected), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.typ, tt.affected, 3))
		})
	}

	assert.Equal(t, model.SeverityMedium, ClassifySeverity(model.IncidentPhishing, 4, 10))
	assert.Equal(t, model.SeverityHigh, ClassifySeverity(model.IncidentPhishing, 4, 0))
}

func TestDecodeReport(t *testing.T) {
	req, err := DecodeReport([]byte(`{"type":"DDoS_ATTACK","description":" edge saturated ","affected_systems":["cdn","api"," ",""],"severity_override":"critical"}`))
	require.NoError(t, err)
	assert.Equal(t, model.IncidentDDoS, req.Type)
	assert.Equal(t, "edge saturated", req.Description)
	assert.Equal(t, []string{"cdn", "api"}, req.AffectedSystems)
	assert.Equal(t, model.SeverityCritical, req.SeverityOverride)

	bad := []string{
		`{"type":"DDoS_ATTACK","description":"x","priority":"p1"}`,
		`{"type":"ALIENS","description":"x"}`,
		`{"type":"MALWARE","description":"   "}`,
		`{"type":"MALWARE","description":"x","severity_override":"urgent"}`,
		`{"type":"MALWARE","description":"x"} {"type":"MALWARE"}`,
		`not json`,
	}
	for _, body := range bad {
		_, err := DecodeReport([]byte(body))
		assert.True(t, errors.Is(err, secerr.ErrValidation), body)
	}
}

func TestReportRansomwareIsAlwaysCritical(t *testing.T) {
	c, n, _ := newTestCoordinator()

	inc, err := c.Report(context.Background(), ReportRequest{
		Type:             model.IncidentRansomware,
		Description:      "file shares encrypted",
		SeverityOverride: model.SeverityLow,
	})
	require.NoError(t, err)

	assert.Equal(t, model.SeverityCritical, inc.Severity)
	assert.Equal(t, model.StatusOpen, inc.Status)
	assert.NotEmpty(t, inc.Key)
	assert.Nil(t, inc.ResolvedAt)

	assert.Equal(t, DefaultEscalation()[model.SeverityCritical].Contacts, n.notified[inc.Key])
	assert.Equal(t, DefaultContainment()[model.IncidentRansomware], n.contained[inc.Key])
}

func TestReportPromotesByAffectedSystems(t *testing.T) {
	c, n, _ := newTestCoordinator()

	ddos, err := c.Report(context.Background(), ReportRequest{
		Type:            model.IncidentDDoS,
		Description:     "flood",
		AffectedSystems: []string{"a", "b", "c", "d", "e"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, ddos.Severity)

	promoted, err := c.Report(context.Background(), ReportRequest{
		Type:            model.IncidentBruteForce,
		Description:     "credential stuffing",
		AffectedSystems: []string{"login", "api", "admin", "mobile"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, promoted.Severity)
	assert.Contains(t, n.notified, promoted.Key)
	assert.NotContains(t, n.contained, promoted.Key)

	boundary, err := c.Report(context.Background(), ReportRequest{
		Type:            model.IncidentBruteForce,
		Description:     "credential stuffing",
		AffectedSystems: []string{"login", "api", "admin"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityMedium, boundary.Severity)
}

func TestReportOverrideOnlyRaises(t *testing.T) {
	c, n, _ := newTestCoordinator()

	raised, err := c.Report(context.Background(), ReportRequest{
		Type:             model.IncidentPolicyViolation,
		Description:      "unencrypted export",
		SeverityOverride: model.SeverityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, raised.Severity)
	assert.Contains(t, n.contained, raised.Key)

	kept, err := c.Report(context.Background(), ReportRequest{
		Type:             model.IncidentMalware,
		Description:      "trojan on pos terminal",
		SeverityOverride: model.SeverityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, kept.Severity)
}

func TestReportSurvivesNotifierFailure(t *testing.T) {
	c, n, _ := newTestCoordinator()
	n.err = errors.New("broker down")

	inc, err := c.Report(context.Background(), ReportRequest{Type: model.IncidentDataBreach, Description: "dump posted"})
	require.NoError(t, err)

	stored, err := c.Get(context.Background(), inc.Key)
	require.NoError(t, err)
	assert.Equal(t, inc.Key, stored.Key)
}

func TestReportWithoutNotifier(t *testing.T) {
	c := NewCoordinator(Config{}, NewMemoryStore(), nil, nil, nil)
	inc, err := c.Report(context.Background(), ReportRequest{Type: model.IncidentRansomware, Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, inc.Severity)
}

func TestUpdateStatusLifecycle(t *testing.T) {
	c, _, clk := newTestCoordinator()
	ctx := context.Background()

	inc, err := c.Report(ctx, ReportRequest{Type: model.IncidentXSS, Description: "stored xss in reviews"})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	inc, err = c.UpdateStatus(ctx, inc.Key, model.StatusInProgress, "purging payloads")
	require.NoError(t, err)
	assert.Nil(t, inc.ResolvedAt)

	clk.Advance(2 * time.Hour)
	inc, err = c.UpdateStatus(ctx, inc.Key, model.StatusResolved, "patched")
	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)
	resolvedAt := *inc.ResolvedAt
	hours, ok := inc.ResolutionHours()
	assert.True(t, ok)
	assert.Equal(t, 3.0, hours)

	clk.Advance(time.Hour)
	inc, err = c.UpdateStatus(ctx, inc.Key, model.StatusResolved, "follow-up review scheduled")
	require.NoError(t, err)
	assert.Equal(t, resolvedAt, *inc.ResolvedAt)

	inc, err = c.UpdateStatus(ctx, inc.Key, model.StatusClosed, "")
	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, resolvedAt, *inc.ResolvedAt)

	require.NotNil(t, inc.ResponseNotes)
	lines := strings.Split(*inc.ResponseNotes, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "IN_PROGRESS: purging payloads")
	assert.Contains(t, lines[1], "RESOLVED: patched")
	assert.True(t, strings.HasPrefix(lines[0], "[2026-04-01T10:00:00Z]"))

	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusClosed, "more")
	assert.True(t, errors.Is(err, secerr.ErrInvalidTransition))
}

func TestUpdateStatusRejectsBackwardsAndUnknown(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	inc, err := c.Report(ctx, ReportRequest{Type: model.IncidentPhishing, Description: "lookalike domain"})
	require.NoError(t, err)

	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusClosed, "")
	assert.True(t, errors.Is(err, secerr.ErrInvalidTransition))

	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusResolved, "")
	require.NoError(t, err)
	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusInProgress, "")
	assert.True(t, errors.Is(err, secerr.ErrInvalidTransition))
	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusOpen, "")
	assert.True(t, errors.Is(err, secerr.ErrInvalidTransition))

	_, err = c.UpdateStatus(ctx, inc.Key, model.IncidentStatus("REOPENED"), "")
	assert.True(t, errors.Is(err, secerr.ErrValidation))

	_, err = c.UpdateStatus(ctx, "missing", model.StatusInProgress, "")
	assert.True(t, errors.Is(err, secerr.ErrNotFound))

	_, err = c.UpdateStatus(ctx, inc.Key, model.StatusResolved, strings.Repeat("n", MaxNotesLength+1))
	assert.True(t, errors.Is(err, secerr.ErrValidation))
}

func TestConcurrentNoteAppendsAreNotLost(t *testing.T) {
	c, _, _ := newTestCoordinator()
	ctx := context.Background()

	inc, err := c.Report(ctx, ReportRequest{Type: model.IncidentMalware, Description: "beaconing"})
	require.NoError(t, err)

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.UpdateStatus(ctx, inc.Key, model.StatusOpen, fmt.Sprintf("note-%02d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := c.Get(ctx, inc.Key)
	require.NoError(t, err)
	require.NotNil(t, got.ResponseNotes)
	for i := 0; i < writers; i++ {
		assert.Contains(t, *got.ResponseNotes, fmt.Sprintf("note-%02d", i))
	}
}

func TestGenerateReport(t *testing.T) {
	c, _, clk := newTestCoordinator()
	ctx := context.Background()

	old, err := c.Report(ctx, ReportRequest{Type: model.IncidentMalware, Description: "old"})
	require.NoError(t, err)
	_ = old

	clk.Advance(10 * 24 * time.Hour)
	a, err := c.Report(ctx, ReportRequest{Type: model.IncidentMalware, Description: "a"})
	require.NoError(t, err)
	_, err = c.Report(ctx, ReportRequest{Type: model.IncidentPhishing, Description: "b"})
	require.NoError(t, err)

	clk.Advance(4 * time.Hour)
	_, err = c.UpdateStatus(ctx, a.Key, model.StatusResolved, "cleaned")
	require.NoError(t, err)

	weekly, err := c.GenerateReport(ctx, PeriodWeekly)
	require.NoError(t, err)
	assert.Equal(t, 2, weekly.Total)
	assert.Equal(t, 1, weekly.ByType[string(model.IncidentMalware)])
	assert.Equal(t, 1, weekly.ByType[string(model.IncidentPhishing)])
	assert.Equal(t, 1, weekly.BySeverity[string(model.SeverityHigh)])
	assert.Equal(t, 1, weekly.BySeverity[string(model.SeverityMedium)])
	assert.Equal(t, 1, weekly.ByStatus[string(model.StatusResolved)])
	assert.Equal(t, 1, weekly.ByStatus[string(model.StatusOpen)])
	assert.Equal(t, 1, weekly.Resolved)
	require.NotNil(t, weekly.MeanResolutionHours)
	assert.InDelta(t, 4.0, *weekly.MeanResolutionHours, 0.001)

	monthly, err := c.GenerateReport(ctx, PeriodMonthly)
	require.NoError(t, err)
	assert.Equal(t, 3, monthly.Total)

	_, err = c.GenerateReport(ctx, Period("hourly"))
	assert.True(t, errors.Is(err, secerr.ErrValidation))
}

func TestGenerateReportWithoutResolutions(t *testing.T) {
	c, _, _ := newTestCoordinator()
	_, err := c.Report(context.Background(), ReportRequest{Type: model.IncidentMalware, Description: "a"})
	require.NoError(t, err)

	daily, err := c.GenerateReport(context.Background(), PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, 1, daily.Total)
	assert.Nil(t, daily.MeanResolutionHours)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" Weekly ")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeekly, p)
	assert.Equal(t, 7, p.Days())

	_, err = ParsePeriod("yearly")
	assert.Error(t, err)
}

func TestEscalationAndPlaybookAreCopies(t *testing.T) {
	c, _, _ := newTestCoordinator()

	esc := c.Escalation()
	esc[model.SeverityCritical] = EscalationTier{Contacts: []string{"nobody"}}
	play := c.Playbook()
	play[0].Actions[0] = "do nothing"
	play[1] = ResponsePhase{Name: "SKIP"}
	contain := c.Containment()
	contain[model.IncidentRansomware][0] = "do nothing"

	assert.Equal(t, DefaultEscalation()[model.SeverityCritical], c.Escalation()[model.SeverityCritical])
	assert.Equal(t, DefaultPlaybook(), c.Playbook())
	assert.Equal(t, DefaultContainment()[model.IncidentRansomware], c.Containment()[model.IncidentRansomware])
}

func TestDefaultPlaybookPhases(t *testing.T) {
	phases := DefaultPlaybook()
	names := make([]string, 0, len(phases))
	for _, p := range phases {
		names = append(names, p.Name)
		assert.Positive(t, p.TargetMinutes, p.Name)
		assert.NotEmpty(t, p.Actions, p.Name)
	}
	assert.Equal(t, []string{PhaseDetection, PhaseContainment, PhaseInvestigation, PhaseRecovery, PhaseLessonsLearned}, names)

	for i := 1; i < len(phases); i++ {
		assert.Greater(t, phases[i].TargetMinutes, phases[i-1].TargetMinutes, "targets grow with each phase")
	}
}

func TestListRange(t *testing.T) {
	c, _, clk := newTestCoordinator()
	ctx := context.Background()
	start := clk.Now()

	_, err := c.Report(ctx, ReportRequest{Type: model.IncidentMalware, Description: "a"})
	require.NoError(t, err)
	clk.Advance(48 * time.Hour)
	_, err = c.Report(ctx, ReportRequest{Type: model.IncidentMalware, Description: "b"})
	require.NoError(t, err)

	got, err := c.List(ctx, start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Description)

	_, err = c.List(ctx, start.Add(time.Hour), start)
	assert.True(t, errors.Is(err, secerr.ErrValidation))
}
