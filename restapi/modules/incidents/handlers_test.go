package incidents

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopNotifier struct{}

func (nopNotifier) NotifyStakeholders(context.Context, *model.SecurityIncident, []string) error {
	return nil
}

func (nopNotifier) ImplementContainment(context.Context, *model.SecurityIncident, []string) error {
	return nil
}

func newTestApp() *fiber.App {
	coord := incident.NewCoordinator(incident.Config{}, incident.NewMemoryStore(), nopNotifier{}, nil, nil)
	logger := zap.NewNop()

	app := fiber.New()
	app.Post("/incidents", PostIncident(coord, logger))
	app.Get("/incidents", ListIncidents(coord, logger))
	app.Get("/incidents/:id", GetIncident(coord))
	app.Put("/incidents/:id/status", PutIncidentStatus(coord, logger))
	app.Get("/reports/:period", GetReport(coord, logger))
	app.Get("/escalation", GetEscalation(coord))
	app.Get("/playbook", GetPlaybook(coord))
	return app
}

type response struct {
	Success  bool                    `json:"success"`
	Message  string                  `json:"message"`
	Incident *model.SecurityIncident `json:"incident"`
	Count    int                     `json:"count"`
	Report   *incident.SecurityReport `json:"report"`
}

func call(t *testing.T, app *fiber.App, method, path, body string) (int, response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out response
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out, string(raw)
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	app := newTestApp()

	status, created, _ := call(t, app, http.MethodPost, "/incidents",
		`{"type":"DATA_BREACH","description":"customer table exported","affected_systems":["db-1"]}`)
	require.Equal(t, fiber.StatusCreated, status)
	require.NotNil(t, created.Incident)
	assert.Equal(t, model.SeverityCritical, created.Incident.Severity)
	assert.Equal(t, model.StatusOpen, created.Incident.Status)
	id := created.Incident.Key

	status, got, _ := call(t, app, http.MethodGet, "/incidents/"+id, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, id, got.Incident.Key)

	status, updated, _ := call(t, app, http.MethodPut, "/incidents/"+id+"/status", `{"status":"resolved","notes":"credentials rotated"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, model.StatusResolved, updated.Incident.Status)
	require.NotNil(t, updated.Incident.ResolvedAt)
	assert.Contains(t, *updated.Incident.ResponseNotes, "RESOLVED: credentials rotated")

	status, _, _ = call(t, app, http.MethodPut, "/incidents/"+id+"/status", `{"status":"IN_PROGRESS"}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, list, _ := call(t, app, http.MethodGet, "/incidents", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, list.Count)

	status, report, _ := call(t, app, http.MethodGet, "/reports/weekly", "")
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, report.Report)
	assert.Equal(t, 1, report.Report.Resolved)
}

func TestIncidentErrorsAreGeneric(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown field", http.MethodPost, "/incidents", `{"type":"MALWARE","description":"x","owner":"bob"}`, fiber.StatusBadRequest},
		{"unknown type", http.MethodPost, "/incidents", `{"type":"ALIENS","description":"x"}`, fiber.StatusBadRequest},
		{"trailing data", http.MethodPost, "/incidents", `{"type":"MALWARE","description":"x"}{}`, fiber.StatusBadRequest},
		{"missing incident", http.MethodGet, "/incidents/nope", "", fiber.StatusNotFound},
		{"missing incident status", http.MethodPut, "/incidents/nope/status", `{"status":"CLOSED"}`, fiber.StatusNotFound},
		{"bad status", http.MethodPut, "/incidents/nope/status", `{"status":"DONE"}`, fiber.StatusBadRequest},
		{"bad period", http.MethodGet, "/reports/yearly", "", fiber.StatusBadRequest},
		{"bad range", http.MethodGet, "/incidents?from=2026-02-01&to=2026-01-01", "", fiber.StatusBadRequest},
		{"bad time", http.MethodGet, "/incidents?from=yesterday", "", fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp, raw := call(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			assert.NotContains(t, raw, "ALIENS")
			assert.NotContains(t, raw, "owner")
		})
	}
}

func TestEscalationAndPlaybook(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/escalation", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var esc struct {
		Escalation map[model.Severity]incident.EscalationTier `json:"escalation"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&esc))
	assert.Equal(t, 15, esc.Escalation[model.SeverityCritical].ResponseMinutes)

	req = httptest.NewRequest(http.MethodGet, "/playbook", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	var pb struct {
		Phases      []incident.ResponsePhase         `json:"phases"`
		Containment map[model.IncidentType][]string `json:"containment"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pb))
	require.Len(t, pb.Phases, 5)
	assert.Equal(t, incident.PhaseDetection, pb.Phases[0].Name)
	assert.Equal(t, incident.PhaseLessonsLearned, pb.Phases[4].Name)
	assert.Equal(t, 60, pb.Phases[0].TargetMinutes)
	assert.NotEmpty(t, pb.Phases[2].Actions)
	assert.NotEmpty(t, pb.Containment[model.IncidentRansomware])
}
