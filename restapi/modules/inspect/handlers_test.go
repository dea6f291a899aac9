package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/storefront-guard/internal/events"
	"github.com/ortelius/storefront-guard/internal/threat"
	"github.com/ortelius/storefront-guard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeSink struct {
	store *events.MemoryStore
}

func (s storeSink) Record(ctx context.Context, event model.SecurityEvent) {
	_ = s.store.AppendEvent(ctx, event)
}

func newInspectApp() (*fiber.App, *events.MemoryStore) {
	store := events.NewMemoryStore(100)
	scanner := threat.NewScanner(threat.Config{}, storeSink{store: store}, nil, nil)

	app := fiber.New()
	app.Post("/scan", PostScan(scanner))
	app.Post("/validate", PostValidate())
	app.Get("/events", GetEvents(store, zap.NewNop()))
	return app, store
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return roundTrip(t, app, req)
}

func roundTrip(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestScanRecordsDetections(t *testing.T) {
	app, store := newInspectApp()

	status, body := post(t, app, "/scan", `{"source":"checkout-svc","input":{"coupon":"x' UNION SELECT password FROM users --"}}`)
	require.Equal(t, fiber.StatusOK, status)
	verdict := body["verdict"].(map[string]interface{})
	assert.Equal(t, true, verdict["threat"])
	assert.Equal(t, "input.coupon", verdict["path"])

	recorded := store.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, "checkout-svc", recorded[0].Source)
	assert.Equal(t, model.EventSQLInjection, recorded[0].Kind)

	status, body = post(t, app, "/scan", `{"source":"reviews-svc","input":"Great chair & fast delivery"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["verdict"].(map[string]interface{})["threat"])
	assert.Equal(t, "Great chair &amp; fast delivery", body["sanitized"])
	assert.Len(t, store.Events(), 1)
}

func TestValidate(t *testing.T) {
	app, _ := newInspectApp()

	tests := []struct {
		body  string
		valid bool
	}{
		{`{"kind":"email","value":"jane@example.com"}`, true},
		{`{"kind":"email","value":"not-an-email"}`, false},
		{`{"kind":"phone","value":"+44 (0)20 7946 0958"}`, true},
		{`{"kind":"phone","value":"12ab"}`, false},
		{`{"kind":"password","value":"Str0ng!pass"}`, true},
		{`{"kind":"password","value":"weak"}`, false},
		{`{"kind":"upload","filename":"photo.jpg","content_type":"image/jpeg"}`, true},
		{`{"kind":"upload","filename":"shell.php","content_type":"image/jpeg"}`, false},
	}

	for _, tt := range tests {
		status, body := post(t, app, "/validate", tt.body)
		require.Equal(t, fiber.StatusOK, status, tt.body)
		assert.Equal(t, tt.valid, body["valid"], tt.body)
	}

	status, _ := post(t, app, "/validate", `{"kind":"ssn","value":"x"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetEvents(t *testing.T) {
	app, store := newInspectApp()
	ctx := context.Background()

	old := model.NewSecurityEvent(model.EventXSS, "10.0.0.1", "body.q", "xss", "<script>")
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -30)
	require.NoError(t, store.AppendEvent(ctx, old))
	require.NoError(t, store.AppendEvent(ctx, model.NewSecurityEvent(model.EventSQLInjection, "10.0.0.2", "query.id", "sql_injection", "1 OR 1=1")))
	require.NoError(t, store.AppendEvent(ctx, model.NewSecurityEvent(model.EventHeaderInjection, "10.0.0.3", "headers.X", "header_injection", "%0d%0a")))

	status, body := roundTrip(t, app, httptest.NewRequest(http.MethodGet, "/events", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["count"])
	first := body["events"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "10.0.0.3", first["source_identifier"])

	status, body = roundTrip(t, app, httptest.NewRequest(http.MethodGet, "/events?limit=1", nil))
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = roundTrip(t, app, httptest.NewRequest(http.MethodGet, "/events?limit=5000", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = roundTrip(t, app, httptest.NewRequest(http.MethodGet, "/events?from=last-week", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
}
