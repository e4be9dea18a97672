package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/api"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/config"
)

const highRiskBody = `{
	"LengthOfStay": 12, "PreviousAdmissions": 5, "PatientAge": 78,
	"PatientGender": "Female", "DiagnosisChapter": "J", "NumLabs": 60,
	"hemoglobin_avg": 9.2, "glucose_avg": 240, "creatinine_avg": 2.1, "wbc_avg": 14
}`

type fakeDrift struct {
	report map[string]map[string]int64
	err    error
}

func (f fakeDrift) DriftReport(context.Context) (map[string]map[string]int64, error) {
	return f.report, f.err
}

func (f fakeDrift) Ping(context.Context) error {
	return f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{ReadTimeout: 5, WriteTimeout: 5, BodyLimit: 64 * 1024},
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 1000},
		Security:  config.SecurityConfig{AllowedOrigins: []string{"http://localhost:3000"}, Development: true},
	}
}

func newTestApp(t *testing.T, deps api.Dependencies) *fiber.App {
	t.Helper()
	rt, err := artifacts.Open(context.Background(), artifacts.DirSource{Dir: "../../models"}, schema.DefaultSchema())
	require.NoError(t, err)

	deps.Engine = inference.NewEngine(rt, nil)
	app, limiter := api.NewApp(testConfig(), deps)
	t.Cleanup(limiter.Stop)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestPredict(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodPost, "/api/v1/predict", highRiskBody)
	require.Equal(t, http.StatusOK, status, body)

	prediction := body["prediction"].(map[string]any)
	assert.Equal(t, 1.0, prediction["label"])
	assert.InDelta(t, 80, prediction["readmission_probability"], 1e-9)
	assert.InDelta(t, 20, prediction["not_readmitted_probability"], 1e-9)
	assert.InDelta(t, 80, prediction["confidence"], 1e-9)

	riskBody := body["risk"].(map[string]any)
	assert.Equal(t, "HIGH", riskBody["tier"])
	assert.Equal(t, "enhanced-care", riskBody["pathway"].(map[string]any)["tag"])
	assert.Equal(t, false, body["degraded"])
	assert.NotEmpty(t, body["id"])
}

func TestPredict_Legacy(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodPost, "/predict", highRiskBody)
	require.Equal(t, http.StatusOK, status)

	assert.Len(t, body, 4)
	assert.Equal(t, 1.0, body["prediction"])
	assert.InDelta(t, 80, body["readmission_probability"], 1e-9)
	assert.InDelta(t, 20, body["not_readmitted_probability"], 1e-9)
	assert.InDelta(t, 80, body["confidence"], 1e-9)
}

func TestPredict_ValidationError(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodPost, "/api/v1/predict", `{"LengthOfStay": 400, "PatientAge": 2.5}`)
	require.Equal(t, http.StatusBadRequest, status)

	errBody := body["error"].(map[string]any)
	assert.Equal(t, "validation_error", errBody["kind"])

	fields := errBody["fields"].([]any)
	require.Len(t, fields, 10)
	first := fields[0].(map[string]any)
	assert.Equal(t, schema.LengthOfStay, first["field"])
	assert.Equal(t, "out_of_range", first["reason"])
	assert.Equal(t, 365.0, first["bound"])
	assert.Equal(t, "type_mismatch", fields[2].(map[string]any)["reason"])
}

func TestPredict_MalformedBody(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	for _, body := range []string{`[1, 2]`, `{"LengthOfStay":`, `null`} {
		status, resp := do(t, app, http.MethodPost, "/api/v1/predict", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, "malformed_request", resp["error"].(map[string]any)["kind"], body)
	}
}

func TestPredict_UnknownCategoryIsDegraded(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	body := strings.Replace(highRiskBody, `"Female"`, `"Other"`, 1)
	status, resp := do(t, app, http.MethodPost, "/api/v1/predict", body)
	require.Equal(t, http.StatusOK, status)

	assert.Equal(t, true, resp["degraded"])
	warnings := resp["warnings"].([]any)
	require.Len(t, warnings, 1)
	assert.Equal(t, schema.PatientGender, warnings[0].(map[string]any)["field"])
}

func TestModelEndpoints(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodGet, "/api/v1/model", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2024.1-sample", body["version"])
	assert.Equal(t, 3.0, body["trees"])
	assert.Len(t, body["columns"], 10)

	status, body = do(t, app, http.MethodGet, "/api/v1/model/importance?top=3", "")
	require.Equal(t, http.StatusOK, status)
	features := body["features"].([]any)
	require.Len(t, features, 3)
	assert.Equal(t, schema.PreviousAdmissions, features[0].(map[string]any)["feature"])
	assert.Equal(t, 10.0, body["total"])

	status, _ = do(t, app, http.MethodGet, "/api/v1/model/importance?top=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSchemaEndpoint(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodGet, "/api/v1/schema", "")
	require.Equal(t, http.StatusOK, status)

	fields := body["fields"].([]any)
	require.Len(t, fields, 10)

	gender := fields[3].(map[string]any)
	assert.Equal(t, schema.PatientGender, gender["name"])
	assert.Equal(t, []any{"Female", "Male"}, gender["values"])
	assert.Nil(t, gender["min"])

	glucose := fields[7].(map[string]any)
	assert.Equal(t, 800.0, glucose["max"])

	diagnosis := fields[4].(map[string]any)
	assert.Equal(t, "I", diagnosis["aliases"].(map[string]any)["IX - Circulatory system"])

	assert.Len(t, body["risk_tiers"], 3)
}

func TestDriftEndpoint(t *testing.T) {
	disabled := newTestApp(t, api.Dependencies{})
	status, body := do(t, disabled, http.MethodGet, "/api/v1/model/drift", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["enabled"])

	drift := fakeDrift{report: map[string]map[string]int64{"PatientGender": {"Other": 3}}}
	enabled := newTestApp(t, api.Dependencies{Drift: drift, Redis: drift})
	status, body = do(t, enabled, http.MethodGet, "/api/v1/model/drift", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, 3.0, body["fields"].(map[string]any)["PatientGender"].(map[string]any)["Other"])

	broken := fakeDrift{err: errors.New("connection refused")}
	failing := newTestApp(t, api.Dependencies{Drift: broken, Redis: broken})
	status, _ = do(t, failing, http.MethodGet, "/api/v1/model/drift", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestProbes(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = do(t, app, http.MethodGet, "/api/v1/ready", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	broken := fakeDrift{err: errors.New("connection refused")}
	degraded := newTestApp(t, api.Dependencies{Drift: broken, Redis: broken})
	status, body = do(t, degraded, http.MethodGet, "/api/v1/ready", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "degraded", body["status"])
}

func TestSecurityHeaders(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "http://localhost:3000")
}

func TestUnsupportedContentType(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodGet, "/ws/assess", "")
	assert.Equal(t, http.StatusUpgradeRequired, status)
	assert.Equal(t, "malformed_request", body["error"].(map[string]any)["kind"])
}

func TestOversizedBodyKeepsErrorShape(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	padding := strings.Repeat("x", 70*1024)
	body := `{"LengthOfStay": 3, "notes": "` + padding + `"}`
	resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/predict", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var out struct {
		Error struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "malformed_request", out.Error.Kind)
	assert.NotEmpty(t, out.Error.Message)
}

func TestRecoveredPanicKeepsErrorShape(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})
	app.Get("/api/v1/explode", func(c *fiber.Ctx) error {
		panic("nil map")
	})

	status, body := do(t, app, http.MethodGet, "/api/v1/explode", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "internal_error", errBody["kind"])
	assert.NotContains(t, errBody["message"], "nil map")
}

func TestUnknownRouteKeepsErrorShape(t *testing.T) {
	app := newTestApp(t, api.Dependencies{})

	status, body := do(t, app, http.MethodGet, "/api/v2/predict", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "malformed_request", body["error"].(map[string]any)["kind"])
}
