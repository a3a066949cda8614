package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoo-agent/evoo/pkg/agent"
	"github.com/evoo-agent/evoo/pkg/evaluator"
	"github.com/evoo-agent/evoo/pkg/guardrails"
	"github.com/evoo-agent/evoo/pkg/loop"
	"github.com/evoo-agent/evoo/pkg/memory"
	"github.com/evoo-agent/evoo/pkg/planner"
	"github.com/evoo-agent/evoo/pkg/simulator"
	"github.com/evoo-agent/evoo/pkg/tools"
)

type apiFixture struct {
	server      *Server
	runner      *loop.Runner
	experiences *memory.FileExperienceStore
	strategies  *memory.FileStrategyStore
}

func newAPIFixture(t *testing.T, maxRuns int) *apiFixture {
	t.Helper()
	logger := slog.Default()
	dir := t.TempDir()

	experiences, err := memory.NewFileExperienceStore(filepath.Join(dir, "memory.json"), logger)
	require.NoError(t, err)
	strategies, err := memory.NewFileStrategyStore(filepath.Join(dir, "strategies.json"), logger)
	require.NoError(t, err)

	sim := simulator.NewSeeded(42, logger)
	p := planner.New(strategies, experiences, nil,
		rand.New(rand.NewPCG(42, 42)), planner.Config{}, logger)
	registry := tools.NewRegistry(nil, logger)
	guards := guardrails.NewEngine(guardrails.DefaultConfig(), logger)
	executor := agent.New(nil, registry, guards, agent.Config{}, logger)
	eval := evaluator.New(nil, evaluator.Config{}, logger)

	runner := loop.New(sim, p, executor, eval, experiences, strategies, nil,
		loop.Config{MaxRuns: maxRuns, CheckpointPath: filepath.Join(dir, "checkpoint.json")},
		logger)

	return &apiFixture{
		server:      NewServer(runner, experiences, strategies, guards, logger),
		runner:      runner,
		experiences: experiences,
		strategies:  strategies,
	}
}

func (f *apiFixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, 1)

	rec := f.request(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "ok", payload["status"])
	assert.NotEmpty(t, payload["version"])
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestStatus(t *testing.T) {
	f := newAPIFixture(t, 3)
	require.NoError(t, f.runner.Run(context.Background()))

	rec := f.request(t, http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, string(loop.StateCompleted), payload["state"])
	assert.Equal(t, float64(3), payload["runs_completed"])
	assert.Equal(t, float64(3), payload["max_runs"])
	assert.Len(t, payload["improvement_trend"], 3)
	assert.NotNil(t, payload["last_run"])
}

func TestListRuns(t *testing.T) {
	f := newAPIFixture(t, 2)
	require.NoError(t, f.runner.Run(context.Background()))

	rec := f.request(t, http.MethodGet, "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	// Most recent first.
	assert.Equal(t, float64(1), runs[0]["run_index"])
	assert.Equal(t, float64(0), runs[1]["run_index"])

	rec = f.request(t, http.MethodGet, "/api/v1/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	rec = f.request(t, http.MethodGet, "/api/v1/runs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/v1/runs?incident_type=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	f := newAPIFixture(t, 2)
	require.NoError(t, f.runner.Run(context.Background()))

	rec := f.request(t, http.MethodGet, "/api/v1/summary", "")

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, float64(2), payload["total_experiences"])
	assert.Contains(t, payload, "strategy_rankings")
}

func TestRankings(t *testing.T) {
	f := newAPIFixture(t, 1)
	require.NoError(t, f.runner.Run(context.Background()))

	rec := f.request(t, http.MethodGet, "/api/v1/rankings/bogus_type", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	experiences, err := f.experiences.All(context.Background())
	require.NoError(t, err)
	require.Len(t, experiences, 1)

	rec = f.request(t, http.MethodGet, "/api/v1/rankings/"+string(experiences[0].IncidentType), "")
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	rankings, ok := payload["rankings"].([]any)
	require.True(t, ok)
	assert.Len(t, rankings, 1)
}

func TestGuardrailRules(t *testing.T) {
	f := newAPIFixture(t, 1)

	rec := f.request(t, http.MethodGet, "/api/v1/guardrails", "")

	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	rules, ok := payload["rules"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, rules)
}

func TestStop(t *testing.T) {
	f := newAPIFixture(t, 100)

	rec := f.request(t, http.MethodPost, "/api/v1/control/stop", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The stop signal lands before the loop starts, so it completes
	// without processing a single incident.
	require.NoError(t, f.runner.Run(context.Background()))
	experiences, err := f.experiences.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, experiences)
}

func TestTrigger(t *testing.T) {
	f := newAPIFixture(t, 1)

	rec := f.request(t, http.MethodPost, "/api/v1/control/trigger",
		`{"incident_type": "memory_leak"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, f.runner.Run(context.Background()))

	rec = f.request(t, http.MethodPost, "/api/v1/control/trigger",
		`{"incident_type": "memory_leak"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decode(t, rec)
	assert.Equal(t, "memory_leak", payload["incident_type"])

	rec = f.request(t, http.MethodPost, "/api/v1/control/trigger",
		`{"incident_type": "volcano_eruption"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/control/trigger", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
