package planner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/memory"
	"github.com/evoo-agent/evoo/pkg/models"
)

func newTestStores(t *testing.T) (*memory.FileExperienceStore, *memory.FileStrategyStore) {
	t.Helper()
	dir := t.TempDir()
	experiences, err := memory.NewFileExperienceStore(filepath.Join(dir, "memory.json"), slog.Default())
	require.NoError(t, err)
	strategies, err := memory.NewFileStrategyStore(filepath.Join(dir, "strategies.json"), slog.Default())
	require.NoError(t, err)
	return experiences, strategies
}

func newTestPlanner(t *testing.T, client llm.Client, config Config) (*Planner, *memory.FileExperienceStore, *memory.FileStrategyStore) {
	t.Helper()
	experiences, strategies := newTestStores(t)
	rng := rand.New(rand.NewPCG(42, 42))
	return New(strategies, experiences, client, rng, config, slog.Default()), experiences, strategies
}

func testIncident(incidentType models.IncidentType) *models.Incident {
	return &models.Incident{
		ID:           "abc12345",
		IncidentType: incidentType,
		Severity:     models.SeverityCritical,
		Description:  "test incident",
		DetectedAt:   time.Now().UTC(),
		MetricsAtDetection: models.SystemMetrics{
			LatencyMs:       8000,
			CPUPercent:      20,
			MemoryPercent:   30,
			ErrorRate:       0.9,
			Availability:    0.1,
			ActiveInstances: 2,
			TimeoutMs:       5000,
		},
	}
}

func TestPlan_NoHistoryUsesPriors(t *testing.T) {
	planner, _, _ := newTestPlanner(t, nil, Config{ExplorationRate: 0.0})

	plan, err := planner.Plan(context.Background(), testIncident(models.IncidentServiceCrash), 0, false)
	require.NoError(t, err)

	assert.True(t, plan.IsExploratory)
	assert.Equal(t, "no_history_using_prior", plan.Reasoning)
	assert.Contains(t, strategyPriors[models.IncidentServiceCrash], plan.Strategy)
	assert.NotEmpty(t, plan.ToolSequence)
	assert.False(t, plan.LLMSelected)
}

func TestPlan_ForceExploreWithHistory(t *testing.T) {
	planner, _, strategies := newTestPlanner(t, nil, Config{ExplorationRate: 0.0})

	_, err := strategies.Update(context.Background(), models.IncidentServiceCrash, models.StrategyRestartService, 80, 15, true)
	require.NoError(t, err)

	plan, err := planner.Plan(context.Background(), testIncident(models.IncidentServiceCrash), 1, true)
	require.NoError(t, err)

	assert.True(t, plan.IsExploratory)
	assert.Equal(t, "epsilon_greedy_explore", plan.Reasoning)
	// restart_service averages 80, so the underused pool excludes it.
	assert.NotEqual(t, models.StrategyRestartService, plan.Strategy)
}

func TestPlan_ExploitFallbackWithoutLLM(t *testing.T) {
	planner, _, strategies := newTestPlanner(t, nil, Config{ExplorationRate: 0.0})
	ctx := context.Background()

	_, err := strategies.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 80, 15, true)
	require.NoError(t, err)
	_, err = strategies.Update(ctx, models.IncidentServiceCrash, models.StrategyRollbackDeployment, 40, 30, true)
	require.NoError(t, err)

	// With exploration off and no LLM, every plan is the argmax exploit.
	for i := 0; i < 5; i++ {
		plan, err := planner.Plan(ctx, testIncident(models.IncidentServiceCrash), i, false)
		require.NoError(t, err)
		assert.Equal(t, models.StrategyRestartService, plan.Strategy)
		assert.Contains(t, plan.Reasoning, "exploit_best_known_fallback")
		assert.False(t, plan.IsExploratory)
	}
}

func TestPlan_LLMExploit(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{
		`{"strategy": "rollback_deployment", "tools_to_call": ["analyze_logs", "rollback_deployment", "bogus_tool"], "tool_parameters": {"target_instances": 99}, "reasoning": "rollback works well here"}`,
	}}
	planner, _, strategies := newTestPlanner(t, mock, Config{ExplorationRate: 0.0})
	ctx := context.Background()

	_, err := strategies.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 80, 15, true)
	require.NoError(t, err)

	plan, err := planner.Plan(ctx, testIncident(models.IncidentServiceCrash), 1, false)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyRollbackDeployment, plan.Strategy)
	assert.True(t, plan.LLMSelected)
	assert.Contains(t, plan.Reasoning, "llm_exploit")
	assert.Contains(t, plan.Reasoning, "rollback works well here")

	// Unknown tool names are filtered out.
	assert.Equal(t, []string{"analyze_logs", "rollback_deployment"}, plan.ToolSequence)
	// Out-of-range parameters are clamped.
	assert.Equal(t, 10, plan.ToolParameters["target_instances"])
}

func TestPlan_LLMInvalidStrategyFallsBack(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{`{"strategy": "reboot_the_universe"}`}}
	planner, _, strategies := newTestPlanner(t, mock, Config{ExplorationRate: 0.0})
	ctx := context.Background()

	_, err := strategies.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 80, 15, true)
	require.NoError(t, err)

	plan, err := planner.Plan(ctx, testIncident(models.IncidentServiceCrash), 1, false)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyRestartService, plan.Strategy)
	assert.Contains(t, plan.Reasoning, "exploit_best_known_fallback")
}

func TestPlan_LLMErrorFallsBack(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("provider down")}
	planner, _, strategies := newTestPlanner(t, mock, Config{ExplorationRate: 0.0})
	ctx := context.Background()

	_, err := strategies.Update(ctx, models.IncidentHighLatency, models.StrategyScaleHorizontal, 70, 25, true)
	require.NoError(t, err)

	plan, err := planner.Plan(ctx, testIncident(models.IncidentHighLatency), 1, false)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyScaleHorizontal, plan.Strategy)
	assert.False(t, plan.LLMSelected)
}

func TestClampParameters(t *testing.T) {
	params := ClampParameters(map[string]any{
		"target_instances": 50,
		"target_cpu":       100.0,
		"target_memory_gb": 0.1,
		"new_timeout_ms":   100,
	})
	assert.Equal(t, 10, params["target_instances"])
	assert.Equal(t, 16.0, params["target_cpu"])
	assert.Equal(t, 0.5, params["target_memory_gb"])
	assert.Equal(t, 1000, params["new_timeout_ms"])
}

func TestToolSequenceFor(t *testing.T) {
	assert.Equal(t,
		[]string{"analyze_logs", "restart_service", "query_metrics"},
		ToolSequenceFor(models.StrategyRestartService))
	assert.Equal(t, fallbackSequence, ToolSequenceFor(models.Strategy("nope")))
}

func TestDefaultParametersFor(t *testing.T) {
	params := DefaultParametersFor(models.StrategyScaleHorizontal)
	assert.Equal(t, 4, params["target_instances"])
	assert.Empty(t, DefaultParametersFor(models.StrategyClearCache))
}

func TestPlanUCB1_PrefersUntried(t *testing.T) {
	planner, _, strategies := newTestPlanner(t, nil, Config{ExplorationRate: 0.0, Policy: PolicyUCB1})
	ctx := context.Background()

	_, err := strategies.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 90, 12, true)
	require.NoError(t, err)

	plan, err := planner.Plan(ctx, testIncident(models.IncidentServiceCrash), 1, false)
	require.NoError(t, err)

	// Untried strategies score infinity, so the pick cannot be the one
	// already-used strategy.
	assert.NotEqual(t, models.StrategyRestartService, plan.Strategy)
	assert.True(t, plan.IsExploratory)
	assert.Contains(t, plan.Reasoning, "ucb1")
}
