package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/simulator"
)

var (
	crashMetrics = models.SystemMetrics{
		LatencyMs:       9000,
		CPUPercent:      60,
		MemoryPercent:   30,
		ErrorRate:       0.9,
		Availability:    0.1,
		ActiveInstances: 2,
	}
	recoveredMetrics = models.SystemMetrics{
		LatencyMs:       150,
		CPUPercent:      28,
		MemoryPercent:   46,
		ErrorRate:       0.005,
		Availability:    0.999,
		ActiveInstances: 2,
	}
)

func testEvalIncident() *models.Incident {
	return &models.Incident{
		ID:                 "abc12345",
		IncidentType:       models.IncidentServiceCrash,
		Severity:           models.SeverityCritical,
		AffectedService:    "api-service",
		MetricsAtDetection: crashMetrics,
		DetectedAt:         time.Now().UTC(),
	}
}

func TestComputeReward_BreakdownSumsToReward(t *testing.T) {
	outcomes := []simulator.Outcome{
		{MetricsAfter: recoveredMetrics, RecoveryTimeSeconds: 15, InfrastructureCost: 1.0, ServiceRestored: true},
		{MetricsAfter: crashMetrics, RecoveryTimeSeconds: 110, InfrastructureCost: 2.8, ServiceRestored: false},
	}
	for _, outcome := range outcomes {
		reward, breakdown := ComputeReward(crashMetrics, outcome.MetricsAfter,
			outcome.RecoveryTimeSeconds, outcome.InfrastructureCost,
			outcome.ServiceRestored, models.StrategyRestartService, models.IncidentServiceCrash)

		sum := 0.0
		for _, component := range breakdown {
			sum += component
		}
		assert.InDelta(t, reward, sum, 1e-9)
	}
}

func TestComputeReward_RestoredRun(t *testing.T) {
	reward, breakdown := ComputeReward(crashMetrics, recoveredMetrics,
		15, 1.0, true, models.StrategyRestartService, models.IncidentServiceCrash)

	assert.Equal(t, 100.0, breakdown["service_restored"])
	assert.Equal(t, -7.5, breakdown["recovery_time_penalty"])
	assert.Equal(t, -0.2, breakdown["infrastructure_cost_penalty"])
	assert.Equal(t, -0.25, breakdown["error_rate_penalty"])
	// Latency improvement capped at 500ms.
	assert.Equal(t, 10.0, breakdown["latency_improvement_bonus"])
	assert.Equal(t, 44.95, breakdown["availability_improvement_bonus"])
	assert.Equal(t, 1.6, breakdown["cpu_improvement_bonus"])
	assert.NotContains(t, breakdown, "unnecessary_scaling_penalty")
	assert.Greater(t, reward, 0.0)
}

func TestComputeReward_FailedRunIncludesPenalty(t *testing.T) {
	reward, breakdown := ComputeReward(crashMetrics, crashMetrics,
		120, 1.0, false, models.StrategyRestartService, models.IncidentServiceCrash)

	assert.Equal(t, -50.0, breakdown["service_not_restored"])
	assert.Equal(t, -60.0, breakdown["recovery_time_penalty"])
	assert.Less(t, reward, 0.0)
}

func TestComputeReward_UnnecessaryScalingPenalty(t *testing.T) {
	_, withPenalty := ComputeReward(crashMetrics, recoveredMetrics,
		15, 1.0, true, models.StrategyScaleHorizontal, models.IncidentMemoryLeak)
	assert.Equal(t, -10.0, withPenalty["unnecessary_scaling_penalty"])

	_, withoutPenalty := ComputeReward(crashMetrics, recoveredMetrics,
		15, 1.0, true, models.StrategyScaleHorizontal, models.IncidentHighLatency)
	assert.NotContains(t, withoutPenalty, "unnecessary_scaling_penalty")

	_, alsoWithout := ComputeReward(crashMetrics, recoveredMetrics,
		15, 1.0, true, models.StrategyClearCache, models.IncidentMemoryLeak)
	assert.NotContains(t, alsoWithout, "unnecessary_scaling_penalty")
}

func TestComputeReward_MonotonicInAvailability(t *testing.T) {
	previous := -1e9
	for avail := 0.1; avail <= 1.0; avail += 0.1 {
		after := recoveredMetrics
		after.Availability = avail
		reward, _ := ComputeReward(crashMetrics, after,
			15, 1.0, true, models.StrategyRestartService, models.IncidentServiceCrash)
		assert.Greater(t, reward, previous, "availability %.1f", avail)
		previous = reward
	}
}

func TestHeuristicVerdictLadder(t *testing.T) {
	cases := []struct {
		avail   float64
		errRate float64
		verdict models.Verdict
		score   int
	}{
		{0.995, 0.005, models.VerdictExcellent, 9},
		{0.96, 0.03, models.VerdictGood, 7},
		{0.85, 0.1, models.VerdictAdequate, 5},
		{0.6, 0.3, models.VerdictPoor, 3},
		{0.2, 0.8, models.VerdictFailed, 1},
	}
	for _, tc := range cases {
		verdict, score := heuristicVerdict(models.SystemMetrics{
			Availability: tc.avail,
			ErrorRate:    tc.errRate,
		})
		assert.Equal(t, tc.verdict, verdict)
		assert.Equal(t, tc.score, score)
	}
}

func TestEvaluate_LLMJudge(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{
		`{"overall_score": 8, "verdict": "good", "analysis": "Quick restart restored service.", "better_strategy": ""}`,
	}}
	evaluator := New(mock, Config{Temperature: 0.3}, slog.Default())

	eval := evaluator.Evaluate(context.Background(), testEvalIncident(), models.StrategyRestartService,
		simulator.Outcome{
			MetricsAfter:        recoveredMetrics,
			RecoveryTimeSeconds: 15,
			InfrastructureCost:  1.0,
			ServiceRestored:     true,
		})

	assert.Equal(t, models.VerdictGood, eval.Verdict)
	assert.Equal(t, 8, eval.OverallScore)
	assert.True(t, eval.JudgedByLLM)
	assert.Greater(t, eval.Reward, 0.0)
}

func TestEvaluate_LLMFailureUsesHeuristic(t *testing.T) {
	mock := &llm.MockClient{Err: errors.New("provider down")}
	evaluator := New(mock, Config{}, slog.Default())

	eval := evaluator.Evaluate(context.Background(), testEvalIncident(), models.StrategyRestartService,
		simulator.Outcome{
			MetricsAfter:        recoveredMetrics,
			RecoveryTimeSeconds: 15,
			InfrastructureCost:  1.0,
			ServiceRestored:     true,
		})

	assert.Equal(t, models.VerdictExcellent, eval.Verdict)
	assert.False(t, eval.JudgedByLLM)
	assert.Contains(t, eval.Analysis, "Heuristic")
}

func TestEvaluate_InvalidVerdictUsesHeuristic(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{`{"verdict": "stupendous", "overall_score": 11}`}}
	evaluator := New(mock, Config{}, slog.Default())

	eval := evaluator.Evaluate(context.Background(), testEvalIncident(), models.StrategyRestartService,
		simulator.Outcome{MetricsAfter: crashMetrics, RecoveryTimeSeconds: 110, InfrastructureCost: 1.0})

	assert.Equal(t, models.VerdictFailed, eval.Verdict)
	assert.False(t, eval.JudgedByLLM)
}

func TestBuildExperience(t *testing.T) {
	incident := testEvalIncident()
	outcome := simulator.Outcome{
		MetricsAfter:        recoveredMetrics,
		RecoveryTimeSeconds: 15,
		InfrastructureCost:  1.0,
		ServiceRestored:     true,
	}
	eval := &Evaluation{
		Reward:    148.6,
		Breakdown: map[string]float64{"service_restored": 100.0},
		Verdict:   models.VerdictGood,
		Analysis:  "restored quickly",
	}

	exp := BuildExperience(3, incident, models.StrategyRestartService,
		[]string{"analyze_logs()", "restart_service()"},
		[]models.ToolResult{{Tool: "restart_service", Status: models.ToolStatusSuccess}},
		outcome, eval)

	assert.NotEmpty(t, exp.ID)
	assert.Equal(t, 3, exp.RunIndex)
	assert.Equal(t, models.IncidentServiceCrash, exp.IncidentType)
	assert.Equal(t, models.StrategyRestartService, exp.StrategyUsed)
	assert.Equal(t, crashMetrics, exp.MetricsBefore)
	assert.Equal(t, recoveredMetrics, exp.MetricsAfter)
	assert.True(t, exp.ServiceRestored)
	assert.True(t, exp.Success)
	assert.Equal(t, 148.6, exp.Reward)
	assert.Equal(t, models.VerdictGood, exp.LLMVerdict)
}
