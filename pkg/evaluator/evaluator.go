// Package evaluator scores a completed remediation: a deterministic
// scalar reward with an itemized breakdown, plus a qualitative verdict
// from an LLM judge with a threshold-ladder fallback. The verdict is
// advisory only; learning updates use the numeric reward.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/simulator"
)

// scalingStrategies and scalingSensitiveIncidents define the pairs that
// attract the unnecessary-scaling penalty.
var (
	scalingStrategies = map[models.Strategy]bool{
		models.StrategyScaleHorizontal:       true,
		models.StrategyCombinedRestartScale:  true,
		models.StrategyCombinedRollbackScale: true,
	}
	scalingSensitiveIncidents = map[models.IncidentType]bool{
		models.IncidentTimeoutMisconfig: true,
		models.IncidentMemoryLeak:       true,
	}
)

// Evaluation is the full assessment of one remediation run.
type Evaluation struct {
	Reward         float64            `json:"reward"`
	Breakdown      map[string]float64 `json:"breakdown"`
	Verdict        models.Verdict     `json:"verdict"`
	OverallScore   int                `json:"overall_score"`
	Analysis       string             `json:"analysis"`
	BetterStrategy string             `json:"better_strategy,omitempty"`
	JudgedByLLM    bool               `json:"judged_by_llm"`
}

// Config tunes the LLM judge.
type Config struct {
	Temperature float64
	MaxTokens   int
}

// Evaluator combines the reward function with the LLM judge.
type Evaluator struct {
	client llm.Client
	config Config
	logger *slog.Logger
}

// New builds an evaluator. client may be nil; the verdict then comes
// from the availability ladder.
func New(client llm.Client, config Config, logger *slog.Logger) *Evaluator {
	if config.MaxTokens == 0 {
		config.MaxTokens = 300
	}
	return &Evaluator{
		client: client,
		config: config,
		logger: logger.With("component", "evaluator"),
	}
}

// Evaluate computes the reward and obtains the qualitative verdict for
// one remediation outcome.
func (e *Evaluator) Evaluate(ctx context.Context, incident *models.Incident, strategy models.Strategy, outcome simulator.Outcome) *Evaluation {
	reward, breakdown := ComputeReward(
		incident.MetricsAtDetection, outcome.MetricsAfter,
		outcome.RecoveryTimeSeconds, outcome.InfrastructureCost,
		outcome.ServiceRestored, strategy, incident.IncidentType)

	eval := &Evaluation{
		Reward:    reward,
		Breakdown: breakdown,
	}
	e.judge(ctx, incident, strategy, outcome, eval)

	e.logger.Info("remediation evaluated",
		"strategy", strategy,
		"reward", eval.Reward,
		"verdict", eval.Verdict,
		"restored", outcome.ServiceRestored)
	return eval
}

// ComputeReward applies the reward function and returns the scalar plus
// its itemized breakdown. Every component is rounded to two decimals and
// the reward is the exact sum of the breakdown.
func ComputeReward(before, after models.SystemMetrics, recoveryTime, infraCost float64, restored bool, strategy models.Strategy, incidentType models.IncidentType) (float64, map[string]float64) {
	breakdown := map[string]float64{}

	if restored {
		breakdown["service_restored"] = 100.0
	} else {
		breakdown["service_not_restored"] = -50.0
	}

	breakdown["recovery_time_penalty"] = -round2(recoveryTime * 0.5)
	breakdown["infrastructure_cost_penalty"] = -round2(infraCost * 0.2)
	breakdown["error_rate_penalty"] = -round2(after.ErrorRate * 50.0)

	// Latency improvement is capped at 500ms so it cannot dwarf the
	// restoration signal.
	latencyImprovement := math.Min(math.Max(0, before.LatencyMs-after.LatencyMs), 500.0)
	breakdown["latency_improvement_bonus"] = round2(latencyImprovement * 0.02)

	availImprovement := math.Max(0, after.Availability-before.Availability)
	breakdown["availability_improvement_bonus"] = round2(availImprovement * 50.0)

	if scalingStrategies[strategy] && scalingSensitiveIncidents[incidentType] {
		breakdown["unnecessary_scaling_penalty"] = -10.0
	}

	cpuImprovement := math.Max(0, before.CPUPercent-after.CPUPercent)
	breakdown["cpu_improvement_bonus"] = round2(cpuImprovement * 0.05)

	reward := 0.0
	for _, component := range breakdown {
		reward += component
	}
	return round2(reward), breakdown
}

// judge fills the qualitative fields, preferring the LLM.
func (e *Evaluator) judge(ctx context.Context, incident *models.Incident, strategy models.Strategy, outcome simulator.Outcome, eval *Evaluation) {
	if e.client != nil {
		response, err := e.client.Complete(ctx, llm.Request{
			System:      "You are an expert SRE. Respond with valid JSON only.",
			User:        judgePrompt(incident, strategy, outcome, eval.Reward),
			Temperature: e.config.Temperature,
			MaxTokens:   e.config.MaxTokens,
			JSONMode:    true,
		})
		if err != nil {
			e.logger.Warn("llm evaluation failed, using heuristic verdict", "error", err)
		} else if e.applyLLMJudgement(llm.ParseJSON(response), eval) {
			return
		}
	}

	verdict, score := heuristicVerdict(outcome.MetricsAfter)
	eval.Verdict = verdict
	eval.OverallScore = score
	eval.Analysis = fmt.Sprintf("Heuristic: availability=%.2f%%, recovery=%.0fs",
		outcome.MetricsAfter.Availability*100, outcome.RecoveryTimeSeconds)
}

func (e *Evaluator) applyLLMJudgement(result map[string]any, eval *Evaluation) bool {
	verdictName, _ := result["verdict"].(string)
	verdict := models.Verdict(verdictName)
	if !verdict.Valid() || verdict == models.VerdictUnknown {
		if verdictName != "" {
			e.logger.Warn("llm returned invalid verdict", "verdict", verdictName)
		}
		return false
	}

	eval.Verdict = verdict
	if score, ok := result["overall_score"].(float64); ok {
		eval.OverallScore = int(score)
	}
	eval.Analysis, _ = result["analysis"].(string)
	eval.BetterStrategy, _ = result["better_strategy"].(string)
	eval.JudgedByLLM = true
	return true
}

// heuristicVerdict maps post-remediation availability and error rate to
// a verdict and score.
func heuristicVerdict(after models.SystemMetrics) (models.Verdict, int) {
	switch {
	case after.Availability >= 0.99 && after.ErrorRate <= 0.01:
		return models.VerdictExcellent, 9
	case after.Availability >= 0.95:
		return models.VerdictGood, 7
	case after.Availability >= 0.80:
		return models.VerdictAdequate, 5
	case after.Availability >= 0.50:
		return models.VerdictPoor, 3
	default:
		return models.VerdictFailed, 1
	}
}

// BuildExperience assembles the immutable learning record for one run.
func BuildExperience(runIndex int, incident *models.Incident, strategy models.Strategy, toolsCalled []string, toolResults []models.ToolResult, outcome simulator.Outcome, eval *Evaluation) models.Experience {
	return models.Experience{
		ID:                  uuid.NewString(),
		Timestamp:           time.Now().UTC(),
		RunIndex:            runIndex,
		IncidentType:        incident.IncidentType,
		IncidentSeverity:    incident.Severity,
		MetricsBefore:       incident.MetricsAtDetection,
		StrategyUsed:        strategy,
		ToolsCalled:         toolsCalled,
		ToolResults:         toolResults,
		MetricsAfter:        outcome.MetricsAfter,
		RecoveryTimeSeconds: outcome.RecoveryTimeSeconds,
		ServiceRestored:     outcome.ServiceRestored,
		InfrastructureCost:  outcome.InfrastructureCost,
		Reward:              eval.Reward,
		RewardBreakdown:     eval.Breakdown,
		LLMVerdict:          eval.Verdict,
		LLMAnalysis:         eval.Analysis,
		Success:             outcome.ServiceRestored,
	}
}

func judgePrompt(incident *models.Incident, strategy models.Strategy, outcome simulator.Outcome, reward float64) string {
	before := incident.MetricsAtDetection
	after := outcome.MetricsAfter
	return fmt.Sprintf(`You are an expert SRE evaluating an automated remediation.
Incident: %s, Strategy: %s, Recovery: %.1fs
Reward: %.2f
Before: latency=%.1fms, cpu=%.1f%%, avail=%.0f%%
After: latency=%.1fms, cpu=%.1f%%, avail=%.0f%%
Respond in JSON: {"overall_score": 0-10, "verdict": "excellent|good|adequate|poor|failed", "analysis": "<2 sentences>", "better_strategy": "<or null>"}`,
		incident.IncidentType, strategy, outcome.RecoveryTimeSeconds, reward,
		before.LatencyMs, before.CPUPercent, before.Availability*100,
		after.LatencyMs, after.CPUPercent, after.Availability*100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
