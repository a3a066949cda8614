package models

import "time"

// Verdict is the qualitative LLM judgement of a remediation outcome.
type Verdict string

const (
	VerdictExcellent Verdict = "excellent"
	VerdictGood      Verdict = "good"
	VerdictAdequate  Verdict = "adequate"
	VerdictPoor      Verdict = "poor"
	VerdictFailed    Verdict = "failed"
	VerdictUnknown   Verdict = "unknown"
)

// Valid reports whether v is one of the known verdicts.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictExcellent, VerdictGood, VerdictAdequate, VerdictPoor, VerdictFailed, VerdictUnknown:
		return true
	}
	return false
}

// Experience is the immutable record of one (incident, strategy, outcome)
// triple. It is created once by the evaluator and thereafter append-only.
type Experience struct {
	ID                  string             `json:"id"`
	Timestamp           time.Time          `json:"timestamp"`
	RunIndex            int                `json:"run_index"`
	IncidentType        IncidentType       `json:"incident_type"`
	IncidentSeverity    Severity           `json:"incident_severity"`
	MetricsBefore       SystemMetrics      `json:"metrics_before"`
	StrategyUsed        Strategy           `json:"strategy_used"`
	ToolsCalled         []string           `json:"tools_called"`
	ToolResults         []ToolResult       `json:"tool_results"`
	MetricsAfter        SystemMetrics      `json:"metrics_after"`
	RecoveryTimeSeconds float64            `json:"recovery_time_seconds"`
	ServiceRestored     bool               `json:"service_restored"`
	InfrastructureCost  float64            `json:"infrastructure_cost"`
	Reward              float64            `json:"reward"`
	RewardBreakdown     map[string]float64 `json:"reward_breakdown"`
	LLMVerdict          Verdict            `json:"llm_verdict"`
	LLMAnalysis         string             `json:"llm_analysis"`
	Success             bool               `json:"success"`
}

// StrategyRecord aggregates outcomes per (incident_type, strategy) key.
//
// Invariants: TotalUses = SuccessCount + FailureCount;
// AverageReward = TotalReward / TotalUses when TotalUses > 0;
// SuccessRate = SuccessCount / TotalUses.
type StrategyRecord struct {
	IncidentType        IncidentType `json:"incident_type"`
	Strategy            Strategy     `json:"strategy"`
	TotalUses           int          `json:"total_uses"`
	TotalReward         float64      `json:"total_reward"`
	TotalRecoveryTime   float64      `json:"total_recovery_time"`
	SuccessCount        int          `json:"success_count"`
	FailureCount        int          `json:"failure_count"`
	AverageReward       float64      `json:"average_reward"`
	AverageRecoveryTime float64      `json:"average_recovery_time"`
	SuccessRate         float64      `json:"success_rate"`
	FirstUsed           time.Time    `json:"first_used"`
	LastUsed            time.Time    `json:"last_used"`
}
