// Package guardrails vets every proposed remediation action before the
// executor runs it. Rules are pure checks over the proposed action, the
// current system state, and what the incident has already consumed.
package guardrails

import (
	"fmt"
	"log/slog"
)

// Verdict is the outcome of a guardrail evaluation.
type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictWarn  Verdict = "warn"
	VerdictBlock Verdict = "block"
)

// Result is the evaluation of one proposed action.
type Result struct {
	Verdict    Verdict `json:"verdict"`
	RuleName   string  `json:"rule_name"`
	Reason     string  `json:"reason"`
	Suggestion string  `json:"suggestion,omitempty"`
}

// SystemState is the slice of simulator state the rules inspect.
type SystemState struct {
	ActiveInstances int
	HealthScore     float64
}

// IncidentContext tracks what has already happened during the current
// incident's remediation.
type IncidentContext struct {
	ActionsTaken []string
	TotalCost    float64
}

// Action is one proposed tool call.
type Action struct {
	Type       string
	Parameters map[string]any
}

// Rule is a single safety check. Evaluate returns nil when the rule does
// not apply or passes.
type Rule interface {
	Name() string
	Evaluate(action Action, state SystemState, incident IncidentContext) *Result
}

// Config holds every rule threshold. Defaults match production values;
// pkg/config populates it from the EVOO_* environment variables.
type Config struct {
	MinInstancesForRestart     int
	MinInstancesForRollback    int
	MaxHorizontalInstances     int
	MinHorizontalInstances     int
	MaxVerticalCPU             float64
	MaxVerticalMemoryGB        float64
	MinTimeoutMs               int
	MaxTimeoutMs               int
	MaxCostPerIncident         float64
	MaxRestartsPerIncident     int
	MaxRollbacksPerIncident    int
	MaxTotalActionsPerIncident int
	BlockActionsIfHealthy      bool
	HealthyThreshold           float64
	Enabled                    bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinInstancesForRestart:     2,
		MinInstancesForRollback:    2,
		MaxHorizontalInstances:     10,
		MinHorizontalInstances:     1,
		MaxVerticalCPU:             8.0,
		MaxVerticalMemoryGB:        16.0,
		MinTimeoutMs:               500,
		MaxTimeoutMs:               60000,
		MaxCostPerIncident:         50.0,
		MaxRestartsPerIncident:     3,
		MaxRollbacksPerIncident:    1,
		MaxTotalActionsPerIncident: 10,
		BlockActionsIfHealthy:      true,
		HealthyThreshold:           0.85,
		Enabled:                    true,
	}
}

// Engine evaluates the ordered ruleset: the first block wins, otherwise
// the first warning, otherwise allow.
type Engine struct {
	config Config
	rules  []Rule
	logger *slog.Logger
}

// NewEngine builds an engine with the standard ruleset.
func NewEngine(config Config, logger *slog.Logger) *Engine {
	return &Engine{
		config: config,
		logger: logger.With("component", "guardrails"),
		rules: []Rule{
			restartMinInstancesRule{config},
			rollbackMinInstancesRule{config},
			horizontalScaleRule{config},
			verticalScaleRule{config},
			timeoutBoundsRule{config},
			costBudgetRule{config},
			actionFrequencyRule{config},
			alreadyHealthyRule{config},
		},
	}
}

// CheckAction evaluates all rules for a proposed action.
func (e *Engine) CheckAction(action Action, state SystemState, incident IncidentContext) Result {
	if !e.config.Enabled {
		return Result{
			Verdict:  VerdictAllow,
			RuleName: "guardrails_disabled",
			Reason:   "Guardrails are disabled",
		}
	}

	var firstWarn *Result
	for _, rule := range e.rules {
		result := rule.Evaluate(action, state, incident)
		if result == nil {
			continue
		}
		if result.Verdict == VerdictBlock {
			e.logger.Warn("guardrail blocked action",
				"rule", result.RuleName, "action", action.Type, "reason", result.Reason)
			return *result
		}
		if result.Verdict == VerdictWarn && firstWarn == nil {
			firstWarn = result
		}
	}

	if firstWarn != nil {
		e.logger.Info("guardrail warning",
			"rule", firstWarn.RuleName, "action", action.Type, "reason", firstWarn.Reason)
		return *firstWarn
	}

	return Result{
		Verdict:  VerdictAllow,
		RuleName: "all_checks_passed",
		Reason:   "All guardrail checks passed",
	}
}

// ActiveRuleSummary describes one configured rule for reporting surfaces.
type ActiveRuleSummary struct {
	Rule        string `json:"rule"`
	Threshold   any    `json:"threshold"`
	Description string `json:"description"`
}

// ActiveRules summarizes the configured thresholds.
func (e *Engine) ActiveRules() []ActiveRuleSummary {
	c := e.config
	return []ActiveRuleSummary{
		{"min_instances_for_restart", c.MinInstancesForRestart,
			fmt.Sprintf("Block restart if < %d instances", c.MinInstancesForRestart)},
		{"min_instances_for_rollback", c.MinInstancesForRollback,
			fmt.Sprintf("Block rollback if < %d instances", c.MinInstancesForRollback)},
		{"max_horizontal_instances", c.MaxHorizontalInstances,
			fmt.Sprintf("Block scaling beyond %d instances", c.MaxHorizontalInstances)},
		{"max_vertical_cpu", c.MaxVerticalCPU,
			fmt.Sprintf("Block CPU allocation beyond %.1f cores", c.MaxVerticalCPU)},
		{"max_vertical_memory", c.MaxVerticalMemoryGB,
			fmt.Sprintf("Block memory allocation beyond %.1fGB", c.MaxVerticalMemoryGB)},
		{"timeout_bounds", fmt.Sprintf("[%d, %d]", c.MinTimeoutMs, c.MaxTimeoutMs),
			fmt.Sprintf("Keep timeouts within %d-%dms", c.MinTimeoutMs, c.MaxTimeoutMs)},
		{"cost_budget", c.MaxCostPerIncident,
			fmt.Sprintf("Block actions past $%.2f per incident", c.MaxCostPerIncident)},
		{"max_restarts", c.MaxRestartsPerIncident,
			fmt.Sprintf("At most %d restarts per incident", c.MaxRestartsPerIncident)},
		{"max_rollbacks", c.MaxRollbacksPerIncident,
			fmt.Sprintf("At most %d rollbacks per incident", c.MaxRollbacksPerIncident)},
		{"max_total_actions", c.MaxTotalActionsPerIncident,
			fmt.Sprintf("At most %d actions per incident", c.MaxTotalActionsPerIncident)},
		{"system_already_healthy", c.HealthyThreshold,
			fmt.Sprintf("Warn when health score >= %.2f", c.HealthyThreshold)},
	}
}
