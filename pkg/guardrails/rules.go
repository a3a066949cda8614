package guardrails

import "fmt"

// Parameter helpers tolerate JSON-decoded numbers of either flavor.

func intParam(params map[string]any, key string, fallback int) int {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return fallback
}

// restartMinInstancesRule blocks restart_service when so few instances run
// that a restart would take the whole service down.
type restartMinInstancesRule struct{ config Config }

func (r restartMinInstancesRule) Name() string { return "min_instances_for_restart" }

func (r restartMinInstancesRule) Evaluate(action Action, state SystemState, _ IncidentContext) *Result {
	if action.Type != "restart_service" {
		return nil
	}
	if state.ActiveInstances >= r.config.MinInstancesForRestart {
		return nil
	}
	return &Result{
		Verdict:  VerdictBlock,
		RuleName: r.Name(),
		Reason: fmt.Sprintf(
			"Cannot restart service: only %d instance(s) running (minimum %d required). Restarting would cause complete service outage.",
			state.ActiveInstances, r.config.MinInstancesForRestart),
		Suggestion: fmt.Sprintf(
			"Scale horizontally to at least %d instances first, then retry the restart.",
			r.config.MinInstancesForRestart),
	}
}

// rollbackMinInstancesRule blocks rollback_deployment below minimum capacity.
type rollbackMinInstancesRule struct{ config Config }

func (r rollbackMinInstancesRule) Name() string { return "min_instances_for_rollback" }

func (r rollbackMinInstancesRule) Evaluate(action Action, state SystemState, _ IncidentContext) *Result {
	if action.Type != "rollback_deployment" {
		return nil
	}
	if state.ActiveInstances >= r.config.MinInstancesForRollback {
		return nil
	}
	return &Result{
		Verdict:  VerdictBlock,
		RuleName: r.Name(),
		Reason: fmt.Sprintf(
			"Cannot rollback deployment: only %d instance(s) running (minimum %d required). Rollback during low capacity risks extended downtime.",
			state.ActiveInstances, r.config.MinInstancesForRollback),
		Suggestion: "Scale up first, then attempt rollback.",
	}
}

// horizontalScaleRule enforces the instance range and warns on aggressive
// scale-ups (>3x current).
type horizontalScaleRule struct{ config Config }

func (r horizontalScaleRule) Name() string { return "horizontal_scale_limits" }

func (r horizontalScaleRule) Evaluate(action Action, state SystemState, _ IncidentContext) *Result {
	if action.Type != "scale_horizontal" {
		return nil
	}
	target := intParam(action.Parameters, "target_instances", 3)

	if target > r.config.MaxHorizontalInstances {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_horizontal_instances",
			Reason: fmt.Sprintf(
				"Cannot scale to %d instances: exceeds maximum limit of %d.",
				target, r.config.MaxHorizontalInstances),
			Suggestion: fmt.Sprintf("Scale to at most %d instances.", r.config.MaxHorizontalInstances),
		}
	}
	if target < r.config.MinHorizontalInstances {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "min_horizontal_instances",
			Reason: fmt.Sprintf(
				"Cannot scale down to %d instances: below minimum of %d.",
				target, r.config.MinHorizontalInstances),
			Suggestion: fmt.Sprintf("Maintain at least %d instance(s).", r.config.MinHorizontalInstances),
		}
	}
	if state.ActiveInstances > 0 && target > state.ActiveInstances*3 {
		return &Result{
			Verdict:  VerdictWarn,
			RuleName: "aggressive_horizontal_scaling",
			Reason: fmt.Sprintf(
				"Scaling from %d to %d instances is aggressive (>3x increase). This may cause cost spikes.",
				state.ActiveInstances, target),
			Suggestion: "Consider incremental scaling.",
		}
	}
	return nil
}

// verticalScaleRule enforces CPU and memory allocation caps.
type verticalScaleRule struct{ config Config }

func (r verticalScaleRule) Name() string { return "vertical_scale_limits" }

func (r verticalScaleRule) Evaluate(action Action, _ SystemState, _ IncidentContext) *Result {
	if action.Type != "scale_vertical" {
		return nil
	}
	targetCPU := floatParam(action.Parameters, "target_cpu", 2.0)
	targetMemory := floatParam(action.Parameters, "target_memory_gb", 4.0)

	if targetCPU > r.config.MaxVerticalCPU {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_vertical_cpu",
			Reason: fmt.Sprintf(
				"Cannot allocate %g CPU cores: exceeds maximum of %g cores.",
				targetCPU, r.config.MaxVerticalCPU),
			Suggestion: fmt.Sprintf("Use at most %g CPU cores.", r.config.MaxVerticalCPU),
		}
	}
	if targetMemory > r.config.MaxVerticalMemoryGB {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_vertical_memory",
			Reason: fmt.Sprintf(
				"Cannot allocate %gGB memory: exceeds maximum of %gGB.",
				targetMemory, r.config.MaxVerticalMemoryGB),
			Suggestion: fmt.Sprintf("Use at most %gGB memory.", r.config.MaxVerticalMemoryGB),
		}
	}
	return nil
}

// timeoutBoundsRule keeps change_timeout within the configured window.
type timeoutBoundsRule struct{ config Config }

func (r timeoutBoundsRule) Name() string { return "timeout_bounds" }

func (r timeoutBoundsRule) Evaluate(action Action, _ SystemState, _ IncidentContext) *Result {
	if action.Type != "change_timeout" {
		return nil
	}
	newTimeout := intParam(action.Parameters, "new_timeout_ms", 5000)

	if newTimeout < r.config.MinTimeoutMs {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "min_timeout",
			Reason: fmt.Sprintf(
				"Cannot set timeout to %dms: below minimum of %dms. Too-low timeouts cause cascading failures.",
				newTimeout, r.config.MinTimeoutMs),
			Suggestion: fmt.Sprintf("Set timeout to at least %dms.", r.config.MinTimeoutMs),
		}
	}
	if newTimeout > r.config.MaxTimeoutMs {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_timeout",
			Reason: fmt.Sprintf(
				"Cannot set timeout to %dms: exceeds maximum of %dms. Excessively high timeouts tie up resources.",
				newTimeout, r.config.MaxTimeoutMs),
			Suggestion: fmt.Sprintf("Set timeout to at most %dms.", r.config.MaxTimeoutMs),
		}
	}
	return nil
}

// costBudgetRule blocks at the per-incident budget and warns at 80% of it.
type costBudgetRule struct{ config Config }

func (r costBudgetRule) Name() string { return "cost_budget" }

func (r costBudgetRule) Evaluate(_ Action, _ SystemState, incident IncidentContext) *Result {
	if incident.TotalCost >= r.config.MaxCostPerIncident {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "cost_budget_exceeded",
			Reason: fmt.Sprintf(
				"Cost budget exceeded: $%.2f spent (limit: $%.2f). No further remediation actions allowed.",
				incident.TotalCost, r.config.MaxCostPerIncident),
			Suggestion: "Escalate to human operator for manual intervention.",
		}
	}
	if incident.TotalCost >= r.config.MaxCostPerIncident*0.8 {
		return &Result{
			Verdict:  VerdictWarn,
			RuleName: "cost_budget_warning",
			Reason: fmt.Sprintf(
				"Approaching cost budget: $%.2f of $%.2f (%.0f%% used).",
				incident.TotalCost, r.config.MaxCostPerIncident,
				incident.TotalCost/r.config.MaxCostPerIncident*100),
			Suggestion: "Prefer low-cost actions (restart, clear_cache, change_timeout).",
		}
	}
	return nil
}

// actionFrequencyRule caps total actions and per-type repeats.
type actionFrequencyRule struct{ config Config }

func (r actionFrequencyRule) Name() string { return "action_frequency" }

func (r actionFrequencyRule) Evaluate(action Action, _ SystemState, incident IncidentContext) *Result {
	if len(incident.ActionsTaken) >= r.config.MaxTotalActionsPerIncident {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_total_actions",
			Reason: fmt.Sprintf(
				"Maximum actions per incident reached: %d (limit: %d). Further automated remediation blocked.",
				len(incident.ActionsTaken), r.config.MaxTotalActionsPerIncident),
			Suggestion: "Escalate to human operator.",
		}
	}

	count := 0
	for _, taken := range incident.ActionsTaken {
		if taken == action.Type {
			count++
		}
	}

	if action.Type == "restart_service" && count >= r.config.MaxRestartsPerIncident {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_restarts_exceeded",
			Reason: fmt.Sprintf(
				"Already restarted %d time(s) this incident (limit: %d). Repeated restarts indicate a deeper issue.",
				count, r.config.MaxRestartsPerIncident),
			Suggestion: "Try a different strategy: rollback, scale, or escalate.",
		}
	}
	if action.Type == "rollback_deployment" && count >= r.config.MaxRollbacksPerIncident {
		return &Result{
			Verdict:  VerdictBlock,
			RuleName: "max_rollbacks_exceeded",
			Reason: fmt.Sprintf(
				"Already rolled back %d time(s) this incident (limit: %d). Multiple rollbacks risk data inconsistency.",
				count, r.config.MaxRollbacksPerIncident),
			Suggestion: "Try restart, scaling, or escalate to human operator.",
		}
	}
	return nil
}

// alreadyHealthyRule warns when the system looks recovered already.
type alreadyHealthyRule struct{ config Config }

func (r alreadyHealthyRule) Name() string { return "system_already_healthy" }

func (r alreadyHealthyRule) Evaluate(action Action, state SystemState, _ IncidentContext) *Result {
	if !r.config.BlockActionsIfHealthy {
		return nil
	}
	if state.HealthScore < r.config.HealthyThreshold {
		return nil
	}
	return &Result{
		Verdict:  VerdictWarn,
		RuleName: r.Name(),
		Reason: fmt.Sprintf(
			"System health score is %.3f (threshold: %.3f). Action '%s' may be unnecessary.",
			state.HealthScore, r.config.HealthyThreshold, action.Type),
		Suggestion: "Consider skipping this action, the system appears recovered.",
	}
}
