package planner

import "github.com/evoo-agent/evoo/pkg/models"

// strategyPriors lists the preferred first strategies per incident type,
// used when no history exists yet.
var strategyPriors = map[models.IncidentType][]models.Strategy{
	models.IncidentServiceCrash:       {models.StrategyRestartService, models.StrategyRollbackDeployment},
	models.IncidentHighLatency:        {models.StrategyScaleHorizontal, models.StrategyRebalanceLoad},
	models.IncidentCPUSpike:           {models.StrategyScaleVertical, models.StrategyScaleHorizontal},
	models.IncidentMemoryLeak:         {models.StrategyRestartService, models.StrategyClearCache},
	models.IncidentNetworkDegradation: {models.StrategyRebalanceLoad, models.StrategyScaleHorizontal},
	models.IncidentTimeoutMisconfig:   {models.StrategyChangeTimeout, models.StrategyRollbackDeployment},
}

// toolSequences is the deterministic tool order per strategy, used when
// the LLM is unavailable or returns nothing usable.
var toolSequences = map[models.Strategy][]string{
	models.StrategyRestartService:        {"analyze_logs", "restart_service", "query_metrics"},
	models.StrategyScaleHorizontal:       {"query_metrics", "scale_horizontal", "rebalance_load"},
	models.StrategyScaleVertical:         {"query_metrics", "scale_vertical", "restart_service"},
	models.StrategyChangeTimeout:         {"analyze_logs", "change_timeout", "query_metrics"},
	models.StrategyRollbackDeployment:    {"analyze_logs", "rollback_deployment", "query_metrics"},
	models.StrategyClearCache:            {"clear_cache", "query_metrics"},
	models.StrategyRebalanceLoad:         {"rebalance_load", "query_metrics"},
	models.StrategyCombinedRestartScale:  {"analyze_logs", "restart_service", "scale_horizontal", "rebalance_load"},
	models.StrategyCombinedCacheRebal:    {"clear_cache", "rebalance_load", "query_metrics"},
	models.StrategyCombinedRollbackScale: {"analyze_logs", "rollback_deployment", "scale_horizontal"},
}

// fallbackSequence covers unknown strategies.
var fallbackSequence = []string{"query_metrics", "restart_service"}

// defaultParameters are the deterministic tool parameters per strategy.
var defaultParameters = map[models.Strategy]map[string]any{
	models.StrategyScaleHorizontal:       {"target_instances": 4},
	models.StrategyScaleVertical:         {"target_cpu": 4.0, "target_memory_gb": 8.0},
	models.StrategyChangeTimeout:         {"new_timeout_ms": 15000},
	models.StrategyCombinedRestartScale:  {"target_instances": 3},
	models.StrategyCombinedRollbackScale: {"target_instances": 3},
}

// ToolSequenceFor returns the deterministic tool order for a strategy.
func ToolSequenceFor(strategy models.Strategy) []string {
	if seq, ok := toolSequences[strategy]; ok {
		out := make([]string, len(seq))
		copy(out, seq)
		return out
	}
	out := make([]string, len(fallbackSequence))
	copy(out, fallbackSequence)
	return out
}

// DefaultParametersFor returns the deterministic parameters for a strategy.
func DefaultParametersFor(strategy models.Strategy) map[string]any {
	params := map[string]any{}
	for k, v := range defaultParameters[strategy] {
		params[k] = v
	}
	return params
}

// ClampParameters forces numeric tool parameters into their safe ranges.
func ClampParameters(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	if v, ok := asInt(params["target_instances"]); ok {
		params["target_instances"] = clampInt(v, 1, 10)
	}
	if v, ok := asFloat(params["target_cpu"]); ok {
		params["target_cpu"] = clampFloat(v, 0.5, 16.0)
	}
	if v, ok := asFloat(params["target_memory_gb"]); ok {
		params["target_memory_gb"] = clampFloat(v, 0.5, 64.0)
	}
	if v, ok := asInt(params["new_timeout_ms"]); ok {
		params["new_timeout_ms"] = clampInt(v, 1000, 300000)
	}
	return params
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
