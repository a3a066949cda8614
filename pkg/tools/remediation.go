package tools

import "context"

type restartServiceTool struct{}

func (restartServiceTool) Name() string { return "restart_service" }

func (restartServiceTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":      serviceName(inv),
		"action":       "graceful_restart",
		"pid_old":      12345,
		"pid_new":      12399,
		"uptime_reset": true,
	}, nil
}

type scaleHorizontalTool struct{}

func (scaleHorizontalTool) Name() string { return "scale_horizontal" }

func (scaleHorizontalTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	target := intParam(inv.Parameters, "target_instances", 3)
	direction := "up"
	if target <= 1 {
		direction = "down"
	}
	return map[string]any{
		"service":                 serviceName(inv),
		"target_instances":        target,
		"current_instances":       target,
		"scale_direction":         direction,
		"estimated_ready_seconds": 15,
	}, nil
}

type scaleVerticalTool struct{}

func (scaleVerticalTool) Name() string { return "scale_vertical" }

func (scaleVerticalTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":            serviceName(inv),
		"target_cpu_cores":   floatParam(inv.Parameters, "target_cpu", 2.0),
		"target_memory_gb":   floatParam(inv.Parameters, "target_memory_gb", 4.0),
		"previous_cpu_cores": 1.0,
		"previous_memory_gb": 2.0,
		"restart_required":   true,
	}, nil
}

type changeTimeoutTool struct{}

func (changeTimeoutTool) Name() string { return "change_timeout" }

func (changeTimeoutTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":             serviceName(inv),
		"new_timeout_ms":      intParam(inv.Parameters, "new_timeout_ms", 15000),
		"previous_timeout_ms": 30000,
		"config_reload":       true,
	}, nil
}

type rollbackDeploymentTool struct{}

func (rollbackDeploymentTool) Name() string { return "rollback_deployment" }

func (rollbackDeploymentTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":          serviceName(inv),
		"rolled_back_to":   stringParam(inv.Parameters, "target_version", "v2.1.3"),
		"rolled_back_from": "v2.2.0",
		"deployment_id":    "deploy-abc123",
		"canary_disabled":  true,
	}, nil
}

type clearCacheTool struct{}

func (clearCacheTool) Name() string { return "clear_cache" }

func (clearCacheTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":         serviceName(inv),
		"cache_type":      stringParam(inv.Parameters, "cache_type", "all"),
		"cleared_entries": 45231,
		"freed_memory_mb": 512,
	}, nil
}

type rebalanceLoadTool struct{}

func (rebalanceLoadTool) Name() string { return "rebalance_load" }

func (rebalanceLoadTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	return map[string]any{
		"service":                     serviceName(inv),
		"algorithm":                   "least_connections",
		"rebalanced_connections":      1250,
		"overloaded_instances_before": 2,
		"overloaded_instances_after":  0,
	}, nil
}
