// Package tools provides the remediation and analysis tool catalog the
// agent can call against the simulated production system. Tools are
// narrative: they report what the action did, while the metric effect of
// the full strategy is applied by the simulator once execution ends.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/models"
)

// invokeTimeout bounds a single tool invocation.
const invokeTimeout = 60 * time.Second

const defaultServiceName = "api-service"

// Invocation carries the incident context and the parameters for one
// tool call.
type Invocation struct {
	Incident   *models.Incident
	Parameters map[string]any
}

// Tool is one callable entry in the catalog.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, inv Invocation) (map[string]any, error)
}

// Registry holds the tool catalog keyed by name.
type Registry struct {
	logger *slog.Logger
	tools  map[string]Tool
}

// NewRegistry builds the full catalog. client may be nil; the one tool
// that consults the LLM falls back to threshold heuristics.
func NewRegistry(client llm.Client, logger *slog.Logger) *Registry {
	r := &Registry{
		logger: logger.With("component", "tools"),
		tools:  map[string]Tool{},
	}
	r.register(
		restartServiceTool{},
		scaleHorizontalTool{},
		scaleVerticalTool{},
		changeTimeoutTool{},
		rollbackDeploymentTool{},
		clearCacheTool{},
		rebalanceLoadTool{},
		queryMetricsTool{},
		analyzeLogsTool{},
		&predictIncidentTypeTool{client: client, logger: r.logger},
	)
	return r
}

func (r *Registry) register(tools ...Tool) {
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute invokes the named tool and wraps the outcome in a ToolResult.
// Unknown tools and invocation failures come back with an error status
// rather than an error return, so the caller records them in the trace.
func (r *Registry) Execute(ctx context.Context, name string, inv Invocation) models.ToolResult {
	result := models.ToolResult{
		Tool:       name,
		ExecutedAt: time.Now().UTC(),
	}

	tool, ok := r.tools[name]
	if !ok {
		result.Status = models.ToolStatusError
		result.Details = map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)}
		r.logger.Warn("unknown tool requested", "tool", name)
		return result
	}

	invokeCtx, cancel := context.WithTimeout(ctx, invokeTimeout)
	defer cancel()

	details, err := tool.Invoke(invokeCtx, inv)
	if err != nil {
		result.Status = models.ToolStatusError
		result.Details = map[string]any{"error": err.Error()}
		r.logger.Warn("tool invocation failed", "tool", name, "error", err)
		return result
	}

	result.Status = models.ToolStatusSuccess
	result.Details = details
	r.logger.Info("tool executed", "tool", name)
	return result
}

func serviceName(inv Invocation) string {
	if inv.Incident != nil && inv.Incident.AffectedService != "" {
		return inv.Incident.AffectedService
	}
	return defaultServiceName
}

func intParam(params map[string]any, key string, fallback int) int {
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

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
