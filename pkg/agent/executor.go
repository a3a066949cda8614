// Package agent runs the observe/think/act remediation loop. Each
// iteration the LLM inspects the incident and prior tool results, then
// names exactly one tool to call. Every action passes the guardrail gate
// before it executes, and the planned tool sequence serves as a
// deterministic fallback whenever the LLM is unavailable or unparseable.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/evoo-agent/evoo/pkg/guardrails"
	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/tools"
)

const (
	defaultMaxIterations = 8
	loopTimeout          = 5 * time.Minute

	finishAction = "finish"
)

// Config tunes the executor loop.
type Config struct {
	MaxIterations int
	Temperature   float64
	MaxTokens     int
}

// Executor drives the remediation loop for one incident.
type Executor struct {
	client   llm.Client
	registry *tools.Registry
	guards   *guardrails.Engine
	config   Config
	logger   *slog.Logger
}

// BlockedAction records a tool call the guardrail engine refused.
type BlockedAction struct {
	Tool   string `json:"tool"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Result is the outcome of one remediation loop.
type Result struct {
	ToolResults        []models.ToolResult
	ActionsTaken       []string
	BlockedActions     []BlockedAction
	IterationsUsed     int
	RemediationActions int
	FinishedNaturally  bool
	TotalCost          float64
}

// New builds an executor. client may be nil; the loop then follows the
// planned tool sequence deterministically.
func New(client llm.Client, registry *tools.Registry, guards *guardrails.Engine, config Config, logger *slog.Logger) *Executor {
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaultMaxIterations
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	return &Executor{
		client:   client,
		registry: registry,
		guards:   guards,
		config:   config,
		logger:   logger.With("component", "executor"),
	}
}

// Execute runs the loop until the agent finishes, the iteration budget
// runs out, or the loop deadline passes.
func (e *Executor) Execute(ctx context.Context, incident *models.Incident, plan *models.Plan) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, loopTimeout)
	defer cancel()

	result := &Result{}
	attempted := map[string]bool{}
	var executedTools []string

	e.logger.Info("remediation loop starting",
		"incident", incident.ID,
		"strategy", plan.Strategy,
		"planned_tools", strings.Join(plan.ToolSequence, ","),
		"max_iterations", e.config.MaxIterations)

	for result.IterationsUsed < e.config.MaxIterations {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("remediation loop interrupted: %w", err)
		}
		result.IterationsUsed++

		thought, toolName, params := e.nextAction(ctx, incident, plan, result, attempted)
		e.logger.Info("iteration decided",
			"iteration", result.IterationsUsed, "tool", toolName, "thought", truncate(thought, 120))

		if toolName == finishAction {
			result.FinishedNaturally = true
			break
		}
		attempted[toolName] = true

		verdict := e.guards.CheckAction(
			guardrails.Action{Type: toolName, Parameters: params},
			guardrails.SystemState{
				ActiveInstances: incident.MetricsAtDetection.ActiveInstances,
				HealthScore:     incident.MetricsAtDetection.HealthScore(),
			},
			guardrails.IncidentContext{
				ActionsTaken: executedTools,
				TotalCost:    result.TotalCost,
			},
		)

		switch verdict.Verdict {
		case guardrails.VerdictBlock:
			e.logger.Warn("action blocked",
				"tool", toolName, "rule", verdict.RuleName, "reason", verdict.Reason)
			result.BlockedActions = append(result.BlockedActions, BlockedAction{
				Tool:   toolName,
				Rule:   verdict.RuleName,
				Reason: verdict.Reason,
			})
			result.ToolResults = append(result.ToolResults, models.ToolResult{
				Tool:       toolName,
				Status:     models.ToolStatusSkipped,
				ExecutedAt: time.Now().UTC(),
				Details: map[string]any{
					"blocked_by_guardrail": true,
					"guardrail_rule":       verdict.RuleName,
					"guardrail_reason":     verdict.Reason,
				},
			})
			continue
		case guardrails.VerdictWarn:
			e.logger.Warn("guardrail warning, proceeding",
				"tool", toolName, "rule", verdict.RuleName, "reason", verdict.Reason)
		}

		toolResult := e.registry.Execute(ctx, toolName, tools.Invocation{
			Incident:   incident,
			Parameters: params,
		})
		result.ToolResults = append(result.ToolResults, toolResult)
		result.ActionsTaken = append(result.ActionsTaken, formatAction(toolName, params))
		executedTools = append(executedTools, toolName)
		// Remediation tools share names with their single-action
		// strategies, so the strategy cost table doubles as the per-action
		// charge. Analysis tools have no strategy entry and are free.
		if s := models.Strategy(toolName); s.Valid() {
			result.RemediationActions++
			result.TotalCost += s.Cost()
		}
	}

	e.logger.Info("remediation loop complete",
		"iterations", result.IterationsUsed,
		"tools_executed", len(result.ActionsTaken),
		"blocked", len(result.BlockedActions),
		"finished_naturally", result.FinishedNaturally)
	return result, nil
}

// nextAction asks the LLM for the next tool, falling back to the planned
// sequence when the LLM is absent, fails, or names an unknown tool.
func (e *Executor) nextAction(ctx context.Context, incident *models.Incident, plan *models.Plan, result *Result, attempted map[string]bool) (thought, toolName string, params map[string]any) {
	if e.client == nil {
		return e.fallbackAction(plan, attempted)
	}

	response, err := e.client.Complete(ctx, llm.Request{
		System:      executorSystemPrompt(plan),
		User:        e.contextPrompt(incident, plan, result),
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("llm call failed, following planned sequence", "error", err)
		return e.fallbackAction(plan, attempted)
	}

	thought = llm.ParseThought(response)
	action := llm.ParseAction(response)
	if action == nil {
		e.logger.Warn("no parseable action in llm response, following planned sequence")
		return e.fallbackAction(plan, attempted)
	}
	if action.Tool == finishAction {
		return thought, finishAction, nil
	}
	if _, ok := e.registry.Get(action.Tool); !ok {
		e.logger.Warn("llm named unknown tool, following planned sequence", "tool", action.Tool)
		return e.fallbackAction(plan, attempted)
	}
	return thought, action.Tool, action.Parameters
}

// fallbackAction returns the next planned tool not yet attempted, or
// finish once the plan is exhausted.
func (e *Executor) fallbackAction(plan *models.Plan, attempted map[string]bool) (string, string, map[string]any) {
	for _, toolName := range plan.ToolSequence {
		if attempted[toolName] {
			continue
		}
		params := map[string]any{}
		for k, v := range plan.ToolParameters {
			params[k] = v
		}
		return "Following planned tool sequence", toolName, params
	}
	return "All planned tools executed", finishAction, nil
}

func (e *Executor) contextPrompt(incident *models.Incident, plan *models.Plan, result *Result) string {
	var sb strings.Builder
	m := incident.MetricsAtDetection

	fmt.Fprintf(&sb, "INCIDENT: %s (severity: %s)\n", incident.IncidentType, incident.Severity)
	fmt.Fprintf(&sb, "Service: %s\n", incident.AffectedService)
	fmt.Fprintf(&sb, "Description: %s\n", incident.Description)

	sb.WriteString("\nMETRICS AT DETECTION:\n")
	fmt.Fprintf(&sb, "  latency_ms: %.2f\n", m.LatencyMs)
	fmt.Fprintf(&sb, "  cpu_percent: %.2f\n", m.CPUPercent)
	fmt.Fprintf(&sb, "  memory_percent: %.2f\n", m.MemoryPercent)
	fmt.Fprintf(&sb, "  error_rate: %.3f\n", m.ErrorRate)
	fmt.Fprintf(&sb, "  availability: %.3f\n", m.Availability)

	if len(result.ActionsTaken) == 0 {
		sb.WriteString("\nNo actions taken yet.\n")
	} else {
		fmt.Fprintf(&sb, "\nACTIONS TAKEN (%d):\n", len(result.ActionsTaken))
		for i, action := range result.ActionsTaken {
			fmt.Fprintf(&sb, "  [%d] %s\n", i+1, action)
		}

		last := result.ToolResults[len(result.ToolResults)-1]
		sb.WriteString("\nLAST TOOL RESULT:\n")
		fmt.Fprintf(&sb, "  tool: %s\n", last.Tool)
		fmt.Fprintf(&sb, "  status: %s\n", last.Status)
		keys := make([]string, 0, len(last.Details))
		for k := range last.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, last.Details[k])
		}
	}

	fmt.Fprintf(&sb, "\nIteration: %d/%d\n", result.IterationsUsed, e.config.MaxIterations)
	sb.WriteString("\nWhat tool should be called next? Remember: THOUGHT first, then ACTION.")
	return sb.String()
}

func executorSystemPrompt(plan *models.Plan) string {
	return fmt.Sprintf(`You are an expert SRE executing remediation for a production incident.

You operate in an OBSERVE -> THINK -> ACT loop:
- OBSERVE: Look at the current system metrics and previous action results
- THINK: Reason about what remediation tool to call next
- ACT: Call exactly one tool

Available tools: restart_service, scale_horizontal(target_instances),
scale_vertical(target_cpu, target_memory_gb), change_timeout(new_timeout_ms),
rollback_deployment, clear_cache, rebalance_load, query_metrics,
analyze_logs, predict_incident_type.

The incident plan suggests strategy "%s" with tools: %s.
You may follow the plan or deviate if your observations suggest a better approach.

When you believe remediation is complete or you have executed enough tools, respond with:
ACTION: finish()

Respond in EXACTLY this format:
THOUGHT: [Your reasoning about current state and what to do next]
ACTION: [tool_name(key=value, key=value)]`,
		plan.Strategy, strings.Join(plan.ToolSequence, ", "))
}

func formatAction(toolName string, params map[string]any) string {
	if len(params) == 0 {
		return toolName + "()"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return fmt.Sprintf("%s(%s)", toolName, strings.Join(parts, ", "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
