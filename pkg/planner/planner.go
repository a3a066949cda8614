// Package planner selects the remediation strategy for an incident under
// an exploit/explore policy backed by persisted statistics, optionally
// consulting the LLM on the exploit branch.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/memory"
	"github.com/evoo-agent/evoo/pkg/models"
)

// Policy selects the arbitration algorithm.
type Policy string

const (
	PolicyEpsilonGreedy Policy = "epsilon"
	PolicyUCB1          Policy = "ucb1"
)

// UCB1 tuning. The repeat and failure penalties discourage hammering the
// same strategy after it just ran or just failed repeatedly.
const (
	ucbExplorationC       = 2.0
	ucbRepeatPenalty      = 20.0
	ucbFailureStepPenalty = 5.0
)

// validToolNames is the closed tool identifier set accepted from the LLM.
var validToolNames = map[string]bool{
	"restart_service":       true,
	"scale_horizontal":      true,
	"scale_vertical":        true,
	"change_timeout":        true,
	"rollback_deployment":   true,
	"clear_cache":           true,
	"rebalance_load":        true,
	"query_metrics":         true,
	"analyze_logs":          true,
	"predict_incident_type": true,
}

// Config tunes the planner.
type Config struct {
	ExplorationRate float64
	Policy          Policy
	Temperature     float64
	MaxTokens       int
}

// Planner produces a Plan for the current incident.
type Planner struct {
	strategies  memory.StrategyStore
	experiences memory.ExperienceStore
	client      llm.Client
	rng         *rand.Rand
	config      Config
	logger      *slog.Logger
}

// New builds a planner. client may be nil; every LLM path has a
// deterministic fallback.
func New(strategies memory.StrategyStore, experiences memory.ExperienceStore, client llm.Client, rng *rand.Rand, config Config, logger *slog.Logger) *Planner {
	if config.Policy == "" {
		config.Policy = PolicyEpsilonGreedy
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 800
	}
	return &Planner{
		strategies:  strategies,
		experiences: experiences,
		client:      client,
		rng:         rng,
		config:      config,
		logger:      logger.With("component", "planner"),
	}
}

// Plan selects a strategy plus its tool sequence and parameters.
func (p *Planner) Plan(ctx context.Context, incident *models.Incident, runIndex int, forceExplore bool) (*models.Plan, error) {
	known, err := p.strategies.KnownStrategies(ctx, incident.IncidentType)
	if err != nil {
		p.logger.Warn("reading known strategies failed, planning without history", "error", err)
		known = map[models.Strategy]float64{}
	}

	if p.config.Policy == PolicyUCB1 {
		return p.planUCB1(ctx, incident, runIndex, known)
	}
	return p.planEpsilonGreedy(ctx, incident, runIndex, forceExplore, known)
}

func (p *Planner) planEpsilonGreedy(ctx context.Context, incident *models.Incident, runIndex int, forceExplore bool, known map[models.Strategy]float64) (*models.Plan, error) {
	explore := forceExplore || p.rng.Float64() < p.config.ExplorationRate || len(known) == 0

	if explore {
		plan := p.explorePlan(known, incident.IncidentType)
		p.logger.Info("strategy selected",
			"run_index", runIndex, "strategy", plan.Strategy, "reason", plan.Reasoning)
		return plan, nil
	}

	if plan := p.llmExploit(ctx, incident, known); plan != nil {
		p.logger.Info("strategy selected",
			"run_index", runIndex, "strategy", plan.Strategy, "reason", plan.Reasoning)
		return plan, nil
	}

	plan := bestKnownPlan(known)
	p.logger.Info("strategy selected",
		"run_index", runIndex, "strategy", plan.Strategy, "reason", plan.Reasoning)
	return plan, nil
}

// explorePlan draws a random strategy: from the incident type's priors on
// the first encounter, otherwise preferring strategies still averaging
// below 1.0 reward.
func (p *Planner) explorePlan(known map[models.Strategy]float64, incidentType models.IncidentType) *models.Plan {
	if len(known) == 0 {
		priors, ok := strategyPriors[incidentType]
		if !ok {
			priors = models.AllStrategies
		}
		strategy := priors[p.rng.IntN(len(priors))]
		return deterministicPlan(strategy, "no_history_using_prior", true, false)
	}

	var underused []models.Strategy
	for _, s := range models.AllStrategies {
		if known[s] < 1.0 {
			underused = append(underused, s)
		}
	}
	pool := underused
	if len(pool) == 0 {
		pool = models.AllStrategies
	}
	strategy := pool[p.rng.IntN(len(pool))]
	return deterministicPlan(strategy, "epsilon_greedy_explore", true, false)
}

// llmExploit asks the LLM to pick from known strategies. Returns nil on
// any failure so the caller can fall back deterministically.
func (p *Planner) llmExploit(ctx context.Context, incident *models.Incident, known map[models.Strategy]float64) *models.Plan {
	if p.client == nil {
		return nil
	}

	response, err := p.client.Complete(ctx, llm.Request{
		System:      plannerSystemPrompt,
		User:        p.plannerUserPrompt(ctx, incident, known),
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		p.logger.Warn("llm strategy selection failed", "error", err)
		return nil
	}

	result := llm.ParseJSON(response)
	if len(result) == 0 {
		return nil
	}

	strategyName, _ := result["strategy"].(string)
	strategy := models.Strategy(strategyName)
	if !strategy.Valid() {
		p.logger.Warn("llm selected invalid strategy", "strategy", strategyName)
		return nil
	}

	var toolSequence []string
	if rawTools, ok := result["tools_to_call"].([]any); ok {
		for _, raw := range rawTools {
			if name, ok := raw.(string); ok && validToolNames[name] {
				toolSequence = append(toolSequence, name)
			}
		}
	}
	if len(toolSequence) == 0 {
		toolSequence = ToolSequenceFor(strategy)
	}

	params := map[string]any{}
	if rawParams, ok := result["tool_parameters"].(map[string]any); ok {
		params = rawParams
	}
	params = ClampParameters(params)

	reasoning, _ := result["reasoning"].(string)
	return &models.Plan{
		Strategy:       strategy,
		ToolSequence:   toolSequence,
		ToolParameters: params,
		Reasoning:      fmt.Sprintf("llm_exploit (%s)", truncate(reasoning, 100)),
		IsExploratory:  false,
		LLMSelected:    true,
	}
}

// bestKnownPlan exploits deterministically: the strategy with the highest
// average reward, with the canonical tool sequence and parameters.
func bestKnownPlan(known map[models.Strategy]float64) *models.Plan {
	var best models.Strategy
	bestReward := math.Inf(-1)
	for _, s := range models.AllStrategies {
		reward, ok := known[s]
		if !ok {
			continue
		}
		if reward > bestReward {
			best = s
			bestReward = reward
		}
	}
	reason := fmt.Sprintf("exploit_best_known_fallback (avg_reward=%.2f)", bestReward)
	return deterministicPlan(best, reason, false, false)
}

func deterministicPlan(strategy models.Strategy, reason string, exploratory, llmSelected bool) *models.Plan {
	return &models.Plan{
		Strategy:       strategy,
		ToolSequence:   ToolSequenceFor(strategy),
		ToolParameters: DefaultParametersFor(strategy),
		Reasoning:      reason,
		IsExploratory:  exploratory,
		LLMSelected:    llmSelected,
	}
}

const plannerSystemPrompt = `You are an expert SRE planner selecting the optimal remediation strategy.

Strategies: restart_service, scale_horizontal, scale_vertical, change_timeout,
rollback_deployment, clear_cache, rebalance_load, combined_restart_scale,
combined_cache_rebalance, combined_rollback_scale.

Tools: restart_service, scale_horizontal, scale_vertical, change_timeout,
rollback_deployment, clear_cache, rebalance_load, query_metrics, analyze_logs,
predict_incident_type.

You must respond with valid JSON only:
{
  "strategy": "<one of the strategy names above>",
  "tools_to_call": ["tool1", "tool2"],
  "tool_parameters": {"target_instances": 3},
  "reasoning": "<1-2 sentence explanation>"
}

Rules:
- Pick the strategy most likely to resolve the incident quickly with minimal cost.
- Use historical performance data to inform your choice.
- Only include tool_parameters relevant to the tools you choose.`

func (p *Planner) plannerUserPrompt(ctx context.Context, incident *models.Incident, known map[models.Strategy]float64) string {
	var sb strings.Builder
	m := incident.MetricsAtDetection

	fmt.Fprintf(&sb, "Incident: %s (severity: %s)\n", incident.IncidentType, incident.Severity)
	fmt.Fprintf(&sb, "Description: %s\n\n", incident.Description)
	fmt.Fprintf(&sb, "Current Metrics:\n")
	fmt.Fprintf(&sb, "  latency_ms: %.2f\n", m.LatencyMs)
	fmt.Fprintf(&sb, "  cpu_percent: %.2f\n", m.CPUPercent)
	fmt.Fprintf(&sb, "  memory_percent: %.2f\n", m.MemoryPercent)
	fmt.Fprintf(&sb, "  error_rate: %.3f\n", m.ErrorRate)
	fmt.Fprintf(&sb, "  availability: %.3f\n\n", m.Availability)

	sb.WriteString("Historical Strategy Performance (this incident type):\n")
	if len(known) == 0 {
		sb.WriteString("  No prior data.\n")
	} else {
		type pair struct {
			strategy models.Strategy
			reward   float64
		}
		pairs := make([]pair, 0, len(known))
		for s, r := range known {
			pairs = append(pairs, pair{s, r})
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].reward > pairs[j].reward })
		for _, kv := range pairs {
			fmt.Fprintf(&sb, "  - %s: avg_reward=%.2f\n", kv.strategy, kv.reward)
		}
	}

	sb.WriteString("\nRecent Experiences (last 3):\n")
	recent, err := p.experiences.QueryByIncident(ctx, incident.IncidentType, 3)
	if err != nil || len(recent) == 0 {
		sb.WriteString("  No prior experiences.\n")
	} else {
		for _, exp := range recent {
			fmt.Fprintf(&sb, "  - %s: reward=%.1f, restored=%t\n",
				exp.StrategyUsed, exp.Reward, exp.ServiceRestored)
		}
	}

	sb.WriteString("\nSelect the best remediation strategy.")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
