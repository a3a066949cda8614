// Package config loads the runtime configuration: built-in defaults,
// an optional evoo.yaml overlay, then environment variables, in that
// order of precedence (later wins).
package config

import (
	"fmt"

	"github.com/evoo-agent/evoo/pkg/guardrails"
)

// Memory backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Planner policies.
const (
	PolicyEpsilon = "epsilon"
	PolicyUCB1    = "ucb1"
)

// Config is the complete runtime configuration.
type Config struct {
	Learning   LearningConfig   `yaml:"learning"`
	Memory     MemoryConfig     `yaml:"memory"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Guardrails GuardrailsConfig `yaml:"guardrails"`
}

// LearningConfig tunes the learning loop and the planner.
type LearningConfig struct {
	MaxRuns           int     `yaml:"max_runs"`
	ExplorationRate   float64 `yaml:"exploration_rate"`
	PlannerPolicy     string  `yaml:"planner_policy"`
	MaxLoopIterations int     `yaml:"max_loop_iterations"`
	CheckpointPath    string  `yaml:"checkpoint_path"`
	// Seed fixes the incident and effect sampling for reproducible
	// runs. Zero means derive a seed from the current time.
	Seed uint64 `yaml:"seed"`
}

// MemoryConfig selects and parameterizes the persistence backend.
type MemoryConfig struct {
	Backend          string `yaml:"backend"`
	MemoryFilePath   string `yaml:"memory_file_path"`
	StrategyFilePath string `yaml:"strategy_file_path"`
	RedisAddr        string `yaml:"redis_addr"`
}

// LLMConfig carries the provider endpoint and per-phase sampling knobs.
// The API key comes from the environment only, never from YAML.
type LLMConfig struct {
	APIKey               string  `yaml:"-"`
	BaseURL              string  `yaml:"base_url"`
	Model                string  `yaml:"model"`
	TemperaturePlanning  float64 `yaml:"temperature_planning"`
	TemperatureExecution float64 `yaml:"temperature_execution"`
	MaxTokensPlanning    int     `yaml:"max_tokens_planning"`
	MaxTokensExecution   int     `yaml:"max_tokens_execution"`
}

// Enabled reports whether an LLM endpoint is configured. Without one,
// every LLM consumer falls back to its deterministic path.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// GuardrailsConfig mirrors the guardrail engine thresholds with YAML
// tags. Enabled is a pointer so an explicit `enabled: false` overlay
// survives the merge.
type GuardrailsConfig struct {
	Enabled                    *bool   `yaml:"enabled"`
	MinInstancesForRestart     int     `yaml:"min_instances_for_restart"`
	MinInstancesForRollback    int     `yaml:"min_instances_for_rollback"`
	MaxHorizontalInstances     int     `yaml:"max_horizontal_instances"`
	MinHorizontalInstances     int     `yaml:"min_horizontal_instances"`
	MaxVerticalCPU             float64 `yaml:"max_vertical_cpu"`
	MaxVerticalMemoryGB        float64 `yaml:"max_vertical_memory_gb"`
	MinTimeoutMs               int     `yaml:"min_timeout_ms"`
	MaxTimeoutMs               int     `yaml:"max_timeout_ms"`
	MaxCostPerIncident         float64 `yaml:"max_cost_per_incident"`
	MaxRestartsPerIncident     int     `yaml:"max_restarts_per_incident"`
	MaxRollbacksPerIncident    int     `yaml:"max_rollbacks_per_incident"`
	MaxTotalActionsPerIncident int     `yaml:"max_total_actions_per_incident"`
	BlockActionsIfHealthy      *bool   `yaml:"block_actions_if_healthy"`
	HealthyThreshold           float64 `yaml:"healthy_threshold"`
}

// EngineConfig converts the thresholds into the guardrail engine form.
func (g GuardrailsConfig) EngineConfig() guardrails.Config {
	enabled := true
	if g.Enabled != nil {
		enabled = *g.Enabled
	}
	blockIfHealthy := true
	if g.BlockActionsIfHealthy != nil {
		blockIfHealthy = *g.BlockActionsIfHealthy
	}
	return guardrails.Config{
		MinInstancesForRestart:     g.MinInstancesForRestart,
		MinInstancesForRollback:    g.MinInstancesForRollback,
		MaxHorizontalInstances:     g.MaxHorizontalInstances,
		MinHorizontalInstances:     g.MinHorizontalInstances,
		MaxVerticalCPU:             g.MaxVerticalCPU,
		MaxVerticalMemoryGB:        g.MaxVerticalMemoryGB,
		MinTimeoutMs:               g.MinTimeoutMs,
		MaxTimeoutMs:               g.MaxTimeoutMs,
		MaxCostPerIncident:         g.MaxCostPerIncident,
		MaxRestartsPerIncident:     g.MaxRestartsPerIncident,
		MaxRollbacksPerIncident:    g.MaxRollbacksPerIncident,
		MaxTotalActionsPerIncident: g.MaxTotalActionsPerIncident,
		BlockActionsIfHealthy:      blockIfHealthy,
		HealthyThreshold:           g.HealthyThreshold,
		Enabled:                    enabled,
	}
}

// Validate checks cross-field consistency. Called after all layers are
// applied.
func (c *Config) Validate() error {
	if c.Learning.MaxRuns < 0 {
		return fmt.Errorf("learning.max_runs must be >= 0, got %d", c.Learning.MaxRuns)
	}
	if c.Learning.ExplorationRate < 0 || c.Learning.ExplorationRate > 1 {
		return fmt.Errorf("learning.exploration_rate must be within [0, 1], got %g", c.Learning.ExplorationRate)
	}
	if c.Learning.PlannerPolicy != PolicyEpsilon && c.Learning.PlannerPolicy != PolicyUCB1 {
		return fmt.Errorf("learning.planner_policy must be %q or %q, got %q",
			PolicyEpsilon, PolicyUCB1, c.Learning.PlannerPolicy)
	}
	if c.Learning.MaxLoopIterations < 1 {
		return fmt.Errorf("learning.max_loop_iterations must be >= 1, got %d", c.Learning.MaxLoopIterations)
	}

	switch c.Memory.Backend {
	case BackendFile:
		if c.Memory.MemoryFilePath == "" || c.Memory.StrategyFilePath == "" {
			return fmt.Errorf("memory backend %q requires memory_file_path and strategy_file_path", BackendFile)
		}
	case BackendRedis:
		if c.Memory.RedisAddr == "" {
			return fmt.Errorf("memory backend %q requires redis_addr", BackendRedis)
		}
	default:
		return fmt.Errorf("memory.backend must be %q or %q, got %q",
			BackendFile, BackendRedis, c.Memory.Backend)
	}

	if c.LLM.Enabled() && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required when an API key is set")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must not be empty")
	}

	g := c.Guardrails
	if g.MinHorizontalInstances > g.MaxHorizontalInstances {
		return fmt.Errorf("guardrails: min_horizontal_instances %d exceeds max_horizontal_instances %d",
			g.MinHorizontalInstances, g.MaxHorizontalInstances)
	}
	if g.MinTimeoutMs > g.MaxTimeoutMs {
		return fmt.Errorf("guardrails: min_timeout_ms %d exceeds max_timeout_ms %d",
			g.MinTimeoutMs, g.MaxTimeoutMs)
	}
	if g.HealthyThreshold < 0 || g.HealthyThreshold > 1 {
		return fmt.Errorf("guardrails: healthy_threshold must be within [0, 1], got %g", g.HealthyThreshold)
	}
	return nil
}
