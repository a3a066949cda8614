package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// yamlFileName is the optional overlay file inside the config directory.
const yamlFileName = "evoo.yaml"

// Initialize loads, layers, and validates the configuration.
//
// Steps performed:
//  1. Load .env from configDir (optional)
//  2. Start from built-in defaults
//  3. Merge the evoo.yaml overlay (optional)
//  4. Apply environment variable overrides
//  5. Validate the result
func Initialize(_ context.Context, configDir string) (*Config, error) {
	logger := slog.With("component", "config", "config_dir", configDir)

	loadDotEnv(configDir, logger)

	cfg := DefaultConfig()
	if err := applyYAML(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading %s: %w", yamlFileName, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info("configuration initialized",
		"max_runs", cfg.Learning.MaxRuns,
		"planner_policy", cfg.Learning.PlannerPolicy,
		"memory_backend", cfg.Memory.Backend,
		"llm_enabled", cfg.LLM.Enabled(),
		"guardrails_enabled", cfg.Guardrails.EngineConfig().Enabled)
	return cfg, nil
}

// loadDotEnv loads configDir/.env when present. Existing environment
// variables win over .env entries.
func loadDotEnv(configDir string, logger *slog.Logger) {
	if configDir == "" {
		return
	}
	path := filepath.Join(configDir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.Warn("failed to load .env file", "path", path, "error", err)
	}
}

// applyYAML merges the optional evoo.yaml overlay onto cfg. Absent file
// is not an error; zero values in the overlay keep the defaults.
func applyYAML(configDir string, cfg *Config) error {
	if configDir == "" {
		return nil
	}
	path := filepath.Join(configDir, yamlFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	return mergo.Merge(cfg, overlay, mergo.WithOverride)
}

// envParser applies environment overrides, accumulating the first
// parse error.
type envParser struct {
	err error
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func (p *envParser) intVal(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %q is not an integer", key, v)
		return
	}
	*dst = parsed
}

func (p *envParser) floatVal(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %q is not a number", key, v)
		return
	}
	*dst = parsed
}

func (p *envParser) uintVal(key string, dst *uint64) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	parsed, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.err = fmt.Errorf("%s: %q is not an unsigned integer", key, v)
		return
	}
	*dst = parsed
}

func (p *envParser) boolPtr(key string, dst **bool) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		p.err = fmt.Errorf("%s: %q is not a boolean", key, v)
		return
	}
	*dst = &parsed
}

// applyEnv overrides cfg fields from the environment.
func applyEnv(cfg *Config) error {
	p := &envParser{}

	p.intVal("MAX_LEARNING_RUNS", &cfg.Learning.MaxRuns)
	p.floatVal("EXPLORATION_RATE", &cfg.Learning.ExplorationRate)
	p.str("PLANNER_POLICY", &cfg.Learning.PlannerPolicy)
	p.intVal("MAX_AGENT_LOOP_ITERATIONS", &cfg.Learning.MaxLoopIterations)
	p.str("CHECKPOINT_PATH", &cfg.Learning.CheckpointPath)
	p.uintVal("EVOO_SEED", &cfg.Learning.Seed)

	p.str("MEMORY_BACKEND", &cfg.Memory.Backend)
	p.str("MEMORY_FILE_PATH", &cfg.Memory.MemoryFilePath)
	p.str("STRATEGY_FILE_PATH", &cfg.Memory.StrategyFilePath)
	p.str("REDIS_ADDR", &cfg.Memory.RedisAddr)

	p.str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	p.str("OPENAI_BASE_URL", &cfg.LLM.BaseURL)
	p.str("OPENAI_MODEL", &cfg.LLM.Model)
	p.floatVal("LLM_TEMPERATURE_PLANNING", &cfg.LLM.TemperaturePlanning)
	p.floatVal("LLM_TEMPERATURE_EXECUTION", &cfg.LLM.TemperatureExecution)
	p.intVal("LLM_MAX_TOKENS_PLANNING", &cfg.LLM.MaxTokensPlanning)
	p.intVal("LLM_MAX_TOKENS_EXECUTION", &cfg.LLM.MaxTokensExecution)

	p.str("LISTEN_ADDR", &cfg.Server.ListenAddr)

	p.boolPtr("EVOO_GUARDRAILS_ENABLED", &cfg.Guardrails.Enabled)
	p.intVal("EVOO_MIN_INSTANCES_FOR_RESTART", &cfg.Guardrails.MinInstancesForRestart)
	p.intVal("EVOO_MIN_INSTANCES_FOR_ROLLBACK", &cfg.Guardrails.MinInstancesForRollback)
	p.intVal("EVOO_MAX_HORIZONTAL_INSTANCES", &cfg.Guardrails.MaxHorizontalInstances)
	p.intVal("EVOO_MIN_HORIZONTAL_INSTANCES", &cfg.Guardrails.MinHorizontalInstances)
	p.floatVal("EVOO_MAX_VERTICAL_CPU", &cfg.Guardrails.MaxVerticalCPU)
	p.floatVal("EVOO_MAX_VERTICAL_MEMORY_GB", &cfg.Guardrails.MaxVerticalMemoryGB)
	p.intVal("EVOO_MIN_TIMEOUT_MS", &cfg.Guardrails.MinTimeoutMs)
	p.intVal("EVOO_MAX_TIMEOUT_MS", &cfg.Guardrails.MaxTimeoutMs)
	p.floatVal("EVOO_MAX_COST_PER_INCIDENT", &cfg.Guardrails.MaxCostPerIncident)
	p.intVal("EVOO_MAX_RESTARTS_PER_INCIDENT", &cfg.Guardrails.MaxRestartsPerIncident)
	p.intVal("EVOO_MAX_ROLLBACKS_PER_INCIDENT", &cfg.Guardrails.MaxRollbacksPerIncident)
	p.intVal("EVOO_MAX_TOTAL_ACTIONS_PER_INCIDENT", &cfg.Guardrails.MaxTotalActionsPerIncident)
	p.boolPtr("EVOO_BLOCK_ACTIONS_IF_HEALTHY", &cfg.Guardrails.BlockActionsIfHealthy)
	p.floatVal("EVOO_HEALTHY_THRESHOLD", &cfg.Guardrails.HealthyThreshold)

	return p.err
}
