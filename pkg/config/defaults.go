package config

func boolPtr(v bool) *bool { return &v }

// DefaultConfig returns the built-in defaults. The guardrail values
// match the engine's production defaults.
func DefaultConfig() *Config {
	return &Config{
		Learning: LearningConfig{
			MaxRuns:           50,
			ExplorationRate:   0.2,
			PlannerPolicy:     PolicyEpsilon,
			MaxLoopIterations: 8,
			CheckpointPath:    "/tmp/evoo_checkpoint.json",
		},
		Memory: MemoryConfig{
			Backend:          BackendFile,
			MemoryFilePath:   "/tmp/evoo_memory.json",
			StrategyFilePath: "/tmp/evoo_strategies.json",
		},
		LLM: LLMConfig{
			BaseURL:              "https://api.openai.com/v1",
			Model:                "gpt-4o-mini",
			TemperaturePlanning:  0.3,
			TemperatureExecution: 0.2,
			MaxTokensPlanning:    800,
			MaxTokensExecution:   500,
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Guardrails: GuardrailsConfig{
			Enabled:                    boolPtr(true),
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
			BlockActionsIfHealthy:      boolPtr(true),
			HealthyThreshold:           0.85,
		},
	}
}
