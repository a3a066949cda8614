// EVOO remediation agent — runs the detect/plan/execute/evaluate/learn
// loop against the incident simulator and serves the observation API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evoo-agent/evoo/pkg/agent"
	"github.com/evoo-agent/evoo/pkg/api"
	"github.com/evoo-agent/evoo/pkg/config"
	"github.com/evoo-agent/evoo/pkg/evaluator"
	"github.com/evoo-agent/evoo/pkg/guardrails"
	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/loop"
	"github.com/evoo-agent/evoo/pkg/memory"
	"github.com/evoo-agent/evoo/pkg/planner"
	"github.com/evoo-agent/evoo/pkg/simulator"
	"github.com/evoo-agent/evoo/pkg/tools"
	"github.com/evoo-agent/evoo/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// buildStores selects the persistence backend from configuration.
func buildStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.ExperienceStore, memory.StrategyStore, error) {
	if cfg.Memory.Backend == config.BackendRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.Memory.RedisAddr})
		experiences, err := memory.NewRedisExperienceStore(ctx, client, logger)
		if err != nil {
			return nil, nil, err
		}
		strategies, err := memory.NewRedisStrategyStore(ctx, client, logger)
		if err != nil {
			return nil, nil, err
		}
		return experiences, strategies, nil
	}

	experiences, err := memory.NewFileExperienceStore(cfg.Memory.MemoryFilePath, logger)
	if err != nil {
		return nil, nil, err
	}
	strategies, err := memory.NewFileStrategyStore(cfg.Memory.StrategyFilePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return experiences, strategies, nil
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	flag.Parse()

	logger := slog.Default()
	logger.Info("starting evoo", "version", version.Full(), "config_dir", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		logger.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	experiences, strategies, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize memory stores", "error", err)
		os.Exit(1)
	}

	// Without an API key every LLM consumer uses its deterministic
	// fallback, so the loop still runs end to end.
	var llmClient llm.Client
	if cfg.LLM.Enabled() {
		llmClient = llm.NewHTTPClient(llm.Config{
			BaseURL: cfg.LLM.BaseURL,
			APIKey:  cfg.LLM.APIKey,
			Model:   cfg.LLM.Model,
		}, logger)
		logger.Info("llm client initialized", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	} else {
		logger.Warn("no OPENAI_API_KEY set, running with deterministic fallbacks only")
	}

	seed := cfg.Learning.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("simulation seed selected", "seed", seed)

	sim := simulator.NewSeeded(seed, logger)
	guards := guardrails.NewEngine(cfg.Guardrails.EngineConfig(), logger)
	registry := tools.NewRegistry(llmClient, logger)

	strategyPlanner := planner.New(strategies, experiences, llmClient,
		rand.New(rand.NewPCG(seed, seed+1)),
		planner.Config{
			ExplorationRate: cfg.Learning.ExplorationRate,
			Policy:          planner.Policy(cfg.Learning.PlannerPolicy),
			Temperature:     cfg.LLM.TemperaturePlanning,
			MaxTokens:       cfg.LLM.MaxTokensPlanning,
		}, logger)

	executor := agent.New(llmClient, registry, guards, agent.Config{
		MaxIterations: cfg.Learning.MaxLoopIterations,
		Temperature:   cfg.LLM.TemperatureExecution,
		MaxTokens:     cfg.LLM.MaxTokensExecution,
	}, logger)

	eval := evaluator.New(llmClient, evaluator.Config{
		Temperature: cfg.LLM.TemperatureExecution,
	}, logger)

	runner := loop.New(sim, strategyPlanner, executor, eval,
		experiences, strategies, nil,
		loop.Config{
			MaxRuns:        cfg.Learning.MaxRuns,
			CheckpointPath: cfg.Learning.CheckpointPath,
		}, logger)

	server := api.NewServer(runner, experiences, strategies, guards, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Handler(),
	}

	runner.Start(ctx)
	logger.Info("learning loop started", "max_runs", cfg.Learning.MaxRuns)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server error triggered shutdown", "error", err)
	}

	// Halt the loop at its next phase boundary, then shut down.
	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("learning loop stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn("learning loop shutdown timeout exceeded")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
