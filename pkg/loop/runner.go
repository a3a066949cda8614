// Package loop drives the detect/plan/execute/evaluate/learn cycle. The
// runner is a five-state machine that checkpoints after every
// transition, terminating in Completed when the run budget is spent or a
// stop is requested, and in Failed only when persistence gives out.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evoo-agent/evoo/pkg/agent"
	"github.com/evoo-agent/evoo/pkg/evaluator"
	"github.com/evoo-agent/evoo/pkg/memory"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/planner"
	"github.com/evoo-agent/evoo/pkg/simulator"
)

// State names one phase of the learning loop.
type State string

const (
	StateWaitingForIncident   State = "waiting_for_incident"
	StatePlanningRemediation  State = "planning_remediation"
	StateExecutingRemediation State = "executing_remediation"
	StateEvaluatingOutcome    State = "evaluating_outcome"
	StateUpdatingStrategy     State = "updating_strategy"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

const defaultHeartbeatInterval = 30 * time.Second

// Observer receives one observation per completed run.
type Observer func(models.RunObservation)

// Config tunes the runner.
type Config struct {
	MaxRuns           int
	CheckpointPath    string
	HeartbeatInterval time.Duration
}

// Status is a snapshot of the runner for reporting surfaces.
type Status struct {
	State         State                  `json:"state"`
	RunsCompleted int                    `json:"runs_completed"`
	MaxRuns       int                    `json:"max_runs"`
	LastRun       *models.RunObservation `json:"last_run,omitempty"`
}

// Runner owns the learning loop.
type Runner struct {
	sim         *simulator.Simulator
	planner     *planner.Planner
	executor    *agent.Executor
	evaluator   *evaluator.Evaluator
	experiences memory.ExperienceStore
	strategies  memory.StrategyStore
	observer    Observer
	config      Config
	logger      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.RWMutex
	state   State
	runs    int
	lastRun *models.RunObservation
}

// New builds a runner. observer may be nil.
func New(sim *simulator.Simulator, p *planner.Planner, executor *agent.Executor, eval *evaluator.Evaluator, experiences memory.ExperienceStore, strategies memory.StrategyStore, observer Observer, config Config, logger *slog.Logger) *Runner {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	}
	return &Runner{
		sim:         sim,
		planner:     p,
		executor:    executor,
		evaluator:   eval,
		experiences: experiences,
		strategies:  strategies,
		observer:    observer,
		config:      config,
		logger:      logger.With("component", "loop"),
		stopCh:      make(chan struct{}),
		state:       StateWaitingForIncident,
	}
}

// Start runs the loop in a goroutine, with a heartbeat logger alongside.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		if err := r.Run(ctx); err != nil {
			r.logger.Error("learning loop failed", "error", err)
		}
	}()
	go r.heartbeat(ctx)
}

// Stop signals the loop to halt at the next phase boundary and waits.
// A run in flight is abandoned and the checkpoint is stamped completed.
// Safe to call multiple times.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// RequestStop signals the loop without waiting, for use from handlers.
func (r *Runner) RequestStop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Status returns the current loop snapshot.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		State:         r.state,
		RunsCompleted: r.runs,
		MaxRuns:       r.config.MaxRuns,
		LastRun:       r.lastRun,
	}
}

// Run executes the loop synchronously until the budget is spent, a stop
// is requested, or persistence fails. A checkpoint left by a previous
// process resumes mid-run at its recorded state.
func (r *Runner) Run(ctx context.Context) error {
	cp, err := loadCheckpoint(r.config.CheckpointPath)
	if err != nil {
		r.setState(StateFailed)
		return fmt.Errorf("restoring learning loop state: %w", err)
	}
	if cp.State == StateCompleted || cp.State == StateFailed {
		cp.resetRun()
		cp.RunIndex = 0
	}
	r.mu.Lock()
	r.runs = cp.RunIndex
	r.mu.Unlock()

	if cp.RunIndex > 0 || cp.State != StateWaitingForIncident {
		r.logger.Info("resuming from checkpoint", "run_index", cp.RunIndex, "state", cp.State)
	}
	if cp.Incident != nil {
		r.sim.Restore(cp.Incident)
	}
	r.logger.Info("learning loop starting", "max_runs", r.config.MaxRuns, "completed", cp.RunIndex)

	for cp.RunIndex < r.config.MaxRuns {
		if r.stopRequested(ctx) {
			r.logger.Info("stop requested, completing", "runs_completed", cp.RunIndex)
			break
		}
		if err := r.step(ctx, cp); err != nil {
			r.setState(StateFailed)
			cp.State = StateFailed
			if saveErr := saveCheckpoint(r.config.CheckpointPath, cp); saveErr != nil {
				r.logger.Error("checkpoint write failed in failure path", "error", saveErr)
			}
			return err
		}
	}

	r.setState(StateCompleted)
	cp.State = StateCompleted
	if err := saveCheckpoint(r.config.CheckpointPath, cp); err != nil {
		r.logger.Warn("final checkpoint write failed", "error", err)
	}
	r.logger.Info("learning loop complete", "runs_completed", cp.RunIndex)
	return nil
}

// step advances the state machine by one transition and checkpoints.
func (r *Runner) step(ctx context.Context, cp *Checkpoint) error {
	r.setState(cp.State)

	switch cp.State {
	case StateWaitingForIncident:
		incident := r.sim.GenerateIncident(cp.RunIndex)
		cp.Incident = incident
		cp.State = StatePlanningRemediation
		r.logger.Info("incident detected",
			"run_index", cp.RunIndex,
			"incident", incident.ID,
			"incident_type", incident.IncidentType,
			"severity", incident.Severity)

	case StatePlanningRemediation:
		if err := r.planPhase(ctx, cp); err != nil {
			return err
		}

	case StateExecutingRemediation:
		if err := r.executePhase(ctx, cp); err != nil {
			return err
		}

	case StateEvaluatingOutcome:
		r.evaluatePhase(ctx, cp)

	case StateUpdatingStrategy:
		if err := r.learnPhase(ctx, cp); err != nil {
			return err
		}
	}

	return saveCheckpoint(r.config.CheckpointPath, cp)
}

func (r *Runner) planPhase(ctx context.Context, cp *Checkpoint) error {
	plan, err := r.planner.Plan(ctx, cp.Incident, cp.RunIndex, false)
	if err != nil {
		return fmt.Errorf("planning run %d: %w", cp.RunIndex, err)
	}
	cp.Plan = plan
	cp.State = StateExecutingRemediation
	return nil
}

func (r *Runner) executePhase(ctx context.Context, cp *Checkpoint) error {
	result, err := r.executor.Execute(ctx, cp.Incident, cp.Plan)
	if err != nil {
		return fmt.Errorf("executing run %d: %w", cp.RunIndex, err)
	}
	// Per-tool results are narrative; the strategy effect mutates the
	// environment exactly once per run. When no remediation tool
	// actually executed (all blocked, or the plan never got that far),
	// nothing touched the environment and the metrics stay where
	// detection found them.
	var outcome simulator.Outcome
	if result.RemediationActions > 0 {
		outcome = r.sim.ApplyStrategy(cp.Plan.Strategy, cp.Plan.ToolParameters)
	} else {
		r.logger.Warn("no remediation action executed, metrics unchanged",
			"run_index", cp.RunIndex, "blocked", len(result.BlockedActions))
		outcome = unchangedOutcome(cp.Incident)
	}
	cp.ToolResults = result.ToolResults
	cp.ActionsTaken = result.ActionsTaken
	cp.FinishedNaturally = result.FinishedNaturally
	cp.Outcome = &outcome
	cp.State = StateEvaluatingOutcome
	return nil
}

func (r *Runner) evaluatePhase(ctx context.Context, cp *Checkpoint) {
	cp.Evaluation = r.evaluator.Evaluate(ctx, cp.Incident, cp.Plan.Strategy, *cp.Outcome)
	cp.State = StateUpdatingStrategy
}

func (r *Runner) learnPhase(ctx context.Context, cp *Checkpoint) error {
	exp := evaluator.BuildExperience(cp.RunIndex, cp.Incident, cp.Plan.Strategy,
		cp.ActionsTaken, cp.ToolResults, *cp.Outcome, cp.Evaluation)
	if err := r.experiences.Store(ctx, exp); err != nil {
		r.logger.Warn("experience write failed, retrying once", "error", err)
		if err = r.experiences.Store(ctx, exp); err != nil {
			return fmt.Errorf("persisting experience for run %d: %w", cp.RunIndex, err)
		}
	}
	if _, err := r.strategies.Update(ctx, exp.IncidentType, exp.StrategyUsed,
		exp.Reward, exp.RecoveryTimeSeconds, exp.Success); err != nil {
		r.logger.Warn("strategy update failed, retrying once", "error", err)
		if _, err = r.strategies.Update(ctx, exp.IncidentType, exp.StrategyUsed,
			exp.Reward, exp.RecoveryTimeSeconds, exp.Success); err != nil {
			return fmt.Errorf("updating strategy record for run %d: %w", cp.RunIndex, err)
		}
	}
	r.finishRun(cp)
	return nil
}

// ErrLoopBusy rejects a manual trigger while the learning loop still
// owns the simulator.
var ErrLoopBusy = errors.New("learning loop is active")

// Trigger runs one ad-hoc remediation cycle for the given incident type.
// Only available once the loop has completed; the result is persisted
// and counted like a regular run but never checkpointed. The state claim
// is atomic, so concurrent triggers serialize: one runs, the rest see
// ErrLoopBusy, and the simulator never hosts two incidents at once.
func (r *Runner) Trigger(ctx context.Context, incidentType models.IncidentType) (*models.RunObservation, error) {
	r.mu.Lock()
	if r.state != StateCompleted {
		r.mu.Unlock()
		return nil, ErrLoopBusy
	}
	r.state = StatePlanningRemediation
	runIndex := r.runs
	r.mu.Unlock()
	defer r.setState(StateCompleted)

	cp := &Checkpoint{RunIndex: runIndex, State: StatePlanningRemediation}
	cp.Incident = r.sim.GenerateTyped(incidentType, runIndex)
	r.logger.Info("manual incident triggered",
		"incident_type", incidentType, "incident", cp.Incident.ID)

	if err := r.planPhase(ctx, cp); err != nil {
		return nil, err
	}
	if err := r.executePhase(ctx, cp); err != nil {
		return nil, err
	}
	r.evaluatePhase(ctx, cp)
	if err := r.learnPhase(ctx, cp); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun, nil
}

// finishRun publishes the run observation and resets for the next run.
func (r *Runner) finishRun(cp *Checkpoint) {
	observation := models.RunObservation{
		RunIndex:            cp.RunIndex,
		IncidentType:        cp.Incident.IncidentType,
		Strategy:            cp.Plan.Strategy,
		IsExploratory:       cp.Plan.IsExploratory,
		ServiceRestored:     cp.Outcome.ServiceRestored,
		Reward:              cp.Evaluation.Reward,
		RecoveryTimeSeconds: cp.Outcome.RecoveryTimeSeconds,
		LLMVerdict:          cp.Evaluation.Verdict,
	}

	r.logger.Info("run complete",
		"run_index", cp.RunIndex,
		"incident_type", observation.IncidentType,
		"strategy", observation.Strategy,
		"restored", observation.ServiceRestored,
		"reward", observation.Reward,
		"verdict", observation.LLMVerdict)

	if r.observer != nil {
		r.observer(observation)
	}

	cp.RunIndex++
	cp.resetRun()

	r.mu.Lock()
	r.runs = cp.RunIndex
	r.lastRun = &observation
	r.mu.Unlock()
}

// unchangedOutcome reports the detection-time metrics as the final
// state of a run in which no remediation tool executed.
func unchangedOutcome(incident *models.Incident) simulator.Outcome {
	after := incident.MetricsAtDetection
	after.Timestamp = time.Now().UTC()
	return simulator.Outcome{
		MetricsAfter:    after,
		ServiceRestored: after.Availability >= 0.95 && after.ErrorRate <= 0.05,
	}
}

func (r *Runner) stopRequested(ctx context.Context) bool {
	select {
	case <-r.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Runner) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Runner) heartbeat(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := r.Status()
			r.logger.Info("loop heartbeat",
				"state", status.State,
				"runs_completed", status.RunsCompleted,
				"max_runs", status.MaxRuns)
		}
	}
}
