// Package simulator models the production system the agent remediates.
// It samples incidents from fixed per-type profiles and applies strategy
// effects that interpolate metrics toward a healthy baseline.
package simulator

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evoo-agent/evoo/pkg/models"
)

// Healthy-baseline metrics the remediation effect interpolates toward.
const (
	baselineLatencyMs    = 120.0
	baselineCPUPercent   = 25.0
	baselineMemory       = 45.0
	baselineErrorRate    = 0.005
	baselineAvailability = 0.999
)

// effectivenessNoiseSigma perturbs the tabled effectiveness per application.
const effectivenessNoiseSigma = 0.08

var timeoutChoices = []int{5000, 10000, 30000, 60000}

// Outcome is the result of applying one strategy to the active incident.
type Outcome struct {
	MetricsAfter        models.SystemMetrics `json:"metrics_after"`
	RecoveryTimeSeconds float64              `json:"recovery_time_seconds"`
	ServiceRestored     bool                 `json:"service_restored"`
	Effectiveness       float64              `json:"effectiveness"`
	InfrastructureCost  float64              `json:"infrastructure_cost"`
}

// Simulator is the stochastic stand-in for a production service. All
// randomness flows through the injected source so seeded runs reproduce
// the same incident and outcome sequence.
type Simulator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	logger      *slog.Logger
	serviceName string
	current     *models.Incident
}

// New creates a simulator drawing from the given random source.
func New(rng *rand.Rand, logger *slog.Logger) *Simulator {
	return &Simulator{
		rng:         rng,
		logger:      logger.With("component", "simulator"),
		serviceName: "api-service",
	}
}

// NewSeeded creates a simulator with a deterministic PCG source.
func NewSeeded(seed uint64, logger *slog.Logger) *Simulator {
	return New(rand.New(rand.NewPCG(seed, seed)), logger)
}

// GenerateIncident samples a fresh incident, replacing any active one.
func (s *Simulator) GenerateIncident(runIndex int) *models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()

	incidentType := models.AllIncidentTypes[s.rng.IntN(len(models.AllIncidentTypes))]
	return s.generate(incidentType, runIndex)
}

// GenerateTyped samples a fresh incident of the given type, replacing
// any active one. Used by the manual trigger surface.
func (s *Simulator) GenerateTyped(incidentType models.IncidentType, runIndex int) *models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generate(incidentType, runIndex)
}

func (s *Simulator) generate(incidentType models.IncidentType, runIndex int) *models.Incident {
	profile := incidentProfiles[incidentType]

	metrics := models.SystemMetrics{
		LatencyMs:       round2(s.uniform(profile.LatencyMs)),
		CPUPercent:      round2(s.uniform(profile.CPUPercent)),
		MemoryPercent:   round2(s.uniform(profile.MemoryPercent)),
		ErrorRate:       roundN(s.uniform(profile.ErrorRate), 3),
		Availability:    roundN(s.uniform(profile.Availability), 3),
		ActiveInstances: 1 + s.rng.IntN(3),
		TimeoutMs:       timeoutChoices[s.rng.IntN(len(timeoutChoices))],
		Timestamp:       time.Now().UTC(),
	}

	incident := &models.Incident{
		ID:                 uuid.NewString()[:8],
		IncidentType:       incidentType,
		Severity:           s.pickSeverity(profile.SeverityWeights),
		AffectedService:    s.serviceName,
		MetricsAtDetection: metrics,
		DetectedAt:         time.Now().UTC(),
		Description:        describe(incidentType, metrics),
	}
	s.current = incident

	s.logger.Info("generated incident",
		"run_index", runIndex,
		"incident_type", incidentType,
		"severity", incident.Severity,
		"incident_id", incident.ID)
	return incident
}

// ApplyStrategy applies the full-strategy effect to the active incident and
// returns the post-remediation outcome. The simulator effect is the only
// environmental mutator; individual tool calls never perturb metrics.
func (s *Simulator) ApplyStrategy(strategy models.Strategy, params map[string]any) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := models.SystemMetrics{
		LatencyMs:       baselineLatencyMs,
		CPUPercent:      baselineCPUPercent,
		MemoryPercent:   baselineMemory,
		ErrorRate:       baselineErrorRate,
		Availability:    baselineAvailability,
		ActiveInstances: 2,
		TimeoutMs:       timeoutChoices[0],
	}
	incidentType := models.IncidentServiceCrash
	if s.current != nil {
		before = s.current.MetricsAtDetection
		incidentType = s.current.IncidentType
	}

	effect := effectFor(strategy, incidentType)
	effectiveness := clamp01(effect.Effectiveness + s.rng.NormFloat64()*effectivenessNoiseSigma)
	recoveryTime := roundN(s.uniformRange(effect.RecoveryLo, effect.RecoveryHi), 1)

	after := models.SystemMetrics{
		LatencyMs:           roundN(lerp(before.LatencyMs, baselineLatencyMs, effectiveness), 1),
		CPUPercent:          roundN(lerp(before.CPUPercent, baselineCPUPercent, effectiveness), 1),
		MemoryPercent:       roundN(lerp(before.MemoryPercent, baselineMemory, effectiveness), 1),
		ErrorRate:           roundN(lerp(before.ErrorRate, baselineErrorRate, effectiveness), 4),
		Availability:        roundN(lerp(before.Availability, baselineAvailability, effectiveness), 4),
		ActiveInstances:     intParam(params, "target_instances", before.ActiveInstances),
		TimeoutMs:           intParam(params, "new_timeout_ms", before.TimeoutMs),
		RecoveryTimeSeconds: recoveryTime,
		Timestamp:           time.Now().UTC(),
	}

	restored := after.Availability >= 0.95 && after.ErrorRate <= 0.05

	outcome := Outcome{
		MetricsAfter:        after,
		RecoveryTimeSeconds: recoveryTime,
		ServiceRestored:     restored,
		Effectiveness:       effectiveness,
		InfrastructureCost:  infraCost(after, params),
	}

	s.logger.Info("applied remediation",
		"strategy", strategy,
		"effectiveness", fmt.Sprintf("%.2f", effectiveness),
		"recovery_seconds", recoveryTime,
		"restored", restored)
	return outcome
}

// Restore reinstates a previously generated incident as the active one,
// used when a checkpointed run resumes in a fresh process.
func (s *Simulator) Restore(incident *models.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = incident
}

// CurrentIncident returns the active incident, or nil when the system is idle.
func (s *Simulator) CurrentIncident() *models.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset clears the active incident, returning the system to an idle state.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

func (s *Simulator) uniform(r metricRange) float64 {
	return s.uniformRange(r.Lo, r.Hi)
}

func (s *Simulator) uniformRange(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// pickSeverity draws from the profile's categorical weights in a fixed
// severity order so seeded draws are stable.
func (s *Simulator) pickSeverity(weights map[models.Severity]float64) models.Severity {
	var total float64
	for _, sev := range severityOrder {
		total += weights[sev]
	}
	draw := s.rng.Float64() * total
	var cumulative float64
	for _, sev := range severityOrder {
		w := weights[sev]
		if w == 0 {
			continue
		}
		cumulative += w
		if draw < cumulative {
			return sev
		}
	}
	return models.SeverityMedium
}

// infraCost estimates the relative infrastructure cost of a remediation.
func infraCost(after models.SystemMetrics, params map[string]any) float64 {
	cost := 1.0
	instances := intParam(params, "target_instances", after.ActiveInstances)
	if instances > 3 {
		cost += float64(instances-3) * 0.5
	}
	cpuCores := floatParam(params, "target_cpu", 1)
	if cpuCores > 2 {
		cost += (cpuCores - 2) * 0.3
	}
	return round2(cost)
}

func describe(t models.IncidentType, m models.SystemMetrics) string {
	switch t {
	case models.IncidentServiceCrash:
		return fmt.Sprintf("Service api-service has crashed. Error rate at %.0f%%, availability %.0f%%.",
			m.ErrorRate*100, m.Availability*100)
	case models.IncidentHighLatency:
		return fmt.Sprintf("P99 latency spiked to %.0fms. CPU at %.1f%%.", m.LatencyMs, m.CPUPercent)
	case models.IncidentCPUSpike:
		return fmt.Sprintf("CPU usage hit %.1f%%. Service is throttling requests.", m.CPUPercent)
	case models.IncidentMemoryLeak:
		return fmt.Sprintf("Memory usage at %.1f%%. OOMKiller risk imminent.", m.MemoryPercent)
	case models.IncidentNetworkDegradation:
		return fmt.Sprintf("Network packet loss detected. Latency %.0fms, error rate %.0f%%.",
			m.LatencyMs, m.ErrorRate*100)
	case models.IncidentTimeoutMisconfig:
		return fmt.Sprintf("Client timeouts at %dms causing cascading failures. Error rate %.0f%%.",
			m.TimeoutMs, m.ErrorRate*100)
	}
	return fmt.Sprintf("Incident detected on %s.", "api-service")
}

func lerp(from, to, factor float64) float64 {
	return from + (to-from)*factor
}

func clamp01(v float64) float64 {
	return math.Max(0.0, math.Min(1.0, v))
}

func round2(v float64) float64 {
	return roundN(v, 2)
}

func roundN(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// intParam reads an integer parameter that may arrive as any JSON number.
func intParam(params map[string]any, key string, fallback int) int {
	if params == nil {
		return fallback
	}
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

// floatParam reads a float parameter that may arrive as any JSON number.
func floatParam(params map[string]any, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
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
