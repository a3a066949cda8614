package simulator

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoo-agent/evoo/pkg/models"
)

func newTestSimulator(seed uint64) *Simulator {
	return NewSeeded(seed, slog.Default())
}

func TestGenerateIncident_MetricsWithinProfile(t *testing.T) {
	sim := newTestSimulator(1)

	for i := 0; i < 200; i++ {
		incident := sim.GenerateIncident(i)
		require.NotNil(t, incident)

		profile, ok := incidentProfiles[incident.IncidentType]
		require.True(t, ok, "unknown incident type %s", incident.IncidentType)

		m := incident.MetricsAtDetection
		assert.GreaterOrEqual(t, m.LatencyMs, profile.LatencyMs.Lo)
		assert.LessOrEqual(t, m.LatencyMs, profile.LatencyMs.Hi)
		assert.GreaterOrEqual(t, m.CPUPercent, profile.CPUPercent.Lo)
		assert.LessOrEqual(t, m.CPUPercent, profile.CPUPercent.Hi)
		assert.GreaterOrEqual(t, m.MemoryPercent, profile.MemoryPercent.Lo)
		assert.LessOrEqual(t, m.MemoryPercent, profile.MemoryPercent.Hi)
		assert.GreaterOrEqual(t, m.ErrorRate, profile.ErrorRate.Lo)
		assert.LessOrEqual(t, m.ErrorRate, profile.ErrorRate.Hi)
		assert.GreaterOrEqual(t, m.Availability, profile.Availability.Lo)
		assert.LessOrEqual(t, m.Availability, profile.Availability.Hi)

		assert.GreaterOrEqual(t, m.ActiveInstances, 1)
		assert.LessOrEqual(t, m.ActiveInstances, 3)
		assert.Contains(t, timeoutChoices, m.TimeoutMs)

		_, known := profile.SeverityWeights[incident.Severity]
		assert.True(t, known, "severity %s not in profile weights", incident.Severity)

		assert.Len(t, incident.ID, 8)
		assert.Equal(t, "api-service", incident.AffectedService)
		assert.NotEmpty(t, incident.Description)
	}
}

func TestGenerateIncident_DeterministicWithSeed(t *testing.T) {
	simA := newTestSimulator(42)
	simB := newTestSimulator(42)

	for i := 0; i < 20; i++ {
		a := simA.GenerateIncident(i)
		b := simB.GenerateIncident(i)
		assert.Equal(t, a.IncidentType, b.IncidentType)
		assert.Equal(t, a.Severity, b.Severity)
		assert.Equal(t, a.MetricsAtDetection.LatencyMs, b.MetricsAtDetection.LatencyMs)
		assert.Equal(t, a.MetricsAtDetection.ErrorRate, b.MetricsAtDetection.ErrorRate)
		assert.Equal(t, a.MetricsAtDetection.ActiveInstances, b.MetricsAtDetection.ActiveInstances)
	}
}

func TestApplyStrategy_RestoresOnHighEffectiveness(t *testing.T) {
	sim := newTestSimulator(7)

	// Force a service_crash so restart_service hits its 0.95 entry.
	var incident *models.Incident
	for i := 0; i < 100; i++ {
		incident = sim.GenerateIncident(i)
		if incident.IncidentType == models.IncidentServiceCrash {
			break
		}
	}
	require.Equal(t, models.IncidentServiceCrash, incident.IncidentType)

	outcome := sim.ApplyStrategy(models.StrategyRestartService, nil)

	effect := effectFor(models.StrategyRestartService, models.IncidentServiceCrash)
	assert.Equal(t, 0.95, effect.Effectiveness)
	assert.GreaterOrEqual(t, outcome.RecoveryTimeSeconds, effect.RecoveryLo)
	assert.LessOrEqual(t, outcome.RecoveryTimeSeconds, effect.RecoveryHi)

	// Restored predicate must match the availability/error thresholds.
	expected := outcome.MetricsAfter.Availability >= 0.95 && outcome.MetricsAfter.ErrorRate <= 0.05
	assert.Equal(t, expected, outcome.ServiceRestored)
}

func TestApplyStrategy_MetricBounds(t *testing.T) {
	sim := newTestSimulator(11)

	for i := 0; i < 100; i++ {
		sim.GenerateIncident(i)
		strategy := models.AllStrategies[i%len(models.AllStrategies)]
		outcome := sim.ApplyStrategy(strategy, nil)

		m := outcome.MetricsAfter
		assert.GreaterOrEqual(t, m.CPUPercent, 0.0)
		assert.LessOrEqual(t, m.CPUPercent, 100.0)
		assert.GreaterOrEqual(t, m.MemoryPercent, 0.0)
		assert.LessOrEqual(t, m.MemoryPercent, 100.0)
		assert.GreaterOrEqual(t, m.ErrorRate, 0.0)
		assert.LessOrEqual(t, m.ErrorRate, 1.0)
		assert.GreaterOrEqual(t, m.Availability, 0.0)
		assert.LessOrEqual(t, m.Availability, 1.0)
		assert.GreaterOrEqual(t, outcome.Effectiveness, 0.0)
		assert.LessOrEqual(t, outcome.Effectiveness, 1.0)
	}
}

func TestApplyStrategy_ParameterCarryThrough(t *testing.T) {
	sim := newTestSimulator(3)
	sim.GenerateIncident(0)

	outcome := sim.ApplyStrategy(models.StrategyScaleHorizontal, map[string]any{
		"target_instances": 4,
	})
	assert.Equal(t, 4, outcome.MetricsAfter.ActiveInstances)

	sim.GenerateIncident(1)
	outcome = sim.ApplyStrategy(models.StrategyChangeTimeout, map[string]any{
		"new_timeout_ms": float64(15000),
	})
	assert.Equal(t, 15000, outcome.MetricsAfter.TimeoutMs)
}

func TestApplyStrategy_UnknownStrategyUsesDefaultEffect(t *testing.T) {
	effect := effectFor(models.Strategy("unheard_of"), models.IncidentServiceCrash)
	assert.Equal(t, defaultEffect, effect)

	sim := newTestSimulator(5)
	sim.GenerateIncident(0)
	outcome := sim.ApplyStrategy(models.Strategy("unheard_of"), nil)
	assert.GreaterOrEqual(t, outcome.RecoveryTimeSeconds, defaultEffect.RecoveryLo)
	assert.LessOrEqual(t, outcome.RecoveryTimeSeconds, defaultEffect.RecoveryHi)
}

func TestLerp_ZeroEffectivenessIsIdentity(t *testing.T) {
	// Applying a zero-effect remediation twice equals applying it once:
	// the interpolation leaves every metric where it started.
	values := []float64{0.0, 0.5, 120.0, 9999.9}
	for _, v := range values {
		once := lerp(v, baselineLatencyMs, 0)
		twice := lerp(once, baselineLatencyMs, 0)
		assert.Equal(t, v, once)
		assert.Equal(t, once, twice)
	}
}

func TestInfraCost(t *testing.T) {
	tests := []struct {
		name     string
		params   map[string]any
		expected float64
	}{
		{"base", nil, 1.0},
		{"three instances", map[string]any{"target_instances": 3}, 1.0},
		{"eight instances", map[string]any{"target_instances": 8}, 3.5},
		{"four cpu cores", map[string]any{"target_cpu": 4.0}, 1.6},
		{"both", map[string]any{"target_instances": 5, "target_cpu": 4.0}, 2.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			after := models.SystemMetrics{ActiveInstances: 2}
			assert.InDelta(t, tt.expected, infraCost(after, tt.params), 0.001)
		})
	}
}

func TestReset(t *testing.T) {
	sim := newTestSimulator(9)
	sim.GenerateIncident(0)
	require.NotNil(t, sim.CurrentIncident())

	sim.Reset()
	assert.Nil(t, sim.CurrentIncident())
}
