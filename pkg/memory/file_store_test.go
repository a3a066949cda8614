package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoo-agent/evoo/pkg/models"
)

func testExperience(id string, t models.IncidentType, strategy models.Strategy, reward float64, restored bool) models.Experience {
	return models.Experience{
		ID:                  id,
		Timestamp:           time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		IncidentType:        t,
		IncidentSeverity:    models.SeverityHigh,
		StrategyUsed:        strategy,
		ToolsCalled:         []string{"analyze_logs", string(strategy)},
		ToolResults:         []models.ToolResult{},
		RecoveryTimeSeconds: 20,
		ServiceRestored:     restored,
		InfrastructureCost:  1.0,
		Reward:              reward,
		RewardBreakdown:     map[string]float64{"service_restored": 100},
		LLMVerdict:          models.VerdictGood,
		Success:             restored,
	}
}

func TestFileExperienceStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "memory.json")

	store, err := NewFileExperienceStore(path, slog.Default())
	require.NoError(t, err)

	exp := testExperience("exp-1", models.IncidentServiceCrash, models.StrategyRestartService, 85.5, true)
	require.NoError(t, store.Store(ctx, exp))

	// A fresh store over the same file must observe the identical record.
	reloaded, err := NewFileExperienceStore(path, slog.Default())
	require.NoError(t, err)

	all, err := reloaded.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, exp, all[0])
}

func TestFileExperienceStore_QueryByIncident(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileExperienceStore(filepath.Join(t.TempDir(), "memory.json"), slog.Default())
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, testExperience("a", models.IncidentServiceCrash, models.StrategyRestartService, 10, true)))
	require.NoError(t, store.Store(ctx, testExperience("b", models.IncidentHighLatency, models.StrategyScaleHorizontal, 20, true)))
	require.NoError(t, store.Store(ctx, testExperience("c", models.IncidentServiceCrash, models.StrategyRollbackDeployment, 30, false)))

	matches, err := store.QueryByIncident(ctx, models.IncidentServiceCrash, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Most recent first.
	assert.Equal(t, "c", matches[0].ID)
	assert.Equal(t, "a", matches[1].ID)

	limited, err := store.QueryByIncident(ctx, models.IncidentServiceCrash, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestFileExperienceStore_Summary(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileExperienceStore(filepath.Join(t.TempDir(), "memory.json"), slog.Default())
	require.NoError(t, err)

	empty, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalExperiences)
	assert.Zero(t, empty.AverageReward)
	assert.Empty(t, empty.ImprovementTrend)

	require.NoError(t, store.Store(ctx, testExperience("a", models.IncidentServiceCrash, models.StrategyRestartService, 80, true)))
	require.NoError(t, store.Store(ctx, testExperience("b", models.IncidentServiceCrash, models.StrategyRollbackDeployment, 40, true)))
	require.NoError(t, store.Store(ctx, testExperience("c", models.IncidentHighLatency, models.StrategyScaleHorizontal, 60, true)))

	summary, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalExperiences)
	assert.InDelta(t, 60.0, summary.AverageReward, 0.001)
	assert.Equal(t, 80.0, summary.BestReward)
	assert.Equal(t, 40.0, summary.WorstReward)
	assert.Equal(t, []float64{80, 40, 60}, summary.ImprovementTrend)

	crashRankings := summary.StrategyRankings[models.IncidentServiceCrash]
	require.Len(t, crashRankings, 2)
	assert.Equal(t, models.StrategyRestartService, crashRankings[0].Strategy)
	assert.InDelta(t, 80.0, crashRankings[0].AverageReward, 0.001)
}

func TestFileStrategyStore_UpdateInvariants(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStrategyStore(filepath.Join(t.TempDir(), "strategies.json"), slog.Default())
	require.NoError(t, err)

	rec, err := store.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 90, 15, true)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalUses)
	assert.Equal(t, 1, rec.SuccessCount)
	assert.Equal(t, 0, rec.FailureCount)
	assert.InDelta(t, 90.0, rec.AverageReward, 0.001)
	assert.InDelta(t, 1.0, rec.SuccessRate, 0.001)
	assert.False(t, rec.FirstUsed.IsZero())

	rec, err = store.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 30, 25, false)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TotalUses)
	assert.Equal(t, rec.TotalUses, rec.SuccessCount+rec.FailureCount)
	assert.InDelta(t, 60.0, rec.AverageReward, 0.001)
	assert.InDelta(t, 0.5, rec.SuccessRate, 0.001)
	assert.InDelta(t, 20.0, rec.AverageRecoveryTime, 0.001)
}

func TestFileStrategyStore_RoundTripAndKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "strategies.json")

	store, err := NewFileStrategyStore(path, slog.Default())
	require.NoError(t, err)
	_, err = store.Update(ctx, models.IncidentMemoryLeak, models.StrategyClearCache, 55, 10, true)
	require.NoError(t, err)

	reloaded, err := NewFileStrategyStore(path, slog.Default())
	require.NoError(t, err)

	rec, err := reloaded.Get(ctx, models.IncidentMemoryLeak, models.StrategyClearCache)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalUses)
	assert.InDelta(t, 55.0, rec.AverageReward, 0.001)

	_, err = reloaded.Get(ctx, models.IncidentMemoryLeak, models.StrategyRebalanceLoad)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStrategyStore_KeyIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "strategies.json")

	// Embedded fields disagree with the key; the key must win on load.
	require.NoError(t, os.WriteFile(path, []byte(`{
		"memory_leak::clear_cache": {
			"incident_type": "cpu_spike",
			"strategy": "restart_service",
			"total_uses": 3,
			"average_reward": 42.0
		}
	}`), 0o644))

	store, err := NewFileStrategyStore(path, slog.Default())
	require.NoError(t, err)

	rec, err := store.Get(ctx, models.IncidentMemoryLeak, models.StrategyClearCache)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentMemoryLeak, rec.IncidentType)
	assert.Equal(t, models.StrategyClearCache, rec.Strategy)
	assert.Equal(t, 3, rec.TotalUses)
}

func TestFileStrategyStore_MalformedKeyFailsLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"no-separator": {}}`), 0o644))

	_, err := NewFileStrategyStore(path, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy record key")
}

func TestFileStrategyStore_KnownAndRankings(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStrategyStore(filepath.Join(t.TempDir(), "strategies.json"), slog.Default())
	require.NoError(t, err)

	_, err = store.Update(ctx, models.IncidentHighLatency, models.StrategyScaleHorizontal, 70, 30, true)
	require.NoError(t, err)
	_, err = store.Update(ctx, models.IncidentHighLatency, models.StrategyRebalanceLoad, 50, 20, true)
	require.NoError(t, err)
	_, err = store.Update(ctx, models.IncidentServiceCrash, models.StrategyRestartService, 90, 12, true)
	require.NoError(t, err)

	known, err := store.KnownStrategies(ctx, models.IncidentHighLatency)
	require.NoError(t, err)
	require.Len(t, known, 2)
	assert.InDelta(t, 70.0, known[models.StrategyScaleHorizontal], 0.001)

	rankings, err := store.Rankings(ctx, models.IncidentHighLatency)
	require.NoError(t, err)
	require.Len(t, rankings, 2)
	assert.Equal(t, models.StrategyScaleHorizontal, rankings[0].Strategy)
	assert.Equal(t, models.StrategyRebalanceLoad, rankings[1].Strategy)
}

func TestParseRecordKey(t *testing.T) {
	incidentType, strategy, err := parseRecordKey("service_crash::restart_service")
	require.NoError(t, err)
	assert.Equal(t, models.IncidentServiceCrash, incidentType)
	assert.Equal(t, models.StrategyRestartService, strategy)

	_, _, err = parseRecordKey("no-separator")
	assert.Error(t, err)
}
