// Package memory persists what the agent has learned: the append-only
// experience log and the per-(incident, strategy) statistics that drive
// exploit/explore arbitration.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/evoo-agent/evoo/pkg/models"
)

// ErrNotFound is returned when a strategy record does not exist yet.
var ErrNotFound = errors.New("record not found")

// trendWindow is the number of most-recent rewards kept in the summary's
// improvement trend and rolling average.
const trendWindow = 20

// rankingTopK caps the per-incident-type strategy rankings in a summary.
const rankingTopK = 3

// ExperienceStore is the append-only log of remediation experiences.
type ExperienceStore interface {
	// Store appends an experience. The record is immutable afterwards.
	Store(ctx context.Context, exp models.Experience) error
	// QueryByIncident returns up to limit experiences for the incident
	// type, most recent first. limit <= 0 means no limit.
	QueryByIncident(ctx context.Context, t models.IncidentType, limit int) ([]models.Experience, error)
	// All returns every stored experience in insertion order.
	All(ctx context.Context) ([]models.Experience, error)
	// Summary aggregates statistics over the whole log.
	Summary(ctx context.Context) (*Summary, error)
}

// StrategyStore maps (incident_type, strategy) to aggregated statistics.
type StrategyStore interface {
	// Update folds one outcome into the record for the pair, creating it
	// on first use, and returns the updated record.
	Update(ctx context.Context, t models.IncidentType, s models.Strategy, reward, recoveryTime float64, success bool) (*models.StrategyRecord, error)
	// Get returns the record for the pair, or ErrNotFound.
	Get(ctx context.Context, t models.IncidentType, s models.Strategy) (*models.StrategyRecord, error)
	// KnownStrategies returns average reward per strategy with at least
	// one use for the incident type.
	KnownStrategies(ctx context.Context, t models.IncidentType) (map[models.Strategy]float64, error)
	// Rankings returns the incident type's records sorted by average
	// reward descending, success rate descending.
	Rankings(ctx context.Context, t models.IncidentType) ([]models.StrategyRecord, error)
}

// StrategyRanking is one row of a summary's per-incident-type ranking.
type StrategyRanking struct {
	Strategy      models.Strategy `json:"strategy"`
	AverageReward float64         `json:"average_reward"`
	Uses          int             `json:"uses"`
}

// Summary aggregates the experience log for reporting.
type Summary struct {
	TotalExperiences     int                                       `json:"total_experiences"`
	AverageReward        float64                                   `json:"average_reward"`
	BestReward           float64                                   `json:"best_reward"`
	WorstReward          float64                                   `json:"worst_reward"`
	RewardStdDev         float64                                   `json:"reward_std_dev"`
	AverageRecoveryTime  float64                                   `json:"average_recovery_time"`
	BestRecoveryTime     float64                                   `json:"best_recovery_time"`
	RollingAverageReward float64                                   `json:"rolling_average_reward"`
	ImprovementTrend     []float64                                 `json:"improvement_trend"`
	StrategyRankings     map[models.IncidentType][]StrategyRanking `json:"strategy_rankings"`
}

// recordKey builds the persisted map key for a (incident_type, strategy) pair.
func recordKey(t models.IncidentType, s models.Strategy) string {
	return fmt.Sprintf("%s::%s", t, s)
}

// parseRecordKey splits a persisted key back into its pair.
func parseRecordKey(key string) (models.IncidentType, models.Strategy, error) {
	parts := strings.SplitN(key, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed strategy record key %q", key)
	}
	return models.IncidentType(parts[0]), models.Strategy(parts[1]), nil
}

// summarize computes a Summary over experiences in insertion order.
func summarize(experiences []models.Experience) *Summary {
	s := &Summary{
		StrategyRankings: map[models.IncidentType][]StrategyRanking{},
		ImprovementTrend: []float64{},
	}
	if len(experiences) == 0 {
		return s
	}

	s.TotalExperiences = len(experiences)
	s.BestReward = experiences[0].Reward
	s.WorstReward = experiences[0].Reward
	s.BestRecoveryTime = experiences[0].RecoveryTimeSeconds

	var rewardSum, recoverySum float64
	for _, exp := range experiences {
		rewardSum += exp.Reward
		recoverySum += exp.RecoveryTimeSeconds
		s.BestReward = math.Max(s.BestReward, exp.Reward)
		s.WorstReward = math.Min(s.WorstReward, exp.Reward)
		s.BestRecoveryTime = math.Min(s.BestRecoveryTime, exp.RecoveryTimeSeconds)
	}
	s.AverageReward = rewardSum / float64(len(experiences))
	s.AverageRecoveryTime = recoverySum / float64(len(experiences))

	var variance float64
	for _, exp := range experiences {
		d := exp.Reward - s.AverageReward
		variance += d * d
	}
	s.RewardStdDev = math.Sqrt(variance / float64(len(experiences)))

	start := len(experiences) - trendWindow
	if start < 0 {
		start = 0
	}
	var rollingSum float64
	for _, exp := range experiences[start:] {
		s.ImprovementTrend = append(s.ImprovementTrend, exp.Reward)
		rollingSum += exp.Reward
	}
	s.RollingAverageReward = rollingSum / float64(len(s.ImprovementTrend))

	type agg struct {
		total float64
		uses  int
	}
	perType := map[models.IncidentType]map[models.Strategy]*agg{}
	for _, exp := range experiences {
		byStrategy, ok := perType[exp.IncidentType]
		if !ok {
			byStrategy = map[models.Strategy]*agg{}
			perType[exp.IncidentType] = byStrategy
		}
		a, ok := byStrategy[exp.StrategyUsed]
		if !ok {
			a = &agg{}
			byStrategy[exp.StrategyUsed] = a
		}
		a.total += exp.Reward
		a.uses++
	}
	for t, byStrategy := range perType {
		rankings := make([]StrategyRanking, 0, len(byStrategy))
		for strategy, a := range byStrategy {
			rankings = append(rankings, StrategyRanking{
				Strategy:      strategy,
				AverageReward: a.total / float64(a.uses),
				Uses:          a.uses,
			})
		}
		sort.Slice(rankings, func(i, j int) bool {
			if rankings[i].AverageReward != rankings[j].AverageReward {
				return rankings[i].AverageReward > rankings[j].AverageReward
			}
			return rankings[i].Strategy < rankings[j].Strategy
		})
		if len(rankings) > rankingTopK {
			rankings = rankings[:rankingTopK]
		}
		s.StrategyRankings[t] = rankings
	}

	return s
}

// applyOutcome folds one outcome into a record, preserving the counter
// invariants.
func applyOutcome(rec *models.StrategyRecord, reward, recoveryTime float64, success bool) {
	rec.TotalUses++
	rec.TotalReward += reward
	rec.TotalRecoveryTime += recoveryTime
	if success {
		rec.SuccessCount++
	} else {
		rec.FailureCount++
	}
	rec.AverageReward = roundTo(rec.TotalReward/float64(rec.TotalUses), 3)
	rec.AverageRecoveryTime = roundTo(rec.TotalRecoveryTime/float64(rec.TotalUses), 1)
	rec.SuccessRate = roundTo(float64(rec.SuccessCount)/float64(rec.TotalUses), 3)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// sortRecords orders rankings by average reward desc, then success rate desc.
func sortRecords(records []models.StrategyRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].AverageReward != records[j].AverageReward {
			return records[i].AverageReward > records[j].AverageReward
		}
		if records[i].SuccessRate != records[j].SuccessRate {
			return records[i].SuccessRate > records[j].SuccessRate
		}
		return records[i].Strategy < records[j].Strategy
	})
}
