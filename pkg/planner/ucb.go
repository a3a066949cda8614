package planner

import (
	"context"
	"fmt"
	"math"

	"github.com/evoo-agent/evoo/pkg/models"
)

// planUCB1 scores every strategy with the UCB1 bound
// average_reward + c*sqrt(ln N / n_i), giving untried strategies infinite
// score. Ties break by estimated recovery time ascending. Repeating the
// immediately previous strategy costs a flat penalty, and k consecutive
// prior failures of the same pair cost 5*k more.
func (p *Planner) planUCB1(ctx context.Context, incident *models.Incident, runIndex int, known map[models.Strategy]float64) (*models.Plan, error) {
	records := map[models.Strategy]models.StrategyRecord{}
	rankings, err := p.strategies.Rankings(ctx, incident.IncidentType)
	if err != nil {
		p.logger.Warn("reading rankings failed, scoring without history", "error", err)
	}
	totalUses := 0
	for _, rec := range rankings {
		records[rec.Strategy] = rec
		totalUses += rec.TotalUses
	}

	lastStrategy, consecutiveFailures := p.recentHistory(ctx, incident.IncidentType)

	var best models.Strategy
	bestScore := math.Inf(-1)
	bestRecovery := math.Inf(1)

	for _, strategy := range models.AllStrategies {
		rec, tried := records[strategy]

		var score, estRecovery float64
		if !tried || rec.TotalUses == 0 {
			score = math.Inf(1)
		} else {
			score = rec.AverageReward +
				ucbExplorationC*math.Sqrt(math.Log(float64(totalUses))/float64(rec.TotalUses))
			estRecovery = rec.AverageRecoveryTime
		}

		if strategy == lastStrategy {
			score -= ucbRepeatPenalty
		}
		if k := consecutiveFailures[strategy]; k > 0 {
			score -= ucbFailureStepPenalty * float64(k)
		}

		if score > bestScore || (score == bestScore && estRecovery < bestRecovery) {
			best = strategy
			bestScore = score
			bestRecovery = estRecovery
		}
	}

	exploratory := false
	if rec, tried := records[best]; !tried || rec.TotalUses == 0 {
		exploratory = true
	}

	plan := deterministicPlan(best, fmt.Sprintf("ucb1 (score=%.2f)", bestScore), exploratory, false)
	p.logger.Info("strategy selected",
		"run_index", runIndex, "strategy", plan.Strategy, "reason", plan.Reasoning)
	return plan, nil
}

// recentHistory derives the previous strategy and, per strategy, the
// number of consecutive failures ending the incident type's history.
func (p *Planner) recentHistory(ctx context.Context, incidentType models.IncidentType) (models.Strategy, map[models.Strategy]int) {
	failures := map[models.Strategy]int{}

	recent, err := p.experiences.QueryByIncident(ctx, incidentType, 10)
	if err != nil || len(recent) == 0 {
		return "", failures
	}

	// recent is most-recent-first; count the failure streak per strategy
	// until that strategy's first success.
	closed := map[models.Strategy]bool{}
	for _, exp := range recent {
		if closed[exp.StrategyUsed] {
			continue
		}
		if exp.Success {
			closed[exp.StrategyUsed] = true
			continue
		}
		failures[exp.StrategyUsed]++
	}

	return recent[0].StrategyUsed, failures
}
