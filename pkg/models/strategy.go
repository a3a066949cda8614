package models

// Strategy names a remediation plan of one or more tool invocations.
type Strategy string

const (
	StrategyRestartService        Strategy = "restart_service"
	StrategyScaleHorizontal       Strategy = "scale_horizontal"
	StrategyScaleVertical         Strategy = "scale_vertical"
	StrategyChangeTimeout         Strategy = "change_timeout"
	StrategyRollbackDeployment    Strategy = "rollback_deployment"
	StrategyClearCache            Strategy = "clear_cache"
	StrategyRebalanceLoad         Strategy = "rebalance_load"
	StrategyCombinedRestartScale  Strategy = "combined_restart_scale"
	StrategyCombinedCacheRebal    Strategy = "combined_cache_rebalance"
	StrategyCombinedRollbackScale Strategy = "combined_rollback_scale"
)

// AllStrategies lists the full strategy set in a stable order.
var AllStrategies = []Strategy{
	StrategyRestartService,
	StrategyScaleHorizontal,
	StrategyScaleVertical,
	StrategyChangeTimeout,
	StrategyRollbackDeployment,
	StrategyClearCache,
	StrategyRebalanceLoad,
	StrategyCombinedRestartScale,
	StrategyCombinedCacheRebal,
	StrategyCombinedRollbackScale,
}

// strategyCosts is the fixed relative infrastructure cost of each strategy.
var strategyCosts = map[Strategy]float64{
	StrategyRestartService:        1.0,
	StrategyScaleHorizontal:       2.5,
	StrategyScaleVertical:         2.0,
	StrategyChangeTimeout:         0.5,
	StrategyRollbackDeployment:    1.5,
	StrategyClearCache:            0.3,
	StrategyRebalanceLoad:         0.8,
	StrategyCombinedRestartScale:  3.0,
	StrategyCombinedCacheRebal:    1.2,
	StrategyCombinedRollbackScale: 3.5,
}

// Valid reports whether s is a member of the closed strategy set.
func (s Strategy) Valid() bool {
	_, ok := strategyCosts[s]
	return ok
}

// Cost returns the strategy's fixed relative infrastructure cost.
// Unknown strategies cost 1.0.
func (s Strategy) Cost() float64 {
	if c, ok := strategyCosts[s]; ok {
		return c
	}
	return 1.0
}
