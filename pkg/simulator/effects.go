package simulator

import "github.com/evoo-agent/evoo/pkg/models"

// strategyEffect is the mean effectiveness and recovery-time range of one
// (strategy, incident_type) pairing.
type strategyEffect struct {
	Effectiveness float64
	RecoveryLo    float64
	RecoveryHi    float64
}

// defaultEffect applies when a (strategy, incident) pair has no entry at
// all, including unknown strategy names.
var defaultEffect = strategyEffect{Effectiveness: 0.20, RecoveryLo: 30, RecoveryHi: 120}

// remediationEffects maps strategy → incident type → effect. The "fallback"
// entry of each strategy covers incident types without a dedicated row.
// Like the incident profiles, these values define the reward landscape and
// must stay bit-for-bit stable.
var remediationEffects = map[models.Strategy]struct {
	ByIncident map[models.IncidentType]strategyEffect
	Fallback   strategyEffect
}{
	models.StrategyRestartService: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentServiceCrash:       {0.95, 10, 30},
			models.IncidentMemoryLeak:         {0.80, 15, 45},
			models.IncidentCPUSpike:           {0.50, 20, 60},
			models.IncidentHighLatency:        {0.40, 25, 70},
			models.IncidentNetworkDegradation: {0.20, 40, 120},
			models.IncidentTimeoutMisconfig:   {0.10, 60, 180},
		},
		Fallback: strategyEffect{0.30, 30, 90},
	},
	models.StrategyScaleHorizontal: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentHighLatency:        {0.85, 20, 60},
			models.IncidentCPUSpike:           {0.80, 20, 50},
			models.IncidentNetworkDegradation: {0.65, 25, 70},
			models.IncidentServiceCrash:       {0.50, 15, 40},
			models.IncidentMemoryLeak:         {0.30, 30, 90},
			models.IncidentTimeoutMisconfig:   {0.20, 40, 120},
		},
		Fallback: strategyEffect{0.40, 30, 80},
	},
	models.StrategyScaleVertical: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentCPUSpike:    {0.88, 15, 45},
			models.IncidentMemoryLeak:  {0.75, 20, 60},
			models.IncidentHighLatency: {0.60, 20, 55},
		},
		Fallback: strategyEffect{0.35, 30, 90},
	},
	models.StrategyChangeTimeout: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentTimeoutMisconfig: {0.92, 5, 20},
			models.IncidentHighLatency:      {0.45, 10, 30},
		},
		Fallback: strategyEffect{0.15, 20, 60},
	},
	models.StrategyRollbackDeployment: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentServiceCrash: {0.88, 20, 60},
			models.IncidentHighLatency:  {0.70, 20, 55},
			models.IncidentCPUSpike:     {0.60, 25, 65},
		},
		Fallback: strategyEffect{0.45, 30, 80},
	},
	models.StrategyClearCache: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentMemoryLeak:  {0.70, 5, 20},
			models.IncidentHighLatency: {0.55, 8, 25},
			models.IncidentCPUSpike:    {0.40, 10, 35},
		},
		Fallback: strategyEffect{0.25, 10, 40},
	},
	models.StrategyRebalanceLoad: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentNetworkDegradation: {0.80, 10, 35},
			models.IncidentHighLatency:        {0.65, 12, 40},
			models.IncidentCPUSpike:           {0.55, 15, 45},
		},
		Fallback: strategyEffect{0.30, 20, 60},
	},
	models.StrategyCombinedRestartScale: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentServiceCrash: {0.97, 12, 35},
			models.IncidentHighLatency:  {0.88, 18, 50},
			models.IncidentCPUSpike:     {0.85, 15, 45},
		},
		Fallback: strategyEffect{0.70, 20, 55},
	},
	models.StrategyCombinedCacheRebal: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentMemoryLeak:         {0.85, 8, 25},
			models.IncidentNetworkDegradation: {0.82, 10, 30},
			models.IncidentHighLatency:        {0.75, 12, 38},
		},
		Fallback: strategyEffect{0.55, 15, 50},
	},
	models.StrategyCombinedRollbackScale: {
		ByIncident: map[models.IncidentType]strategyEffect{
			models.IncidentServiceCrash: {0.93, 18, 50},
			models.IncidentHighLatency:  {0.87, 18, 52},
		},
		Fallback: strategyEffect{0.65, 25, 65},
	},
}

// effectFor resolves the effect entry for a (strategy, incident) pair,
// falling through strategy fallback and then the global default.
func effectFor(strategy models.Strategy, incidentType models.IncidentType) strategyEffect {
	effects, ok := remediationEffects[strategy]
	if !ok {
		return defaultEffect
	}
	if effect, ok := effects.ByIncident[incidentType]; ok {
		return effect
	}
	return effects.Fallback
}
