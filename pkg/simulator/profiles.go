package simulator

import "github.com/evoo-agent/evoo/pkg/models"

// metricRange is a closed sampling interval.
type metricRange struct {
	Lo, Hi float64
}

// incidentProfile defines the metric ranges and severity distribution for
// one incident type.
type incidentProfile struct {
	LatencyMs       metricRange
	CPUPercent      metricRange
	MemoryPercent   metricRange
	ErrorRate       metricRange
	Availability    metricRange
	SeverityWeights map[models.Severity]float64
}

// incidentProfiles fixes the sampling landscape per incident type. These
// tables are part of the contract: reference runs must be comparable, so
// the values cannot drift.
var incidentProfiles = map[models.IncidentType]incidentProfile{
	models.IncidentServiceCrash: {
		LatencyMs:     metricRange{5000, 15000},
		CPUPercent:    metricRange{5, 30},
		MemoryPercent: metricRange{10, 40},
		ErrorRate:     metricRange{0.8, 1.0},
		Availability:  metricRange{0.0, 0.2},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityCritical: 0.7,
			models.SeverityHigh:     0.3,
		},
	},
	models.IncidentHighLatency: {
		LatencyMs:     metricRange{2000, 8000},
		CPUPercent:    metricRange{40, 70},
		MemoryPercent: metricRange{50, 80},
		ErrorRate:     metricRange{0.1, 0.4},
		Availability:  metricRange{0.6, 0.9},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityHigh:   0.5,
			models.SeverityMedium: 0.5,
		},
	},
	models.IncidentCPUSpike: {
		LatencyMs:     metricRange{500, 3000},
		CPUPercent:    metricRange{85, 99},
		MemoryPercent: metricRange{40, 65},
		ErrorRate:     metricRange{0.05, 0.25},
		Availability:  metricRange{0.7, 0.95},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityHigh:   0.4,
			models.SeverityMedium: 0.6,
		},
	},
	models.IncidentMemoryLeak: {
		LatencyMs:     metricRange{800, 4000},
		CPUPercent:    metricRange{30, 60},
		MemoryPercent: metricRange{88, 99},
		ErrorRate:     metricRange{0.1, 0.5},
		Availability:  metricRange{0.5, 0.85},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityCritical: 0.3,
			models.SeverityHigh:     0.5,
			models.SeverityMedium:   0.2,
		},
	},
	models.IncidentNetworkDegradation: {
		LatencyMs:     metricRange{1500, 6000},
		CPUPercent:    metricRange{20, 50},
		MemoryPercent: metricRange{30, 60},
		ErrorRate:     metricRange{0.2, 0.6},
		Availability:  metricRange{0.4, 0.75},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityHigh:   0.6,
			models.SeverityMedium: 0.4,
		},
	},
	models.IncidentTimeoutMisconfig: {
		LatencyMs:     metricRange{4000, 12000},
		CPUPercent:    metricRange{20, 45},
		MemoryPercent: metricRange{25, 55},
		ErrorRate:     metricRange{0.3, 0.7},
		Availability:  metricRange{0.3, 0.7},
		SeverityWeights: map[models.Severity]float64{
			models.SeverityHigh:   0.5,
			models.SeverityMedium: 0.5,
		},
	},
}

// severityOrder fixes the categorical sampling order so that a seeded
// run draws severities deterministically (map iteration is unordered).
var severityOrder = []models.Severity{
	models.SeverityLow,
	models.SeverityMedium,
	models.SeverityHigh,
	models.SeverityCritical,
}
