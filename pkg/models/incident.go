package models

import "time"

// IncidentType classifies a production fault.
type IncidentType string

const (
	IncidentServiceCrash       IncidentType = "service_crash"
	IncidentHighLatency        IncidentType = "high_latency"
	IncidentCPUSpike           IncidentType = "cpu_spike"
	IncidentMemoryLeak         IncidentType = "memory_leak"
	IncidentNetworkDegradation IncidentType = "network_degradation"
	IncidentTimeoutMisconfig   IncidentType = "timeout_misconfiguration"
)

// AllIncidentTypes lists every incident type in a stable order.
var AllIncidentTypes = []IncidentType{
	IncidentServiceCrash,
	IncidentHighLatency,
	IncidentCPUSpike,
	IncidentMemoryLeak,
	IncidentNetworkDegradation,
	IncidentTimeoutMisconfig,
}

// Valid reports whether t is a member of the closed incident-type set.
func (t IncidentType) Valid() bool {
	for _, known := range AllIncidentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity orders incidents by urgency.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SystemMetrics is the observation vector for the simulated service.
type SystemMetrics struct {
	LatencyMs           float64   `json:"latency_ms"`
	CPUPercent          float64   `json:"cpu_percent"`
	MemoryPercent       float64   `json:"memory_percent"`
	ErrorRate           float64   `json:"error_rate"`
	Availability        float64   `json:"availability"`
	ActiveInstances     int       `json:"active_instances"`
	TimeoutMs           int       `json:"timeout_ms"`
	RecoveryTimeSeconds float64   `json:"recovery_time_seconds,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// HealthScore computes an overall health score from 0.0 (worst) to 1.0 (best).
// Each metric is normalised individually before the weighted combination.
func (m SystemMetrics) HealthScore() float64 {
	latencyScore := max(0.0, 1.0-(m.LatencyMs/5000.0))
	cpuScore := max(0.0, 1.0-(m.CPUPercent/100.0))
	memoryScore := max(0.0, 1.0-(m.MemoryPercent/100.0))
	errorScore := max(0.0, 1.0-m.ErrorRate)

	return latencyScore*0.25 +
		cpuScore*0.15 +
		memoryScore*0.15 +
		errorScore*0.25 +
		m.Availability*0.20
}

// IsHealthy reports whether the metrics describe a healthy system.
func (m SystemMetrics) IsHealthy() bool {
	return m.Availability >= 0.95 &&
		m.ErrorRate <= 0.05 &&
		m.LatencyMs < 500 &&
		m.CPUPercent < 80 &&
		m.MemoryPercent < 85
}

// Incident is one sampled fault scenario. MetricsAtDetection is immutable
// once recorded.
type Incident struct {
	ID                 string        `json:"id"`
	IncidentType       IncidentType  `json:"incident_type"`
	Severity           Severity      `json:"severity"`
	AffectedService    string        `json:"affected_service"`
	MetricsAtDetection SystemMetrics `json:"metrics_at_detection"`
	DetectedAt         time.Time     `json:"detected_at"`
	Description        string        `json:"description"`
}
