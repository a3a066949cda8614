package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evoo-agent/evoo/pkg/llm"
	"github.com/evoo-agent/evoo/pkg/models"
)

type queryMetricsTool struct{}

func (queryMetricsTool) Name() string { return "query_metrics" }

func (queryMetricsTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	details := map[string]any{
		"service":    serviceName(inv),
		"source":     "prometheus",
		"time_range": "last_5m",
	}
	if inv.Incident != nil {
		m := inv.Incident.MetricsAtDetection
		details["metrics"] = map[string]any{
			"latency_ms":       m.LatencyMs,
			"cpu_percent":      m.CPUPercent,
			"memory_percent":   m.MemoryPercent,
			"error_rate":       m.ErrorRate,
			"availability":     m.Availability,
			"active_instances": m.ActiveInstances,
			"timeout_ms":       m.TimeoutMs,
		}
		details["health_score"] = m.HealthScore()
		details["healthy"] = m.IsHealthy()
	}
	return details, nil
}

type logFinding struct {
	rootCause    string
	errorPattern string
}

var logFindings = map[models.IncidentType]logFinding{
	models.IncidentServiceCrash:       {"OOMKilled by kernel", "FATAL: out of memory"},
	models.IncidentHighLatency:        {"DB connection pool exhaustion", "WARN: pool timeout"},
	models.IncidentCPUSpike:           {"Recursive loop in processor", "CPU throttling activated"},
	models.IncidentMemoryLeak:         {"EventListener not removed", "Memory grew 1.2GB to 4.8GB"},
	models.IncidentNetworkDegradation: {"BGP route flap", "TCP retransmission 34%"},
	models.IncidentTimeoutMisconfig:   {"5s timeout too aggressive", "context deadline exceeded"},
}

type analyzeLogsTool struct{}

func (analyzeLogsTool) Name() string { return "analyze_logs" }

func (analyzeLogsTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	incidentType := models.IncidentType("unknown")
	if inv.Incident != nil {
		incidentType = inv.Incident.IncidentType
	}

	finding, ok := logFindings[incidentType]
	if !ok {
		finding = logFinding{"Unknown", "Multiple errors"}
	}

	return map[string]any{
		"service":            serviceName(inv),
		"incident_type":      string(incidentType),
		"log_lines_analyzed": 15432,
		"findings": map[string]any{
			"root_cause":    finding.rootCause,
			"error_pattern": finding.errorPattern,
		},
	}, nil
}

// predictIncidentTypeTool classifies the incident from raw metrics, via
// the LLM when available and threshold heuristics otherwise.
type predictIncidentTypeTool struct {
	client llm.Client
	logger *slog.Logger
}

func (*predictIncidentTypeTool) Name() string { return "predict_incident_type" }

func (t *predictIncidentTypeTool) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	var metrics models.SystemMetrics
	if inv.Incident != nil {
		metrics = inv.Incident.MetricsAtDetection
	}

	if t.client != nil {
		if details := t.llmPredict(ctx, metrics); details != nil {
			return details, nil
		}
	}

	predicted, confidence := heuristicPredict(metrics)
	return map[string]any{
		"predicted_type": string(predicted),
		"confidence":     confidence,
		"reasoning":      "heuristic_threshold_rules",
		"llm_predicted":  false,
	}, nil
}

func (t *predictIncidentTypeTool) llmPredict(ctx context.Context, metrics models.SystemMetrics) map[string]any {
	response, err := t.client.Complete(ctx, llm.Request{
		System:      predictSystemPrompt,
		User:        predictUserPrompt(metrics),
		Temperature: 0.1,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		t.logger.Warn("llm incident prediction failed", "error", err)
		return nil
	}

	result := llm.ParseJSON(response)
	predicted, _ := result["predicted_type"].(string)
	if !models.IncidentType(predicted).Valid() {
		t.logger.Warn("llm predicted invalid incident type", "predicted_type", predicted)
		return nil
	}

	confidence := 0.8
	if v, ok := result["confidence"].(float64); ok {
		confidence = min(1.0, max(0.0, v))
	}
	reasoning, _ := result["reasoning"].(string)

	return map[string]any{
		"predicted_type": predicted,
		"confidence":     confidence,
		"reasoning":      reasoning,
		"llm_predicted":  true,
	}
}

// heuristicPredict applies fixed threshold rules, most specific first.
func heuristicPredict(m models.SystemMetrics) (models.IncidentType, float64) {
	switch {
	case m.Availability < 0.3 && m.ErrorRate > 0.7:
		return models.IncidentServiceCrash, 0.90
	case m.MemoryPercent > 85:
		return models.IncidentMemoryLeak, 0.85
	case m.CPUPercent > 80:
		return models.IncidentCPUSpike, 0.85
	case m.LatencyMs > 4000:
		return models.IncidentTimeoutMisconfig, 0.70
	default:
		return models.IncidentHighLatency, 0.50
	}
}

const predictSystemPrompt = `You are an expert SRE analyzing system metrics to diagnose an incident.

Valid incident types:
- service_crash: Service is completely down or returning errors
- high_latency: Response times are significantly elevated
- cpu_spike: CPU utilization is abnormally high
- memory_leak: Memory usage is growing uncontrollably
- network_degradation: Network performance is degraded
- timeout_misconfiguration: Timeouts are set incorrectly

Respond with valid JSON only:
{
  "predicted_type": "<incident_type>",
  "confidence": <0.0-1.0>,
  "reasoning": "<1-2 sentence explanation>"
}`

func predictUserPrompt(m models.SystemMetrics) string {
	return fmt.Sprintf(`Analyze these system metrics and predict the incident type:

- latency_ms: %.2f
- cpu_percent: %.2f
- memory_percent: %.2f
- error_rate: %.3f
- availability: %.3f

What type of incident do these metrics indicate?`,
		m.LatencyMs, m.CPUPercent, m.MemoryPercent, m.ErrorRate, m.Availability)
}
