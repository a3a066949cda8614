package models

import "time"

// ToolStatus is the outcome of a single tool invocation.
type ToolStatus string

const (
	ToolStatusSuccess ToolStatus = "success"
	ToolStatusError   ToolStatus = "error"
	ToolStatusSkipped ToolStatus = "skipped"
)

// ToolResult is the uniform result shape shared by every tool.
// Details carries the tool-specific payload fields.
type ToolResult struct {
	Tool       string         `json:"tool"`
	Status     ToolStatus     `json:"status"`
	ExecutedAt time.Time      `json:"executed_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// Plan is the planner's output: a strategy plus the tool sequence and
// parameters the executor should follow.
type Plan struct {
	Strategy       Strategy       `json:"strategy"`
	ToolSequence   []string       `json:"tool_sequence"`
	ToolParameters map[string]any `json:"tool_parameters"`
	Reasoning      string         `json:"reasoning"`
	IsExploratory  bool           `json:"is_exploratory"`
	LLMSelected    bool           `json:"llm_selected"`
}

// RunObservation is the per-run progress tuple surfaced to a host process.
type RunObservation struct {
	RunIndex            int          `json:"run_index"`
	IncidentType        IncidentType `json:"incident_type"`
	Strategy            Strategy     `json:"strategy"`
	IsExploratory       bool         `json:"is_exploratory"`
	ServiceRestored     bool         `json:"service_restored"`
	Reward              float64      `json:"reward"`
	RecoveryTimeSeconds float64      `json:"recovery_time_seconds"`
	LLMVerdict          Verdict      `json:"llm_verdict"`
}
