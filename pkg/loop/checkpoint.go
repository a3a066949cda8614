package loop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/evoo-agent/evoo/pkg/evaluator"
	"github.com/evoo-agent/evoo/pkg/models"
	"github.com/evoo-agent/evoo/pkg/simulator"
)

// Checkpoint is the durable snapshot of the in-flight run. It is written
// after every state transition so a restarted process resumes at the
// state it died in, with every artifact produced so far.
type Checkpoint struct {
	RunIndex          int                   `json:"run_index"`
	State             State                 `json:"state"`
	Incident          *models.Incident      `json:"incident,omitempty"`
	Plan              *models.Plan          `json:"plan,omitempty"`
	ToolResults       []models.ToolResult   `json:"tool_results,omitempty"`
	ActionsTaken      []string              `json:"actions_taken,omitempty"`
	FinishedNaturally bool                  `json:"finished_naturally,omitempty"`
	Outcome           *simulator.Outcome    `json:"outcome,omitempty"`
	Evaluation        *evaluator.Evaluation `json:"evaluation,omitempty"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// resetRun clears the per-run artifacts, keeping the run index.
func (c *Checkpoint) resetRun() {
	c.State = StateWaitingForIncident
	c.Incident = nil
	c.Plan = nil
	c.ToolResults = nil
	c.ActionsTaken = nil
	c.FinishedNaturally = false
	c.Outcome = nil
	c.Evaluation = nil
}

// loadCheckpoint reads the checkpoint at path. A missing file yields a
// fresh checkpoint at run zero.
func loadCheckpoint(path string) (*Checkpoint, error) {
	cp := &Checkpoint{State: StateWaitingForIncident}
	if path == "" {
		return cp, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return nil, fmt.Errorf("reading checkpoint %s: %w", path, err)
	}
	if len(data) == 0 {
		return cp, nil
	}
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return cp, nil
}

// saveCheckpoint writes the checkpoint atomically (temp file + rename).
func saveCheckpoint(path string, cp *Checkpoint) error {
	if path == "" {
		return nil
	}
	cp.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming checkpoint to %s: %w", path, err)
	}
	return nil
}
