package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evoo-agent/evoo/pkg/models"
)

// FileExperienceStore keeps the experience log as a single JSON array on
// disk, rewritten atomically (temp file + rename) on each append. The log
// is loaded once and served from memory afterwards.
type FileExperienceStore struct {
	mu          sync.RWMutex
	path        string
	logger      *slog.Logger
	experiences []models.Experience
}

// NewFileExperienceStore loads (or initializes) the experience log at path.
func NewFileExperienceStore(path string, logger *slog.Logger) (*FileExperienceStore, error) {
	s := &FileExperienceStore{
		path:   path,
		logger: logger.With("component", "experience_store"),
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := loadJSONFile(path, &s.experiences); err != nil {
		return nil, fmt.Errorf("loading experience log: %w", err)
	}
	if s.experiences == nil {
		s.experiences = []models.Experience{}
	}
	s.logger.Info("experience log loaded", "path", path, "count", len(s.experiences))
	return s, nil
}

func (s *FileExperienceStore) Store(ctx context.Context, exp models.Experience) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.experiences = append(s.experiences, exp)
	if err := writeJSONFileRetry(s.path, s.experiences, s.logger); err != nil {
		// Roll the append back so memory matches disk.
		s.experiences = s.experiences[:len(s.experiences)-1]
		return fmt.Errorf("persisting experience %s: %w", exp.ID, err)
	}
	return nil
}

func (s *FileExperienceStore) QueryByIncident(ctx context.Context, t models.IncidentType, limit int) ([]models.Experience, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []models.Experience
	for i := len(s.experiences) - 1; i >= 0; i-- {
		if s.experiences[i].IncidentType != t {
			continue
		}
		matches = append(matches, s.experiences[i])
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (s *FileExperienceStore) All(ctx context.Context) ([]models.Experience, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Experience, len(s.experiences))
	copy(out, s.experiences)
	return out, nil
}

func (s *FileExperienceStore) Summary(ctx context.Context) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarize(s.experiences), nil
}

// FileStrategyStore keeps strategy records as a JSON object keyed by
// "<incident_type>::<strategy>", with the same atomic write discipline as
// the experience log.
type FileStrategyStore struct {
	mu      sync.RWMutex
	path    string
	logger  *slog.Logger
	records map[string]*models.StrategyRecord
}

// NewFileStrategyStore loads (or initializes) the strategy records at path.
func NewFileStrategyStore(path string, logger *slog.Logger) (*FileStrategyStore, error) {
	s := &FileStrategyStore{
		path:    path,
		logger:  logger.With("component", "strategy_store"),
		records: map[string]*models.StrategyRecord{},
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	if err := loadJSONFile(path, &s.records); err != nil {
		return nil, fmt.Errorf("loading strategy records: %w", err)
	}
	if s.records == nil {
		s.records = map[string]*models.StrategyRecord{}
	}
	// The map key is the record's identity; a hand-edited file may
	// disagree with the embedded fields, so the key wins.
	for key, rec := range s.records {
		t, strategy, err := parseRecordKey(key)
		if err != nil {
			return nil, fmt.Errorf("loading strategy records: %w", err)
		}
		rec.IncidentType = t
		rec.Strategy = strategy
	}
	s.logger.Info("strategy records loaded", "path", path, "count", len(s.records))
	return s, nil
}

func (s *FileStrategyStore) Update(ctx context.Context, t models.IncidentType, strategy models.Strategy, reward, recoveryTime float64, success bool) (*models.StrategyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(t, strategy)
	now := time.Now().UTC()

	rec, ok := s.records[key]
	if !ok {
		rec = &models.StrategyRecord{
			IncidentType: t,
			Strategy:     strategy,
			FirstUsed:    now,
		}
		s.records[key] = rec
	}
	before := *rec

	applyOutcome(rec, reward, recoveryTime, success)
	rec.LastUsed = now

	if err := writeJSONFileRetry(s.path, s.records, s.logger); err != nil {
		*rec = before
		if before.TotalUses == 0 {
			delete(s.records, key)
		}
		return nil, fmt.Errorf("persisting strategy record %s: %w", key, err)
	}

	out := *rec
	return &out, nil
}

func (s *FileStrategyStore) Get(ctx context.Context, t models.IncidentType, strategy models.Strategy) (*models.StrategyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(t, strategy)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *FileStrategyStore) KnownStrategies(ctx context.Context, t models.IncidentType) (map[models.Strategy]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := map[models.Strategy]float64{}
	for _, rec := range s.records {
		if rec.IncidentType == t && rec.TotalUses > 0 {
			known[rec.Strategy] = rec.AverageReward
		}
	}
	return known, nil
}

func (s *FileStrategyStore) Rankings(ctx context.Context, t models.IncidentType) ([]models.StrategyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.StrategyRecord
	for _, rec := range s.records {
		if rec.IncidentType == t {
			records = append(records, *rec)
		}
	}
	sortRecords(records)
	return records, nil
}

// ensureDir creates the parent directory of path. Creation is idempotent.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory %s: %w", dir, err)
	}
	return nil
}

// loadJSONFile reads path into v. A missing file is not an error; the
// caller starts empty.
func loadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// writeJSONFileRetry writes v to path atomically, retrying once on failure.
func writeJSONFileRetry(path string, v any, logger *slog.Logger) error {
	err := writeJSONFile(path, v)
	if err == nil {
		return nil
	}
	logger.Warn("store write failed, retrying once", "path", path, "error", err)
	return writeJSONFile(path, v)
}

// writeJSONFile writes v as indented JSON via a temp file + atomic rename.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file to %s: %w", path, err)
	}
	return nil
}
