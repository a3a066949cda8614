package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evoo-agent/evoo/pkg/models"
)

// Redis key layout. Experiences are a list of JSON blobs in insertion
// order; strategy records are a hash keyed like the file format.
const (
	redisExperiencesKey = "evoo:experiences"
	redisStrategiesKey  = "evoo:strategies"
)

// RedisExperienceStore is the experience log backed by a Redis list.
type RedisExperienceStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisExperienceStore connects the experience log to Redis and
// verifies the server is reachable.
func NewRedisExperienceStore(ctx context.Context, client *redis.Client, logger *slog.Logger) (*RedisExperienceStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisExperienceStore{
		client: client,
		logger: logger.With("component", "experience_store", "backend", "redis"),
	}, nil
}

func (s *RedisExperienceStore) Store(ctx context.Context, exp models.Experience) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("encoding experience %s: %w", exp.ID, err)
	}
	if err := s.client.RPush(ctx, redisExperiencesKey, data).Err(); err != nil {
		// One retry, mirroring the file backend's write policy.
		s.logger.Warn("experience write failed, retrying once", "error", err)
		if err := s.client.RPush(ctx, redisExperiencesKey, data).Err(); err != nil {
			return fmt.Errorf("persisting experience %s: %w", exp.ID, err)
		}
	}
	return nil
}

func (s *RedisExperienceStore) QueryByIncident(ctx context.Context, t models.IncidentType, limit int) ([]models.Experience, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var matches []models.Experience
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].IncidentType != t {
			continue
		}
		matches = append(matches, all[i])
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	return matches, nil
}

func (s *RedisExperienceStore) All(ctx context.Context) ([]models.Experience, error) {
	blobs, err := s.client.LRange(ctx, redisExperiencesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading experience log: %w", err)
	}
	experiences := make([]models.Experience, 0, len(blobs))
	for _, blob := range blobs {
		var exp models.Experience
		if err := json.Unmarshal([]byte(blob), &exp); err != nil {
			return nil, fmt.Errorf("decoding experience record: %w", err)
		}
		experiences = append(experiences, exp)
	}
	return experiences, nil
}

func (s *RedisExperienceStore) Summary(ctx context.Context) (*Summary, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return summarize(all), nil
}

// RedisStrategyStore keeps strategy records in a Redis hash.
type RedisStrategyStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStrategyStore connects the strategy records to Redis.
func NewRedisStrategyStore(ctx context.Context, client *redis.Client, logger *slog.Logger) (*RedisStrategyStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisStrategyStore{
		client: client,
		logger: logger.With("component", "strategy_store", "backend", "redis"),
	}, nil
}

func (s *RedisStrategyStore) Update(ctx context.Context, t models.IncidentType, strategy models.Strategy, reward, recoveryTime float64, success bool) (*models.StrategyRecord, error) {
	key := recordKey(t, strategy)
	now := time.Now().UTC()

	rec, err := s.Get(ctx, t, strategy)
	if errors.Is(err, ErrNotFound) {
		rec = &models.StrategyRecord{
			IncidentType: t,
			Strategy:     strategy,
			FirstUsed:    now,
		}
	} else if err != nil {
		return nil, err
	}

	applyOutcome(rec, reward, recoveryTime, success)
	rec.LastUsed = now

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding strategy record %s: %w", key, err)
	}
	if err := s.client.HSet(ctx, redisStrategiesKey, key, data).Err(); err != nil {
		s.logger.Warn("strategy write failed, retrying once", "error", err)
		if err := s.client.HSet(ctx, redisStrategiesKey, key, data).Err(); err != nil {
			return nil, fmt.Errorf("persisting strategy record %s: %w", key, err)
		}
	}
	return rec, nil
}

func (s *RedisStrategyStore) Get(ctx context.Context, t models.IncidentType, strategy models.Strategy) (*models.StrategyRecord, error) {
	blob, err := s.client.HGet(ctx, redisStrategiesKey, recordKey(t, strategy)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading strategy record: %w", err)
	}
	var rec models.StrategyRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("decoding strategy record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStrategyStore) KnownStrategies(ctx context.Context, t models.IncidentType) (map[models.Strategy]float64, error) {
	records, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	known := map[models.Strategy]float64{}
	for _, rec := range records {
		if rec.IncidentType == t && rec.TotalUses > 0 {
			known[rec.Strategy] = rec.AverageReward
		}
	}
	return known, nil
}

func (s *RedisStrategyStore) Rankings(ctx context.Context, t models.IncidentType) ([]models.StrategyRecord, error) {
	all, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	var records []models.StrategyRecord
	for _, rec := range all {
		if rec.IncidentType == t {
			records = append(records, rec)
		}
	}
	sortRecords(records)
	return records, nil
}

func (s *RedisStrategyStore) all(ctx context.Context) ([]models.StrategyRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisStrategiesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("reading strategy records: %w", err)
	}
	records := make([]models.StrategyRecord, 0, len(fields))
	for key, blob := range fields {
		incidentType, strategy, err := parseRecordKey(key)
		if err != nil {
			return nil, fmt.Errorf("reading strategy records: %w", err)
		}
		var rec models.StrategyRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, fmt.Errorf("decoding strategy record %s: %w", key, err)
		}
		// The hash field is the record's identity.
		rec.IncidentType = incidentType
		rec.Strategy = strategy
		records = append(records, rec)
	}
	return records, nil
}
