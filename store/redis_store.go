package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/praneethchandra/workflowforge/core"
	"github.com/praneethchandra/workflowforge/workflow"
)

// Key scheme: a record-per-execution key plus a sorted-set index for
// listing, scoped under a module-specific prefix.
const (
	defaultKeyPrefix = "workflowforge:execution:"
	defaultIndexKey  = "workflowforge:execution:index"
	defaultTTL       = 24 * time.Hour
)

// RedisExecutionStoreOption configures a RedisExecutionStore.
type RedisExecutionStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	keyPrefix string
	indexKey  string
	ttl       time.Duration
	logger    core.Logger
}

// WithKeyPrefix overrides the default key prefix.
func WithKeyPrefix(prefix string) RedisExecutionStoreOption {
	return func(c *redisStoreConfig) { c.keyPrefix = prefix }
}

// WithTTL overrides how long a record survives in Redis.
func WithTTL(ttl time.Duration) RedisExecutionStoreOption {
	return func(c *redisStoreConfig) { c.ttl = ttl }
}

// WithLogger attaches a logger for best-effort failures (index updates).
func WithLogger(logger core.Logger) RedisExecutionStoreOption {
	return func(c *redisStoreConfig) { c.logger = logger }
}

// RedisExecutionStore is the durable ExecutionStore backing, for a
// multi-replica server where an in-memory MemoryStore would lose records
// on restart or not be visible across replicas.
type RedisExecutionStore struct {
	client *redis.Client
	cfg    redisStoreConfig
}

// NewRedisExecutionStore builds a RedisExecutionStore over an already
// constructed client; connection pooling and auth are the caller's
// concern.
func NewRedisExecutionStore(client *redis.Client, opts ...RedisExecutionStoreOption) *RedisExecutionStore {
	cfg := redisStoreConfig{
		keyPrefix: defaultKeyPrefix,
		indexKey:  defaultIndexKey,
		ttl:       defaultTTL,
		logger:    core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RedisExecutionStore{client: client, cfg: cfg}
}

func (s *RedisExecutionStore) key(executionID string) string {
	return s.cfg.keyPrefix + executionID
}

func (s *RedisExecutionStore) Put(ctx context.Context, rec *workflow.WorkflowExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return core.NewFrameworkError("store.redis.put", core.KindConfigInvalid, rec.ExecutionID, err)
	}
	if err := s.client.Set(ctx, s.key(rec.ExecutionID), data, s.cfg.ttl).Err(); err != nil {
		return core.NewFrameworkError("store.redis.put", core.KindTransportFault, rec.ExecutionID, err)
	}
	if err := s.client.ZAdd(ctx, s.cfg.indexKey, &redis.Z{
		Score:  float64(rec.StartedAt.UnixNano()),
		Member: rec.ExecutionID,
	}).Err(); err != nil {
		// Best effort: the index exists for listing convenience, not
		// correctness of Get/Delete.
		s.cfg.logger.Warn("redis execution index update failed", map[string]interface{}{
			"execution_id": rec.ExecutionID,
			"error":        err.Error(),
		})
	}
	return nil
}

func (s *RedisExecutionStore) Get(ctx context.Context, executionID string) (*workflow.WorkflowExecutionRecord, error) {
	data, err := s.client.Get(ctx, s.key(executionID)).Bytes()
	if err == redis.Nil {
		return nil, core.NewFrameworkError("store.redis.get", core.KindConfigInvalid, executionID, ErrNotFound)
	}
	if err != nil {
		return nil, core.NewFrameworkError("store.redis.get", core.KindTransportFault, executionID, err)
	}
	var rec workflow.WorkflowExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, core.NewFrameworkError("store.redis.get", core.KindConfigInvalid, executionID, err)
	}
	return &rec, nil
}

func (s *RedisExecutionStore) List(ctx context.Context, status workflow.WorkflowState, page, pageSize int) ([]*workflow.WorkflowExecutionRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	ids, err := s.client.ZRange(ctx, s.cfg.indexKey, 0, -1).Result()
	if err != nil {
		return nil, 0, core.NewFrameworkError("store.redis.list", core.KindTransportFault, "", err)
	}

	matched := make([]*workflow.WorkflowExecutionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			continue // index entry outlived its record's TTL
		}
		if status != "" && rec.State != status {
			continue
		}
		matched = append(matched, rec)
	}

	total := len(matched)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *RedisExecutionStore) Delete(ctx context.Context, executionID string) error {
	n, err := s.client.Del(ctx, s.key(executionID)).Result()
	if err != nil {
		return core.NewFrameworkError("store.redis.delete", core.KindTransportFault, executionID, err)
	}
	if n == 0 {
		return core.NewFrameworkError("store.redis.delete", core.KindConfigInvalid, executionID, ErrNotFound)
	}
	if err := s.client.ZRem(ctx, s.cfg.indexKey, executionID).Err(); err != nil {
		s.cfg.logger.Warn("redis execution index cleanup failed", map[string]interface{}{
			"execution_id": executionID,
			"error":        err.Error(),
		})
	}
	return nil
}

// ParseRedisURL is a small convenience wrapper so callers (the server's
// main wiring) don't need to import redis directly just to build a client.
func ParseRedisURL(url string) (*redis.Options, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opt, nil
}
