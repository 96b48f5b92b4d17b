package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/entity"
)

// RedisStore keeps the current document under one key and its run metadata
// in a companion hash. Both are written in a single MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	key    string
	mu     sync.Mutex
	logger *slog.Logger
}

func OpenRedis(ctx context.Context, addr, key string, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	s := NewRedisStore(client, key, logger)
	if err := s.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, key string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, key: key, logger: logger}
}

func (s *RedisStore) metaKey() string { return s.key + ":meta" }

func (s *RedisStore) Write(ctx context.Context, o entity.Outcome) error {
	doc, err := encode(o)
	if err != nil {
		return err
	}
	completed := o.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key, doc, 0)
		p.HSet(ctx, s.metaKey(),
			"run_id", o.RunID,
			"kind", o.Kind(),
			"completed_at", completed.Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return storageErr("redis write", err)
	}
	s.logger.Info("store.write.ok", "backend", "redis", "run_id", o.RunID, "kind", o.Kind(), "bytes", len(doc))
	return nil
}

func (s *RedisStore) ReadCurrent(ctx context.Context) (entity.Outcome, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Outcome{}, common.ErrNotAvailable
	}
	if err != nil {
		return entity.Outcome{}, storageErr("redis read", err)
	}
	o, err := entity.ParseOutcome(b)
	if err != nil {
		return entity.Outcome{}, storageErr("decode result", err)
	}
	meta, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err == nil {
		o.RunID = meta["run_id"]
		if t, err := time.Parse(time.RFC3339Nano, meta["completed_at"]); err == nil {
			o.CompletedAt = t
		}
	}
	return o, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storageErr("redis ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
