package featurestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the feature table CSV under a single key.
type RedisStore struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration // 0 keeps the key forever
}

func NewRedisStore(opt *redis.Options, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: redis.NewClient(opt), Key: key, TTL: ttl}
}

func (s *RedisStore) Location() string {
	return fmt.Sprintf("redis://%s/%s", s.Client.Options().Addr, s.Key)
}

func (s *RedisStore) Save(ctx context.Context, table *features.Table) error {
	data, err := features.EncodeCSV(table)
	if err != nil {
		return fmt.Errorf("RedisStore.Save: %w", err)
	}
	if err := s.Client.Set(ctx, s.Key, data, s.TTL).Err(); err != nil {
		return fmt.Errorf("RedisStore.Save: setting %s: %w", s.Key, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("key", s.Key).
		Int("accounts", table.Len()).
		Int("bytes", len(data)).
		Dur("ttl", s.TTL).
		Msg("Saved feature table")
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (*features.Table, error) {
	data, err := s.Client.Get(ctx, s.Key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("RedisStore.Load: %w", apperr.NewMissingInput(artifact, s.Location()))
	}
	if err != nil {
		return nil, fmt.Errorf("RedisStore.Load: getting %s: %w", s.Key, err)
	}

	table, err := features.DecodeCSV(data)
	if err != nil {
		return nil, fmt.Errorf("RedisStore.Load: %w", err)
	}
	return table, nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
