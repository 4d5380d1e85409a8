package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	logx "raidbot/pkg/logx"
)

// redisStore keeps one hash per table at <prefix><table>.
type redisStore struct {
	rdb    *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(cctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "raidbot:"
	}
	return &redisStore{rdb: rdb, prefix: prefix, log: log}, nil
}

func (s *redisStore) key(table string) string { return s.prefix + table }

func (s *redisStore) LoadTable(ctx context.Context, table string) ([]Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	m, err := s.rdb.HGetAll(ctx, s.key(table)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(m))
	for k, v := range m {
		out = append(out, Record{Key: k, Value: []byte(v)})
	}
	sortRecords(out)
	return out, nil
}

// SaveTable replaces the hash inside MULTI/EXEC.
func (s *redisStore) SaveTable(ctx context.Context, table string, recs []Record) error {
	if err := validTable(table); err != nil {
		return err
	}
	key := s.key(table)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(recs) == 0 {
			return nil
		}
		fields := make([]any, 0, len(recs)*2)
		for _, r := range recs {
			fields = append(fields, r.Key, string(r.Value))
		}
		pipe.HSet(ctx, key, fields...)
		return nil
	})
	return err
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}
