package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

//go:embed claim_first.lua
var claimFirstScript string

// Redis stores entries in a redis instance, for deployments where the pool is
// shared across processes. Take maps to GETDEL; TakeFirst runs a Lua script so
// the scan-read-delete sequence executes atomically server-side.
type Redis struct {
	client   *redis.Client
	claimSHA string
}

func openRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	sha, err := client.ScriptLoad(ctx, claimFirstScript).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("load claim script: %w", err)
	}

	return &Redis{client: client, claimSHA: sha}, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (s *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		page, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", prefix, err)
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Redis) Take(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %q: %w", key, err)
	}
	return value, nil
}

func (s *Redis) TakeFirst(ctx context.Context, prefix string) (string, []byte, error) {
	result, err := s.client.EvalSha(ctx, s.claimSHA, nil, prefix+"*").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("take first %q: %w", prefix, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return "", nil, fmt.Errorf("take first %q: unexpected script reply %T", prefix, result)
	}
	key, _ := values[0].(string)
	value, _ := values[1].(string)
	return key, []byte(value), nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
