// Package store provides the key-value store backing the trial bot.
//
// All persisted records (pending OAuth states, linked accounts, the trial key
// pool) live in a single logical namespace addressed by prefixed string keys.
// The contract deliberately includes atomic take primitives: consuming a
// one-time state token and claiming a pool key must be read-and-delete in a
// single step, never a get followed by a separate delete.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Driver names accepted in Config.Driver.
const (
	DriverMemory = "memory"
	DriverLibsql = "libsql"
	DriverRedis  = "redis"
)

// ErrNotFound is returned when a key does not exist. Callers must distinguish
// it from connectivity or serialization failures.
var ErrNotFound = errors.New("store: key not found")

// KV is the associative store contract shared by all drivers.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any existing entry.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Scan returns all keys starting with prefix, in lexicographic order.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Take atomically reads and deletes key. Exactly one of any number of
	// concurrent callers observes the value; the rest get ErrNotFound.
	Take(ctx context.Context, key string) ([]byte, error)

	// TakeFirst atomically claims the first entry (in scan order) whose key
	// starts with prefix, removing it. Returns ErrNotFound when no entry
	// matches. No two concurrent callers may claim the same entry.
	TakeFirst(ctx context.Context, prefix string) (key string, value []byte, err error)

	// Ping verifies connectivity for health checks.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// Config selects and configures a store driver.
type Config struct {
	Driver    string      `mapstructure:"driver"`
	Path      string      `mapstructure:"path"`
	URL       string      `mapstructure:"url"`
	AuthToken string      `mapstructure:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Open initializes a store for the configured driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = DriverLibsql
	}

	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverLibsql:
		return openLibsql(ctx, cfg)
	case DriverRedis:
		return openRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
