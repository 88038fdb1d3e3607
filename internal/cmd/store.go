package cmd

import (
	"context"
	"fmt"

	"github.com/lostmyalias/skyspoofer-trial-bot/internal/config"
	"github.com/lostmyalias/skyspoofer-trial-bot/internal/store"
)

// openStore loads config and opens the key-value store for CLI subcommands.
// Callers own the returned store and must Close it.
func openStore(ctx context.Context) (store.KV, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	kv, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	return kv, nil
}
