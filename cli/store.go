package cli

import (
	"context"
	"fmt"

	"giftshop/config"
	"giftshop/store"
)

// openStore connects to the backend selected by STORE_DRIVER. SQL backends
// are migrated on open.
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	case config.DriverRedis:
		return store.OpenRedis(ctx, cfg.RedisAddr)
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
