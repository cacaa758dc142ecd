package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"softspot/internal/cache"
	"softspot/internal/config"
	"softspot/internal/database"
	"softspot/internal/localstore"
	"softspot/internal/middleware"
	"softspot/internal/remote"
	"softspot/internal/search"
	"softspot/internal/seed"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemo bool
	Seed     seed.Options
}

// Runtime holds the connections a process needs.
type Runtime struct {
	LocalDB *gorm.DB
	Slots   localstore.Backend
	// RemoteDB is set only when REMOTE_MODE=sql.
	RemoteDB *gorm.DB
	// Remote serves request-scoped calls and forwards the caller's token.
	Remote remote.Client
	// Sync is used by the outbox worker with service credentials.
	Sync    remote.Client
	Redis   *redis.Client
	Elastic *es.Client
}

// InitRuntime connects the local store, the remote store, Redis and the
// optional search index.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	localDB, err := database.ConnectLocal(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("local store connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	rt := &Runtime{LocalDB: localDB, Redis: cache.InitRedis(cfg.RedisURL)}

	rt.Slots, err = slotBackend(cfg, localDB, rt.Redis)
	if err != nil {
		return nil, err
	}

	switch cfg.RemoteMode {
	case config.RemoteModeSQL:
		remoteDB, err := database.ConnectRemote(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("remote store connection failed: %w", err)
		}
		rt.RemoteDB = remoteDB
		client := remote.Instrument(remote.NewSQL(remoteDB))
		rt.Remote, rt.Sync = client, client
	case config.RemoteModeREST:
		rest, err := remote.NewREST(cfg.SupabaseURL, cfg.SupabaseAnonKey, remote.ContextToken(cfg.SupabaseAnonKey), cfg.RemoteTimeout)
		if err != nil {
			return nil, fmt.Errorf("remote client setup failed: %w", err)
		}
		syncKey := cfg.SupabaseServiceKey
		if syncKey == "" {
			middleware.Logger.Warn("SUPABASE_SERVICE_KEY not set, outbox sync runs with the anon key")
			syncKey = cfg.SupabaseAnonKey
		}
		rt.Remote = remote.Instrument(rest)
		rt.Sync = remote.Instrument(rest.WithTokens(remote.StaticToken(syncKey)))
	default:
		return nil, fmt.Errorf("unsupported remote mode %q", cfg.RemoteMode)
	}

	if cfg.ElasticURL != "" {
		rt.Elastic, err = connectSearch(ctx, cfg.ElasticURL)
		if err != nil {
			// Search is optional; the marketplace falls back to store filters.
			middleware.Logger.Warn("Search index unavailable", slog.String("error", err.Error()))
			rt.Elastic = nil
		}
	}

	if opts.SeedDemo {
		if rt.RemoteDB == nil {
			return nil, fmt.Errorf("demo seeding needs REMOTE_MODE=sql")
		}
		if _, err := seed.Seed(ctx, rt.RemoteDB, opts.Seed); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return rt, nil
}

func slotBackend(cfg *config.Config, localDB *gorm.DB, rdb *redis.Client) (localstore.Backend, error) {
	switch cfg.LocalSlotBackend {
	case "", config.SlotBackendSQL:
		return localstore.NewGormBackend(localDB), nil
	case config.SlotBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("LOCAL_SLOT_BACKEND=redis needs a reachable REDIS_URL")
		}
		return localstore.NewRedisBackend(rdb), nil
	case config.SlotBackendMemory:
		return localstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported slot backend %q", cfg.LocalSlotBackend)
	}
}

func connectSearch(ctx context.Context, addr string) (*es.Client, error) {
	client, err := search.Connect(addr)
	if err != nil {
		return nil, err
	}
	if err := search.EnsureIndex(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Close releases the runtime's connections.
func (rt *Runtime) Close() {
	for _, db := range []*gorm.DB{rt.LocalDB, rt.RemoteDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}
