package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/memocache"
	"github.com/unkn0wn-root/memocache/codec"
	"github.com/unkn0wn-root/memocache/internal/config"
	zaplog "github.com/unkn0wn-root/memocache/log/zap"
	pr "github.com/unkn0wn-root/memocache/provider"
	"github.com/unkn0wn-root/memocache/provider/bigcache"
	"github.com/unkn0wn-root/memocache/provider/redis"
	"github.com/unkn0wn-root/memocache/provider/ristretto"
	"github.com/unkn0wn-root/memocache/provider/sqlite"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	zc.DisableStacktrace = true
	return zc.Build()
}

func newProvider(ctx context.Context, cfg config.Config) (pr.Provider, error) {
	switch cfg.Backend {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		return redis.New(redis.Config{Client: rdb, Prefix: cfg.Redis.Prefix, CloseClient: true})
	case "ristretto":
		return ristretto.New(ristretto.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: cfg.Ristretto.BufferItems,
			SyncWrites:  true,
		})
	case "bigcache":
		return bigcache.New(ctx, bigcache.Config{
			LifeWindow:         time.Duration(cfg.BigCache.LifeWindow),
			MaxEntriesInWindow: 1024,
			MaxEntrySize:       512,
			HardMaxCacheSizeMB: cfg.BigCache.MaxSizeMB,
		})
	case "sqlite":
		return sqlite.New(ctx, sqlite.Config{
			Path:          cfg.SQLite.Path,
			SweepInterval: time.Duration(cfg.SQLite.SweepInterval),
		})
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newCodec(name string) (codec.Codec[[]byte], error) {
	switch name {
	case "string":
		return codec.Bytes{}, nil
	case "json":
		return codec.JSON[[]byte]{}, nil
	case "msgpack":
		return codec.Msgpack[[]byte]{}, nil
	case "cbor":
		return codec.NewCBOR[[]byte](true)
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// newFacade wires the configured backend, codec and logger into a facade.
// The caller owns the returned facade and must Close it.
func newFacade(ctx context.Context, cfg config.Config, log *zap.Logger) (memocache.Facade[[]byte], error) {
	cd, err := newCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fc, err := memocache.New[[]byte](memocache.Options[[]byte]{
		Provider:         p,
		Codec:            cd,
		Group:            cfg.Group,
		Name:             cfg.Name,
		DefaultExpire:    defaultExpire(cfg.Expire),
		Tenants:          memocache.StaticTenant(tenantOf(cfg.Tenant)),
		Logger:           zaplog.New(log),
		AtomicAggregates: cfg.AtomicAggregates,
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return fc, nil
}

// defaultExpire maps a configured 0 to no expiry, like --expire 0.
func defaultExpire(d config.Duration) time.Duration {
	if d == 0 {
		return memocache.NoExpiry
	}
	return time.Duration(d)
}

func tenantOf(t config.Tenant) memocache.Tenant {
	return memocache.Tenant{Multi: t.Multi, ID: t.ID, Network: t.Network}
}
