package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/memocache/internal/util"
	pr "github.com/unkn0wn-root/memocache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

const (
	defaultMaxRetries = 8
	scanBatch         = 512
)

type Redis struct {
	rdb         goredis.UniversalClient
	prefix      string
	maxRetries  int
	closeClient bool
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Updater  = (*Redis)(nil)
)

type Config struct {
	Client goredis.UniversalClient
	// Prefix isolates this cache inside a shared database. With a prefix,
	// Flush deletes only "<prefix>:*"; without one it runs FLUSHDB.
	Prefix      string
	MaxRetries  int  // optimistic Update attempts; 0 => 8
	CloseClient bool // set true only if this provider exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{
		rdb:         cfg.Client,
		prefix:      cfg.Prefix,
		maxRetries:  cfg.MaxRetries,
		closeClient: cfg.CloseClient,
	}
	if r.maxRetries <= 0 {
		r.maxRetries = defaultMaxRetries
	}
	return r, nil
}

func (p *Redis) key(ns, key string) string { return util.StorageKey(p.prefix, ns, key) }

func (p *Redis) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	b, err := p.rdb.Get(ctx, p.key(ns, key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, ns, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0 // no expiry
	}
	if err := p.rdb.Set(ctx, p.key(ns, key), value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, ns, key string) error {
	return p.rdb.Del(ctx, p.key(ns, key)).Err()
}

// Update runs fn inside WATCH/MULTI. A concurrent write to the key aborts the
// transaction and fn runs again on the fresh value, up to MaxRetries times.
func (p *Redis) Update(ctx context.Context, ns, key string, ttl time.Duration, fn pr.UpdateFunc) error {
	if ttl < 0 {
		ttl = 0
	}
	k := p.key(ns, key)
	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		found := true
		if err == goredis.Nil {
			cur, found = nil, false
		} else if err != nil {
			return err
		}
		next, err := fn(cur, found)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < p.maxRetries; i++ {
		err := p.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return pr.ErrConflict
}

// Flush clears the cache. On a cluster every master is flushed.
func (p *Redis) Flush(ctx context.Context) error {
	if cc, ok := p.rdb.(*goredis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *goredis.Client) error {
			return p.flushNode(ctx, node)
		})
	}
	return p.flushNode(ctx, p.rdb)
}

func (p *Redis) flushNode(ctx context.Context, node goredis.Cmdable) error {
	if p.prefix == "" {
		return node.FlushDB(ctx).Err()
	}
	// single-key DELs keep the pipeline valid across cluster hash slots
	iter := node.Scan(ctx, 0, p.prefix+":*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	del := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := node.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, k := range batch {
				pipe.Del(ctx, k)
			}
			return nil
		})
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := del(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return del()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
