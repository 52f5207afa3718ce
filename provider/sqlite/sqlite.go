// Package sqlite stores memocache records in a SQLite database, either a
// file shared by several processes on one host or an in-memory database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	pr "github.com/unkn0wn-root/memocache/provider"
)

const defaultSweep = time.Minute

type Config struct {
	// Path of the database file; "" or ":memory:" => private in-memory database.
	Path string
	// SweepInterval between deletions of expired rows; 0 => 1m.
	SweepInterval time.Duration
}

type Provider struct {
	db     *sql.DB
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var (
	_ pr.Provider = (*Provider)(nil)
	_ pr.Updater  = (*Provider)(nil)
)

func dsn(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	// immediate transactions take the write lock up front, so Update never
	// fails upgrading a read lock held by another process
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, err
	}
	// one connection: an in-memory database lives and dies with it, and
	// writers inside this process queue on the pool instead of SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS memocache (
		ns TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		PRIMARY KEY (ns, key)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_memocache_expires_at ON memocache(expires_at)`); err != nil {
		db.Close()
		return nil, err
	}

	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweep
	}
	childCtx, cancel := context.WithCancel(context.Background())
	p := &Provider{db: db, cancel: cancel}
	p.wg.Add(1)
	go p.run(childCtx, sweep)
	return p, nil
}

func expiresAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0 // no expiry
	}
	return time.Now().Add(ttl).UnixNano()
}

func live(exp int64) bool { return exp == 0 || exp >= time.Now().UnixNano() }

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q querier, ns, key string) ([]byte, bool, error) {
	var (
		b   []byte
		exp int64
	)
	err := q.QueryRowContext(ctx, `SELECT value, expires_at FROM memocache WHERE ns = ? AND key = ?`, ns, key).Scan(&b, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !live(exp) {
		return nil, false, nil
	}
	return b, true, nil
}

const upsert = `INSERT INTO memocache (ns, key, value, expires_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(ns, key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`

func (p *Provider) Get(ctx context.Context, ns, key string) ([]byte, bool, error) {
	return get(ctx, p.db, ns, key)
}

func (p *Provider) Set(ctx context.Context, ns, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if _, err := p.db.ExecContext(ctx, upsert, ns, key, value, expiresAt(ttl)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, ns, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM memocache WHERE ns = ? AND key = ?`, ns, key)
	return err
}

// Update reads and rewrites the record inside one transaction.
func (p *Provider) Update(ctx context.Context, ns, key string, ttl time.Duration, fn pr.UpdateFunc) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur, found, err := get(ctx, tx, ns, key)
	if err != nil {
		return err
	}
	next, err := fn(cur, found)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsert, ns, key, next, expiresAt(ttl)); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Provider) Flush(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM memocache`)
	return err
}

func (p *Provider) Close(context.Context) error {
	var err error
	p.once.Do(func() {
		p.cancel()
		p.wg.Wait()
		err = p.db.Close()
	})
	return err
}

func (p *Provider) run(ctx context.Context, every time.Duration) {
	defer p.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = p.db.ExecContext(ctx, `DELETE FROM memocache WHERE expires_at != 0 AND expires_at < ?`, time.Now().UnixNano())
		}
	}
}
