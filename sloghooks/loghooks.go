// Package sloghooks reports memocache events to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/memocache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	ReadFailEvery  uint64
	WriteFailEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	readFailCtr  atomic.Uint64
	writeFailCtr atomic.Uint64
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) ReadFailOpen(storageKey string, err error) {
	if h.l == nil || !sample(h.opts.ReadFailEvery, &h.readFailCtr) {
		return
	}
	h.l.Warn("memocache.read_fail_open",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) WriteFailed(storageKey string, isAggregate bool, err error) {
	if h.l == nil || !sample(h.opts.WriteFailEvery, &h.writeFailCtr) {
		return
	}
	h.l.Warn("memocache.write_failed",
		"key", h.redact(storageKey),
		"is_aggregate", isAggregate,
		"err", err)
}

func (h *Hooks) StoreSetRejected(storageKey string, isAggregate bool) {
	if h.l == nil {
		return
	}
	h.l.Info("memocache.store_set_rejected",
		"key", h.redact(storageKey),
		"is_aggregate", isAggregate)
}

func (h *Hooks) FlushFailed(target string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("memocache.flush_failed",
		"target", target,
		"err", err)
}

func (h *Hooks) AggregateConflict(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("memocache.aggregate_conflict",
		"key", h.redact(storageKey),
		"err", err)
}
