// Package asynchook moves hook delivery off the cache hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{ReadFailEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	prices, _ := memocache.New[Price](memocache.Options[Price]{
//	    Group:    "prices",
//	    Provider: provider,
//	    Codec:    codec.JSON[Price]{},
//	    Hooks:    hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/memocache"
)

type Hooks struct {
	inner   memocache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ memocache.Hooks = (*Hooks)(nil)

func New(inner memocache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events must not be
// delivered after Close.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) ReadFailOpen(k string, err error) { h.try(func() { h.inner.ReadFailOpen(k, err) }) }
func (h *Hooks) FlushFailed(t string, err error)  { h.try(func() { h.inner.FlushFailed(t, err) }) }
func (h *Hooks) StoreSetRejected(k string, agg bool) {
	h.try(func() { h.inner.StoreSetRejected(k, agg) })
}
func (h *Hooks) WriteFailed(k string, agg bool, err error) {
	h.try(func() { h.inner.WriteFailed(k, agg, err) })
}
func (h *Hooks) AggregateConflict(k string, err error) {
	h.try(func() { h.inner.AggregateConflict(k, err) })
}
