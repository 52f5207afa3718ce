package asynchook

import (
	"sync"
	"testing"

	"github.com/unkn0wn-root/memocache"
)

type countingHooks struct {
	memocache.NopHooks
	mu    sync.Mutex
	keys  []string
	block chan struct{}
}

func (c *countingHooks) ReadFailOpen(k string, _ error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, k)
}

func TestDeliversBeforeClose(t *testing.T) {
	inner := &countingHooks{}
	h := New(inner, 2, 16)
	for i := 0; i < 10; i++ {
		h.ReadFailOpen("k", nil)
	}
	h.Close()
	h.Close()

	if len(inner.keys) != 10 || h.Dropped() != 0 {
		t.Fatalf("delivered=%d dropped=%d", len(inner.keys), h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countingHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)

	// one event held by the worker, at most one queued, the rest dropped
	for i := 0; i < 10; i++ {
		h.ReadFailOpen("k", nil)
	}
	close(inner.block)
	h.Close()

	if got := uint64(len(inner.keys)) + h.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
	if h.Dropped() < 8 {
		t.Fatalf("dropped = %d, want >= 8", h.Dropped())
	}
}
