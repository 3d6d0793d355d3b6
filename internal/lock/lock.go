// Package lock serializes work per owner inside one process.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrTimeout = errors.New("timed out waiting for owner lock")

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// OwnerGate hands out one slot per owner. Entries are dropped once no
// caller holds or waits on them.
type OwnerGate struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewOwnerGate() *OwnerGate {
	return &OwnerGate{entries: make(map[string]*entry)}
}

// Acquire blocks until the owner's slot is free, ctx ends, or timeout
// elapses. A non-positive timeout waits on ctx alone.
func (g *OwnerGate) Acquire(ctx context.Context, ownerID string, timeout time.Duration) (func(), error) {
	e := g.ref(ownerID)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		g.unref(ownerID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			g.unref(ownerID)
		})
	}, nil
}

// Held reports how many owners currently have an entry.
func (g *OwnerGate) Held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *OwnerGate) ref(ownerID string) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[ownerID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		g.entries[ownerID] = e
	}
	e.refs++
	return e
}

func (g *OwnerGate) unref(ownerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[ownerID]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(g.entries, ownerID)
	}
}
