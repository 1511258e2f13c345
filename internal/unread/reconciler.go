// Package unread reconciles the per-room unread counters from their two
// writers: the periodic REST snapshot and the socket's pushed updates.
// Whichever write arrives last wins; a slightly stale badge is cosmetic,
// so no ordering is enforced between the two sources.
package unread

import (
	"context"
	"log"
	"sync"
	"time"
)

// Fetcher returns the full unread snapshot for all rooms.
type Fetcher func(ctx context.Context) (map[int64]int, error)

// Reconciler maintains the roomID -> unread count map.
type Reconciler struct {
	fetch    Fetcher
	interval time.Duration

	mu     sync.Mutex
	counts map[int64]int

	updates chan struct{}
}

// New returns a reconciler polling fetch every interval once Run is called.
func New(fetch Fetcher, interval time.Duration) *Reconciler {
	return &Reconciler{
		fetch:    fetch,
		interval: interval,
		counts:   make(map[int64]int),
		updates:  make(chan struct{}, 1),
	}
}

// Updates signals after any change to the map. Coalesced; consumers should
// re-read Snapshot on receive.
func (r *Reconciler) Updates() <-chan struct{} {
	return r.updates
}

// Run polls the snapshot until ctx is cancelled. Poll failures are logged
// and skipped; the previous counts stay in place until the next cycle.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Poll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Poll fetches one snapshot immediately and overwrites the whole map.
func (r *Reconciler) Poll(ctx context.Context) {
	counts, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("unread poll failed: %v", err)
		return
	}

	r.mu.Lock()
	r.counts = counts
	r.mu.Unlock()
	r.notify()
}

// Apply overwrites a single room's count from a pushed update.
func (r *Reconciler) Apply(roomID int64, count int) {
	r.mu.Lock()
	r.counts[roomID] = count
	r.mu.Unlock()
	r.notify()
}

// Zero optimistically clears a room's count the moment its messages are
// marked read, without waiting for the next poll.
func (r *Reconciler) Zero(roomID int64) {
	r.Apply(roomID, 0)
}

// Get returns the current count for a room.
func (r *Reconciler) Get(roomID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[roomID]
}

// Snapshot returns a copy of the whole map for rendering.
func (r *Reconciler) Snapshot() map[int64]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

func (r *Reconciler) notify() {
	select {
	case r.updates <- struct{}{}:
	default:
	}
}
