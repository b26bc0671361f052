package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ReilBleem13/ChatSync/internal/domain"
	"github.com/ReilBleem13/ChatSync/internal/transport"
)

// PresenceTracker polls the full online-user snapshot on a fixed
// interval. The source has no incremental presence protocol, so every
// refresh replaces the whole mapping atomically. A failed refresh
// keeps serving the last good snapshot - stale but available - and
// waits for the next tick.
type PresenceTracker struct {
	api            transport.API
	interval       time.Duration
	staleThreshold time.Duration

	mu       sync.RWMutex
	snapshot map[int64]domain.PresenceSnapshot
	running  bool
	stop     chan struct{}

	now func() time.Time
}

func NewPresenceTracker(api transport.API, interval, staleThreshold time.Duration) *PresenceTracker {
	// The threshold must tolerate at least one missed tick, otherwise
	// liveness flaps on every slow poll.
	if staleThreshold < interval {
		staleThreshold = 2 * interval
	}
	return &PresenceTracker{
		api:            api,
		interval:       interval,
		staleThreshold: staleThreshold,
		snapshot:       make(map[int64]domain.PresenceSnapshot),
		now:            time.Now,
	}
}

// Start begins the refresh loop. Idempotent while running. Stops when
// Stop is called or the context is cancelled.
func (p *PresenceTracker) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	go p.loop(ctx, stop)
}

func (p *PresenceTracker) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		close(p.stop)
		p.running = false
	}
}

func (p *PresenceTracker) loop(ctx context.Context, stop chan struct{}) {
	if err := p.Refresh(ctx); err != nil {
		slog.Warn("Presence refresh failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				slog.Warn("Presence refresh failed", "error", err)
			}
		}
	}
}

// Refresh replaces the entire snapshot. No partial merge: presence is
// a full-refresh feed, not a diff feed.
func (p *PresenceTracker) Refresh(ctx context.Context) error {
	snapshots, err := p.api.OnlineUsers(ctx)
	if err != nil {
		return err
	}

	captured := p.now()
	next := make(map[int64]domain.PresenceSnapshot, len(snapshots))
	for _, snapshot := range snapshots {
		if snapshot.CapturedAt.IsZero() {
			snapshot.CapturedAt = captured
		}
		next[snapshot.UserID] = snapshot
	}

	p.mu.Lock()
	p.snapshot = next
	p.mu.Unlock()
	return nil
}

func (p *PresenceTracker) IsStale(entry domain.PresenceSnapshot) bool {
	return p.now().Sub(entry.CapturedAt) > p.staleThreshold
}

// Online returns the live, non-stale entries excluding the viewer.
func (p *PresenceTracker) Online(selfID int64) []domain.PresenceSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]domain.PresenceSnapshot, 0, len(p.snapshot))
	for _, entry := range p.snapshot {
		if entry.UserID == selfID || p.IsStale(entry) {
			continue
		}
		result = append(result, entry)
	}
	return result
}

// Lookup returns the snapshot entry for one user, trusted or not.
// Callers that need liveness must check IsStale themselves.
func (p *PresenceTracker) Lookup(userID int64) (domain.PresenceSnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.snapshot[userID]
	return entry, ok
}
