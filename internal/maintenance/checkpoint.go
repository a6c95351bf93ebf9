// Package maintenance runs the background operational loop around an
// IndexStore: periodic checkpointing, health probes, and backend migration.
// None of it is reachable from a search or ingest request; it exists for an
// operator-facing process (the CLI, or a daemon wrapping the engine) to
// drive.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ragdhq/ragd/internal/store"
)

// DefaultCheckpointInterval is how often the checkpoint loop persists the
// file-backed stores when no interval is configured.
const DefaultCheckpointInterval = 5 * time.Minute

// Checkpointer periodically flushes an IndexStore's file-backed stores to
// disk, so a crash loses at most one interval's worth of unpersisted state.
// The metadata store persists continuously through SQLite's own durability;
// this loop exists for the vector and keyword stores, whose Persist is an
// explicit Save call.
type Checkpointer struct {
	store    *store.IndexStore
	lock     *FileLock
	interval time.Duration
	log      *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewCheckpointer builds a Checkpointer. interval <= 0 uses
// DefaultCheckpointInterval.
func NewCheckpointer(indexStore *store.IndexStore, lock *FileLock, interval time.Duration) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{
		store:    indexStore,
		lock:     lock,
		interval: interval,
		log:      slog.With(slog.String("component", "maintenance_checkpoint")),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run blocks, persisting on a timer until ctx is cancelled or Stop is
// called. A single run-to-completion call is expected per process; callers
// typically launch it in its own goroutine.
func (c *Checkpointer) Run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			if err := c.checkpointOnce(ctx); err != nil {
				c.log.Warn("checkpoint failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop signals Run to return and waits for it to do so. Safe to call even
// if Run was never started.
func (c *Checkpointer) Stop() {
	select {
	case <-c.stopCh:
		return // already stopped
	default:
		close(c.stopCh)
	}
	<-c.doneCh
}

func (c *Checkpointer) checkpointOnce(ctx context.Context) error {
	if c.lock != nil {
		acquired, err := c.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire checkpoint lock: %w", err)
		}
		if !acquired {
			c.log.Debug("skipping checkpoint, lock held by another process")
			return nil
		}
		defer c.lock.Unlock()
	}

	start := time.Now()
	if err := c.store.Persist(ctx); err != nil {
		return fmt.Errorf("persist index store: %w", err)
	}
	c.log.Info("checkpoint complete", slog.Duration("elapsed", time.Since(start)))
	return nil
}
