package maintenance

import (
	"context"
	"time"

	"github.com/ragdhq/ragd/internal/store"
)

// Report is the `ragd doctor`-facing health summary: the store's own
// probe result plus maintenance-layer context (whether a checkpoint/migrate
// lock is currently held by this or another process).
type Report struct {
	Store      *store.HealthStatus
	LockHeld   bool
	LockPath   string
	ReportedAt time.Time
}

// CheckHealth probes the store and reports whether the maintenance lock is
// currently held (by anyone — this process or another), without blocking.
func CheckHealth(ctx context.Context, indexStore *store.IndexStore, lock *FileLock) *Report {
	status := indexStore.HealthCheck(ctx)

	report := &Report{Store: status, ReportedAt: time.Now()}
	if lock == nil {
		return report
	}
	report.LockPath = lock.path

	acquired, err := lock.TryLock()
	if err != nil || !acquired {
		report.LockHeld = true
		return report
	}
	_ = lock.Unlock()
	return report
}
