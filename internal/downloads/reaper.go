package downloads

import (
	"context"
	"time"

	"github.com/hbomb79/Aria/internal/artifact"
	"github.com/hbomb79/Aria/internal/event"
	"github.com/hbomb79/Aria/internal/job"
	"github.com/hbomb79/Aria/pkg/logger"
)

var reaperLog = logger.Get("Reaper")

// reaper periodically sweeps the job table for entries which have
// outlived their TTL, deleting them and their backing artifacts. The
// sweep guarantees that a client which never polls leaks nothing beyond
// the TTL window.
type reaper struct {
	interval  time.Duration
	jobStore  *job.Store
	artifacts *artifact.Store
	eventBus  event.EventCoordinator
}

func NewReaper(interval time.Duration, jobStore *job.Store, artifacts *artifact.Store, eventBus event.EventCoordinator) *reaper {
	return &reaper{
		interval:  interval,
		jobStore:  jobStore,
		artifacts: artifacts,
		eventBus:  eventBus,
	}
}

// Run sweeps on a fixed period until the provided context is cancelled.
func (reaper *reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(reaper.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reaper.Sweep(time.Now())
		case <-ctx.Done():
			reaperLog.Emit(logger.STOP, "Shutting down (context cancelled)\n")
			return nil
		}
	}
}

// Sweep removes every job whose expiry has passed at the instant
// provided. Each candidate is removed from the table atomically before
// its artifact is deleted; a candidate already consumed by a racing
// one-time fetch is simply skipped. Per-job failures are logged and do
// not halt the sweep.
func (reaper *reaper) Sweep(now time.Time) {
	expired := reaper.jobStore.SnapshotExpired(now)
	if len(expired) == 0 {
		return
	}

	reaperLog.Emit(logger.INFO, "Sweeping %d expired job(s)\n", len(expired))
	for _, candidate := range expired {
		removed := reaper.jobStore.Remove(candidate.Token)
		if removed == nil {
			// Consumed between snapshot and removal, nothing to do.
			continue
		}

		if removed.ResultPath != "" {
			if err := reaper.artifacts.Delete(removed.ResultPath); err != nil {
				reaperLog.Emit(logger.ERROR, "Failed to delete artifact for expired %s: %v\n", removed, err)
			}
		}

		reaperLog.Emit(logger.REMOVE, "Reaped expired %s\n", removed)
		reaper.eventBus.Dispatch(event.JobExpiredEvent, removed.Token)
	}
}
