package rollup

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

const (
	defaultInterval = 6 * time.Minute

	// lockTTLFactor sizes the execution lock relative to the interval so a
	// crashed holder's lock expires before too many cycles are skipped.
	lockTTLFactor = 2
)

// Scheduler runs the rollup task on a fixed interval, guarded by a
// distributed lock so only one instance processes at a time.
type Scheduler struct {
	task      *Task
	scheduler storage.SchedulerStore
	interval  time.Duration
}

// NewScheduler creates a scheduler. interval <= 0 uses the 6-minute default.
func NewScheduler(task *Task, scheduler storage.SchedulerStore, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{task: task, scheduler: scheduler, interval: interval}
}

// Start runs an initial cycle immediately, then ticks until ctx is
// cancelled. It blocks; run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("[Scheduler] Starting", "interval", s.interval)

	s.runLocked(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopped")
			return
		case <-ticker.C:
			s.runLocked(ctx)
		}
	}
}

// runLocked executes one cycle under the distributed lock. A held lock
// means another instance is mid-cycle; this tick is skipped, not queued.
func (s *Scheduler) runLocked(ctx context.Context) {
	token, ok, err := s.scheduler.AcquireLock(ctx, TaskID, s.interval*lockTTLFactor)
	if err != nil {
		slog.Error("[Scheduler] Lock acquisition failed", "error", err)
		return
	}
	if !ok {
		slog.Debug("[Scheduler] Lock held elsewhere, skipping tick")
		return
	}
	defer func() {
		if err := s.scheduler.ReleaseLock(ctx, TaskID, token); err != nil {
			slog.Error("[Scheduler] Lock release failed", "error", err)
		}
	}()

	if _, err := s.task.Run(ctx); err != nil {
		slog.Error("[Scheduler] Cycle error", "error", err)
	}
}
