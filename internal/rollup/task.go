package rollup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

// Task is one scheduled rollup job: it owns the watermark lifecycle around
// a Service pass and records per-cycle stats.
type Task struct {
	service   *Service
	scheduler storage.SchedulerStore
}

// NewTask creates the daily rollup task.
func NewTask(service *Service, scheduler storage.SchedulerStore) *Task {
	return &Task{service: service, scheduler: scheduler}
}

// Run executes one cycle: read watermark, process, and on success advance
// the watermark and save stats. On failure the watermark stays put, so the
// next cycle reprocesses the same rows — the idempotent upsert makes the
// retry safe.
func (t *Task) Run(ctx context.Context) (Outcome, error) {
	var watermark *time.Time
	wm, err := t.scheduler.Watermark(ctx, TaskID)
	switch {
	case errors.Is(err, storage.ErrNoWatermark):
		watermark = nil
	case err != nil:
		return Outcome{Status: core.StatusFailure}, fmt.Errorf("read watermark: %w", err)
	default:
		watermark = &wm
	}

	outcome, runErr := t.service.ProcessIncremental(ctx, watermark, "")

	stats := core.ProcessingStats{
		ExecutionID:      uuid.NewString(),
		ExecutedAt:       time.Now().UTC().Format(time.RFC3339),
		SummariesCreated: outcome.SummariesCreated,
		UsersAffected:    outcome.UsersAffected,
		ExecutionTimeMS:  float64(outcome.Duration.Microseconds()) / 1000.0,
		Mode:             outcome.Mode,
	}

	if runErr != nil {
		stats.Errors = []string{runErr.Error()}
		if err := t.scheduler.SaveStats(ctx, TaskID, stats); err != nil {
			slog.Error("[Task] Failed to save failure stats", "error", err)
		}
		slog.Error("[Task] Cycle failed, watermark unchanged", "error", runErr)
		return outcome, runErr
	}

	if !outcome.NewWatermark.IsZero() {
		if err := t.scheduler.SetWatermark(ctx, TaskID, outcome.NewWatermark); err != nil {
			// Summaries are persisted but the watermark is stale; the next
			// cycle reprocesses and re-upserts them.
			slog.Error("[Task] Failed to advance watermark", "error", err)
			return outcome, fmt.Errorf("advance watermark: %w", err)
		}
	}

	if err := t.scheduler.SaveStats(ctx, TaskID, stats); err != nil {
		slog.Error("[Task] Failed to save stats", "error", err)
	}

	slog.Info("[Task] Cycle complete",
		"status", outcome.Status,
		"mode", outcome.Mode,
		"summaries_created", outcome.SummariesCreated,
		"users_affected", outcome.UsersAffected,
		"duration", outcome.Duration,
	)
	return outcome, nil
}
