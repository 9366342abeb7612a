package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

// coldStartLookback is how far back the first ever cycle reaches when no
// watermark exists yet.
const coldStartLookback = 24 * time.Hour

// Outcome reports what one processing pass did.
type Outcome struct {
	Status           string
	Mode             string
	SummariesCreated int
	UsersAffected    int
	Duration         time.Duration

	// NewWatermark is the max raw update_time among processed tasks. Zero
	// when no tasks ran; the caller must not advance the watermark then.
	NewWatermark time.Time
}

// Service wires trigger generation, batch calculation, and summary
// persistence into one incremental processing pass. It is stateless; the
// watermark lives with the caller.
type Service struct {
	trigger    *TriggerGenerator
	engine     *Engine
	recomputer *Recomputer
	summaries  storage.SummaryStore
	batchSize  int
}

// NewService assembles the processing service. batchSize <= 0 lets the
// summary store pick its default.
func NewService(trigger *TriggerGenerator, engine *Engine, recomputer *Recomputer, summaries storage.SummaryStore, batchSize int) *Service {
	return &Service{
		trigger:    trigger,
		engine:     engine,
		recomputer: recomputer,
		summaries:  summaries,
		batchSize:  batchSize,
	}
}

// ProcessIncremental runs one watermark-driven pass. A nil watermark means
// cold start: process everything updated in the last 24 hours. userID
// restricts the pass to one user when non-empty.
//
// The returned watermark is derived from processed data, never from the
// clock, so rows written between scan and return are picked up next cycle.
func (s *Service) ProcessIncremental(ctx context.Context, watermark *time.Time, userID string) (Outcome, error) {
	started := time.Now()

	mode := core.ModeNormal
	since := time.Time{}
	if watermark != nil {
		since = *watermark
	} else {
		mode = core.ModeColdStart
		since = started.UTC().Add(-coldStartLookback)
		slog.Info("[Service] No watermark, cold start", "since", since)
	}

	tasks, err := s.trigger.Tasks(ctx, since, userID)
	if err != nil {
		return Outcome{Status: core.StatusFailure, Mode: mode, Duration: time.Since(started)},
			fmt.Errorf("generate tasks: %w", err)
	}
	if len(tasks) == 0 {
		return Outcome{Status: core.StatusNoData, Mode: mode, Duration: time.Since(started)}, nil
	}

	records, err := s.engine.CalculateBatch(ctx, tasks)
	if err != nil {
		return Outcome{Status: core.StatusFailure, Mode: mode, Duration: time.Since(started)},
			fmt.Errorf("calculate batch: %w", err)
	}

	if err := s.summaries.UpsertSummaries(ctx, records, s.batchSize); err != nil {
		return Outcome{Status: core.StatusFailure, Mode: mode, Duration: time.Since(started)},
			fmt.Errorf("persist summaries: %w", err)
	}

	return Outcome{
		Status:           core.StatusSuccess,
		Mode:             mode,
		SummariesCreated: len(records),
		UsersAffected:    countUsers(records),
		Duration:         time.Since(started),
		NewWatermark:     maxUpdateTime(tasks),
	}, nil
}

// RecalculateRange rebuilds and persists one user's summaries for an
// inclusive date range. The watermark is untouched: historical recompute
// and incremental processing are independent.
func (s *Service) RecalculateRange(ctx context.Context, userID string, start, end time.Time) (Outcome, error) {
	started := time.Now()

	records, err := s.recomputer.Recompute(ctx, userID, start, end)
	if err != nil {
		return Outcome{Status: core.StatusFailure, Mode: core.ModeNormal, Duration: time.Since(started)},
			fmt.Errorf("recompute range: %w", err)
	}
	if len(records) == 0 {
		return Outcome{Status: core.StatusNoData, Mode: core.ModeNormal, Duration: time.Since(started)}, nil
	}

	if err := s.summaries.UpsertSummaries(ctx, records, s.batchSize); err != nil {
		return Outcome{Status: core.StatusFailure, Mode: core.ModeNormal, Duration: time.Since(started)},
			fmt.Errorf("persist summaries: %w", err)
	}

	return Outcome{
		Status:           core.StatusSuccess,
		Mode:             core.ModeNormal,
		SummariesCreated: len(records),
		UsersAffected:    countUsers(records),
		Duration:         time.Since(started),
	}, nil
}

func countUsers(records []core.SummaryRecord) int {
	users := make(map[string]struct{}, len(records))
	for _, r := range records {
		users[r.UserID] = struct{}{}
	}
	return len(users)
}

func maxUpdateTime(tasks []core.CalculationTask) time.Time {
	var max time.Time
	for _, t := range tasks {
		if t.UpdateTime.After(max) {
			max = t.UpdateTime
		}
	}
	return max
}
