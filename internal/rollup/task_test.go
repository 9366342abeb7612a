package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
)

func newTestTask(raw *memRawStore, summaries *memSummaryStore, scheduler *memSchedulerStore) *Task {
	return NewTask(newTestPipeline(raw, summaries, builtinRegistry()), scheduler)
}

func TestTaskRun_ColdStartThenNormal(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	raw := &memRawStore{}
	raw.add(seriesRow{UserID: "u1", Indicator: "steps", Source: "vital.fitbit", Timezone: "UTC",
		Value: 100, Time: now.Add(-2 * time.Hour), UpdateTime: now.Add(-time.Hour)})
	summaries := newMemSummaryStore()
	scheduler := newMemSchedulerStore()
	task := newTestTask(raw, summaries, scheduler)

	// First run: no watermark yet, cold start.
	outcome, err := task.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.ModeColdStart, outcome.Mode)
	require.Equal(t, core.StatusSuccess, outcome.Status)

	wm, err := scheduler.Watermark(context.Background(), TaskID)
	require.NoError(t, err)
	require.Equal(t, now.Add(-time.Hour), wm)

	// Second run: watermark present, nothing new.
	outcome, err = task.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, core.ModeNormal, outcome.Mode)
	require.Equal(t, core.StatusNoData, outcome.Status)

	// A no-data cycle leaves the watermark where it was.
	wm2, err := scheduler.Watermark(context.Background(), TaskID)
	require.NoError(t, err)
	require.Equal(t, wm, wm2)
}

func TestTaskRun_WatermarkAdvancesWithNewData(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	raw := &memRawStore{}
	raw.add(seriesRow{UserID: "u1", Indicator: "steps", Source: "vital.fitbit", Timezone: "UTC",
		Value: 100, Time: now.Add(-3 * time.Hour), UpdateTime: now.Add(-2 * time.Hour)})
	summaries := newMemSummaryStore()
	scheduler := newMemSchedulerStore()
	task := newTestTask(raw, summaries, scheduler)

	_, err := task.Run(context.Background())
	require.NoError(t, err)

	// New row arrives with a later update_time.
	raw.add(seriesRow{UserID: "u1", Indicator: "steps", Source: "vital.fitbit", Timezone: "UTC",
		Value: 200, Time: now.Add(-90 * time.Minute), UpdateTime: now.Add(-time.Minute)})

	_, err = task.Run(context.Background())
	require.NoError(t, err)

	wm, err := scheduler.Watermark(context.Background(), TaskID)
	require.NoError(t, err)
	require.Equal(t, now.Add(-time.Minute), wm)
}

func TestTaskRun_FailureLeavesWatermark(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	raw := &memRawStore{}
	raw.add(seriesRow{UserID: "u1", Indicator: "steps", Source: "vital.fitbit", Timezone: "UTC",
		Value: 100, Time: now.Add(-2 * time.Hour), UpdateTime: now.Add(-time.Hour)})
	summaries := newMemSummaryStore()
	scheduler := newMemSchedulerStore()
	scheduler.watermarks[TaskID] = now.Add(-24 * time.Hour)
	summaries.fail = errors.New("disk full")
	task := newTestTask(raw, summaries, scheduler)

	_, err := task.Run(context.Background())
	require.Error(t, err)

	wm, err := scheduler.Watermark(context.Background(), TaskID)
	require.NoError(t, err)
	require.Equal(t, now.Add(-24*time.Hour), wm)

	// Failure is still visible in the recorded stats.
	stats, ok, err := scheduler.LastStats(context.Background(), TaskID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, stats.Errors)
}

func TestTaskRun_RecordsStats(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	raw := &memRawStore{}
	raw.add(seriesRow{UserID: "u1", Indicator: "steps", Source: "vital.fitbit", Timezone: "UTC",
		Value: 100, Time: now.Add(-2 * time.Hour), UpdateTime: now.Add(-time.Hour)})
	summaries := newMemSummaryStore()
	scheduler := newMemSchedulerStore()
	task := newTestTask(raw, summaries, scheduler)

	_, err := task.Run(context.Background())
	require.NoError(t, err)

	stats, ok, err := scheduler.LastStats(context.Background(), TaskID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, stats.ExecutionID)
	require.NotEmpty(t, stats.ExecutedAt)
	require.Equal(t, core.ModeColdStart, stats.Mode)
	require.Equal(t, 1, stats.SummariesCreated)
	require.Equal(t, 1, stats.UsersAffected)
	require.Empty(t, stats.Errors)
}
