package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vitalsum-lab/vitalsum/internal/catalog"
	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

func mustZone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func builtinRegistry() *core.Registry {
	return core.NewRegistry(catalog.NewBuiltinCatalog())
}

func TestGroupSamples_SplitsAtLocalMidnight(t *testing.T) {
	la := mustZone(t, "America/Los_Angeles")
	now := time.Now().UTC()

	samples := []storage.RawSample{
		{UserID: "u1", Indicator: "steps", Timezone: "America/Los_Angeles",
			Time: time.Date(2026, 1, 15, 23, 59, 59, 0, la), UpdateTime: now},
		{UserID: "u1", Indicator: "steps", Timezone: "America/Los_Angeles",
			Time: time.Date(2026, 1, 16, 0, 0, 0, 0, la), UpdateTime: now},
	}

	groups := GroupSamples(samples)
	require.Len(t, groups, 2)
	require.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, la).UTC(), groups[0].DataBeginUTC)
	require.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, la).UTC(), groups[1].DataBeginUTC)
}

func TestGroupSamples_SleepWindowBoundary(t *testing.T) {
	la := mustZone(t, "America/Los_Angeles")
	now := time.Now().UTC()

	samples := []storage.RawSample{
		// 17:59:59 local still belongs to the previous night.
		{UserID: "u1", Indicator: "sleepAnalysis_Asleep", Timezone: "America/Los_Angeles",
			Time: time.Date(2026, 1, 16, 17, 59, 59, 0, la), UpdateTime: now},
		// 18:00:00 opens the next overnight window.
		{UserID: "u1", Indicator: "sleepAnalysis_Asleep", Timezone: "America/Los_Angeles",
			Time: time.Date(2026, 1, 16, 18, 0, 0, 0, la), UpdateTime: now},
		// 03:00 the next morning belongs to the same night as 18:00.
		{UserID: "u1", Indicator: "sleepAnalysis_Asleep", Timezone: "America/Los_Angeles",
			Time: time.Date(2026, 1, 17, 3, 0, 0, 0, la), UpdateTime: now},
	}

	groups := GroupSamples(samples)
	require.Len(t, groups, 2)

	begins := []time.Time{groups[0].DataBeginUTC, groups[1].DataBeginUTC}
	require.Contains(t, begins, time.Date(2026, 1, 15, 18, 0, 0, 0, la).UTC())
	require.Contains(t, begins, time.Date(2026, 1, 16, 18, 0, 0, 0, la).UTC())
}

func TestGroupSamples_TracksUpdateTimeRange(t *testing.T) {
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	samples := []storage.RawSample{
		{UserID: "u1", Indicator: "steps", Timezone: "UTC", Time: base, UpdateTime: base.Add(2 * time.Hour)},
		{UserID: "u1", Indicator: "steps", Timezone: "UTC", Time: base.Add(time.Hour), UpdateTime: base.Add(time.Hour)},
		{UserID: "u1", Indicator: "steps", Timezone: "UTC", Time: base.Add(2 * time.Hour), UpdateTime: base.Add(3 * time.Hour)},
	}

	groups := GroupSamples(samples)
	require.Len(t, groups, 1)
	require.Equal(t, base.Add(time.Hour), groups[0].MinUpdateTime)
	require.Equal(t, base.Add(3*time.Hour), groups[0].MaxUpdateTime)
}

func TestTasksFromGroups(t *testing.T) {
	registry := builtinRegistry()
	begin := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	update := time.Date(2026, 1, 15, 20, 0, 0, 0, time.UTC)

	groups := []SampleGroup{
		{UserID: "u1", Indicator: "heartRates", Timezone: "America/Los_Angeles",
			DataBeginUTC: begin, MaxUpdateTime: update},
		{UserID: "u1", Indicator: "noSuchIndicator", Timezone: "America/Los_Angeles",
			DataBeginUTC: begin, MaxUpdateTime: update},
	}

	tasks := TasksFromGroups(groups, registry)

	// heartRates declares avg/max/min; the unknown indicator yields nothing.
	require.Len(t, tasks, 3)
	targets := make(map[string]struct{})
	for _, task := range tasks {
		require.Equal(t, "u1", task.UserID)
		require.Equal(t, begin, task.DataBeginUTC)
		require.Equal(t, update, task.UpdateTime)
		targets[task.TargetIndicator] = struct{}{}
	}
	require.Contains(t, targets, "dailyAvgHeartRates")
	require.Contains(t, targets, "dailyMaxHeartRates")
	require.Contains(t, targets, "dailyMinHeartRates")
}

func TestTriggerGenerator_EmptyResultIsNotAnError(t *testing.T) {
	raw := &memRawStore{}
	gen := NewTriggerGenerator(raw, builtinRegistry(), 0)

	tasks, err := gen.Tasks(context.Background(), time.Now().Add(-time.Hour), "")
	require.NoError(t, err)
	require.Nil(t, tasks)
}

func TestTriggerGenerator_StoreErrorPropagates(t *testing.T) {
	raw := &memRawStore{failUpdated: errors.New("connection refused")}
	gen := NewTriggerGenerator(raw, builtinRegistry(), 0)

	_, err := gen.Tasks(context.Background(), time.Now().Add(-time.Hour), "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestTriggerGenerator_FiltersByUser(t *testing.T) {
	now := time.Now().UTC()
	raw := &memRawStore{}
	raw.add(
		seriesRow{UserID: "u1", Indicator: "steps", Timezone: "UTC", Value: 100, Time: now.Add(-time.Hour), UpdateTime: now},
		seriesRow{UserID: "u2", Indicator: "steps", Timezone: "UTC", Value: 200, Time: now.Add(-time.Hour), UpdateTime: now},
	)
	gen := NewTriggerGenerator(raw, builtinRegistry(), 0)

	tasks, err := gen.Tasks(context.Background(), now.Add(-2*time.Hour), "u2")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "u2", tasks[0].UserID)
}
