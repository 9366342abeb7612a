package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

// defaultLookback bounds the incremental scan to recent sample times.
// Corrections older than this go through historical recompute instead.
const defaultLookback = 3 * 30 * 24 * time.Hour

// SampleGroup is one (user, indicator, timezone, day-window) cluster of raw
// rows, carrying the min/max update_time observed in the cluster.
type SampleGroup struct {
	UserID        string
	Indicator     string
	Timezone      string
	DataBeginUTC  time.Time
	MinUpdateTime time.Time
	MaxUpdateTime time.Time
}

type sampleGroupKey struct {
	userID    string
	indicator string
	timezone  string
	beginUTC  time.Time
}

// GroupSamples clusters raw rows into day-window groups. Sleep indicators
// anchor at local 18:00, everything else at local midnight. Pure function:
// both the incremental trigger path and historical recompute group through
// it, so the two paths can never disagree on window identity.
func GroupSamples(samples []storage.RawSample) []SampleGroup {
	byKey := make(map[sampleGroupKey]*SampleGroup)
	for _, s := range samples {
		loc := core.LoadLocation(s.Timezone)
		begin := core.DataBeginUTC(s.Time, loc, core.IsSleepIndicator(s.Indicator))

		key := sampleGroupKey{userID: s.UserID, indicator: s.Indicator, timezone: s.Timezone, beginUTC: begin}
		g, ok := byKey[key]
		if !ok {
			byKey[key] = &SampleGroup{
				UserID:        s.UserID,
				Indicator:     s.Indicator,
				Timezone:      s.Timezone,
				DataBeginUTC:  begin,
				MinUpdateTime: s.UpdateTime,
				MaxUpdateTime: s.UpdateTime,
			}
			continue
		}
		if s.UpdateTime.Before(g.MinUpdateTime) {
			g.MinUpdateTime = s.UpdateTime
		}
		if s.UpdateTime.After(g.MaxUpdateTime) {
			g.MaxUpdateTime = s.UpdateTime
		}
	}

	groups := make([]SampleGroup, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].MinUpdateTime.Equal(groups[j].MinUpdateTime) {
			return groups[i].MinUpdateTime.Before(groups[j].MinUpdateTime)
		}
		if groups[i].UserID != groups[j].UserID {
			return groups[i].UserID < groups[j].UserID
		}
		return groups[i].Indicator < groups[j].Indicator
	})
	return groups
}

// TasksFromGroups crosses sample groups with the rule registry, emitting one
// task per (group, matching rule). Groups with no rules yield nothing.
func TasksFromGroups(groups []SampleGroup, registry *core.Registry) []core.CalculationTask {
	var tasks []core.CalculationTask
	for _, g := range groups {
		rules := registry.RulesForSource(g.Indicator)
		for _, rule := range rules {
			tasks = append(tasks, core.CalculationTask{
				UserID:          g.UserID,
				SourceIndicator: g.Indicator,
				TargetIndicator: rule.TargetIndicator,
				Method:          rule.Method,
				DataBeginUTC:    g.DataBeginUTC,
				Timezone:        g.Timezone,
				UpdateTime:      g.MaxUpdateTime,
			})
		}
	}
	return tasks
}

// TriggerGenerator scans the raw store for rows updated since a watermark
// and turns them into calculation tasks.
type TriggerGenerator struct {
	raw      storage.RawSampleStore
	registry *core.Registry
	lookback time.Duration
}

// NewTriggerGenerator creates a trigger generator. lookback <= 0 uses the
// 3-month default.
func NewTriggerGenerator(raw storage.RawSampleStore, registry *core.Registry, lookback time.Duration) *TriggerGenerator {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &TriggerGenerator{raw: raw, registry: registry, lookback: lookback}
}

// Tasks returns the pending calculation tasks for rows updated after since.
// Zero matching rows is a legitimate empty result (nil, nil); a store
// failure propagates so the caller never mistakes an error for "no data".
func (g *TriggerGenerator) Tasks(ctx context.Context, since time.Time, userID string) ([]core.CalculationTask, error) {
	samples, err := g.raw.UpdatedSince(ctx, since, g.lookback, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch updated samples: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	groups := GroupSamples(samples)
	tasks := TasksFromGroups(groups, g.registry)

	slog.Info("[Trigger] Generated tasks",
		"samples", len(samples),
		"groups", len(groups),
		"tasks", len(tasks),
		"since", since,
	)
	return tasks, nil
}
