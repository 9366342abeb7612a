package rollup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

// seriesRow is one raw sample with its value, the unit the in-memory store
// aggregates over.
type seriesRow struct {
	UserID     string
	Indicator  string
	Source     string
	Timezone   string
	Value      float64
	Time       time.Time
	UpdateTime time.Time
}

// memRawStore is an in-memory storage.RawSampleStore. It computes real
// aggregates over its rows so tests can assert on actual numbers instead
// of canned query results.
type memRawStore struct {
	mu   sync.Mutex
	rows []seriesRow

	aggregateCalls []storage.AggregateQuery
	failAggregate  error
	failUpdated    error
}

func (s *memRawStore) add(rows ...seriesRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
}

func (s *memRawStore) UpdatedSince(_ context.Context, since time.Time, lookback time.Duration, userID string) ([]storage.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdated != nil {
		return nil, s.failUpdated
	}
	earliest := time.Now().UTC().Add(-lookback)
	var out []storage.RawSample
	for _, r := range s.rows {
		if !r.UpdateTime.After(since) || r.Time.Before(earliest) {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		out = append(out, storage.RawSample{
			UserID:     r.UserID,
			Indicator:  r.Indicator,
			Timezone:   r.Timezone,
			Time:       r.Time,
			UpdateTime: r.UpdateTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdateTime.Before(out[j].UpdateTime) })
	return out, nil
}

func (s *memRawStore) InRange(_ context.Context, userID string, start, end time.Time) ([]storage.RawSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RawSample
	for _, r := range s.rows {
		if r.UserID != userID || r.Time.Before(start) || r.Time.After(end) {
			continue
		}
		out = append(out, storage.RawSample{
			UserID:     r.UserID,
			Indicator:  r.Indicator,
			Timezone:   r.Timezone,
			Time:       r.Time,
			UpdateTime: r.UpdateTime,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *memRawStore) Aggregate(_ context.Context, q storage.AggregateQuery) ([]storage.AggregateRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregateCalls = append(s.aggregateCalls, q)
	if s.failAggregate != nil {
		return nil, s.failAggregate
	}

	dayEnd := core.WindowEndUTC(q.DayStartUTC)

	type groupKey struct{ userID, indicator, source string }
	groups := make(map[groupKey][]seriesRow)
	for _, r := range s.rows {
		if !contains(q.UserIDs, r.UserID) || !contains(q.Indicators, r.Indicator) {
			continue
		}
		if r.Time.Before(q.DayStartUTC) || !r.Time.Before(dayEnd) {
			continue
		}
		k := groupKey{userID: r.UserID, indicator: r.Indicator, source: r.Source}
		groups[k] = append(groups[k], r)
	}

	var out []storage.AggregateRow
	for k, rows := range groups {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })
		row := storage.AggregateRow{
			UserID:    k.userID,
			Indicator: k.indicator,
			Source:    k.source,
			Values:    make(map[core.Column]decimal.Decimal),
		}
		for _, col := range q.Columns {
			if v, ok := computeColumn(col, rows); ok {
				row.Values[col] = v
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Indicator < out[j].Indicator
	})
	return out, nil
}

func computeColumn(col core.Column, rows []seriesRow) (decimal.Decimal, bool) {
	if len(rows) == 0 {
		return decimal.Zero, false
	}
	var sum float64
	min, max := rows[0].Value, rows[0].Value
	for _, r := range rows {
		sum += r.Value
		if r.Value < min {
			min = r.Value
		}
		if r.Value > max {
			max = r.Value
		}
	}
	switch col {
	case core.ColumnSum:
		return decimal.NewFromFloat(sum).Round(2), true
	case core.ColumnAvg:
		return decimal.NewFromFloat(sum / float64(len(rows))).Round(2), true
	case core.ColumnMin:
		return decimal.NewFromFloat(min).Round(2), true
	case core.ColumnMax:
		return decimal.NewFromFloat(max).Round(2), true
	case core.ColumnCount:
		return decimal.NewFromInt(int64(len(rows))), true
	case core.ColumnFirst:
		return decimal.NewFromFloat(rows[0].Value).Round(2), true
	case core.ColumnLast:
		return decimal.NewFromFloat(rows[len(rows)-1].Value).Round(2), true
	default:
		return decimal.Zero, false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// memSummaryStore records upserted summaries keyed by the conflict key, so
// repeated upserts of the same window overwrite like the real store.
type memSummaryStore struct {
	mu      sync.Mutex
	byKey   map[string]core.SummaryRecord
	upserts int
	fail    error
}

func newMemSummaryStore() *memSummaryStore {
	return &memSummaryStore{byKey: make(map[string]core.SummaryRecord)}
}

func (s *memSummaryStore) UpsertSummaries(_ context.Context, records []core.SummaryRecord, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.upserts++
	for _, r := range records {
		key := r.UserID + "|" + r.Indicator + "|" + r.StartTime.UTC().Format(time.RFC3339) + "|" + r.EndTime.UTC().Format(time.RFC3339)
		s.byKey[key] = r
	}
	return nil
}

func (s *memSummaryStore) all() []core.SummaryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SummaryRecord, 0, len(s.byKey))
	for _, r := range s.byKey {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Indicator < out[j].Indicator
	})
	return out
}

func (s *memSummaryStore) find(userID, indicator string) (core.SummaryRecord, bool) {
	for _, r := range s.all() {
		if r.UserID == userID && r.Indicator == indicator {
			return r, true
		}
	}
	return core.SummaryRecord{}, false
}

// memSchedulerStore is an in-memory storage.SchedulerStore.
type memSchedulerStore struct {
	mu         sync.Mutex
	watermarks map[string]time.Time
	stats      map[string]core.ProcessingStats
	locks      map[string]string
	failSetWM  error
}

func newMemSchedulerStore() *memSchedulerStore {
	return &memSchedulerStore{
		watermarks: make(map[string]time.Time),
		stats:      make(map[string]core.ProcessingStats),
		locks:      make(map[string]string),
	}
}

func (s *memSchedulerStore) Watermark(_ context.Context, taskID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wm, ok := s.watermarks[taskID]
	if !ok {
		return time.Time{}, storage.ErrNoWatermark
	}
	return wm, nil
}

func (s *memSchedulerStore) SetWatermark(_ context.Context, taskID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetWM != nil {
		return s.failSetWM
	}
	s.watermarks[taskID] = t
	return nil
}

func (s *memSchedulerStore) SaveStats(_ context.Context, taskID string, stats core.ProcessingStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[taskID] = stats
	return nil
}

func (s *memSchedulerStore) LastStats(_ context.Context, taskID string) (core.ProcessingStats, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[taskID]
	return stats, ok, nil
}

func (s *memSchedulerStore) AcquireLock(_ context.Context, taskID string, _ time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.locks[taskID]; held {
		return "", false, nil
	}
	token := "token-" + time.Now().Format("150405.000000000")
	s.locks[taskID] = token
	return token, true, nil
}

func (s *memSchedulerStore) ReleaseLock(_ context.Context, taskID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[taskID] == token {
		delete(s.locks, taskID)
	}
	return nil
}

// newTestPipeline wires a full in-memory service.
func newTestPipeline(raw *memRawStore, summaries *memSummaryStore, registry *core.Registry) *Service {
	trigger := NewTriggerGenerator(raw, registry, 0)
	engine := NewEngine(raw, 0, 2)
	recomputer := NewRecomputer(raw, engine, registry, 0)
	return NewService(trigger, engine, recomputer, summaries, 0)
}
