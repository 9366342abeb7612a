package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vitalsum-lab/vitalsum/internal/core/rollup"
)

// ErrNoWatermark is returned when a task has no persisted watermark yet
// (cold start). Distinct from a store failure: on ErrNoWatermark the caller
// falls back, on any other error the cycle fails without advancing anything.
var ErrNoWatermark = errors.New("no watermark recorded")

// RawSample is one raw series row, as read from the raw store.
type RawSample struct {
	UserID     string
	Indicator  string
	Timezone   string
	Time       time.Time // sample instant, UTC
	UpdateTime time.Time // row write/correction instant, UTC
}

// AggregateQuery describes one batch aggregate over a single day window.
// DayStartUTC is the window anchor; the row filter is
// [DayStartUTC, DayStartUTC+24h) against the UTC time column, so the time
// index stays usable. Columns lists the aggregate expressions to compute,
// only the ones some task actually requested.
type AggregateQuery struct {
	UserIDs     []string
	Indicators  []string
	DayStartUTC time.Time
	Columns     []rollup.Column
}

// AggregateRow is one grouped aggregate result. Values holds only the
// columns that came back non-NULL; a missing key means the aggregate was
// undefined for this group (e.g. stddev over a single sample).
type AggregateRow struct {
	UserID    string
	Indicator string
	Source    string
	Values    map[rollup.Column]decimal.Decimal
}

// RawSampleStore reads the raw series store. Read-only: the rollup engine
// never writes raw data.
type RawSampleStore interface {
	// UpdatedSince returns rows with update_time > since, bounded to
	// sample times within the lookback window (older corrections go
	// through historical recompute, not the incremental path).
	// userID, when non-empty, restricts to one user.
	// An empty result is a nil-error empty slice, never an error.
	UpdatedSince(ctx context.Context, since time.Time, lookback time.Duration, userID string) ([]RawSample, error)

	// InRange returns one user's rows with sample time in [start, end].
	InRange(ctx context.Context, userID string, start, end time.Time) ([]RawSample, error)

	// Aggregate executes one batch aggregate query, grouped by
	// (user_id, indicator, source).
	Aggregate(ctx context.Context, q AggregateQuery) ([]AggregateRow, error)
}

// SummaryStore persists summary rows via idempotent upsert on
// (user_id, indicator, start_time, end_time).
type SummaryStore interface {
	// UpsertSummaries writes records in chunks of batchSize. A failed
	// chunk aborts the call; rerunning the same records overwrites
	// rather than duplicates.
	UpsertSummaries(ctx context.Context, records []rollup.SummaryRecord, batchSize int) error
}

// SchedulerStore is the scheduler collaborator: per-task watermark, cycle
// stats, and the cluster-wide execution lock.
type SchedulerStore interface {
	// Watermark returns the task's last processed watermark, or
	// ErrNoWatermark when none has been recorded.
	Watermark(ctx context.Context, taskID string) (time.Time, error)

	// SetWatermark advances the task's watermark.
	SetWatermark(ctx context.Context, taskID string, t time.Time) error

	// SaveStats persists one cycle's stats for operational inspection.
	SaveStats(ctx context.Context, taskID string, stats rollup.ProcessingStats) error

	// LastStats returns the most recently saved stats; a missing entry is
	// (zero, false, nil).
	LastStats(ctx context.Context, taskID string) (rollup.ProcessingStats, bool, error)

	// AcquireLock takes the task's execution lock for ttl. Returns a
	// release token and whether the lock was acquired.
	AcquireLock(ctx context.Context, taskID string, ttl time.Duration) (string, bool, error)

	// ReleaseLock releases the lock if token still owns it.
	ReleaseLock(ctx context.Context, taskID, token string) error
}
