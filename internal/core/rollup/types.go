package rollup

import (
	"time"
)

// CalculationTask is one (user, rule, day-window) unit of aggregation work.
// Tasks are created per cycle from trigger groups and discarded after use.
type CalculationTask struct {
	UserID          string
	SourceIndicator string
	TargetIndicator string
	Method          Method

	// DataBeginUTC is the UTC instant anchoring the start of the user's
	// local day window (local 00:00, or local 18:00 for sleep data).
	// The aggregation query covers [DataBeginUTC, DataBeginUTC+24h).
	DataBeginUTC time.Time

	// Timezone is the user's IANA zone, needed to convert the window back
	// to local calendar-day bounds for summary storage.
	Timezone string

	// UpdateTime is the max raw update_time in the trigger group that
	// produced this task. The watermark advances to the max across all
	// processed tasks.
	UpdateTime time.Time
}

// SummaryRecord is one per-day summary row, persisted by idempotent upsert
// keyed on (user_id, indicator, start_time, end_time).
type SummaryRecord struct {
	UserID    string
	Indicator string // target name + "." + source suffix, e.g. dailyTotalSteps.apple_health
	Value     string // serialized numeric
	StartTime time.Time
	EndTime   time.Time
	Source    string
	TaskID    string
	Comment   string

	SourceTable   string
	SourceTableID string
	IndicatorID   string
}

// Cycle outcome statuses.
const (
	StatusSuccess = "success"
	StatusNoData  = "no_data"
	StatusFailure = "failure"
)

// Cycle modes.
const (
	ModeNormal    = "normal"
	ModeColdStart = "cold_start"
)

// ProcessingStats summarizes one orchestration cycle. Produced once per
// cycle, persisted to the scheduler store, never mutated afterward.
type ProcessingStats struct {
	ExecutionID      string   `json:"execution_id"`
	ExecutedAt       string   `json:"executed_at"`
	SummariesCreated int      `json:"summaries_created"`
	UsersAffected    int      `json:"users_affected"`
	ExecutionTimeMS  float64  `json:"execution_time_ms"`
	Mode             string   `json:"mode"`
	Errors           []string `json:"errors,omitempty"`
}
