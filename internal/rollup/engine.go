package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	core "github.com/vitalsum-lab/vitalsum/internal/core/rollup"
	"github.com/vitalsum-lab/vitalsum/internal/core/storage"
)

const (
	defaultWorkerCount = 4

	// TaskID identifies this job in summary rows, scheduler state, and the
	// execution lock.
	TaskID = "daily_rollup"

	summarySourceTable = "series_data"
)

// Engine computes summary records for batches of calculation tasks.
// It reads the raw store and produces records; it never writes.
type Engine struct {
	raw         storage.RawSampleStore
	taskCap     int
	workerCount int
}

// NewEngine creates a batch engine. taskCap <= 0 uses the reference cap;
// workers <= 0 uses a small default.
func NewEngine(raw storage.RawSampleStore, taskCap, workers int) *Engine {
	if taskCap <= 0 {
		taskCap = core.DefaultTaskCap
	}
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	return &Engine{raw: raw, taskCap: taskCap, workerCount: workers}
}

// CalculateBatch converts tasks into summary records.
//
// Tasks are grouped by day window, then by user within each window. Windows
// are independent of each other (no shared state beyond the output list),
// so they run under a bounded errgroup. A failure in any window fails the
// whole batch — partial results are discarded, which is safe because
// persistence is an idempotent upsert and the cycle will retry whole.
func (e *Engine) CalculateBatch(ctx context.Context, tasks []core.CalculationTask) ([]core.SummaryRecord, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	windows := make(map[time.Time][]core.CalculationTask)
	for _, t := range tasks {
		windows[t.DataBeginUTC] = append(windows[t.DataBeginUTC], t)
	}

	var (
		mu      sync.Mutex
		results []core.SummaryRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workerCount)

	for begin, windowTasks := range windows {
		begin, windowTasks := begin, windowTasks
		g.Go(func() error {
			strategy := core.ChooseStrategy(len(windowTasks), e.taskCap)
			slog.Debug("[Engine] Processing day window",
				"data_begin_utc", begin,
				"tasks", len(windowTasks),
				"strategy", strategy.String(),
			)

			var (
				records []core.SummaryRecord
				err     error
			)
			switch strategy {
			case core.StrategySplitByIndicator:
				records, err = e.aggregateSplit(gctx, begin, windowTasks)
			default:
				records, err = e.aggregateSingle(gctx, begin, windowTasks)
			}
			if err != nil {
				return fmt.Errorf("day window %s: %w", begin.Format(time.RFC3339), err)
			}

			mu.Lock()
			results = append(results, records...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("[Engine] Batch complete",
		"tasks", len(tasks),
		"windows", len(windows),
		"summaries", len(results),
	)
	return results, nil
}

// aggregateSingle issues one query per user covering all of that user's
// indicators and requested methods for this window.
func (e *Engine) aggregateSingle(ctx context.Context, begin time.Time, tasks []core.CalculationTask) ([]core.SummaryRecord, error) {
	var results []core.SummaryRecord
	for _, userTasks := range groupByUser(tasks) {
		rows, err := e.raw.Aggregate(ctx, storage.AggregateQuery{
			UserIDs:     []string{userTasks[0].UserID},
			Indicators:  distinctIndicators(userTasks),
			DayStartUTC: begin,
			Columns:     requestedColumns(userTasks),
		})
		if err != nil {
			return nil, fmt.Errorf("aggregate user %s: %w", userTasks[0].UserID, err)
		}
		results = append(results, convertRows(rows, userTasks, begin)...)
	}
	return results, nil
}

// aggregateSplit fans out to one query per (user, indicator) pair. Used
// above the task cap, where a single wide ANY(...) list would hurt planning.
func (e *Engine) aggregateSplit(ctx context.Context, begin time.Time, tasks []core.CalculationTask) ([]core.SummaryRecord, error) {
	byIndicator := make(map[string][]core.CalculationTask)
	for _, t := range tasks {
		byIndicator[t.SourceIndicator] = append(byIndicator[t.SourceIndicator], t)
	}

	var results []core.SummaryRecord
	for indicator, indicatorTasks := range byIndicator {
		for _, userTasks := range groupByUser(indicatorTasks) {
			rows, err := e.raw.Aggregate(ctx, storage.AggregateQuery{
				UserIDs:     []string{userTasks[0].UserID},
				Indicators:  []string{indicator},
				DayStartUTC: begin,
				Columns:     requestedColumns(userTasks),
			})
			if err != nil {
				return nil, fmt.Errorf("aggregate user %s indicator %s: %w", userTasks[0].UserID, indicator, err)
			}
			results = append(results, convertRows(rows, userTasks, begin)...)
		}
	}
	return results, nil
}

// convertRows matches aggregate rows back to the tasks that requested them
// and emits summary records. A task whose method has no value in the row
// (NULL aggregate) is skipped silently — no samples is not an error.
func convertRows(rows []storage.AggregateRow, tasks []core.CalculationTask, beginUTC time.Time) []core.SummaryRecord {
	if len(rows) == 0 || len(tasks) == 0 {
		return nil
	}

	// All tasks in a user group share timezone and window.
	loc := core.LoadLocation(tasks[0].Timezone)
	dayStart, dayEnd := core.LocalDayBounds(beginUTC, loc)

	type rowKey struct{ userID, indicator string }
	byKey := make(map[rowKey][]storage.AggregateRow)
	for _, r := range rows {
		k := rowKey{userID: r.UserID, indicator: r.Indicator}
		byKey[k] = append(byKey[k], r)
	}

	var records []core.SummaryRecord
	for _, task := range tasks {
		matched := byKey[rowKey{userID: task.UserID, indicator: task.SourceIndicator}]
		for _, row := range matched {
			value, ok := row.Values[task.Method.Column()]
			if !ok {
				continue
			}

			records = append(records, core.SummaryRecord{
				UserID:        task.UserID,
				Indicator:     task.TargetIndicator + "." + sourceSuffix(row.Source),
				Value:         value.String(),
				StartTime:     dayStart,
				EndTime:       dayEnd,
				Source:        row.Source,
				TaskID:        TaskID,
				Comment:       fmt.Sprintf("Aggregated from %s using %s", task.SourceIndicator, task.Method),
				SourceTable:   summarySourceTable,
				SourceTableID: task.SourceIndicator,
			})
		}
	}
	return records
}

// sourceSuffix cleans a provider source name for use as an indicator name
// suffix: dailyTotalSteps.apple_health.
func sourceSuffix(source string) string {
	s := strings.TrimPrefix(source, "vital.")
	if s == "" {
		return "unknown"
	}
	return s
}

// groupByUser splits tasks by user, with deterministic user order.
func groupByUser(tasks []core.CalculationTask) [][]core.CalculationTask {
	byUser := make(map[string][]core.CalculationTask)
	for _, t := range tasks {
		byUser[t.UserID] = append(byUser[t.UserID], t)
	}
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	out := make([][]core.CalculationTask, 0, len(users))
	for _, u := range users {
		out = append(out, byUser[u])
	}
	return out
}

func distinctIndicators(tasks []core.CalculationTask) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tasks {
		if _, ok := seen[t.SourceIndicator]; ok {
			continue
		}
		seen[t.SourceIndicator] = struct{}{}
		out = append(out, t.SourceIndicator)
	}
	sort.Strings(out)
	return out
}

func requestedColumns(tasks []core.CalculationTask) []core.Column {
	methods := make(map[core.Method]struct{})
	for _, t := range tasks {
		methods[t.Method] = struct{}{}
	}
	return core.ColumnsForMethods(methods)
}
