package rollup

// Strategy selects the SQL batching shape for one day-window group.
type Strategy int

const (
	// StrategySingleQuery issues one aggregate query per user covering all
	// of that user's indicators and methods.
	StrategySingleQuery Strategy = iota

	// StrategySplitByIndicator fans out to one query per (user, indicator)
	// pair. Very large ANY(...) lists degrade query planning; splitting
	// trades round-trips for predictable per-query cost.
	StrategySplitByIndicator
)

func (s Strategy) String() string {
	switch s {
	case StrategySingleQuery:
		return "single_query"
	case StrategySplitByIndicator:
		return "split_by_indicator"
	default:
		return "unknown"
	}
}

// DefaultTaskCap is the reference cutover point between the two strategies.
const DefaultTaskCap = 5000

// ChooseStrategy picks the batching strategy for a day-window group with
// taskCount pending tasks. Pure function, no I/O.
func ChooseStrategy(taskCount, cap int) Strategy {
	if cap <= 0 {
		cap = DefaultTaskCap
	}
	if taskCount <= cap {
		return StrategySingleQuery
	}
	return StrategySplitByIndicator
}
