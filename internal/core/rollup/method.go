package rollup

import (
	"fmt"
	"strings"
)

// Method is an aggregation method. The set is closed: every switch over
// Method in this package and in the SQL builder covers exactly these values,
// so an unknown method can only enter the system through ParseMethod, which
// rejects it.
type Method string

const (
	MethodAvg      Method = "avg"
	MethodMax      Method = "max"
	MethodMin      Method = "min"
	MethodSum      Method = "sum"
	MethodTotal    Method = "total" // alias of sum, preferred in rule naming
	MethodCount    Method = "count"
	MethodLast     Method = "last"  // latest value by sample time
	MethodFirst    Method = "first" // earliest value by sample time
	MethodStddev   Method = "stddev"
	MethodVariance Method = "variance"
	MethodMedian   Method = "median" // 50th percentile
	MethodP95      Method = "p95"    // 95th percentile
)

// Methods lists all supported methods in canonical order.
var Methods = []Method{
	MethodAvg, MethodMax, MethodMin, MethodSum, MethodTotal, MethodCount,
	MethodLast, MethodFirst, MethodStddev, MethodVariance, MethodMedian, MethodP95,
}

// ParseMethod validates a raw method string.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported aggregation method %q", s)
}

// Column is the identity of one computed aggregate column in a batch query
// result. total and sum share a column: one SUM() expression serves both.
type Column string

const (
	ColumnAvg      Column = "avg"
	ColumnMax      Column = "max"
	ColumnMin      Column = "min"
	ColumnSum      Column = "sum"
	ColumnCount    Column = "count"
	ColumnLast     Column = "last"
	ColumnFirst    Column = "first"
	ColumnStddev   Column = "stddev"
	ColumnVariance Column = "variance"
	ColumnMedian   Column = "median"
	ColumnP95      Column = "p95"
)

// Columns lists all aggregate columns in the order the SQL builder emits them.
var Columns = []Column{
	ColumnAvg, ColumnMax, ColumnMin, ColumnSum, ColumnCount,
	ColumnStddev, ColumnVariance, ColumnLast, ColumnFirst, ColumnMedian, ColumnP95,
}

// Column maps the method to the aggregate column that carries its value.
func (m Method) Column() Column {
	if m == MethodTotal {
		return ColumnSum
	}
	return Column(m)
}

// DisplayName is the capitalized segment used in derived indicator names.
// total and sum both render as "Total" (dailyTotalSteps), but keep distinct
// Method values so SQL column selection stays unambiguous.
func (m Method) DisplayName() string {
	switch m {
	case MethodTotal, MethodSum:
		return "Total"
	case MethodP95:
		return "P95"
	default:
		s := string(m)
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// ColumnsForMethods collapses a method set into the distinct columns the
// batch query must compute, in canonical order.
func ColumnsForMethods(methods map[Method]struct{}) []Column {
	want := make(map[Column]struct{}, len(methods))
	for m := range methods {
		want[m.Column()] = struct{}{}
	}
	out := make([]Column, 0, len(want))
	for _, c := range Columns {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
