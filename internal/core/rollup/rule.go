package rollup

import (
	"fmt"
	"strings"
)

// WindowDaily is the only implemented time window. The grouping key and SQL
// bounds generalize to hourly/weekly, but no rule may request them yet.
const WindowDaily = "daily"

const defaultPriority = 50

// Rule maps a raw series indicator plus an aggregation method to a derived
// daily summary indicator.
type Rule struct {
	SourceIndicator string
	TargetIndicator string
	Method          Method
	TimeWindow      string
	Enabled         bool
	Priority        int // higher runs earlier
}

// NewRule builds a validated rule. Empty names or an unknown method fail
// here, at construction, never silently downstream.
func NewRule(source, target, method string) (Rule, error) {
	if strings.TrimSpace(source) == "" {
		return Rule{}, fmt.Errorf("rule: source indicator must not be empty")
	}
	if strings.TrimSpace(target) == "" {
		return Rule{}, fmt.Errorf("rule %q: target indicator must not be empty", source)
	}
	m, err := ParseMethod(method)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q -> %q: %w", source, target, err)
	}
	return Rule{
		SourceIndicator: source,
		TargetIndicator: target,
		Method:          m,
		TimeWindow:      WindowDaily,
		Enabled:         true,
		Priority:        defaultPriority,
	}, nil
}

// TargetName derives the summary indicator name for a source/method pair.
// Pattern: daily{Method}{Source} in camelCase, e.g.
// heartRates+avg -> dailyAvgHeartRates, steps+total -> dailyTotalSteps.
func TargetName(source string, method Method) string {
	if source == "" {
		return ""
	}
	capitalized := strings.ToUpper(source[:1]) + source[1:]
	return "daily" + method.DisplayName() + capitalized
}
