package catalog

// DataType classifies how an indicator's samples are shaped.
type DataType string

const (
	// TypeSeries indicators are sequences of timestamped samples
	// (e.g. a minute-by-minute heart rate log). Only series indicators
	// are eligible for daily rollup rules.
	TypeSeries DataType = "series"

	// TypeSummary indicators are already a single value over a period
	// (e.g. a provider-supplied daily step total). Never re-aggregated.
	TypeSummary DataType = "summary"
)

// IndicatorInfo describes one health indicator as known to the metadata catalog.
type IndicatorInfo struct {
	// Name is the raw indicator name as stored in series_data (lowerCamelCase).
	Name string

	// Unit is the standard unit for display purposes ("count", "bpm", "kg", ...).
	Unit string

	// DataType distinguishes raw series from pre-summarized values.
	DataType DataType

	// AggregationMethods lists the daily rollup methods this indicator supports
	// ("total", "avg", "max", "min", "last", ...). Empty means no rollup.
	AggregationMethods []string
}

// Catalog exposes indicator metadata. Queried once at startup to build the
// rule registry.
type Catalog interface {
	Indicators() []IndicatorInfo
}

// BuiltinCatalog serves the compiled-in indicator definitions.
type BuiltinCatalog struct{}

// NewBuiltinCatalog returns the standard indicator catalog.
func NewBuiltinCatalog() *BuiltinCatalog {
	return &BuiltinCatalog{}
}

// Indicators returns a copy of the builtin definitions.
func (c *BuiltinCatalog) Indicators() []IndicatorInfo {
	out := make([]IndicatorInfo, len(builtinIndicators))
	copy(out, builtinIndicators)
	return out
}
