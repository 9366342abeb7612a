package catalog

// builtinIndicators is the standard indicator set.
//
// Method selection follows the measurement semantics:
//   - cumulative quantities (steps, distance, calories, sleep stage minutes)
//     roll up with "total"
//   - vitals sampled continuously (heart rate, pressure, SpO2) keep
//     avg/max/min envelopes
//   - body measurements taken occasionally (weight, BMI, body fat) keep the
//     latest reading of the day ("last")
var builtinIndicators = []IndicatorInfo{
	// Activity
	{Name: "steps", Unit: "count", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "walkingRunningDistances", Unit: "m", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "exerciseMinutes", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "activeCalories", Unit: "kcal", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "basalCalories", Unit: "kcal", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "flightsClimbed", Unit: "count", DataType: TypeSeries, AggregationMethods: []string{"total"}},

	// Vitals
	{Name: "heartRates", Unit: "bpm", DataType: TypeSeries, AggregationMethods: []string{"avg", "max", "min"}},
	{Name: "restingHeartRates", Unit: "bpm", DataType: TypeSeries, AggregationMethods: []string{"avg"}},
	{Name: "heartRateVariabilities", Unit: "ms", DataType: TypeSeries, AggregationMethods: []string{"avg"}},
	{Name: "oxygenSaturations", Unit: "%", DataType: TypeSeries, AggregationMethods: []string{"avg", "min"}},
	{Name: "systolicPressures", Unit: "mmHg", DataType: TypeSeries, AggregationMethods: []string{"avg", "max"}},
	{Name: "diastolicPressures", Unit: "mmHg", DataType: TypeSeries, AggregationMethods: []string{"avg", "max"}},
	{Name: "respiratoryRates", Unit: "breaths/min", DataType: TypeSeries, AggregationMethods: []string{"avg"}},
	{Name: "bodyTemperatures", Unit: "degC", DataType: TypeSeries, AggregationMethods: []string{"avg"}},

	// Metabolic
	{Name: "bloodGlucoses", Unit: "mmol/L", DataType: TypeSeries, AggregationMethods: []string{"avg", "max", "min", "last"}},

	// Body composition
	{Name: "weights", Unit: "kg", DataType: TypeSeries, AggregationMethods: []string{"last"}},
	{Name: "bmis", Unit: "kg/m2", DataType: TypeSeries, AggregationMethods: []string{"last"}},
	{Name: "bodyFatPercentages", Unit: "%", DataType: TypeSeries, AggregationMethods: []string{"last"}},

	// Sleep stages. Sleep samples group into the overnight 18:00-18:00 window.
	{Name: "sleepAnalysis_Asleep", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "sleepAnalysis_Asleep(Deep)", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "sleepAnalysis_Asleep(REM)", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "sleepAnalysis_Asleep(Core)", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},
	{Name: "sleepAnalysis_Awake", Unit: "min", DataType: TypeSeries, AggregationMethods: []string{"total"}},

	// Performance
	{Name: "vo2Maxes", Unit: "mL/kg/min", DataType: TypeSeries, AggregationMethods: []string{"avg", "max"}},
	{Name: "cyclingDistances", Unit: "m", DataType: TypeSeries, AggregationMethods: []string{"total"}},

	// Provider-supplied daily summaries. Series rollup does not apply.
	{Name: "dailyTotalCalories", Unit: "kcal", DataType: TypeSummary},
	{Name: "dailyDistance", Unit: "m", DataType: TypeSummary},

	// Static attributes. No methods, no rollup.
	{Name: "birthDate", Unit: "", DataType: TypeSeries},
	{Name: "biaResistance", Unit: "ohm", DataType: TypeSeries},
}
