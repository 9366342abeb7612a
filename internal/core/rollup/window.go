package rollup

import (
	"log/slog"
	"strings"
	"time"
)

// sleepAnchorHour is the local hour anchoring overnight sleep windows.
// A sleep sample belongs to the window starting at 18:00 local on the day
// the night's sleep begins, spanning to 18:00 the next day.
const sleepAnchorHour = 18

// IsSleepIndicator reports whether an indicator groups into the overnight
// sleep window instead of the calendar-day window.
func IsSleepIndicator(name string) bool {
	return strings.Contains(strings.ToLower(name), "sleep")
}

// LoadLocation resolves an IANA timezone name. An empty or invalid name
// falls back to UTC with a warning. A bad zone string must not drop a
// user's data, it just degrades to UTC day boundaries.
func LoadLocation(name string) *time.Location {
	if name == "" {
		slog.Warn("[Window] Empty timezone, falling back to UTC")
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("[Window] Invalid timezone, falling back to UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

// DataBeginUTC computes the UTC instant anchoring the day window a sample
// belongs to.
//
// Normal data: the sample's local calendar date at 00:00 local.
// Sleep data: shift the local instant back 18 hours, take that date, anchor
// at 18:00 local, so everything from 18:00 through 17:59:59 the next day
// lands in one overnight window.
//
// Anchors are constructed in the local zone and converted back to UTC, which
// keeps the grouping stable across DST transitions.
func DataBeginUTC(sampleTime time.Time, loc *time.Location, sleep bool) time.Time {
	local := sampleTime.In(loc)
	if sleep {
		shifted := local.Add(-sleepAnchorHour * time.Hour)
		y, m, d := shifted.Date()
		return time.Date(y, m, d, sleepAnchorHour, 0, 0, 0, loc).UTC()
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UTC()
}

// WindowEndUTC is the exclusive end of the aggregation window.
func WindowEndUTC(beginUTC time.Time) time.Time {
	return beginUTC.Add(24 * time.Hour)
}

// LocalDayBounds converts a window's UTC anchor back to the user's local
// calendar date and returns that date's 00:00:00 and 23:59:59 in the local
// zone. Summary rows are always stored against local-day bounds; a sleep
// window (18:00 anchored) is stored against the local date on which it
// begins.
func LocalDayBounds(beginUTC time.Time, loc *time.Location) (start, end time.Time) {
	local := beginUTC.In(loc)
	y, m, d := local.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d, 23, 59, 59, 0, loc)
	return start, end
}
