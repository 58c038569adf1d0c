// Package history is the on-demand daily bar cache. Reads are served from
// the bar store; the first request for an unknown symbol fetches the maximal
// series from its provider synchronously, and later requests widen or extend
// coverage through queued jobs.
package history

import "time"

// Bar is one daily OHLCV row. Economic series carry the same value in all
// four price fields and a nil volume.
type Bar struct {
	ID        int64
	Symbol    string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Coverage describes what the store holds for one symbol.
type Coverage struct {
	First time.Time
	Last  time.Time
	Count int
}

func (c Coverage) Empty() bool { return c.Count == 0 }

// Chart ranges in calendar days of lookback. YTD and Max resolve
// dynamically in RangeStart.
var rangeDays = map[string]int{
	"1D": 1,
	"5D": 5,
	"1W": 7,
	"1M": 30,
	"3M": 90,
	"6M": 180,
	"1Y": 365,
	"5Y": 1825,
}

// ValidRange reports whether rng is a supported chart range.
func ValidRange(rng string) bool {
	if rng == "YTD" || rng == "Max" {
		return true
	}
	_, ok := rangeDays[rng]
	return ok
}

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// RangeStart returns the inclusive cutoff date for a range relative to now.
// Max returns the zero time, meaning no cutoff. YTD is January 1 of the
// current year in US Eastern time, matching the trading calendar.
func RangeStart(rng string, now time.Time) time.Time {
	switch rng {
	case "Max":
		return time.Time{}
	case "YTD":
		year := now.In(eastern).Year()
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	days, ok := rangeDays[rng]
	if !ok {
		return time.Time{}
	}
	return now.UTC().AddDate(0, 0, -days)
}

// lastTradingDay returns the most recent completed US trading date as a
// UTC midnight value. Before the 16:00 ET close the current day does not
// count; weekends roll back to Friday. Market holidays are not modeled.
func lastTradingDay(now time.Time) time.Time {
	et := now.In(eastern)
	if et.Hour() < 16 {
		et = et.AddDate(0, 0, -1)
	}
	for et.Weekday() == time.Saturday || et.Weekday() == time.Sunday {
		et = et.AddDate(0, 0, -1)
	}
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, time.UTC)
}
