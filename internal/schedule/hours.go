// Package schedule drives the recurring background work: interval quote
// polls and fixed time-of-day tasks in US/Eastern.
package schedule

import (
	"log/slog"
	"time"

	"marketpicture/internal/config"
)

const clockFormat = "15:04"

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// IsOpen reports whether a market region is inside its trading session at
// now. Weekends are closed for everything except 24/7 markets, and session
// windows where open > close wrap past midnight ET (e.g. Japan 20:00-02:00).
// Unknown regions are treated as closed so a config typo cannot silently
// burn quote credits.
func IsOpen(markets map[string]config.MarketHours, market string, now time.Time) bool {
	if market == "24/7" {
		return true
	}

	et := now.In(eastern)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}

	hours, ok := markets[market]
	if !ok {
		slog.Warn("unknown market region, treating as closed", "market", market)
		return false
	}

	open, err := parseClock(hours.Open)
	if err != nil {
		slog.Warn("invalid market open time, treating as closed", "market", market, "open", hours.Open)
		return false
	}
	closeAt, err := parseClock(hours.Close)
	if err != nil {
		slog.Warn("invalid market close time, treating as closed", "market", market, "close", hours.Close)
		return false
	}

	cur := minutesOfDay(et)
	if open < closeAt {
		return open <= cur && cur <= closeAt
	}
	return cur >= open || cur <= closeAt
}

// parseClock converts an HH:MM string to minutes past midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse(clockFormat, s)
	if err != nil {
		return 0, err
	}
	return minutesOfDay(t), nil
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
