package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketpicture/internal/config"
	"marketpicture/internal/ratelimit"
)

const (
	dateFormat  = "2006-01-02"
	defaultTick = 30 * time.Second
)

// Task is one schedulable unit of work.
type Task func(ctx context.Context) error

// Tasks are the functions the scheduler drives. Nil entries are skipped,
// so callers wire only what they need.
type Tasks struct {
	// QuotePoll runs on the quote interval; the task itself gates on
	// market sessions, so it is scheduled seven days a week for the
	// benefit of 24/7 markets.
	QuotePoll Task
	// The remaining tasks fire at their configured ET clock time on
	// weekdays, once per day.
	PremarketQuotes  Task
	PremarketSummary Task
	FREDRefresh      Task
	DailyAppend      Task
	CloseSummary     Task
}

type entry struct {
	name string
	task Task

	// Interval entries.
	every time.Duration
	next  time.Time

	// At-time entries: minutes past midnight ET, and the date last fired.
	at      int
	lastDay string
}

// Scheduler owns a fixed set of entries and fires them from a single
// goroutine. Tasks run sequentially, so a slow task delays the next tick
// rather than overlapping itself.
type Scheduler struct {
	entries []*entry
	tick    time.Duration
}

// New builds a scheduler from the configured trigger times.
func New(cfg config.ScheduleConfig, tasks Tasks) (*Scheduler, error) {
	s := &Scheduler{tick: defaultTick}

	if tasks.QuotePoll != nil {
		interval := cfg.QuoteIntervalMinutes
		if interval <= 0 {
			interval = 10
		}
		s.entries = append(s.entries, &entry{
			name:  "quote_poll",
			task:  tasks.QuotePoll,
			every: time.Duration(interval) * time.Minute,
		})
	}

	for _, at := range []struct {
		name string
		when string
		task Task
	}{
		{"premarket_quotes", cfg.PremarketQuotes, tasks.PremarketQuotes},
		{"premarket_summary", cfg.PremarketSummary, tasks.PremarketSummary},
		{"fred_refresh", cfg.FREDRefresh, tasks.FREDRefresh},
		{"daily_append", cfg.DailyAppend, tasks.DailyAppend},
		{"close_summary", cfg.CloseSummary, tasks.CloseSummary},
	} {
		if at.task == nil {
			continue
		}
		mins, err := parseClock(at.when)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid HH:MM time %q", at.name, at.when)
		}
		s.entries = append(s.entries, &entry{name: at.name, task: at.task, at: mins})
	}

	return s, nil
}

// Run blocks until ctx is cancelled, firing due entries on each tick.
// Provider calls made from here charge credits against the background
// ceiling, leaving headroom for live requests.
func (s *Scheduler) Run(ctx context.Context) {
	ctx = ratelimit.WithBackground(ctx)

	s.prime(time.Now())
	slog.Info("scheduler started", "entries", len(s.entries))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runDue(ctx, time.Now())
		}
	}
}

// prime sets initial firing state: interval entries wait one full interval,
// and at-time entries whose clock time already passed today do not fire
// until tomorrow.
func (s *Scheduler) prime(now time.Time) {
	et := now.In(eastern)
	for _, e := range s.entries {
		if e.every > 0 {
			e.next = now.Add(e.every)
			continue
		}
		if minutesOfDay(et) >= e.at {
			e.lastDay = et.Format(dateFormat)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for _, e := range s.entries {
		if e.every > 0 {
			if now.Before(e.next) {
				continue
			}
			e.next = now.Add(e.every)
			s.run(ctx, e)
			continue
		}

		et := now.In(eastern)
		if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		day := et.Format(dateFormat)
		if minutesOfDay(et) < e.at || e.lastDay == day {
			continue
		}
		e.lastDay = day
		s.run(ctx, e)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	slog.Debug("running scheduled task", "task", e.name)
	if err := e.task(ctx); err != nil {
		slog.Error("scheduled task failed", "task", e.name, "error", err)
	}
}
