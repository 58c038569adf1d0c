package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"marketpicture/internal/apperror"
	"marketpicture/internal/job"
	"marketpicture/internal/provider"
)

const (
	defaultMaxAttempts = 3

	fredSource = "fred"
)

type Service struct {
	barRepo   Repository
	jobRepo   job.Repository
	registry  *provider.Registry
	intraday  provider.IntradayProvider
	sourceFor func(symbol string) string

	firstTouchGroup singleflight.Group
	maxAttempts     int
	notify          func() // optional: wake worker pool
}

func NewService(barRepo Repository, jobRepo job.Repository, registry *provider.Registry, intraday provider.IntradayProvider, sourceFor func(string) string) *Service {
	return &Service{
		barRepo:     barRepo,
		jobRepo:     jobRepo,
		registry:    registry,
		intraday:    intraday,
		sourceFor:   sourceFor,
		maxAttempts: defaultMaxAttempts,
	}
}

// SetNotify sets a callback invoked when a new pending job is created.
func (s *Service) SetNotify(fn func()) { s.notify = fn }

// SetMaxAttempts sets how many times a job is tried before it is dropped.
func (s *Service) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

// GetHistory serves daily bars for a chart range. An unknown symbol triggers
// a synchronous maximal fetch so the first chart render has data; a stored
// series that starts after the requested cutoff is served as-is while a
// backfill job widens it in the background. Fully covered requests never
// touch the provider.
func (s *Service) GetHistory(ctx context.Context, req GetHistoryRequest) (*GetHistoryResponse, error) {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cov, err := s.barRepo.Coverage(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("coverage: %w", err)
	}

	cutoff := RangeStart(req.Range, time.Now())

	if cov.Empty() {
		if err := s.firstTouch(ctx, req.Symbol); err != nil {
			return nil, err
		}
		bars, err := s.barRepo.Range(ctx, req.Symbol, cutoff, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("read range: %w", err)
		}
		return &GetHistoryResponse{Symbol: req.Symbol, Range: req.Range, Bars: points(bars)}, nil
	}

	var j *job.Job
	if !cutoff.IsZero() && cutoff.Before(cov.First) {
		j, err = s.enqueueBackfill(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
	}

	bars, err := s.barRepo.Range(ctx, req.Symbol, cutoff, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("read range: %w", err)
	}
	return &GetHistoryResponse{Symbol: req.Symbol, Range: req.Range, Bars: points(bars), Job: j}, nil
}

// firstTouch fetches the maximal series for a symbol the store has never
// seen. Concurrent requests for the same symbol share one provider call.
// An empty provider response is treated as confirmed absence: the request
// succeeds with no bars and nothing is stored, so a later request may try
// again.
func (s *Service) firstTouch(ctx context.Context, symbol string) error {
	_, err, _ := s.firstTouchGroup.Do(symbol, func() (any, error) {
		// Re-check under the flight lock: another request may have
		// completed the fetch while this one queued.
		cov, err := s.barRepo.Coverage(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("coverage: %w", err)
		}
		if !cov.Empty() {
			return nil, nil
		}

		p, err := s.providerFor(symbol)
		if err != nil {
			return nil, err
		}

		slog.Info("cache miss, fetching full history", "symbol", symbol)
		bars, err := p.Series(ctx, symbol, time.Time{})
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			slog.Warn("provider returned no history", "symbol", symbol)
			return nil, nil
		}

		n, err := s.barRepo.UpsertBars(ctx, toDomainBars(symbol, bars))
		if err != nil {
			return nil, fmt.Errorf("store bars: %w", err)
		}
		slog.Info("stored full history", "symbol", symbol, "bars", n)
		return nil, nil
	})
	return err
}

// enqueueBackfill queues an interactive-tier job to widen a symbol's
// coverage, reusing an already pending or running one.
func (s *Service) enqueueBackfill(ctx context.Context, symbol string) (*job.Job, error) {
	active, err := s.jobRepo.FindActive(ctx, symbol, job.KindBackfill)
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	if active != nil {
		return active, nil
	}

	j := &job.Job{
		Source:   s.sourceFor(symbol),
		Symbol:   symbol,
		Kind:     job.KindBackfill,
		Priority: job.PriorityInteractive,
		Status:   job.StatusPending,
	}
	if err := s.jobRepo.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify()
	}
	return j, nil
}

// EnqueueDailyAppends queues a daily-tier append job for every cached
// symbol, fetching from each symbol's last stored date onward. The last
// date is included so a same-day close overwrites any intraday-provisional
// row. Returns the number of jobs created.
func (s *Service) EnqueueDailyAppends(ctx context.Context) (int, error) {
	return s.enqueueAppends(ctx, time.Time{})
}

// EnqueueCatchUpAppends queues append jobs only for cached symbols whose
// last stored date predates the most recent completed trading day. Run at
// startup, so a restart with fresh data enqueues nothing.
func (s *Service) EnqueueCatchUpAppends(ctx context.Context) (int, error) {
	return s.enqueueAppends(ctx, lastTradingDay(time.Now()))
}

// enqueueAppends queues daily-tier append jobs for cached symbols. A
// non-zero freshAsOf skips symbols whose coverage already reaches it.
func (s *Service) enqueueAppends(ctx context.Context, freshAsOf time.Time) (int, error) {
	symbols, err := s.barRepo.Symbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("list symbols: %w", err)
	}

	created := 0
	for _, symbol := range symbols {
		cov, err := s.barRepo.Coverage(ctx, symbol)
		if err != nil {
			return created, fmt.Errorf("coverage %s: %w", symbol, err)
		}
		if cov.Empty() {
			continue
		}
		if !freshAsOf.IsZero() && !cov.Last.Before(freshAsOf) {
			continue
		}

		active, err := s.jobRepo.FindActive(ctx, symbol, job.KindDailyAppend)
		if err != nil {
			return created, fmt.Errorf("find active job: %w", err)
		}
		if active != nil {
			continue
		}

		j := &job.Job{
			Source:    s.sourceFor(symbol),
			Symbol:    symbol,
			Kind:      job.KindDailyAppend,
			Priority:  job.PriorityDaily,
			StartDate: cov.Last,
			Status:    job.StatusPending,
		}
		if err := s.jobRepo.Create(ctx, j); err != nil {
			return created, fmt.Errorf("create job: %w", err)
		}
		created++
	}

	if created > 0 && s.notify != nil {
		s.notify()
	}
	return created, nil
}

// EnqueueMissingBackfills queues daily-tier backfill jobs for configured
// symbols that have no coverage yet, so the cache warms without burning the
// interactive budget. Returns the number of jobs created.
func (s *Service) EnqueueMissingBackfills(ctx context.Context, symbols []string) (int, error) {
	created := 0
	for _, symbol := range symbols {
		cov, err := s.barRepo.Coverage(ctx, symbol)
		if err != nil {
			return created, fmt.Errorf("coverage %s: %w", symbol, err)
		}
		if !cov.Empty() {
			continue
		}

		active, err := s.jobRepo.FindActive(ctx, symbol, job.KindBackfill)
		if err != nil {
			return created, fmt.Errorf("find active job: %w", err)
		}
		if active != nil {
			continue
		}

		j := &job.Job{
			Source:   s.sourceFor(symbol),
			Symbol:   symbol,
			Kind:     job.KindBackfill,
			Priority: job.PriorityDaily,
			Status:   job.StatusPending,
		}
		if err := s.jobRepo.Create(ctx, j); err != nil {
			return created, fmt.Errorf("create job: %w", err)
		}
		created++
	}

	if created > 0 && s.notify != nil {
		s.notify()
	}
	return created, nil
}

// GetIntraday fetches 5-minute bars for the current session straight from
// the provider. Intraday data is not cached. Economic series have no
// intraday trading, so FRED-sourced symbols return an empty series without
// a provider call.
func (s *Service) GetIntraday(ctx context.Context, req GetIntradayRequest) (*GetIntradayResponse, error) {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if s.sourceFor(req.Symbol) == fredSource {
		return &GetIntradayResponse{Symbol: req.Symbol, Interval: "5min", Bars: []HistoryPoint{}}, nil
	}

	bars, err := s.intraday.Intraday(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	return &GetIntradayResponse{
		Symbol:   req.Symbol,
		Interval: "5min",
		Bars:     intradayPoints(toDomainBars(req.Symbol, bars)),
	}, nil
}

// Process implements job.Processor. Called by the worker pool with a claimed
// (running) job. Backfill jobs fetch the maximal series; daily-append jobs
// fetch from the job's start date. Transient failures requeue the job up to
// the attempt cap; an unknown symbol fails it immediately.
func (s *Service) Process(ctx context.Context, j *job.Job) error {
	p, err := s.providerFor(j.Symbol)
	if err != nil {
		return s.failJob(ctx, j, err)
	}

	since := time.Time{}
	if j.Kind == job.KindDailyAppend {
		since = j.StartDate
	}

	bars, err := p.Series(ctx, j.Symbol, since)
	if err != nil {
		return s.retryOrFail(ctx, j, fmt.Errorf("fetch series: %w", err))
	}

	n, err := s.barRepo.UpsertBars(ctx, toDomainBars(j.Symbol, bars))
	if err != nil {
		return s.retryOrFail(ctx, j, fmt.Errorf("store bars: %w", err))
	}

	slog.Info("job stored bars", "job", j.ID, "kind", j.Kind, "symbol", j.Symbol, "bars", n)

	j.Status = job.StatusCompleted
	j.RecordsCount = n
	j.Error = ""
	_ = s.jobRepo.Update(ctx, j)
	return nil
}

// retryOrFail requeues a transiently failed job until the attempt cap, then
// drops it as failed. Permanent errors (unknown symbol) skip the retries.
func (s *Service) retryOrFail(ctx context.Context, j *job.Job, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code() == apperror.NotFound {
		slog.Warn("job failed permanently", "job", j.ID, "symbol", j.Symbol, "error", err)
		return s.failJob(ctx, j, err)
	}

	j.Attempts++
	if j.Attempts >= s.maxAttempts {
		slog.Error("job dropped after max attempts", "job", j.ID, "symbol", j.Symbol, "attempts", j.Attempts, "error", err)
		return s.failJob(ctx, j, err)
	}

	j.Status = job.StatusPending
	j.Error = err.Error()
	if updateErr := s.jobRepo.Update(ctx, j); updateErr != nil {
		return s.failJob(ctx, j, err)
	}
	slog.Warn("job requeued", "job", j.ID, "symbol", j.Symbol, "attempt", j.Attempts, "error", err)
	return err
}

func (s *Service) failJob(ctx context.Context, j *job.Job, err error) error {
	j.Status = job.StatusFailed
	j.Error = err.Error()
	_ = s.jobRepo.Update(ctx, j)
	return err
}

func (s *Service) providerFor(symbol string) (provider.SeriesProvider, error) {
	return s.registry.Get(s.sourceFor(symbol))
}

func toDomainBars(symbol string, bars []provider.Bar) []Bar {
	out := make([]Bar, len(bars))
	for i, b := range bars {
		out[i] = Bar{
			Symbol: symbol,
			Date:   b.Date,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return out
}
