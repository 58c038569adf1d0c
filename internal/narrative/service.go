package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketpicture/internal/regime"
	"marketpicture/internal/snapshot"
)

const (
	dateFormat = "2006-01-02"

	defaultRecentDays = 7
	maxHistoryDays    = 90
)

// MarketData supplies the market state a summary is written from.
type MarketData interface {
	Classify(ctx context.Context) (regime.Result, error)
	LatestQuotes(ctx context.Context) ([]snapshot.Snapshot, error)
}

type Service struct {
	gen    *Generator
	repo   SummaryRepository
	market MarketData
}

func NewService(gen *Generator, repo SummaryRepository, market MarketData) *Service {
	return &Service{gen: gen, repo: repo, market: market}
}

// GenerateSummary classifies the current regime, builds the payload from
// the latest quotes, generates the text and persists it.
func (s *Service) GenerateSummary(ctx context.Context, period string) (*Summary, error) {
	payload, err := s.buildPayload(ctx, period)
	if err != nil {
		return nil, err
	}

	text := s.gen.Generate(ctx, payload)

	sum := Summary{
		Date:         time.Now().In(eastern).Format(dateFormat),
		Period:       period,
		SummaryText:  text,
		RegimeLabel:  payload.Regime.Label,
		RegimeReason: payload.Regime.Reason,
	}
	id, err := s.repo.Insert(ctx, sum)
	if err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	sum.ID = id

	slog.Info("generated summary", "period", period, "regime", sum.RegimeLabel)
	return &sum, nil
}

func (s *Service) buildPayload(ctx context.Context, period string) (Payload, error) {
	result, err := s.market.Classify(ctx)
	if err != nil {
		return Payload{}, fmt.Errorf("classify regime: %w", err)
	}

	snaps, err := s.market.LatestQuotes(ctx)
	if err != nil {
		return Payload{}, fmt.Errorf("latest quotes: %w", err)
	}

	assets := make(map[string]AssetMove, len(snaps))
	for _, sn := range snaps {
		assets[sn.Symbol] = AssetMove{Price: sn.Price, ChangePct: sn.ChangePct}
	}

	return Payload{
		GeneratedAt: time.Now().UTC(),
		Period:      period,
		Regime:      result,
		Assets:      assets,
	}, nil
}

// LatestSummary returns the newest stored summary, or nil when none has
// been generated yet.
func (s *Service) LatestSummary(ctx context.Context) (*Summary, error) {
	return s.repo.Latest(ctx)
}

// RecentSummaries returns summaries from the last days calendar days,
// newest first. Out-of-range values fall back to the 7-day default.
func (s *Service) RecentSummaries(ctx context.Context, days int) ([]Summary, error) {
	if days <= 0 || days > maxHistoryDays {
		days = defaultRecentDays
	}
	since := time.Now().In(eastern).AddDate(0, 0, -days).Format(dateFormat)
	return s.repo.Recent(ctx, since)
}

// RegimeHistory returns the regime label timeline from stored summaries,
// covering up to the last 90 days.
func (s *Service) RegimeHistory(ctx context.Context, days int) ([]RegimeEntry, error) {
	if days <= 0 || days > maxHistoryDays {
		days = maxHistoryDays
	}
	since := time.Now().In(eastern).AddDate(0, 0, -days).Format(dateFormat)

	sums, err := s.repo.Recent(ctx, since)
	if err != nil {
		return nil, err
	}

	entries := make([]RegimeEntry, 0, len(sums))
	for _, sum := range sums {
		entries = append(entries, RegimeEntry{Date: sum.Date, Period: sum.Period, Label: sum.RegimeLabel})
	}
	return entries, nil
}
