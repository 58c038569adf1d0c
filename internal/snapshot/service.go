package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketpicture/internal/config"
	"marketpicture/internal/history"
	"marketpicture/internal/provider"
	"marketpicture/internal/regime"
)

const (
	dateFormat = "2006-01-02"

	fredSource = "fred"

	defaultStaleAfter = 15 * time.Minute
)

// Symbols the regime classifier reads its signals from.
const (
	symbolSPY  = "SPY"
	symbolVIXY = "VIXY"
	symbolHY   = "BAMLH0A0HYM2"
	symbolUUP  = "UUP"
	symbolGLD  = "GLD"
)

type Service struct {
	repo       Repository
	bars       history.Repository
	quotes     map[string]provider.QuoteProvider
	assets     []config.Asset
	isOpen     func(market string, now time.Time) bool
	thresholds regime.Thresholds

	staleAfter time.Duration
}

func NewService(repo Repository, bars history.Repository, quotes map[string]provider.QuoteProvider, assets []config.Asset, isOpen func(market string, now time.Time) bool, thresholds regime.Thresholds) *Service {
	return &Service{
		repo:       repo,
		bars:       bars,
		quotes:     quotes,
		assets:     assets,
		isOpen:     isOpen,
		thresholds: thresholds,
		staleAfter: defaultStaleAfter,
	}
}

// SetStaleAfter sets the age beyond which an open-market quote is flagged
// stale on the dashboard.
func (s *Service) SetStaleAfter(d time.Duration) {
	if d > 0 {
		s.staleAfter = d
	}
}

// PollQuotes captures quotes for interval-polled assets whose market
// session is currently open. FRED series refresh on their own daily
// schedule and are skipped here.
func (s *Service) PollQuotes(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	bySource := make(map[string][]string)
	for _, a := range s.assets {
		if a.Source == fredSource {
			continue
		}
		if !s.isOpen(a.Market, now) {
			continue
		}
		bySource[a.Source] = append(bySource[a.Source], a.Symbol)
	}

	if len(bySource) == 0 {
		slog.Debug("no markets open, skipping quote poll")
		return 0, nil
	}
	return s.capture(ctx, bySource)
}

// PollAll captures quotes for every configured asset regardless of market
// session. Used for the pre-market refresh and manual fetches.
func (s *Service) PollAll(ctx context.Context) (int, error) {
	bySource := make(map[string][]string)
	for _, a := range s.assets {
		bySource[a.Source] = append(bySource[a.Source], a.Symbol)
	}
	return s.capture(ctx, bySource)
}

// RefreshFRED captures the daily FRED observations, including the
// synthetic 2s10s spread.
func (s *Service) RefreshFRED(ctx context.Context) (int, error) {
	bySource := make(map[string][]string)
	for _, a := range s.assets {
		if a.Source == fredSource {
			bySource[fredSource] = append(bySource[fredSource], a.Symbol)
		}
	}

	if len(bySource) == 0 {
		return 0, nil
	}
	return s.capture(ctx, bySource)
}

// capture fetches quotes per source and appends one snapshot per resolved
// symbol. A failing source is logged and skipped so the other sources still
// land; the first error is returned only when nothing was captured at all.
func (s *Service) capture(ctx context.Context, bySource map[string][]string) (int, error) {
	now := time.Now().UTC()

	var snaps []Snapshot
	var firstErr error
	for source, symbols := range bySource {
		qp, ok := s.quotes[source]
		if !ok {
			slog.Warn("no quote provider for source", "source", source)
			continue
		}

		quotes, err := qp.Quotes(ctx, symbols)
		if err != nil {
			slog.Error("quote fetch failed", "source", source, "symbols", len(symbols), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, symbol := range symbols {
			q, ok := quotes[symbol]
			if !ok {
				continue
			}
			snaps = append(snaps, s.toSnapshot(symbol, q, now))
		}
	}

	if len(snaps) == 0 {
		if firstErr != nil {
			return 0, firstErr
		}
		slog.Warn("quote poll returned no quotes")
		return 0, nil
	}

	n, err := s.repo.Insert(ctx, snaps)
	if err != nil {
		return 0, fmt.Errorf("save snapshots: %w", err)
	}
	slog.Info("captured quotes", "count", n)
	return int(n), nil
}

func (s *Service) toSnapshot(symbol string, q provider.Quote, now time.Time) Snapshot {
	class := "unknown"
	if a, ok := s.assetFor(symbol); ok && a.Class != "" {
		class = a.Class
	}

	captured := q.Timestamp
	if captured.IsZero() {
		captured = now
	}

	pct, abs := q.ChangePct, q.ChangeAbs
	return Snapshot{
		Symbol:     symbol,
		AssetClass: class,
		Price:      q.Price,
		ChangePct:  &pct,
		ChangeAbs:  &abs,
		CapturedAt: captured,
	}
}

// Dashboard returns the latest entry per asset grouped by asset class.
// Every configured asset appears: symbols with no captured quote fall back
// to the last stored daily closes, and symbols absent from both come back
// with a nil price. Fallback entries are always flagged stale.
func (s *Service) Dashboard(ctx context.Context) (*DashboardResponse, error) {
	now := time.Now().UTC()

	latest, err := s.repo.LatestPerSymbol(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}

	seen := make(map[string]bool, len(latest))
	groups := make(map[string][]AssetEntry)
	var lastUpdated time.Time

	for _, snap := range latest {
		seen[snap.Symbol] = true
		price := snap.Price
		groups[snap.AssetClass] = append(groups[snap.AssetClass], AssetEntry{
			Symbol:    snap.Symbol,
			Name:      s.nameFor(snap.Symbol),
			Price:     &price,
			ChangePct: snap.ChangePct,
			ChangeAbs: snap.ChangeAbs,
			Timestamp: snap.CapturedAt.UTC().Format(time.RFC3339),
			IsStale:   s.isStale(snap, now),
		})
		if snap.CapturedAt.After(lastUpdated) {
			lastUpdated = snap.CapturedAt
		}
	}

	for _, a := range s.assets {
		if seen[a.Symbol] {
			continue
		}
		entry, err := s.fallbackEntry(ctx, a)
		if err != nil {
			return nil, err
		}
		groups[a.Class] = append(groups[a.Class], entry)
	}

	resp := &DashboardResponse{Assets: groups}
	if !lastUpdated.IsZero() {
		resp.LastUpdated = lastUpdated.UTC().Format(time.RFC3339)
	}
	return resp, nil
}

// fallbackEntry builds a dashboard entry for a symbol with no captured
// quote from its last two stored daily closes.
func (s *Service) fallbackEntry(ctx context.Context, a config.Asset) (AssetEntry, error) {
	entry := AssetEntry{Symbol: a.Symbol, Name: a.Name, IsStale: true}

	bars, err := s.bars.Recent(ctx, a.Symbol, 2)
	if err != nil {
		return AssetEntry{}, fmt.Errorf("history fallback: %w", err)
	}
	if len(bars) == 0 {
		return entry, nil
	}

	last := bars[0]
	entry.Price = &last.Close
	entry.Timestamp = last.Date.Format(dateFormat)

	if len(bars) > 1 && bars[1].Close != 0 {
		pct := (last.Close - bars[1].Close) / bars[1].Close * 100
		abs := last.Close - bars[1].Close
		entry.ChangePct = &pct
		entry.ChangeAbs = &abs
	}
	return entry, nil
}

// isStale flags an interval-polled quote whose market is open but whose
// latest capture has aged past the cutoff. Daily FRED series and closed
// markets are never age-flagged.
func (s *Service) isStale(snap Snapshot, now time.Time) bool {
	a, ok := s.assetFor(snap.Symbol)
	if !ok || a.Source == fredSource {
		return false
	}
	if !s.isOpen(a.Market, now) {
		return false
	}
	return now.Sub(snap.CapturedAt) > s.staleAfter
}

// LatestQuotes returns the newest snapshot of every captured symbol.
func (s *Service) LatestQuotes(ctx context.Context) ([]Snapshot, error) {
	return s.repo.LatestPerSymbol(ctx)
}

// RegimeInputs assembles the classifier inputs from stored snapshots.
// Missing series come back nil and leave their signal neutral.
func (s *Service) RegimeInputs(ctx context.Context) (regime.Inputs, error) {
	var in regime.Inputs

	spy, err := s.repo.Latest(ctx, symbolSPY)
	if err != nil {
		return in, err
	}
	if spy != nil {
		in.SPYPrice = &spy.Price
		in.SPYChangePct = spy.ChangePct
	}

	if period := s.thresholds.SMAPeriod; period > 0 {
		closes, err := s.repo.DailyCloses(ctx, symbolSPY, period)
		if err != nil {
			return in, err
		}
		if len(closes) >= period {
			var sum float64
			for _, c := range closes {
				sum += c
			}
			sma := sum / float64(len(closes))
			in.SPYSMA = &sma
		}
	}

	vixy, err := s.repo.Latest(ctx, symbolVIXY)
	if err != nil {
		return in, err
	}
	if vixy != nil {
		in.VIXYChangePct = vixy.ChangePct
	}

	hy, err := s.repo.Latest(ctx, symbolHY)
	if err != nil {
		return in, err
	}
	if hy != nil {
		in.HYSpread = &hy.Price
		weekAgo, err := s.repo.LatestBefore(ctx, symbolHY, time.Now().UTC().AddDate(0, 0, -7))
		if err != nil {
			return in, err
		}
		if weekAgo != nil {
			in.HYSpreadWeekAgo = &weekAgo.Price
		}
	}

	uup, err := s.repo.Latest(ctx, symbolUUP)
	if err != nil {
		return in, err
	}
	if uup != nil {
		in.UUPChangePct = uup.ChangePct
	}

	gld, err := s.repo.Latest(ctx, symbolGLD)
	if err != nil {
		return in, err
	}
	if gld != nil {
		in.GoldChangePct = gld.ChangePct
	}

	return in, nil
}

// Classify runs the regime classifier over the current snapshot state.
func (s *Service) Classify(ctx context.Context) (regime.Result, error) {
	in, err := s.RegimeInputs(ctx)
	if err != nil {
		return regime.Result{}, fmt.Errorf("regime inputs: %w", err)
	}
	return regime.Classify(in, s.thresholds), nil
}

func (s *Service) assetFor(symbol string) (config.Asset, bool) {
	for _, a := range s.assets {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return config.Asset{}, false
}

func (s *Service) nameFor(symbol string) string {
	if a, ok := s.assetFor(symbol); ok && a.Name != "" {
		return a.Name
	}
	return symbol
}
