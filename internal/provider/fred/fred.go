// Package fred implements the FRED (Federal Reserve Economic Data) client
// used for treasury yields and credit spreads. FRED is free and does not
// count against the market data credit budget.
//
// The synthetic SPREAD_2S10S series is computed client-side as DGS10 minus
// DGS2 aligned by observation date.
package fred

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketpicture/internal/apperror"
	"marketpicture/internal/provider"
)

const (
	defaultBaseURL = "https://api.stlouisfed.org/fred"
	dateFormat     = "2006-01-02"

	// SpreadSymbol is the synthetic 2s10s yield curve spread.
	SpreadSymbol = "SPREAD_2S10S"

	recentObservations = 10
)

// Client fetches series observations from the FRED API.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	concurrency int
}

// New creates a Client with the given options applied.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		concurrency: 4,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithConcurrency caps parallel requests in batch operations.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.concurrency = n }
}

// Source returns the provider identifier.
func (c *Client) Source() string { return "fred" }

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type errorEnvelope struct {
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// get performs a GET against the API and unmarshals the response. FRED
// reports unknown series as HTTP 400 with an error_message body.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	query.Set("api_key", c.apiKey)
	query.Set("file_type", "json")
	fullURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.ErrorMessage != "" {
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return apperror.New(apperror.NotFound, fmt.Sprintf("fred: %s", env.ErrorMessage))
			}
			return fmt.Errorf("fred api error %d: %s", resp.StatusCode, env.ErrorMessage)
		}
		return fmt.Errorf("fred returned HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// fetchObservations returns raw observations for one series in descending
// date order. A zero start with limit 0 fetches the full series; a non-zero
// start fetches everything from that date on.
func (c *Client) fetchObservations(ctx context.Context, seriesID string, limit int, start time.Time) ([]observation, error) {
	query := url.Values{}
	query.Set("series_id", seriesID)
	query.Set("sort_order", "desc")
	if !start.IsZero() {
		query.Set("observation_start", start.Format(dateFormat))
	} else if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp observationsResponse
	if err := c.get(ctx, "/series/observations", query, &resp); err != nil {
		return nil, err
	}
	return resp.Observations, nil
}

// latestValid returns the most recent observation with a numeric value.
// FRED reports dates with no data as ".".
func latestValid(observations []observation) (float64, string, bool) {
	for _, obs := range observations {
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		return v, obs.Date, true
	}
	return 0, "", false
}

// computeChange derives absolute and percent change from the two most recent
// valid values. Returns zeros when fewer than two exist.
func computeChange(observations []observation) (changeAbs, changePct float64) {
	var valid []float64
	for _, obs := range observations {
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		v, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		valid = append(valid, v)
		if len(valid) == 2 {
			break
		}
	}
	if len(valid) < 2 {
		return 0, 0
	}
	latest, previous := valid[0], valid[1]
	changeAbs = latest - previous
	if previous != 0 {
		changePct = changeAbs / previous * 100.0
	}
	return changeAbs, changePct
}

// parseHistory converts observations to bars. A FRED series is one value per
// date, so the value fills all OHLC fields and volume stays nil. Input is
// descending; output is ascending.
func parseHistory(observations []observation) []provider.Bar {
	bars := make([]provider.Bar, 0, len(observations))
	for i := len(observations) - 1; i >= 0; i-- {
		obs := observations[i]
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		val, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse(dateFormat, obs.Date)
		if err != nil {
			continue
		}
		bars = append(bars, provider.Bar{
			Date:  date,
			Open:  val,
			High:  val,
			Low:   val,
			Close: val,
		})
	}
	return bars
}

// Series fetches observations for a series in ascending date order. A zero
// since fetches the full series history.
func (c *Client) Series(ctx context.Context, symbol string, since time.Time) ([]provider.Bar, error) {
	if symbol == SpreadSymbol {
		return c.spreadSeries(ctx, since)
	}

	observations, err := c.fetchObservations(ctx, symbol, 0, since)
	if err != nil {
		return nil, err
	}

	bars := parseHistory(observations)
	slog.Info("retrieved fred series", "series", symbol, "count", len(bars))
	return bars, nil
}

// spreadSeries computes 2s10s spread history by aligning DGS2 and DGS10
// observations on date.
func (c *Client) spreadSeries(ctx context.Context, since time.Time) ([]provider.Bar, error) {
	var dgs2, dgs10 []observation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dgs2, err = c.fetchObservations(gctx, "DGS2", 0, since)
		return err
	})
	g.Go(func() error {
		var err error
		dgs10, err = c.fetchObservations(gctx, "DGS10", 0, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dgs2ByDate := make(map[string]float64, len(dgs2))
	for _, obs := range dgs2 {
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		if v, err := strconv.ParseFloat(obs.Value, 64); err == nil {
			dgs2ByDate[obs.Date] = v
		}
	}

	bars := make([]provider.Bar, 0, len(dgs10))
	for i := len(dgs10) - 1; i >= 0; i-- {
		obs := dgs10[i]
		if obs.Value == "" || obs.Value == "." {
			continue
		}
		short, ok := dgs2ByDate[obs.Date]
		if !ok {
			continue
		}
		long, err := strconv.ParseFloat(obs.Value, 64)
		if err != nil {
			continue
		}
		date, err := time.Parse(dateFormat, obs.Date)
		if err != nil {
			continue
		}
		spread := long - short
		bars = append(bars, provider.Bar{
			Date:  date,
			Open:  spread,
			High:  spread,
			Low:   spread,
			Close: spread,
		})
	}
	return bars, nil
}

// Quote fetches the latest value for a series with its change versus the
// prior valid observation.
func (c *Client) Quote(ctx context.Context, seriesID string) (provider.Quote, error) {
	if seriesID == SpreadSymbol {
		return c.spreadQuote(ctx)
	}

	observations, err := c.fetchObservations(ctx, seriesID, recentObservations, time.Time{})
	if err != nil {
		return provider.Quote{}, err
	}

	value, date, ok := latestValid(observations)
	if !ok {
		return provider.Quote{}, apperror.New(apperror.NotFound, fmt.Sprintf("fred: no observations for %s", seriesID))
	}

	ts, err := time.Parse(dateFormat, date)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("parse observation date: %w", err)
	}

	changeAbs, changePct := computeChange(observations)
	return provider.Quote{
		Symbol:    seriesID,
		Price:     value,
		ChangePct: changePct,
		ChangeAbs: changeAbs,
		Timestamp: ts,
	}, nil
}

// spreadQuote computes the synthetic 2s10s spread quote, with change derived
// from the previous aligned observations.
func (c *Client) spreadQuote(ctx context.Context) (provider.Quote, error) {
	var dgs2, dgs10 []observation

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dgs2, err = c.fetchObservations(gctx, "DGS2", recentObservations, time.Time{})
		return err
	})
	g.Go(func() error {
		var err error
		dgs10, err = c.fetchObservations(gctx, "DGS10", recentObservations, time.Time{})
		return err
	})
	if err := g.Wait(); err != nil {
		return provider.Quote{}, err
	}

	short, shortDate, okShort := latestValid(dgs2)
	long, longDate, okLong := latestValid(dgs10)
	if !okShort || !okLong {
		return provider.Quote{}, apperror.New(apperror.NotFound, "fred: no observations for 2s10s spread")
	}

	spread := long - short

	var changeAbs, changePct float64
	if len(dgs2) > 1 && len(dgs10) > 1 {
		prevShort, _, okPrevShort := latestValid(dgs2[1:])
		prevLong, _, okPrevLong := latestValid(dgs10[1:])
		if okPrevShort && okPrevLong {
			prevSpread := prevLong - prevShort
			changeAbs = spread - prevSpread
			if prevSpread != 0 {
				changePct = changeAbs / abs(prevSpread) * 100.0
			}
		}
	}

	ts, err := time.Parse(dateFormat, maxDate(shortDate, longDate))
	if err != nil {
		return provider.Quote{}, fmt.Errorf("parse observation date: %w", err)
	}

	return provider.Quote{
		Symbol:    SpreadSymbol,
		Price:     spread,
		ChangePct: changePct,
		ChangeAbs: changeAbs,
		Timestamp: ts,
	}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// maxDate compares two YYYY-MM-DD strings, which order lexicographically.
func maxDate(a, b string) string {
	if b > a {
		return b
	}
	return a
}

// Quotes fetches latest quotes for several series concurrently. Series that
// fail are skipped with a warning.
func (c *Client) Quotes(ctx context.Context, seriesIDs []string) (map[string]provider.Quote, error) {
	out := make(map[string]provider.Quote, len(seriesIDs))
	if len(seriesIDs) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, sid := range seriesIDs {
		g.Go(func() error {
			q, err := c.Quote(gctx, sid)
			if err != nil {
				slog.Warn("fred quote failed", "series", sid, "error", err)
				return nil
			}
			mu.Lock()
			out[sid] = q
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// searchResponse represents the /series/search payload.
type searchResponse struct {
	Seriess []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Frequency string `json:"frequency"`
	} `json:"seriess"`
}

// Search looks up FRED series matching the query string.
func (c *Client) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	q := url.Values{}
	q.Set("search_text", query)
	q.Set("limit", "10")

	var resp searchResponse
	if err := c.get(ctx, "/series/search", q, &resp); err != nil {
		return nil, err
	}

	results := make([]provider.SearchResult, 0, len(resp.Seriess))
	for _, item := range resp.Seriess {
		results = append(results, provider.SearchResult{
			Symbol:   item.ID,
			Name:     item.Title,
			Type:     item.Frequency,
			Exchange: "FRED",
		})
	}
	return results, nil
}
