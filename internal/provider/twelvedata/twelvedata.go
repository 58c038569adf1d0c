// Package twelvedata implements the Twelve Data REST client used for
// equities, ETFs, FX and crypto. Every request costs one API credit
// regardless of the date range requested, so each physical attempt acquires
// a credit from the shared limiter before it goes out.
package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketpicture/internal/apperror"
	"marketpicture/internal/provider"
)

const (
	defaultBaseURL = "https://api.twelvedata.com"
	dailyInterval  = "1day"
	dateFormat     = "2006-01-02"
	datetimeFormat = "2006-01-02 15:04:05"

	// fullHistorySize caps a maximal fetch at roughly 20 years of daily bars.
	fullHistorySize = 5000

	intradayInterval = "5min"
	intradaySize     = 78 // one 6.5 hour session of 5min bars

	creditCost = 1
)

// CreditLimiter grants API credits before a request is sent. Satisfied by
// ratelimit.Limiter.
type CreditLimiter interface {
	Wait(ctx context.Context, cost int) error
}

// Client fetches quotes, daily series, intraday series and symbol searches
// from Twelve Data.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	limiter      CreditLimiter
	maxRetries   int
	retryBackoff time.Duration
}

// New creates a Client with the given options applied.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		maxRetries:   3,
		retryBackoff: 500 * time.Millisecond,
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

// WithLimiter sets the shared credit limiter. Without one, requests are
// sent unthrottled.
func WithLimiter(l CreditLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// Source returns the provider identifier.
func (c *Client) Source() string { return "twelvedata" }

// APIError represents an error response from the Twelve Data API, either an
// HTTP status or an application-level error carried in a 200 body.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twelvedata api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// errorEnvelope is the application-level error shape Twelve Data embeds in
// otherwise successful responses.
type errorEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx, creditCost)
}

// doRequest performs a single GET against the API and classifies failures.
// Symbol-not-found style errors come back as apperror.NotFound; throttling
// and server errors as retryable APIErrors.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	query.Set("apikey", c.apiKey)
	fullURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return nil, apperror.New(apperror.NotFound, fmt.Sprintf("twelvedata: HTTP %d", resp.StatusCode))
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Status == "error" && env.Code != 0 {
		switch {
		case env.Code == 429 || env.Code >= 500:
			return nil, &APIError{StatusCode: env.Code, Message: env.Message, Body: body}
		default:
			return nil, apperror.New(apperror.NotFound, fmt.Sprintf("twelvedata: %s", env.Message))
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry. Throttling,
// server errors and network failures are retried; not-found errors are
// returned immediately. Exhausted retries surface as Unavailable.
func (c *Client) doWithRetry(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			slog.Debug("retrying twelvedata request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		if err := c.acquire(ctx); err != nil {
			return nil, err
		}

		body, err := c.doRequest(ctx, path, query)
		if err == nil {
			return body, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}

	return nil, apperror.New(apperror.Unavailable, fmt.Sprintf("twelvedata unavailable: %v", lastErr))
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return false
	}
	// Network and read failures are transient.
	return true
}

// get performs a GET request with retries and unmarshals the response.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// timeSeriesResponse represents the /time_series payload. All numeric fields
// arrive as strings.
type timeSeriesResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
	Status string `json:"status"`
}

// Series fetches daily bars for a symbol in ascending date order. A zero
// since requests the maximal range the API allows; otherwise bars from since
// onward are returned. Either way the call costs a single credit.
func (c *Client) Series(ctx context.Context, symbol string, since time.Time) ([]provider.Bar, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", dailyInterval)
	if since.IsZero() {
		query.Set("outputsize", strconv.Itoa(fullHistorySize))
	} else {
		query.Set("start_date", since.Format(dateFormat))
	}

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", query, &resp); err != nil {
		return nil, err
	}

	bars := c.parseBars(resp)
	slog.Info("retrieved twelvedata series", "symbol", symbol, "count", len(bars))
	return bars, nil
}

// Intraday fetches one trading session of 5-minute bars in ascending order.
func (c *Client) Intraday(ctx context.Context, symbol string) ([]provider.Bar, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", intradayInterval)
	query.Set("outputsize", strconv.Itoa(intradaySize))

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", query, &resp); err != nil {
		return nil, err
	}
	return c.parseBars(resp), nil
}

// parseBars converts wire values to bars, skipping rows with unparseable
// numbers, and sorts ascending. The API returns newest first.
func (c *Client) parseBars(resp timeSeriesResponse) []provider.Bar {
	bars := make([]provider.Bar, 0, len(resp.Values))
	for _, v := range resp.Values {
		date, err := parseDatetime(v.Datetime)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(v.Open, 64)
		high, err2 := strconv.ParseFloat(v.High, 64)
		low, err3 := strconv.ParseFloat(v.Low, 64)
		closePrice, err4 := strconv.ParseFloat(v.Close, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		bar := provider.Bar{
			Date:  date,
			Open:  open,
			High:  high,
			Low:   low,
			Close: closePrice,
		}
		if v.Volume != "" {
			if vol, err := strconv.ParseInt(v.Volume, 10, 64); err == nil {
				bar.Volume = &vol
			}
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func parseDatetime(s string) (time.Time, error) {
	if len(s) > len(dateFormat) {
		return time.Parse(datetimeFormat, s)
	}
	return time.Parse(dateFormat, s)
}

// quotePayload represents a single /quote entry. Error entries carry a code
// and message instead of price fields.
type quotePayload struct {
	Symbol        string `json:"symbol"`
	Close         string `json:"close"`
	PercentChange string `json:"percent_change"`
	Change        string `json:"change"`
	Datetime      string `json:"datetime"`
	Timestamp     int64  `json:"timestamp"`
	Code          int    `json:"code"`
	Message       string `json:"message"`
}

// Quote fetches the latest quote for a single symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var raw quotePayload
	if err := c.get(ctx, "/quote", query, &raw); err != nil {
		return provider.Quote{}, err
	}

	q, err := parseQuote(symbol, raw)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("parse quote for %s: %w", symbol, err)
	}
	return q, nil
}

// Quotes batch-fetches quotes for several symbols in one HTTP call (one
// credit). Symbols the API rejects are skipped with a warning; the error
// return covers only whole-call failures.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]provider.Quote, error) {
	out := make(map[string]provider.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	// A single-symbol request returns a flat object rather than a map.
	if len(symbols) == 1 {
		q, err := c.Quote(ctx, symbols[0])
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code() == apperror.NotFound {
				slog.Warn("quote error", "symbol", symbols[0], "error", err)
				return out, nil
			}
			return nil, err
		}
		out[symbols[0]] = q
		return out, nil
	}

	query := url.Values{}
	query.Set("symbol", strings.Join(symbols, ","))

	var raw map[string]json.RawMessage
	if err := c.get(ctx, "/quote", query, &raw); err != nil {
		return nil, err
	}

	for _, sym := range symbols {
		msg, ok := raw[sym]
		if !ok {
			slog.Warn("no quote returned", "symbol", sym)
			continue
		}
		var qp quotePayload
		if err := json.Unmarshal(msg, &qp); err != nil {
			slog.Warn("failed to parse quote", "symbol", sym, "error", err)
			continue
		}
		if qp.Code != 0 {
			slog.Warn("quote error", "symbol", sym, "message", qp.Message)
			continue
		}
		q, err := parseQuote(sym, qp)
		if err != nil {
			slog.Warn("failed to parse quote", "symbol", sym, "error", err)
			continue
		}
		out[sym] = q
	}
	return out, nil
}

func parseQuote(symbol string, raw quotePayload) (provider.Quote, error) {
	price, err := strconv.ParseFloat(raw.Close, 64)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("close: %w", err)
	}
	changePct, err := strconv.ParseFloat(raw.PercentChange, 64)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("percent_change: %w", err)
	}
	changeAbs, err := strconv.ParseFloat(raw.Change, 64)
	if err != nil {
		return provider.Quote{}, fmt.Errorf("change: %w", err)
	}

	ts := time.Now().UTC()
	if raw.Datetime != "" {
		if parsed, err := parseDatetime(raw.Datetime); err == nil {
			ts = parsed
		}
	} else if raw.Timestamp != 0 {
		ts = time.Unix(raw.Timestamp, 0).UTC()
	}

	return provider.Quote{
		Symbol:    symbol,
		Price:     price,
		ChangePct: changePct,
		ChangeAbs: changeAbs,
		Timestamp: ts,
	}, nil
}

// searchResponse represents the /symbol_search payload.
type searchResponse struct {
	Data []struct {
		Symbol         string `json:"symbol"`
		InstrumentName string `json:"instrument_name"`
		InstrumentType string `json:"instrument_type"`
		Exchange       string `json:"exchange"`
	} `json:"data"`
}

// Search looks up instruments matching the query string.
func (c *Client) Search(ctx context.Context, query string) ([]provider.SearchResult, error) {
	q := url.Values{}
	q.Set("symbol", query)

	var resp searchResponse
	if err := c.get(ctx, "/symbol_search", q, &resp); err != nil {
		return nil, err
	}

	results := make([]provider.SearchResult, 0, len(resp.Data))
	for _, item := range resp.Data {
		results = append(results, provider.SearchResult{
			Symbol:   item.Symbol,
			Name:     item.InstrumentName,
			Type:     item.InstrumentType,
			Exchange: item.Exchange,
		})
	}
	return results, nil
}
