package history

import (
	"strings"

	"marketpicture/internal/apperror"
	"marketpicture/internal/job"
)

const (
	dateFormat     = "2006-01-02"
	datetimeFormat = "2006-01-02 15:04:05"
)

type GetHistoryRequest struct {
	Symbol string
	Range  string
	Format string // "json" or "csv"
}

// normalized uppercases and trims the symbol and applies the default range,
// so "spy", " SPY " and "SPY" hit the same cache rows.
func (r GetHistoryRequest) normalized() GetHistoryRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Range == "" {
		r.Range = "1Y"
	}
	return r
}

func (r GetHistoryRequest) Validate() *apperror.AppError {
	if r.Symbol == "" {
		return apperror.New(apperror.BadRequest, "symbol is required")
	}
	if !ValidRange(r.Range) {
		return apperror.New(apperror.BadRequest, "range must be one of 1D, 5D, 1W, 1M, 3M, 6M, 1Y, 5Y, YTD, Max")
	}
	if r.Format != "" && r.Format != "json" && r.Format != "csv" {
		return apperror.New(apperror.BadRequest, "format must be json or csv")
	}
	return nil
}

type GetIntradayRequest struct {
	Symbol string
}

func (r GetIntradayRequest) normalized() GetIntradayRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	return r
}

func (r GetIntradayRequest) Validate() *apperror.AppError {
	if r.Symbol == "" {
		return apperror.New(apperror.BadRequest, "symbol is required")
	}
	return nil
}

// HistoryPoint is one bar on the wire. Date is "2006-01-02" for daily bars
// and "2006-01-02 15:04:05" for intraday bars.
type HistoryPoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume *int64  `json:"volume"`
}

type GetHistoryResponse struct {
	Symbol string         `json:"symbol"`
	Range  string         `json:"range"`
	Bars   []HistoryPoint `json:"bars"`
	Job    *job.Job       `json:"job,omitempty"`
}

type GetIntradayResponse struct {
	Symbol   string         `json:"symbol"`
	Interval string         `json:"interval"`
	Bars     []HistoryPoint `json:"bars"`
}

func toPoints(bars []Bar, layout string) []HistoryPoint {
	points := make([]HistoryPoint, len(bars))
	for i, b := range bars {
		points[i] = HistoryPoint{
			Date:   b.Date.Format(layout),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return points
}

func points(bars []Bar) []HistoryPoint { return toPoints(bars, dateFormat) }

func intradayPoints(bars []Bar) []HistoryPoint { return toPoints(bars, datetimeFormat) }
