package test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketpicture/internal/config"
	"marketpicture/internal/export"
	"marketpicture/internal/history"
	"marketpicture/internal/job"
	"marketpicture/internal/narrative"
	"marketpicture/internal/platform/sqlite"
	"marketpicture/internal/provider"
	"marketpicture/internal/provider/twelvedata"
	"marketpicture/internal/ratelimit"
	"marketpicture/internal/regime"
	barrepo "marketpicture/internal/repository/bar"
	jobrepo "marketpicture/internal/repository/job"
	searchrepo "marketpicture/internal/repository/search"
	snapshotrepo "marketpicture/internal/repository/snapshot"
	summaryrepo "marketpicture/internal/repository/summary"
	"marketpicture/internal/search"
	"marketpicture/internal/server"
	"marketpicture/internal/snapshot"
)

func setupE2E(t *testing.T, tdURL string) *httptest.Server {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	barRepo := barrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)
	snapRepo := snapshotrepo.NewRepository(db.DB)
	sumRepo := summaryrepo.NewRepository(db.DB)
	searchRepo := searchrepo.NewRepository(db.DB)

	limiter := ratelimit.New(55, 15)
	td := twelvedata.New("test-key",
		twelvedata.WithBaseURL(tdURL),
		twelvedata.WithLimiter(limiter),
		twelvedata.WithRetries(1, 5*time.Millisecond),
	)

	registry := provider.NewRegistry()
	registry.Register(td)

	assets := []config.Asset{
		{Symbol: "SPY", Name: "S&P 500", Class: "equities", Market: "24/7", Source: "twelvedata"},
		{Symbol: "GLD", Name: "Gold", Class: "commodities", Market: "24/7", Source: "twelvedata"},
	}
	sourceFor := func(string) string { return td.Source() }

	jobSvc := job.NewService(jobRepo)
	historySvc := history.NewService(barRepo, jobRepo, registry, td, sourceFor)

	snapshotSvc := snapshot.NewService(snapRepo, barRepo,
		map[string]provider.QuoteProvider{td.Source(): td},
		assets,
		func(market string, now time.Time) bool { return true },
		regime.Thresholds{
			SMAPeriod:        50,
			VolSpikePct:      5,
			VolDropPct:       -5,
			HYSpreadRiskOff:  5,
			HYSpreadRiskOn:   4,
			HYWideningBps:    25,
			DollarSpikePct:   0.7,
			GoldSafeHavenPct: 1.5,
		})

	// Empty API key: summaries use the deterministic fallback, no network.
	generator := narrative.NewGenerator("http://127.0.0.1:0", "", "test-model", time.Second)
	narrativeSvc := narrative.NewService(generator, sumRepo, snapshotSvc)

	searchSvc := search.NewService(searchRepo, td)
	exporter := export.NewExporter(t.TempDir(), barRepo)

	// Start worker pool for background job processing
	poolCtx, poolCancel := context.WithCancel(context.Background())
	pool := job.NewWorkerPool(jobRepo, historySvc, 2)
	historySvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(poolCtx)
		close(poolDone)
	}()
	// Cleanup runs LIFO: cancel pool → wait for drain → then db.Close (registered earlier)
	t.Cleanup(func() {
		poolCancel()
		<-poolDone
	})

	return httptest.NewServer(server.NewHandler(server.Services{
		History:   historySvc,
		Jobs:      jobSvc,
		Snapshots: snapshotSvc,
		Summaries: narrativeSvc,
		Search:    searchSvc,
		Exporter:  exporter,
	}))
}

// tsPayload builds a /time_series body with n daily bars ending yesterday,
// newest first, the way the real API orders values.
func tsPayload(n int) map[string]any {
	values := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		d := time.Now().UTC().AddDate(0, 0, -i)
		values = append(values, map[string]any{
			"datetime": d.Format("2006-01-02"),
			"open":     "100.0",
			"high":     "101.5",
			"low":      "99.0",
			"close":    fmt.Sprintf("%.2f", 100.0+float64(n-i)*0.1),
			"volume":   "1000000",
		})
	}
	return map[string]any{"values": values, "status": "ok"}
}

type historyResult struct {
	Message string                     `json:"message"`
	Data    history.GetHistoryResponse `json:"data"`
}

func getHistory(t *testing.T, url string) (*http.Response, historyResult) {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var result historyResult
	err = json.NewDecoder(resp.Body).Decode(&result)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, result
}

// waitForJob polls the job endpoint until the job reaches a terminal status.
func waitForJob(t *testing.T, baseURL string, jobID int64) *job.Job {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %d to complete", jobID)
		default:
		}

		resp, err := http.Get(fmt.Sprintf("%s/api/jobs/%d", baseURL, jobID)) //nolint:gosec // test URL
		if err != nil {
			t.Fatalf("request: %v", err)
		}

		var result struct {
			Data job.Job `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if result.Data.Status == job.StatusCompleted || result.Data.Status == job.StatusFailed {
			return &result.Data
		}

		time.Sleep(50 * time.Millisecond)
	}
}

func TestE2E_Health(t *testing.T) {
	ts := setupE2E(t, "http://127.0.0.1:0")
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestE2E_History_FirstTouch(t *testing.T) {
	seriesCalls := 0
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/time_series" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("outputsize") != "5000" {
			t.Errorf("expected maximal fetch, got outputsize=%s", r.URL.Query().Get("outputsize"))
		}
		seriesCalls++
		_ = json.NewEncoder(w).Encode(tsPayload(400))
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	// First request: cache miss triggers a synchronous maximal fetch, so
	// the chart has data immediately and no job is created.
	resp, result := getHistory(t, ts.URL+"/api/history/SPY?range=1Y")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if result.Message != "ok" {
		t.Errorf("expected message 'ok', got '%s'", result.Message)
	}
	if result.Data.Job != nil {
		t.Errorf("expected no job after synchronous first fetch, got job %d", result.Data.Job.ID)
	}
	if len(result.Data.Bars) < 300 || len(result.Data.Bars) > 400 {
		t.Errorf("expected roughly a year of bars, got %d", len(result.Data.Bars))
	}
	if seriesCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", seriesCalls)
	}

	// Second request: fully covered, served from the store.
	_, result2 := getHistory(t, ts.URL+"/api/history/SPY?range=Max")
	if len(result2.Data.Bars) != 400 {
		t.Errorf("expected 400 bars, got %d", len(result2.Data.Bars))
	}
	if result2.Data.Job != nil {
		t.Error("expected no job for covered range")
	}
	if seriesCalls != 1 {
		t.Errorf("expected no further provider calls, got %d", seriesCalls)
	}

	// Ascending date order on the wire.
	first, last := result2.Data.Bars[0].Date, result2.Data.Bars[len(result2.Data.Bars)-1].Date
	if first >= last {
		t.Errorf("expected ascending bars, got %s .. %s", first, last)
	}
}

func TestE2E_History_BackfillWiden(t *testing.T) {
	seriesCalls := 0
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seriesCalls++
		_ = json.NewEncoder(w).Encode(tsPayload(10))
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	// Warm the cache with the short series the provider has.
	_, result := getHistory(t, ts.URL+"/api/history/SPY?range=5D")
	if result.Data.Job != nil {
		t.Errorf("expected no job for a covered short range, got job %d", result.Data.Job.ID)
	}
	if len(result.Data.Bars) == 0 {
		t.Fatal("expected bars from first fetch")
	}

	// A wider range than the stored series serves what is cached and queues
	// an interactive-tier backfill.
	_, result2 := getHistory(t, ts.URL+"/api/history/SPY?range=1Y")
	if len(result2.Data.Bars) != 10 {
		t.Errorf("expected 10 cached bars, got %d", len(result2.Data.Bars))
	}
	if result2.Data.Job == nil {
		t.Fatal("expected a backfill job for the uncovered range")
	}
	if result2.Data.Job.Kind != job.KindBackfill {
		t.Errorf("expected backfill job, got %s", result2.Data.Job.Kind)
	}
	if result2.Data.Job.Priority != job.PriorityInteractive {
		t.Errorf("expected interactive priority, got %d", result2.Data.Job.Priority)
	}

	completed := waitForJob(t, ts.URL, result2.Data.Job.ID)
	if completed.Status != job.StatusCompleted {
		t.Errorf("expected completed, got %s (error: %s)", completed.Status, completed.Error)
	}
	if completed.RecordsCount != 10 {
		t.Errorf("expected 10 records, got %d", completed.RecordsCount)
	}
	if seriesCalls != 2 {
		t.Errorf("expected 2 provider calls (first touch + widen), got %d", seriesCalls)
	}
}

func TestE2E_History_UnknownSymbolNotCached(t *testing.T) {
	seriesCalls := 0
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seriesCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":    404,
			"message": "symbol not found",
			"status":  "error",
		})
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	resp, _ := http.Get(ts.URL + "/api/history/ZZZZ?range=1Y") //nolint:gosec // test URL
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	// Unknown symbols are not tombstoned: the next request asks again.
	resp, _ = http.Get(ts.URL + "/api/history/ZZZZ?range=1Y") //nolint:gosec // test URL
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if seriesCalls != 2 {
		t.Errorf("expected 2 provider calls, got %d", seriesCalls)
	}
}

func TestE2E_History_CSV(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tsPayload(5))
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	// First request to warm the cache.
	_, _ = getHistory(t, ts.URL+"/api/history/SPY?range=Max")

	// period is the legacy alias for range.
	resp, err := http.Get(ts.URL + "/api/history/SPY?period=Max&format=csv") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.Header.Get("Content-Type") != "text/csv" {
		t.Errorf("expected text/csv, got %s", resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if lines[0] != "Symbol,Date,Open,High,Low,Close,Volume" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if len(lines) != 6 {
		t.Errorf("expected header + 5 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "SPY,") {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestE2E_History_InvalidRange(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected provider call: %s", r.URL.Path)
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	resp, _ := http.Get(ts.URL + "/api/history/SPY?range=2X") //nolint:gosec // test URL
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid range, got %d", resp.StatusCode)
	}
}

func TestE2E_Intraday(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("interval") != "5min" {
			t.Errorf("expected interval=5min, got %s", r.URL.Query().Get("interval"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{"datetime": "2024-06-04 09:35:00", "open": "520.4", "high": "520.9", "low": "520.1", "close": "520.7", "volume": "95000"},
				{"datetime": "2024-06-04 09:30:00", "open": "520.0", "high": "520.5", "low": "519.8", "close": "520.4", "volume": "120000"},
			},
			"status": "ok",
		})
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/intraday/SPY") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var result struct {
		Data history.GetIntradayResponse `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	if result.Data.Interval != "5min" {
		t.Errorf("expected 5min interval, got %s", result.Data.Interval)
	}
	if len(result.Data.Bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(result.Data.Bars))
	}
	if result.Data.Bars[0].Date != "2024-06-04 09:30:00" {
		t.Errorf("expected ascending intraday bars, got %s first", result.Data.Bars[0].Date)
	}
}

func TestE2E_Search_CachesResults(t *testing.T) {
	searchCalls := 0
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/symbol_search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		searchCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"symbol": "GLD", "instrument_name": "SPDR Gold Shares", "instrument_type": "ETF", "exchange": "NYSE"},
				{"symbol": "GOLD", "instrument_name": "Barrick Gold", "instrument_type": "Common Stock", "exchange": "NYSE"},
			},
		})
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	get := func() search.Response {
		resp, err := http.Get(ts.URL + "/api/search/gold") //nolint:gosec // test URL
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var result struct {
			Data search.Response `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		return result.Data
	}

	first := get()
	if first.Query != "GOLD" {
		t.Errorf("expected normalized query GOLD, got %s", first.Query)
	}
	if first.Cached {
		t.Error("expected first lookup to miss the cache")
	}
	if len(first.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(first.Results))
	}

	second := get()
	if !second.Cached {
		t.Error("expected second lookup to hit the cache")
	}
	if searchCalls != 1 {
		t.Errorf("expected provider called once, got %d", searchCalls)
	}
}

func TestE2E_FetchNowAndSummary(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		symbols := r.URL.Query().Get("symbol")
		if !strings.Contains(symbols, "SPY") || !strings.Contains(symbols, "GLD") {
			t.Errorf("expected batch quote for SPY and GLD, got %s", symbols)
		}
		now := time.Now().UTC().Format("2006-01-02 15:04:05")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"SPY": map[string]any{"symbol": "SPY", "close": "520.10", "percent_change": "0.45", "change": "2.33", "datetime": now},
			"GLD": map[string]any{"symbol": "GLD", "close": "215.80", "percent_change": "-1.20", "change": "-2.62", "datetime": now},
		})
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/admin/fetch-now", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var result struct {
		Data map[string]any `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got, ok := result.Data["quotes"].(float64); !ok || got != 2 {
		t.Errorf("expected 2 captured quotes, got %v", result.Data["quotes"])
	}
	if result.Data["summary"] != "ok" {
		t.Errorf("expected summary ok, got %v", result.Data["summary"])
	}

	// Snapshot now serves the captured quotes.
	snapResp, err := http.Get(ts.URL + "/api/snapshot") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var snapResult struct {
		Data snapshot.DashboardResponse `json:"data"`
	}
	err = json.NewDecoder(snapResp.Body).Decode(&snapResult)
	_ = snapResp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}

	equities := snapResult.Data.Assets["equities"]
	if len(equities) != 1 || equities[0].Symbol != "SPY" {
		t.Fatalf("expected SPY under equities, got %+v", equities)
	}
	if equities[0].Price == nil || *equities[0].Price != 520.10 {
		t.Errorf("expected SPY price 520.10, got %v", equities[0].Price)
	}

	// The ad-hoc summary was generated with the offline fallback text.
	sumResp, err := http.Get(ts.URL + "/api/summary") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var sumResult struct {
		Data narrative.Summary `json:"data"`
	}
	err = json.NewDecoder(sumResp.Body).Decode(&sumResult)
	_ = sumResp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if sumResult.Data.Period != narrative.PeriodAdhoc {
		t.Errorf("expected adhoc summary, got %s", sumResult.Data.Period)
	}
	if !strings.HasPrefix(sumResult.Data.SummaryText, "[Auto-generated") {
		t.Errorf("expected fallback text, got %q", sumResult.Data.SummaryText)
	}

	// Regime is computable from the captured quotes.
	regResp, err := http.Get(ts.URL + "/api/regime") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	_ = regResp.Body.Close()
	if regResp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", regResp.StatusCode)
	}
}

func TestE2E_Jobs(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tsPayload(10))
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	// A wide request over a short stored series queues a backfill job.
	_, _ = getHistory(t, ts.URL+"/api/history/GLD?range=5D")
	_, result := getHistory(t, ts.URL+"/api/history/GLD?range=1Y")
	if result.Data.Job == nil {
		t.Fatal("expected a backfill job")
	}
	waitForJob(t, ts.URL, result.Data.Job.ID)

	// List jobs
	resp, err := http.Get(ts.URL + "/api/jobs") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var listResult struct {
		Data []job.Job `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&listResult)
	if err != nil {
		t.Fatal(err)
	}
	if len(listResult.Data) == 0 {
		t.Error("expected at least 1 job")
	}

	// Get specific job
	resp2, err := http.Get(fmt.Sprintf("%s/api/jobs/%d", ts.URL, listResult.Data[0].ID)) //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp2.Body.Close() }()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp2.StatusCode)
	}

	// Unknown job id
	resp3, err := http.Get(ts.URL + "/api/jobs/999999") //nolint:gosec // test URL
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer func() { _ = resp3.Body.Close() }()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp3.StatusCode)
	}
}

func TestE2E_Export(t *testing.T) {
	mockTD := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tsPayload(5))
	}))
	defer mockTD.Close()

	ts := setupE2E(t, mockTD.URL)
	defer ts.Close()

	// Cache a series, then export it.
	_, _ = getHistory(t, ts.URL+"/api/history/SPY?range=Max")

	resp, err := http.Post(ts.URL+"/api/admin/export", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var result struct {
		Data map[string]int `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&result)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if result.Data["SPY"] != 5 {
		t.Errorf("expected 5 exported bars for SPY, got %d", result.Data["SPY"])
	}
}
