package server

import (
	"net/http"
)

// NewHandler creates the full HTTP handler with routes and middleware.
// Exported for use in tests (e.g., httptest.NewServer).
func NewHandler(svcs Services) http.Handler {
	return newMux(svcs)
}

func newMux(svcs Services) http.Handler {
	h := &handler{svcs: svcs}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/snapshot", h.dashboard)
	// The {symbol...} wildcard keeps slash-containing symbols (BTC/USD)
	// routable.
	mux.HandleFunc("GET /api/history/{symbol...}", h.getHistory)
	mux.HandleFunc("GET /api/intraday/{symbol...}", h.getIntraday)
	mux.HandleFunc("GET /api/search/{ticker...}", h.searchTicker)
	mux.HandleFunc("GET /api/summary", h.latestSummary)
	mux.HandleFunc("GET /api/narratives/recent", h.recentNarratives)
	mux.HandleFunc("GET /api/regime", h.currentRegime)
	mux.HandleFunc("GET /api/regime-history", h.regimeHistory)
	mux.HandleFunc("GET /api/jobs", h.listJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.getJob)
	mux.HandleFunc("POST /api/admin/fetch-now", h.adminFetchNow)
	mux.HandleFunc("POST /api/admin/export", h.adminExport)

	// Apply middleware stack: recovery -> requestID -> logging
	var handler http.Handler = mux
	handler = logging(handler)
	handler = requestID(handler)
	handler = recovery(handler)

	return handler
}
