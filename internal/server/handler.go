package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"marketpicture/internal/history"
	"marketpicture/internal/job"
	"marketpicture/internal/narrative"
)

type handler struct {
	svcs Services
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svcs.Snapshots.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	rng := r.URL.Query().Get("range")
	if rng == "" {
		// Older clients send period; range wins when both are present.
		rng = r.URL.Query().Get("period")
	}

	req := history.GetHistoryRequest{
		Symbol: r.PathValue("symbol"),
		Range:  rng,
		Format: r.URL.Query().Get("format"),
	}

	resp, err := h.svcs.History.GetHistory(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if req.Format == "csv" {
		writeCSV(w, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getIntraday(w http.ResponseWriter, r *http.Request) {
	req := history.GetIntradayRequest{Symbol: r.PathValue("symbol")}

	resp, err := h.svcs.History.GetIntraday(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) searchTicker(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svcs.Search.Search(r.Context(), r.PathValue("ticker"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) latestSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svcs.Summaries.LatestSummary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sum == nil {
		writeError(w, http.StatusNotFound, "no summaries available yet")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *handler) recentNarratives(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	sums, err := h.svcs.Summaries.RecentSummaries(r.Context(), days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (h *handler) currentRegime(w http.ResponseWriter, r *http.Request) {
	result, err := h.svcs.Snapshots.Classify(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) regimeHistory(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	entries, err := h.svcs.Summaries.RegimeHistory(r.Context(), days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	j, err := h.svcs.Jobs.Get(r.Context(), job.GetJobRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	req := job.ListJobsRequest{
		Source: r.URL.Query().Get("source"),
		Symbol: r.URL.Query().Get("symbol"),
	}

	jobs, err := h.svcs.Jobs.List(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// adminFetchNow refreshes every asset and generates an ad-hoc summary,
// ignoring market sessions. Provider calls draw from the interactive
// credit budget.
func (h *handler) adminFetchNow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	quotes, err := h.svcs.Snapshots.PollAll(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	results := map[string]any{"quotes": quotes}
	if _, err := h.svcs.Summaries.GenerateSummary(ctx, narrative.PeriodAdhoc); err != nil {
		slog.Error("fetch-now: summary generation failed", "error", err)
		results["summary"] = "error"
	} else {
		results["summary"] = "ok"
	}

	writeJSON(w, http.StatusOK, results)
}

func (h *handler) adminExport(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svcs.Exporter.ExportAll(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
