package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"marketpicture/internal/apperror"
	"marketpicture/internal/history"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

// writeServiceError maps an AppError to its HTTP status; anything else is a
// 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeCSV(w http.ResponseWriter, resp *history.GetHistoryResponse) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=bars.csv")
	w.WriteHeader(http.StatusOK)

	_, _ = fmt.Fprintln(w, "Symbol,Date,Open,High,Low,Close,Volume")
	for _, p := range resp.Bars {
		volume := ""
		if p.Volume != nil {
			volume = strconv.FormatInt(*p.Volume, 10)
		}
		_, _ = fmt.Fprintf(w, "%s,%s,%.4f,%.4f,%.4f,%.4f,%s\n", //nolint:gosec // CSV output from internal domain types, not user input
			resp.Symbol,
			p.Date,
			p.Open,
			p.High,
			p.Low,
			p.Close,
			volume,
		)
	}
}
