package routes

import (
	"log/slog"
	"net/http"

	"docshot/internal/storage"
)

// GetReport serves the latest persisted verification report verbatim.
func GetReport(storageClient storage.Storage, reportKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := storageClient.Get(r.Context(), reportKey)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			slog.Error("failed to write report response", "error", err)
		}
	}
}
