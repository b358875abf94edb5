package routes

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"docshot/internal/storage"
	"docshot/internal/verify"
)

type ArtifactsResponse struct {
	Baseline       string  `json:"baseline,omitempty"`
	Current        string  `json:"current,omitempty"`
	Diff           string  `json:"diff,omitempty"`
	DiffPercentage float64 `json:"diffPercentage"`
	Outcome        string  `json:"outcome"`
	Message        string  `json:"message,omitempty"`
}

// GetArtifacts returns the baseline, current and diff images for one
// component/theme pair, base64 encoded for inline review.
func GetArtifacts(storageClient storage.Storage, reportKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")

		report, err := loadReport(r, storageClient, reportKey)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		var result *verify.Result
		for i := range report.Results {
			if report.Results[i].Name == name {
				result = &report.Results[i]
				break
			}
		}
		if result == nil {
			http.NotFound(w, r)
			return
		}

		response := ArtifactsResponse{
			DiffPercentage: result.DiffPercentage,
			Outcome:        result.Outcome,
			Message:        result.Message,
		}

		if data, err := storageClient.Get(r.Context(), result.BaselineKey); err == nil {
			response.Baseline = base64.StdEncoding.EncodeToString(data)
		}
		if result.CurrentKey != "" {
			if data, err := storageClient.Get(r.Context(), result.CurrentKey); err == nil {
				response.Current = base64.StdEncoding.EncodeToString(data)
			}
		}
		if result.DiffURL != "" {
			if data, err := storageClient.Get(r.Context(), result.DiffURL); err == nil {
				response.Diff = base64.StdEncoding.EncodeToString(data)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			slog.Error("failed to encode artifacts response", "error", err)
		}
	}
}
