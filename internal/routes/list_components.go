package routes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"docshot/internal/storage"
	"docshot/internal/verify"
)

type ComponentSummary struct {
	Name           string  `json:"name"`
	Outcome        string  `json:"outcome"`
	DiffPercentage float64 `json:"diffPercentage"`
	HasDiff        bool    `json:"hasDiff"`
}

// ListComponents summarizes the latest report per component/theme pair.
func ListComponents(storageClient storage.Storage, reportKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := loadReport(r, storageClient, reportKey)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		summaries := make([]ComponentSummary, 0, len(report.Results))
		for _, result := range report.Results {
			summaries = append(summaries, ComponentSummary{
				Name:           result.Name,
				Outcome:        result.Outcome,
				DiffPercentage: result.DiffPercentage,
				HasDiff:        result.DiffURL != "",
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(summaries); err != nil {
			slog.Error("failed to encode component summaries", "error", err)
		}
	}
}

func loadReport(r *http.Request, storageClient storage.Storage, reportKey string) (*verify.Report, error) {
	data, err := storageClient.Get(r.Context(), reportKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	var report verify.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}
