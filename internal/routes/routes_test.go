package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docshot/internal/routes"
	"docshot/internal/verify"
)

type memoryStorage struct {
	objects map[string][]byte
}

func (m *memoryStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	m.objects[key] = data
	return key, nil
}

func (m *memoryStorage) Get(ctx context.Context, url string) ([]byte, error) {
	data, ok := m.objects[url]
	if !ok {
		return nil, errors.New("object not found: " + url)
	}
	return data, nil
}

func (m *memoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys, nil
}

func seededStorage(t *testing.T) *memoryStorage {
	t.Helper()
	report := verify.Report{
		GeneratedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
		Results: []verify.Result{
			{
				Name:           "home-light",
				BaselineKey:    "baseline/home-light.png",
				CurrentKey:     "current/home-light-20260828120000.png",
				DiffURL:        "diffs/home-light.png",
				DiffPercentage: 0.25,
				Outcome:        verify.OutcomeFailed,
			},
			{
				Name:        "home-dark",
				BaselineKey: "baseline/home-dark.png",
				Outcome:     verify.OutcomeSkipped,
				Message:     "no current capture found",
			},
		},
		FailedCount:  1,
		SkippedCount: 1,
	}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("failed to marshal report fixture: %v", err)
	}

	s := &memoryStorage{objects: map[string][]byte{}}
	s.objects["reports/latest.json"] = data
	s.objects["baseline/home-light.png"] = []byte("baseline-bytes")
	s.objects["current/home-light-20260828120000.png"] = []byte("current-bytes")
	s.objects["diffs/home-light.png"] = []byte("diff-bytes")
	return s
}

func TestGetReport(t *testing.T) {
	handler := routes.GetReport(seededStorage(t), "reports/latest.json")

	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	var report verify.Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("Expected a JSON report: %v", err)
	}
	if report.FailedCount != 1 {
		t.Errorf("Expected FailedCount 1, got %d", report.FailedCount)
	}
}

func TestGetReport_Missing(t *testing.T) {
	handler := routes.GetReport(&memoryStorage{objects: map[string][]byte{}}, "reports/latest.json")

	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, "/api/report", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a report, got %d", recorder.Code)
	}
}

func TestListComponents(t *testing.T) {
	handler := routes.ListComponents(seededStorage(t), "reports/latest.json")

	recorder := httptest.NewRecorder()
	handler(recorder, httptest.NewRequest(http.MethodGet, "/api/components", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	var summaries []routes.ComponentSummary
	if err := json.Unmarshal(recorder.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("Expected JSON summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("Expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].Name != "home-light" || !summaries[0].HasDiff {
		t.Errorf("Expected home-light with a diff artifact, got %+v", summaries[0])
	}
	if summaries[1].Outcome != verify.OutcomeSkipped {
		t.Errorf("Expected home-dark to be skipped, got %+v", summaries[1])
	}
}

func TestGetArtifacts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/components/{name}/artifacts", routes.GetArtifacts(seededStorage(t), "reports/latest.json"))

	t.Run("Found", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/components/home-light/artifacts", nil))

		if recorder.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", recorder.Code)
		}
		var response routes.ArtifactsResponse
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("Expected a JSON response: %v", err)
		}
		if response.Baseline == "" || response.Current == "" || response.Diff == "" {
			t.Errorf("Expected all three artifacts to be present, got %+v", response)
		}
		if response.DiffPercentage != 0.25 {
			t.Errorf("Expected DiffPercentage 0.25, got %f", response.DiffPercentage)
		}
	})

	t.Run("UnknownComponent", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/components/missing/artifacts", nil))

		if recorder.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for an unknown component, got %d", recorder.Code)
		}
	})
}
