package verify_test

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"
	"testing"

	"docshot/internal/imaging"
	"docshot/internal/verify"

	"github.com/go-logr/logr"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: map[string][]byte{}}
}

func (m *memoryStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return "mem://" + key, nil
}

func (m *memoryStorage) Get(ctx context.Context, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimPrefix(url, "mem://")
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func (m *memoryStorage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix+"/") {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func encodeSolid(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	return data
}

func testConfig() verify.Config {
	config := verify.DefaultConfig()
	config.ChannelTolerance = 0
	return config
}

func put(t *testing.T, s *memoryStorage, key string, data []byte) {
	t.Helper()
	if _, err := s.Put(context.Background(), key, data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestRunner_Run(t *testing.T) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{R: 0, G: 0, B: 0, A: 255}

	t.Run("IdenticalPairPasses", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/home-light.png", encodeSolid(t, 10, 10, white))
		put(t, s, "current/home-light-20260828120000.png", encodeSolid(t, 10, 10, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.PassedCount != 1 || report.Failed() {
			t.Errorf("Expected a single passing pair, got %+v", report)
		}
		if _, ok := s.objects["diffs/home-light.png"]; ok {
			t.Error("Expected no diff artifact for identical images")
		}
	})

	t.Run("DivergingPairFailsAndWritesDiff", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/home-dark.png", encodeSolid(t, 10, 10, black))
		put(t, s, "current/home-dark-20260828120000.png", encodeSolid(t, 10, 10, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.FailedCount != 1 || !report.Failed() {
			t.Errorf("Expected a single failing pair, got %+v", report)
		}
		result := report.Results[0]
		if result.DiffPercentage != 1.0 {
			t.Errorf("Expected DiffPercentage 1.0, got %f", result.DiffPercentage)
		}
		if result.DiffURL != "mem://diffs/home-dark.png" {
			t.Errorf("Expected diff artifact URL, got %q", result.DiffURL)
		}
		if _, ok := s.objects["diffs/home-dark.png"]; !ok {
			t.Error("Expected diff artifact to be written")
		}
	})

	t.Run("ToleratedNoisePassesWithoutArtifact", func(t *testing.T) {
		s := newMemoryStorage()
		baseline := image.NewRGBA(image.Rect(0, 0, 10, 10))
		draw.Draw(baseline, baseline.Bounds(), &image.Uniform{C: color.RGBA{R: 100, G: 100, B: 100, A: 255}}, image.Point{}, draw.Src)
		current := image.NewRGBA(image.Rect(0, 0, 10, 10))
		draw.Draw(current, current.Bounds(), &image.Uniform{C: color.RGBA{R: 104, G: 100, B: 100, A: 255}}, image.Point{}, draw.Src)

		baselineData, _ := imaging.EncodePNG(baseline)
		currentData, _ := imaging.EncodePNG(current)
		put(t, s, "baseline/api-light.png", baselineData)
		put(t, s, "current/api-light-20260828120000.png", currentData)

		config := testConfig()
		config.ChannelTolerance = 10

		report, err := verify.NewRunner(config, s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report.PassedCount != 1 {
			t.Errorf("Expected tolerated noise to pass, got %+v", report)
		}
		if _, ok := s.objects["diffs/api-light.png"]; ok {
			t.Error("Expected no diff artifact for a pair under tolerance")
		}
	})

	t.Run("LatestCaptureWins", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/guide-light.png", encodeSolid(t, 10, 10, white))
		put(t, s, "current/guide-light-20260828110000.png", encodeSolid(t, 10, 10, black))
		put(t, s, "current/guide-light-20260828120000.png", encodeSolid(t, 10, 10, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.PassedCount != 1 {
			t.Errorf("Expected the newest capture to be compared, got %+v", report)
		}
		if report.Results[0].CurrentKey != "current/guide-light-20260828120000.png" {
			t.Errorf("Expected latest key, got %q", report.Results[0].CurrentKey)
		}
	})

	t.Run("DimensionMismatchFails", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/nav-light.png", encodeSolid(t, 10, 10, white))
		put(t, s, "current/nav-light-20260828120000.png", encodeSolid(t, 20, 20, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		result := report.Results[0]
		if result.Outcome != verify.OutcomeFailed {
			t.Errorf("Expected mismatched dimensions to fail, got %q", result.Outcome)
		}
		if result.DiffPercentage != 1.0 {
			t.Errorf("Expected sentinel DiffPercentage 1.0, got %f", result.DiffPercentage)
		}
		if result.DiffURL != "" {
			t.Error("Expected no diff artifact on dimension mismatch")
		}
	})

	t.Run("DecodeFailureDoesNotAbortBatch", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/broken-light.png", []byte("not a png"))
		put(t, s, "current/broken-light-20260828120000.png", encodeSolid(t, 10, 10, white))
		put(t, s, "baseline/ok-light.png", encodeSolid(t, 10, 10, white))
		put(t, s, "current/ok-light-20260828120000.png", encodeSolid(t, 10, 10, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.ErroredCount != 1 || report.PassedCount != 1 {
			t.Errorf("Expected one errored and one passed pair, got %+v", report)
		}
		if !report.Failed() {
			t.Error("Expected an errored pair to fail the run")
		}
	})

	t.Run("MissingCurrentIsSkipped", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/orphan-light.png", encodeSolid(t, 10, 10, white))

		report, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.SkippedCount != 1 {
			t.Errorf("Expected one skipped pair, got %+v", report)
		}
		if report.Failed() {
			t.Error("Expected skipped pairs not to fail the run")
		}
	})

	t.Run("ReportPersisted", func(t *testing.T) {
		s := newMemoryStorage()
		put(t, s, "baseline/home-light.png", encodeSolid(t, 10, 10, white))
		put(t, s, "current/home-light-20260828120000.png", encodeSolid(t, 10, 10, white))

		if _, err := verify.NewRunner(testConfig(), s, logr.Discard()).Run(context.Background()); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		data, ok := s.objects["reports/latest.json"]
		if !ok {
			t.Fatal("Expected report to be persisted")
		}
		var report verify.Report
		if err := json.Unmarshal(data, &report); err != nil {
			t.Fatalf("Expected a valid JSON report: %v", err)
		}
		if len(report.Results) != 1 {
			t.Errorf("Expected one result in the persisted report, got %d", len(report.Results))
		}
	})

	t.Run("KeepPassingDiffs", func(t *testing.T) {
		s := newMemoryStorage()
		baseline := encodeSolid(t, 10, 10, white)
		current := image.NewRGBA(image.Rect(0, 0, 10, 10))
		draw.Draw(current, current.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)
		current.SetRGBA(0, 0, color.RGBA{R: 0, G: 0, B: 0, A: 255})
		currentData, _ := imaging.EncodePNG(current)

		put(t, s, "baseline/tweak-light.png", baseline)
		put(t, s, "current/tweak-light-20260828120000.png", currentData)

		config := testConfig()
		config.FailThreshold = 0.5
		config.KeepPassingDiffs = true

		report, err := verify.NewRunner(config, s, logr.Discard()).Run(context.Background())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if report.PassedCount != 1 {
			t.Errorf("Expected pair under the threshold to pass, got %+v", report)
		}
		if _, ok := s.objects["diffs/tweak-light.png"]; !ok {
			t.Error("Expected passing diff artifact to be kept in verbose mode")
		}
	})
}
