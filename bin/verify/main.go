package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	diffimage "docshot/internal/diff/image"
	"docshot/internal/notify"
	"docshot/internal/storage"
	"docshot/internal/verify"
)

func envOrDefaultValue[T any](key string, defaultValue T) T {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case string:
		return any(value).(T)
	case int:
		if intValue, err := strconv.Atoi(value); err == nil {
			return any(intValue).(T)
		}
	case int64:
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return any(intValue).(T)
		}
	case uint:
		if uintValue, err := strconv.ParseUint(value, 10, 0); err == nil {
			return any(uint(uintValue)).(T)
		}
	case uint64:
		if uintValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return any(uintValue).(T)
		}
	case float64:
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return any(floatValue).(T)
		}
	case bool:
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return any(boolValue).(T)
		}
	case time.Duration:
		if durationValue, err := time.ParseDuration(value); err == nil {
			return any(durationValue).(T)
		}
	}

	return defaultValue
}

func main() {
	var directory string
	var tolerance float64
	var failThreshold float64
	var keepPassingDiffs bool
	var concurrency int
	var callbackURL string
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Storage directory holding baseline/ and current/ captures")
	flag.Float64Var(&tolerance, "tolerance", envOrDefaultValue("TOLERANCE", 0.05), "Per-channel tolerance as a ratio of the full channel range")
	flag.Float64Var(&failThreshold, "fail-threshold", envOrDefaultValue("FAIL_THRESHOLD", 0.0), "Maximum acceptable ratio of differing pixels per pair")
	flag.BoolVar(&keepPassingDiffs, "keep-passing-diffs", envOrDefaultValue("KEEP_PASSING_DIFFS", false), "Persist diff images for pairs that pass the threshold")
	flag.IntVar(&concurrency, "concurrency", envOrDefaultValue("CONCURRENCY", 4), "Maximum number of concurrent comparisons")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Webhook endpoint to POST the verification report to")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	log.SetFlags(0)

	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	config := verify.DefaultConfig()
	config.ChannelTolerance = diffimage.ToleranceFromRatio(tolerance)
	config.FailThreshold = failThreshold
	config.KeepPassingDiffs = keepPassingDiffs
	if concurrency > 0 {
		config.Concurrency = concurrency
	}

	runner := verify.NewRunner(config, s, logr.FromSlogHandler(logger.Handler()))

	report, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("Failed to run verification: %v", err)
	}

	for _, result := range report.Results {
		fmt.Printf("%-8s %s (%.4f%%, %d/%d pixels)\n",
			result.Outcome,
			result.Name,
			result.DiffPercentage*100,
			result.DifferentPixelCount,
			result.TotalPixelCount,
		)
	}
	fmt.Printf("passed=%d failed=%d errored=%d skipped=%d\n",
		report.PassedCount, report.FailedCount, report.ErroredCount, report.SkippedCount)

	if callbackURL != "" {
		notifier := notify.NewNotifier(callbackURL, logr.FromSlogHandler(logger.Handler()))
		if err := notifier.Notify(ctx, report); err != nil {
			log.Fatalf("Failed to deliver report to %s: %v", callbackURL, err)
		}
	}

	if report.Failed() {
		os.Exit(1)
	}
}
