package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	diffimage "docshot/internal/diff/image"
	"docshot/internal/notify"
	"docshot/internal/runnable"
	"docshot/internal/schedule"
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
	_ = godotenv.Load()

	var backend string
	var directory string
	var bucket string
	var tolerance float64
	var failThreshold float64
	var keepPassingDiffs bool
	var concurrency int
	var schedulerSpec string
	var callbackURL string

	flag.StringVar(&backend, "storage-backend", envOrDefaultValue("STORAGE_BACKEND", "file"), "Storage backend holding captures (file or s3)")
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Directory for the file storage backend")
	flag.StringVar(&bucket, "s3-bucket", envOrDefaultValue("S3_BUCKET", ""), "Bucket for the s3 storage backend")
	flag.Float64Var(&tolerance, "tolerance", envOrDefaultValue("TOLERANCE", 0.05), "Per-channel tolerance as a ratio of the full channel range")
	flag.Float64Var(&failThreshold, "fail-threshold", envOrDefaultValue("FAIL_THRESHOLD", 0.0), "Maximum acceptable ratio of differing pixels per pair")
	flag.BoolVar(&keepPassingDiffs, "keep-passing-diffs", envOrDefaultValue("KEEP_PASSING_DIFFS", false), "Persist diff images for pairs that pass the threshold")
	flag.IntVar(&concurrency, "concurrency", envOrDefaultValue("CONCURRENCY", 4), "Maximum number of concurrent comparisons")
	flag.StringVar(&schedulerSpec, "verify-schedule", envOrDefaultValue("VERIFY_SCHEDULE", "@hourly"), "Cron schedule for the verification batch")
	flag.StringVar(&callbackURL, "callback-url", envOrDefaultValue("CALLBACK_URL", ""), "Webhook endpoint to POST each verification report to")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	entrypointLogger := logr.FromSlogHandler(logger.Handler()).WithName("entrypoint")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var storageClient storage.Storage
	var err error
	switch backend {
	case "file":
		storageClient, err = storage.NewFileStorage(ctx, storage.FileConfig{
			Directory: directory,
		})
	case "s3":
		storageClient, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket: bucket,
		})
	default:
		entrypointLogger.Info("unknown storage backend", "backend", backend)
		os.Exit(1)
	}
	if err != nil {
		entrypointLogger.Error(err, "unable to create storage backend", "backend", backend)
		os.Exit(1)
	}

	config := verify.DefaultConfig()
	config.ChannelTolerance = diffimage.ToleranceFromRatio(tolerance)
	config.FailThreshold = failThreshold
	config.KeepPassingDiffs = keepPassingDiffs
	if concurrency > 0 {
		config.Concurrency = concurrency
	}

	runner := verify.NewRunner(config, storageClient, logr.FromSlogHandler(logger.Handler()).WithName("verify"))

	var notifier *notify.Notifier
	if callbackURL != "" {
		notifier = notify.NewNotifier(callbackURL, logr.FromSlogHandler(logger.Handler()).WithName("notify"))
	}

	scheduler := schedule.NewScheduler(logr.FromSlogHandler(logger.Handler()).WithName("schedule"))
	if err := scheduler.Add(schedulerSpec, "verify", func(ctx context.Context) {
		report, err := runner.Run(ctx)
		if err != nil {
			entrypointLogger.Error(err, "verification batch failed")
			return
		}
		if notifier != nil {
			if err := notifier.Notify(ctx, report); err != nil {
				entrypointLogger.Error(err, "unable to deliver report", "endpoint", callbackURL)
			}
		}
	}); err != nil {
		entrypointLogger.Error(err, "unable to register schedule", "spec", schedulerSpec)
		os.Exit(1)
	}

	scheduler.Start()
	defer scheduler.Stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return runnable.NewServer(storageClient, config.ReportKey).Start(egCtx)
	})

	entrypointLogger.Info("starting", "schedule", schedulerSpec, "backend", backend)
	if err := eg.Wait(); err != nil {
		entrypointLogger.Error(err, "problem running server")
		os.Exit(1)
	}
}
