package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	diffimage "docshot/internal/diff/image"
	"docshot/internal/imaging"
	"docshot/internal/storage"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

type Config struct {
	BaselinePrefix string
	CurrentPrefix  string
	DiffPrefix     string

	// ChannelTolerance decides what counts as a changed pixel;
	// FailThreshold decides how many changed pixels fail the run. The
	// two knobs are independent.
	ChannelTolerance int
	FailThreshold    float64

	// KeepPassingDiffs also persists artifacts for pairs under the
	// threshold. Off by default so the diffs prefix only holds
	// actionable output.
	KeepPassingDiffs bool

	Concurrency int

	// ReportKey is where the aggregated report is persisted for the
	// review server. Empty disables persistence.
	ReportKey string
}

func DefaultConfig() Config {
	return Config{
		BaselinePrefix:   "baseline",
		CurrentPrefix:    "current",
		DiffPrefix:       "diffs",
		ChannelTolerance: diffimage.ToleranceFromRatio(0.05),
		FailThreshold:    0.0,
		Concurrency:      4,
		ReportKey:        "reports/latest.json",
	}
}

type Runner struct {
	config  Config
	storage storage.Storage
	differ  diffimage.Differ
	log     logr.Logger
}

func NewRunner(config Config, storageClient storage.Storage, log logr.Logger) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Runner{
		config:  config,
		storage: storageClient,
		differ:  diffimage.NewPixelDiff(config.ChannelTolerance),
		log:     log,
	}
}

// Run compares every baseline against its latest matching current
// capture. A single pair failing to decode never aborts the batch;
// every pair finishes and appears in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	baselineKeys, err := r.storage.List(ctx, r.config.BaselinePrefix)
	if err != nil {
		return nil, xerrors.Errorf("failed to list baselines: %w", err)
	}
	currentKeys, err := r.storage.List(ctx, r.config.CurrentPrefix)
	if err != nil {
		return nil, xerrors.Errorf("failed to list current captures: %w", err)
	}

	latest := r.latestCurrents(currentKeys)

	var pairs []Result
	for _, baselineKey := range baselineKeys {
		if !isImageKey(baselineKey) {
			continue
		}
		name := stripKey(baselineKey, r.config.BaselinePrefix)
		pairs = append(pairs, Result{
			Name:        name,
			BaselineKey: baselineKey,
			CurrentKey:  latest[name],
		})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Name < pairs[j].Name })

	results := make([]Result, len(pairs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.config.Concurrency)
	for i, pair := range pairs {
		eg.Go(func() error {
			results[i] = r.comparePair(egCtx, pair)
			return nil
		})
	}
	_ = eg.Wait()

	report := &Report{
		GeneratedAt:      time.Now().UTC(),
		FailThreshold:    r.config.FailThreshold,
		ChannelTolerance: r.config.ChannelTolerance,
		Results:          results,
	}
	for _, result := range results {
		switch result.Outcome {
		case OutcomePassed:
			report.PassedCount++
		case OutcomeFailed:
			report.FailedCount++
		case OutcomeErrored:
			report.ErroredCount++
		case OutcomeSkipped:
			report.SkippedCount++
		}
	}

	r.log.Info("verification finished",
		"passed", report.PassedCount,
		"failed", report.FailedCount,
		"errored", report.ErroredCount,
		"skipped", report.SkippedCount,
	)

	if r.config.ReportKey != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, xerrors.Errorf("failed to marshal report: %w", err)
		}
		if _, err := r.storage.Put(ctx, r.config.ReportKey, data); err != nil {
			return nil, xerrors.Errorf("failed to persist report: %w", err)
		}
	}

	return report, nil
}

// latestCurrents maps each baseline name to its newest capture key.
func (r *Runner) latestCurrents(keys []string) map[string]string {
	type candidate struct {
		key       string
		timestamp string
	}
	newest := map[string]candidate{}
	for _, key := range keys {
		if !isImageKey(key) {
			continue
		}
		name, timestamp, ok := splitCurrentName(stripKey(key, r.config.CurrentPrefix))
		if !ok {
			continue
		}
		if existing, ok := newest[name]; !ok || timestamp > existing.timestamp {
			newest[name] = candidate{key: key, timestamp: timestamp}
		}
	}

	latest := make(map[string]string, len(newest))
	for name, c := range newest {
		latest[name] = c.key
	}
	return latest
}

func (r *Runner) comparePair(ctx context.Context, pair Result) Result {
	if pair.CurrentKey == "" {
		pair.Outcome = OutcomeSkipped
		pair.Message = "no current capture found"
		r.log.Info("skipping pair without capture", "name", pair.Name)
		return pair
	}

	baselineData, err := r.storage.Get(ctx, pair.BaselineKey)
	if err != nil {
		return errored(pair, fmt.Sprintf("failed to read baseline: %s", err))
	}
	currentData, err := r.storage.Get(ctx, pair.CurrentKey)
	if err != nil {
		return errored(pair, fmt.Sprintf("failed to read current capture: %s", err))
	}

	baselineImage, err := imaging.Decode(baselineData)
	if err != nil {
		return errored(pair, fmt.Sprintf("failed to decode baseline: %s", err))
	}
	currentImage, err := imaging.Decode(currentData)
	if err != nil {
		return errored(pair, fmt.Sprintf("failed to decode current capture: %s", err))
	}

	diffResult := r.differ.Compare(baselineImage, currentImage)
	if !diffResult.Succeeded {
		return errored(pair, diffResult.Message)
	}

	pair.DiffPercentage = diffResult.DiffPercentage
	pair.DifferentPixelCount = diffResult.DifferentPixelCount
	pair.TotalPixelCount = diffResult.TotalPixelCount
	pair.Message = diffResult.Message

	if diffResult.DiffPercentage <= r.config.FailThreshold {
		pair.Outcome = OutcomePassed
	} else {
		pair.Outcome = OutcomeFailed
	}

	if diffResult.Image != nil && (pair.Outcome == OutcomeFailed || r.config.KeepPassingDiffs) {
		data, err := imaging.EncodePNG(diffResult.Image)
		if err != nil {
			return errored(pair, fmt.Sprintf("failed to encode diff image: %s", err))
		}
		url, err := r.storage.Put(ctx, fmt.Sprintf("%s/%s.png", r.config.DiffPrefix, pair.Name), data)
		if err != nil {
			return errored(pair, fmt.Sprintf("failed to persist diff image: %s", err))
		}
		pair.DiffURL = url
	}

	r.log.V(1).Info("compared pair",
		"name", pair.Name,
		"outcome", pair.Outcome,
		"diffPercentage", pair.DiffPercentage,
	)
	return pair
}

func errored(pair Result, message string) Result {
	pair.Outcome = OutcomeErrored
	pair.Message = message
	return pair
}
