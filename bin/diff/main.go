package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"strconv"
	"time"

	diffimage "docshot/internal/diff/image"
	"docshot/internal/imaging"
	"docshot/internal/storage"
)

type DiffOutput struct {
	DiffPath            string  `json:"diffPath"`
	DiffPercentage      float64 `json:"diffPercentage"`
	DifferentPixelCount int     `json:"differentPixelCount"`
	TotalPixelCount     int     `json:"totalPixelCount"`
}

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
	var format string
	var tolerance float64
	var failThreshold float64
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&format, "format", envOrDefaultValue("FORMAT", "pixel"), "Diff rendering (pixel or region)")
	flag.Float64Var(&tolerance, "tolerance", envOrDefaultValue("TOLERANCE", 0.05), "Per-channel tolerance as a ratio of the full channel range")
	flag.Float64Var(&failThreshold, "fail-threshold", envOrDefaultValue("FAIL_THRESHOLD", 0.0), "Maximum acceptable ratio of differing pixels")

	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		log.Fatalf("baseline, current not specified")
	}

	ctx := context.Background()
	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	baselinePath := args[0]
	currentPath := args[1]

	baselineImage, err := loadScreenshot(baselinePath)
	if err != nil {
		log.Fatalf("Failed to load baseline image: %v", err)
	}

	currentImage, err := loadScreenshot(currentPath)
	if err != nil {
		log.Fatalf("Failed to load current image: %v", err)
	}

	var differ diffimage.Differ
	switch format {
	case "pixel":
		differ = diffimage.NewPixelDiff(diffimage.ToleranceFromRatio(tolerance))
	case "region":
		differ = diffimage.NewRegionDiff(diffimage.ToleranceFromRatio(tolerance))
	default:
		log.Fatalf("Unknown diff format: %s", format)
	}

	diffResult := differ.Compare(baselineImage, currentImage)
	if !diffResult.Succeeded {
		log.Fatalf("Failed to compare images: %s", diffResult.Message)
	}

	var diffPath string
	if diffResult.Image != nil {
		buffer, err := imaging.EncodePNG(diffResult.Image)
		if err != nil {
			log.Fatalf("Failed to encode diff image: %v", err)
		}

		timestamp := time.Now().Format("20060102150405")

		h := sha256.New()
		h.Write([]byte(baselinePath + currentPath))
		hash := fmt.Sprintf("%x", h.Sum(nil))[:16]

		key := fmt.Sprintf("diffs/%s/%s.png", hash, timestamp)
		diffPath, err = s.Put(ctx, key, buffer)
		if err != nil {
			log.Fatalf("Failed to save diff image: %v", err)
		}
	}

	if err := json.NewEncoder(os.Stdout).Encode(DiffOutput{
		DiffPath:            diffPath,
		DiffPercentage:      diffResult.DiffPercentage,
		DifferentPixelCount: diffResult.DifferentPixelCount,
		TotalPixelCount:     diffResult.TotalPixelCount,
	}); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}

	if diffResult.DiffPercentage > failThreshold {
		os.Exit(1)
	}
}

func loadScreenshot(path string) (image.Image, error) {
	buffer, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return imaging.Decode(buffer)
}
