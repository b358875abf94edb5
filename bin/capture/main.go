package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docshot/internal/capture"
	"docshot/internal/storage"
)

type CaptureOutput struct {
	ScreenshotPaths []string `json:"screenshotPaths"`
}

type headers []string

func (h *headers) String() string {
	return strings.Join(*h, ", ")
}

func (h *headers) Set(value string) error {
	*h = append(*h, value)
	return nil
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
	var themes string
	var themeToggleSelector string
	var selector string
	var waitSelector string
	var maskSelectors string
	var updateBaseline bool
	var delay time.Duration
	var viewportWidth int
	var viewportHeight int
	var chromeDevtoolsProtocolURL string
	var concurrency int
	var requestHeaders headers
	flag.StringVar(&directory, "directory", envOrDefaultValue("DIRECTORY", "/tmp"), "Output directory")
	flag.StringVar(&themes, "themes", envOrDefaultValue("THEMES", "light,dark"), "Comma-separated list of themes to capture (light and/or dark)")
	flag.StringVar(&themeToggleSelector, "theme-toggle-selector", envOrDefaultValue("THEME_TOGGLE_SELECTOR", ""), "CSS selector of the site's theme switch, clicked for sites that ignore prefers-color-scheme")
	flag.StringVar(&selector, "selector", envOrDefaultValue("SELECTOR", ""), "CSS selector to restrict the screenshot to a single element")
	flag.StringVar(&waitSelector, "wait-selector", envOrDefaultValue("WAIT_SELECTOR", ""), "CSS selector to wait for before capturing")
	flag.StringVar(&maskSelectors, "mask-selectors", envOrDefaultValue("MASK_SELECTORS", ""), "Comma-separated list of CSS selectors to mask during capture")
	flag.BoolVar(&updateBaseline, "update-baseline", envOrDefaultValue("UPDATE_BASELINE", false), "Store captures as baselines instead of current candidates")
	flag.DurationVar(&delay, "delay", envOrDefaultValue("DELAY", 1*time.Second), "Delay before capturing")
	flag.IntVar(&viewportWidth, "viewport-width", envOrDefaultValue("VIEWPORT_WIDTH", 1920), "Viewport width in pixels")
	flag.IntVar(&viewportHeight, "viewport-height", envOrDefaultValue("VIEWPORT_HEIGHT", 1080), "Viewport height in pixels")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", envOrDefaultValue("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser via Chrome DevTools Protocol URL (e.g., http://localhost:9222)")
	flag.IntVar(&concurrency, "concurrency", envOrDefaultValue("CONCURRENCY", 2), "Maximum number of concurrent captures")
	flag.Var(&requestHeaders, "H", "Add HTTP header (can be used multiple times, e.g., -H 'Accept: text/html' -H 'Authorization: Bearer token')")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("components not specified, expected name=url pairs")
	}

	type component struct {
		name string
		url  string
	}
	components := make([]component, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			log.Fatalf("invalid component %q, expected name=url", arg)
		}
		components = append(components, component{name: parts[0], url: parts[1]})
	}

	themeList := strings.Split(themes, ",")
	for i := range themeList {
		themeList[i] = strings.TrimSpace(themeList[i])
	}

	ctx := context.Background()

	s, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: directory,
	})
	if err != nil {
		log.Fatalf("Failed to create storage backend: %v", err)
	}

	config := capture.DefaultPlaywrightConfig()
	if delay > 0 {
		config.Delay = delay
	}
	if chromeDevtoolsProtocolURL != "" {
		config.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
	}
	if display := os.Getenv("DISPLAY"); display != "" {
		config.Headless = false
	}
	if viewportWidth > 0 {
		config.ViewportWidth = viewportWidth
	}
	if viewportHeight > 0 {
		config.ViewportHeight = viewportHeight
	}

	capturer, err := capture.NewPlaywrightCapturer(ctx, config)
	if err != nil {
		log.Fatalf("Failed to create capturer: %v", err)
	}

	captureOptions := capture.CaptureOptions{
		ThemeToggleSelector: themeToggleSelector,
		Selector:            selector,
		WaitSelector:        waitSelector,
	}
	if maskSelectors != "" {
		captureOptions.MaskSelectors = strings.Split(maskSelectors, ",")
		for i := range captureOptions.MaskSelectors {
			captureOptions.MaskSelectors[i] = strings.TrimSpace(captureOptions.MaskSelectors[i])
		}
	}
	if len(requestHeaders) > 0 {
		captureOptions.Headers = make(map[string]string)
		for _, header := range requestHeaders {
			parts := strings.SplitN(header, ":", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])
				captureOptions.Headers[key] = value
			}
		}
	}

	timestamp := time.Now().Format("20060102150405")

	screenshotPaths := make([]string, len(components)*len(themeList))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, c := range components {
		for j, theme := range themeList {
			i, j, c, theme := i, j, c, theme
			eg.Go(func() error {
				options := captureOptions
				options.Theme = theme

				result, err := capturer.Capture(egCtx, c.url, options)
				if err != nil {
					return fmt.Errorf("failed to capture %s (%s): %w", c.name, theme, err)
				}

				var key string
				if updateBaseline {
					key = fmt.Sprintf("baseline/%s-%s.png", c.name, theme)
				} else {
					key = fmt.Sprintf("current/%s-%s-%s.png", c.name, theme, timestamp)
				}

				path, err := s.Put(egCtx, key, result.Screenshot)
				if err != nil {
					return fmt.Errorf("failed to save %s: %w", key, err)
				}
				screenshotPaths[i*len(themeList)+j] = path
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		log.Fatalf("Failed to capture: %v", err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(CaptureOutput{
		ScreenshotPaths: screenshotPaths,
	}); err != nil {
		log.Fatalf("Failed to encode result: %v", err)
	}
}
