package capture

import (
	"context"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type CaptureOptions struct {
	// Theme selects the color scheme to emulate before capturing,
	// ThemeLight or ThemeDark. Empty leaves the page default.
	Theme string
	// ThemeToggleSelector, when set, is clicked after navigation for
	// documentation sites whose theme switch ignores the emulated
	// prefers-color-scheme.
	ThemeToggleSelector string
	// Selector restricts the screenshot to the first matching element
	// instead of the full page.
	Selector string
	// WaitSelector is waited for before capturing, for pages that
	// hydrate their content client side.
	WaitSelector string
	// MaskSelectors are blacked out before capturing to hide volatile
	// content such as timestamps or version badges.
	MaskSelectors []string
	Headers       map[string]string
}

type CaptureResult struct {
	Screenshot []byte
}

type Capturer interface {
	Capture(ctx context.Context, url string, captureOptions CaptureOptions) (*CaptureResult, error)
}
