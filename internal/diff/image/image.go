package image

import "image"

type DiffResult struct {
	// Image is the annotated diff canvas: a copy of the current capture
	// with every differing pixel painted the sentinel color. It is nil
	// when no pixel differs and on dimension mismatch, so callers never
	// persist an empty artifact.
	Image image.Image

	// DiffPercentage is the fraction of pixels classified as different,
	// in [0.0, 1.0]. It is exactly 1.0 when the two inputs disagree on
	// dimensions.
	DiffPercentage float64

	DifferentPixelCount int
	TotalPixelCount     int

	// Succeeded is false only when a supplied pixel buffer could not be
	// read (its declared bounds disagree with the backing buffer).
	// Images that merely differ, including dimension mismatches, still
	// succeed.
	Succeeded bool
	Message   string
}

type Differ interface {
	Compare(baseline image.Image, current image.Image) *DiffResult
}
