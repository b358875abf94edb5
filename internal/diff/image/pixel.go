package image

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// Differing pixels are painted magenta so they stand out against both
// light and dark documentation themes.
const (
	sentinelR = 255
	sentinelG = 0
	sentinelB = 255
)

type PixelDiff struct {
	tolerance int
}

// NewPixelDiff returns a differ that classifies a pixel as different
// when any of its R, G, B channels deviates by more than tolerance.
// tolerance is clamped to [0, 255]. Alpha never participates in the
// classification.
func NewPixelDiff(tolerance int) *PixelDiff {
	if tolerance < 0 {
		tolerance = 0
	}
	if tolerance > 255 {
		tolerance = 255
	}
	return &PixelDiff{
		tolerance: tolerance,
	}
}

// ToleranceFromRatio converts a color-distance ratio such as 0.05 into
// the integer channel tolerance as ceil(255 * ratio). Callers holding a
// percentage threshold must convert through here so that both forms of
// the knob share the same semantics.
func ToleranceFromRatio(ratio float64) int {
	if ratio <= 0 {
		return 0
	}
	if ratio >= 1 {
		return 255
	}
	return int(math.Ceil(255 * ratio))
}

func (p *PixelDiff) Compare(baseline image.Image, current image.Image) *DiffResult {
	baselineWidth := baseline.Bounds().Dx()
	baselineHeight := baseline.Bounds().Dy()
	currentWidth := current.Bounds().Dx()
	currentHeight := current.Bounds().Dy()

	// A resized layout is itself a regression signal, so mismatched
	// dimensions are a defined maximal-difference outcome rather than
	// an error.
	if baselineWidth != currentWidth || baselineHeight != currentHeight {
		total := currentWidth * currentHeight
		return &DiffResult{
			DiffPercentage:      1.0,
			DifferentPixelCount: total,
			TotalPixelCount:     total,
			Succeeded:           true,
			Message: fmt.Sprintf(
				"dimension mismatch: baseline is %dx%d, current is %dx%d",
				baselineWidth, baselineHeight, currentWidth, currentHeight,
			),
		}
	}

	if err := validateBuffer(baseline); err != nil {
		return &DiffResult{
			Succeeded: false,
			Message:   fmt.Sprintf("unreadable baseline buffer: %s", err),
		}
	}
	if err := validateBuffer(current); err != nil {
		return &DiffResult{
			Succeeded: false,
			Message:   fmt.Sprintf("unreadable current buffer: %s", err),
		}
	}

	totalPixelCount := currentWidth * currentHeight

	if baseline == current {
		return &DiffResult{
			DiffPercentage:  0.0,
			TotalPixelCount: totalPixelCount,
			Succeeded:       true,
		}
	}

	// The diff canvas starts as a copy of current, not baseline:
	// unchanged regions show the page as it renders now.
	bounds := current.Bounds()
	diff := image.NewRGBA(bounds)
	draw.Draw(diff, bounds, current, bounds.Min, draw.Src)

	var differentPixelCount int64

	baselineRGBA, baselineIsRGBA := baseline.(*image.RGBA)
	currentRGBA, currentIsRGBA := current.(*image.RGBA)
	baselineNRGBA, baselineIsNRGBA := baseline.(*image.NRGBA)
	currentNRGBA, currentIsNRGBA := current.(*image.NRGBA)

	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	// https://tip.golang.org/doc/go1.25#container-aware-gomaxprocs
	numWorkers := runtime.GOMAXPROCS(0)
	rowsPerWorker := currentHeight / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = currentHeight
		}

		go func(startY int, endY int) {
			defer wg.Done()
			switch {
			case baselineIsRGBA && currentIsRGBA:
				p.comparePix(baselineRGBA.Pix, baselineRGBA.Stride, currentRGBA.Pix, currentRGBA.Stride, diff, startY, endY, currentWidth, &differentPixelCount)
			case baselineIsNRGBA && currentIsNRGBA:
				p.comparePix(baselineNRGBA.Pix, baselineNRGBA.Stride, currentNRGBA.Pix, currentNRGBA.Stride, diff, startY, endY, currentWidth, &differentPixelCount)
			default:
				p.compareGeneric(baseline, current, diff, startY, endY, currentWidth, &differentPixelCount)
			}
		}(startY, endY)
	}

	wg.Wait()

	diffPercentage := 0.0
	if totalPixelCount > 0 {
		diffPercentage = float64(differentPixelCount) / float64(totalPixelCount)
	}

	result := &DiffResult{
		DiffPercentage:      diffPercentage,
		DifferentPixelCount: int(differentPixelCount),
		TotalPixelCount:     totalPixelCount,
		Succeeded:           true,
	}
	if differentPixelCount > 0 {
		result.Image = diff
	}
	return result
}

// comparePix is the fast path for 8-bit 4-byte-per-pixel buffers. RGBA
// and NRGBA share the R, G, B, A byte layout, and since alpha is
// ignored the premultiplication difference between them does not
// matter for classification.
func (p *PixelDiff) comparePix(baselinePix []uint8, baselineStride int, currentPix []uint8, currentStride int, diff *image.RGBA, startY int, endY int, width int, counter *int64) {
	var local int64

	for y := startY; y < endY; y++ {
		baselineRowStart := y * baselineStride
		currentRowStart := y * currentStride
		diffRowStart := y * diff.Stride

		for x := 0; x < width; x++ {
			baselineOffset := baselineRowStart + x*4
			currentOffset := currentRowStart + x*4

			if channelDelta(baselinePix[baselineOffset], currentPix[currentOffset]) > p.tolerance ||
				channelDelta(baselinePix[baselineOffset+1], currentPix[currentOffset+1]) > p.tolerance ||
				channelDelta(baselinePix[baselineOffset+2], currentPix[currentOffset+2]) > p.tolerance {
				diffOffset := diffRowStart + x*4
				diff.Pix[diffOffset] = sentinelR
				diff.Pix[diffOffset+1] = sentinelG
				diff.Pix[diffOffset+2] = sentinelB
				local++
			}
		}
	}

	atomic.AddInt64(counter, local)
}

func (p *PixelDiff) compareGeneric(baseline image.Image, current image.Image, diff *image.RGBA, startY int, endY int, width int, counter *int64) {
	var local int64
	baselineMin := baseline.Bounds().Min
	currentMin := current.Bounds().Min

	for y := startY; y < endY; y++ {
		diffRowStart := y * diff.Stride

		for x := 0; x < width; x++ {
			baselineColor := color.NRGBAModel.Convert(baseline.At(baselineMin.X+x, baselineMin.Y+y)).(color.NRGBA)
			currentColor := color.NRGBAModel.Convert(current.At(currentMin.X+x, currentMin.Y+y)).(color.NRGBA)

			if channelDelta(baselineColor.R, currentColor.R) > p.tolerance ||
				channelDelta(baselineColor.G, currentColor.G) > p.tolerance ||
				channelDelta(baselineColor.B, currentColor.B) > p.tolerance {
				diffOffset := diffRowStart + x*4
				diff.Pix[diffOffset] = sentinelR
				diff.Pix[diffOffset+1] = sentinelG
				diff.Pix[diffOffset+2] = sentinelB
				local++
			}
		}
	}

	atomic.AddInt64(counter, local)
}

func channelDelta(a uint8, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func validateBuffer(img image.Image) error {
	bounds := img.Bounds()
	switch v := img.(type) {
	case *image.RGBA:
		return validatePix(len(v.Pix), v.Stride, bounds)
	case *image.NRGBA:
		return validatePix(len(v.Pix), v.Stride, bounds)
	}
	return nil
}

func validatePix(pixLen int, stride int, bounds image.Rectangle) error {
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil
	}
	if stride < width*4 {
		return fmt.Errorf("stride %d is smaller than a %d pixel row", stride, width)
	}
	if required := (height-1)*stride + width*4; pixLen < required {
		return fmt.Errorf("buffer holds %d bytes, %dx%d bounds require %d", pixLen, width, height, required)
	}
	return nil
}
